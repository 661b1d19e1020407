package messaging

// ChannelResolver maps a platform channel to the agent instance bound to it.
// The state store implements this; clients use it to tag inbound messages
// with their project, agent type, and instance before handing them to the
// router.
type ChannelResolver interface {
	ResolveChannel(channelID string) (projectName, agentType, instanceID string, ok bool)
}
