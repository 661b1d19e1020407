package messaging

// SplitMessage splits text into chunks of at most maxLen bytes, preferring
// to break at a newline in the second half of the chunk so fenced blocks and
// lists survive splitting as well as they can.
func SplitMessage(text string, maxLen int) []string {
	if text == "" {
		return nil
	}
	if maxLen <= 0 || len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}
		cutAt := maxLen
		if idx := lastIndexByte(text[:maxLen], '\n'); idx > maxLen/2 {
			cutAt = idx + 1
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	return chunks
}

// ChunkCount returns how many messages SplitMessage would produce.
func ChunkCount(text string, maxLen int) int {
	return len(SplitMessage(text, maxLen))
}

// lastIndexByte returns the last index of byte c in s, or -1.
func lastIndexByte(s string, c byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == c {
			return i
		}
	}
	return -1
}
