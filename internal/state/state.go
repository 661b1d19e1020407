// Package state holds the persisted project and instance registry: which
// workspaces exist, which agent instances run under them, and which chat
// channel each instance is bound to. The projection engine reads this state
// and mutates nothing except each project's lastActive stamp.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Runtime kinds an instance can declare.
const (
	RuntimeSDK  = "sdk"
	RuntimePTY  = "pty"
	RuntimeTmux = "tmux"
)

// Instance is one running agent under a project.
type Instance struct {
	InstanceID    string `json:"instanceId"`
	AgentType     string `json:"agentType"`
	ChannelID     string `json:"channelId"`
	TmuxWindow    string `json:"tmuxWindow,omitempty"`
	ContainerMode bool   `json:"containerMode,omitempty"`
	ContainerID   string `json:"containerId,omitempty"`
	RuntimeType   string `json:"runtimeType,omitempty"`
}

// Project identifies a workspace and its instances.
type Project struct {
	ProjectName string               `json:"projectName"`
	ProjectPath string               `json:"projectPath"`
	TmuxSession string               `json:"tmuxSession,omitempty"`
	Instances   map[string]*Instance `json:"instances"`
	CreatedAt   time.Time            `json:"createdAt"`
	LastActive  time.Time            `json:"lastActive"`
}

type stateFile struct {
	Projects map[string]*Project `json:"projects"`
}

// Store is the in-memory view of the state file. Safe for concurrent use.
type Store struct {
	path string

	mu       sync.RWMutex
	projects map[string]*Project
}

// Load reads the state file. A missing file yields an empty store.
func Load(path string) (*Store, error) {
	s := &Store{path: path, projects: make(map[string]*Project)}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the state file from disk, replacing the in-memory view.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.projects = make(map[string]*Project)
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("read state file: %w", err)
	}

	var sf stateFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("parse state file: %w", err)
	}
	if sf.Projects == nil {
		sf.Projects = make(map[string]*Project)
	}
	for name, p := range sf.Projects {
		if p.ProjectName == "" {
			p.ProjectName = name
		}
		if p.Instances == nil {
			p.Instances = make(map[string]*Instance)
		}
	}

	s.mu.Lock()
	s.projects = sf.Projects
	s.mu.Unlock()

	slog.Debug("state reloaded", "path", s.path, "projects", len(sf.Projects))
	return nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Project returns a snapshot copy of the named project.
func (s *Store) Project(name string) (Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[name]
	if !ok {
		return Project{}, false
	}
	return copyProject(p), true
}

// ProjectNames returns the registered project names.
func (s *Store) ProjectNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.projects))
	for name := range s.projects {
		names = append(names, name)
	}
	return names
}

// ResolveChannel maps a chat channel back to the instance bound to it.
// Implements the messaging.ChannelResolver contract.
func (s *Store) ResolveChannel(channelID string) (projectName, agentType, instanceID string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.projects {
		for _, inst := range p.Instances {
			if inst.ChannelID == channelID {
				return p.ProjectName, inst.AgentType, inst.InstanceID, true
			}
		}
	}
	return "", "", "", false
}

// ResolveInstance finds the instance an event addresses: by explicit
// instance ID when given, otherwise the first instance of the agent type,
// otherwise any instance of the project.
func (s *Store) ResolveInstance(projectName, agentType, instanceID string) (Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectName]
	if !ok {
		return Instance{}, false
	}
	if instanceID != "" {
		if inst, ok := p.Instances[instanceID]; ok {
			return *inst, true
		}
		return Instance{}, false
	}
	for _, inst := range p.Instances {
		if inst.AgentType == agentType {
			return *inst, true
		}
	}
	for _, inst := range p.Instances {
		return *inst, true
	}
	return Instance{}, false
}

// TouchLastActive stamps the project's lastActive and persists the state
// file. The only mutation this package performs on behalf of the engine.
func (s *Store) TouchLastActive(projectName string) {
	s.mu.Lock()
	p, ok := s.projects[projectName]
	if ok {
		p.LastActive = time.Now()
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := s.save(); err != nil {
		slog.Warn("failed to persist state", "error", err)
	}
}

// save writes the state file atomically (temp file + rename).
func (s *Store) save() error {
	s.mu.RLock()
	sf := stateFile{Projects: s.projects}
	data, err := json.MarshalIndent(&sf, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close state: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

// Watch re-reads the state file whenever it changes on disk. Blocks until
// ctx is done. Complements the explicit reload endpoint so edits made by
// the onboarding tooling show up without a daemon restart.
func (s *Store) Watch(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create state watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors and atomic writers replace the file,
	// which drops a watch set on the file itself.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch state dir: %w", err)
	}

	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.Reload(); err != nil {
				slog.Warn("state auto-reload failed", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("state watcher error", "error", err)
		}
	}
}

func copyProject(p *Project) Project {
	cp := *p
	cp.Instances = make(map[string]*Instance, len(p.Instances))
	for id, inst := range p.Instances {
		instCopy := *inst
		cp.Instances[id] = &instCopy
	}
	return cp
}
