package registry

import "sync"

// Settings holds the small amount of runtime state that survives restarts,
// currently just the execution mode.
type Settings struct {
	mu   sync.RWMutex
	path string
	data settingsData
}

type settingsData struct {
	ExecutionMode string `json:"execution_mode"`
}

// OpenSettings loads settings from path. The execution mode defaults to
// defaultMode when the file is missing or does not name one.
func OpenSettings(path, defaultMode string) (*Settings, error) {
	s := &Settings{path: path}
	if err := loadJSON(path, &s.data); err != nil {
		return nil, err
	}
	if s.data.ExecutionMode == "" {
		s.data.ExecutionMode = defaultMode
	}
	return s, nil
}

// ExecutionMode returns the persisted execution mode.
func (s *Settings) ExecutionMode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ExecutionMode
}

// SetExecutionMode persists a new execution mode.
func (s *Settings) SetExecutionMode(mode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.ExecutionMode = mode
	return saveJSON(s.path, s.data)
}
