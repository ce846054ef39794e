package filestate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// FileProcessState maps a tailed file path to the byte offset just past
// the last line that was ingested from it.
type FileProcessState map[string]int64

type Manager interface {
	LoadState() (FileProcessState, error)
	SaveState(state FileProcessState) error
	GetStateFilePath() string
}

type fileStateManager struct {
	filePath string
	mu       sync.RWMutex
}

func NewManager(filePath string) Manager {
	return &fileStateManager{
		filePath: filePath,
	}
}

// LoadState returns an empty state when the file is missing or empty.
func (m *fileStateManager) LoadState() (FileProcessState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := os.ReadFile(m.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug().Str("file", m.filePath).Msg("State file not found, starting fresh.")
		return make(FileProcessState), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file %s: %w", m.filePath, err)
	}
	if len(data) == 0 {
		return make(FileProcessState), nil
	}

	var state FileProcessState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode state file %s: %w", m.filePath, err)
	}
	if state == nil {
		state = make(FileProcessState)
	}
	log.Debug().Str("file", m.filePath).Int("files_tracked", len(state)).Msg("Loaded file state")
	return state, nil
}

// SaveState writes through a temp file and a rename so a crash never
// leaves a half-written state file behind.
func (m *fileStateManager) SaveState(state FileProcessState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if dir := filepath.Dir(m.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir %s: %w", dir, err)
		}
	}

	tempFilePath := m.filePath + ".tmp"
	if err := os.WriteFile(tempFilePath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tempFilePath, err)
	}
	if err := os.Rename(tempFilePath, m.filePath); err != nil {
		_ = os.Remove(tempFilePath)
		return fmt.Errorf("rename %s: %w", tempFilePath, err)
	}
	log.Debug().Str("file", m.filePath).Int("files_tracked", len(state)).Msg("Saved file state")
	return nil
}

func (m *fileStateManager) GetStateFilePath() string {
	return m.filePath
}
