package tailer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// position records how far a file has been consumed.
type position struct {
	Offset  int64     `json:"offset"`
	Updated time.Time `json:"updated"`
}

type checkpointData struct {
	Files map[string]position `json:"files"`
}

// Checkpoint persists read offsets so tailing can resume after a restart.
// An empty path keeps offsets in memory only.
type Checkpoint struct {
	mu   sync.RWMutex
	path string
	data checkpointData
}

// NewCheckpoint loads the checkpoint at path, starting empty if the file is
// missing. A corrupt file is an error.
func NewCheckpoint(path string) (*Checkpoint, error) {
	c := &Checkpoint{
		path: path,
		data: checkpointData{Files: make(map[string]position)},
	}
	if path == "" {
		return c, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &c.data); err != nil {
		return nil, fmt.Errorf("decoding checkpoint %s: %w", path, err)
	}
	if c.data.Files == nil {
		c.data.Files = make(map[string]position)
	}
	return c, nil
}

// Get returns the saved offset for a file path.
func (c *Checkpoint) Get(path string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.data.Files[path]
	return p.Offset, ok
}

// Set records the current offset for a file path.
func (c *Checkpoint) Set(path string, offset int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.Files[path] = position{Offset: offset, Updated: time.Now().UTC()}
}

// Forget drops a path, e.g. after the file was rotated away.
func (c *Checkpoint) Forget(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data.Files, path)
}

// Save writes the checkpoint via a temp file and rename.
func (c *Checkpoint) Save() error {
	if c.path == "" {
		return nil
	}

	c.mu.RLock()
	raw, err := json.MarshalIndent(c.data, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return err
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}
