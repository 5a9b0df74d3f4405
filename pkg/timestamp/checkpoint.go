package timestamp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Checkpoint persists the issuer's reservation mark. Writes go through a
// temp file plus rename so a crash mid-write leaves the previous mark intact.
type Checkpoint struct {
	path     string
	reserved uint64
	loaded   bool
}

type checkpointState struct {
	ServerID int    `json:"server_id"`
	Reserved uint64 `json:"reserved"`
}

// OpenCheckpoint loads an existing checkpoint file, or prepares a new one
func OpenCheckpoint(path string) (*Checkpoint, error) {
	c := &Checkpoint{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", path, err)
	}

	var state checkpointState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("corrupt checkpoint %s: %w", path, err)
	}

	c.reserved = state.Reserved
	c.loaded = true
	return c, nil
}

// Reserved returns the persisted reservation mark, if one was loaded
func (c *Checkpoint) Reserved() (uint64, bool) {
	return c.reserved, c.loaded
}

// Write persists a new reservation mark
func (c *Checkpoint) Write(serverID int, reserved uint64) error {
	data, err := json.Marshal(checkpointState{ServerID: serverID, Reserved: reserved})
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}

	c.reserved = reserved
	c.loaded = true
	return nil
}
