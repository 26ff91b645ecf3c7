package state

import (
	"os"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Load reads the persisted source -> last accepted sequence table. A missing
// or unreadable file is not fatal: the recorder starts with an empty table
// and accepts a window of duplicates after a restart instead.
func Load(path string) map[string]int64 {
	content, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			zap.S().Warnf("Failed to read state file %s: %s", path, err)
		}
		return map[string]int64{}
	}
	var table map[string]int64
	if err = json.Unmarshal(content, &table); err != nil {
		zap.S().Warnf("Failed to parse state file %s: %s", path, err)
		return map[string]int64{}
	}
	zap.S().Infof("Restored last sequence state for %d sources", len(table))
	return table
}

// Save writes the table to a temporary file and renames it over the target.
// The rename is atomic, so a reader (or a crash mid-write) never observes a
// torn state file.
func Save(path string, table map[string]int64) error {
	content, err := json.Marshal(table)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err = os.WriteFile(tmp, content, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
