package fetch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// SubscriptionSource provides the channel URIs to visit. It is consulted
// again at the start of every run, so edits apply without a restart.
type SubscriptionSource interface {
	Subscriptions() ([]string, error)
	ShortsWhitelist() ([]string, error)
}

// FileSubscriptions reads JSON arrays of channel URIs from a config
// directory.
type FileSubscriptions struct {
	dir string
}

func NewFileSubscriptions(dir string) *FileSubscriptions {
	return &FileSubscriptions{dir: dir}
}

func (f *FileSubscriptions) Subscriptions() ([]string, error) {
	return f.readList("subscriptions.json")
}

// ShortsWhitelist returns the channels whose short-form videos are kept. A
// missing file means no channel is whitelisted.
func (f *FileSubscriptions) ShortsWhitelist() ([]string, error) {
	uris, err := f.readList("shorts-whitelist.json")
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}

	return uris, err
}

func (f *FileSubscriptions) readList(name string) ([]string, error) {
	path := filepath.Join(f.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var uris []string
	if err := json.Unmarshal(data, &uris); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return uris, nil
}
