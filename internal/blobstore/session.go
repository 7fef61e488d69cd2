package blobstore

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// session is the persistent session file kept in the app data directory,
// as a persistent session file.
type session struct {
	BotToken string `json:"bot_token"`
	ChatID   int64  `json:"chat_id"`
	Verified bool   `json:"verified"`
}

func loadSession(path string) (*session, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func saveSession(path string, s *session) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
