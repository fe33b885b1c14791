package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	filePerms = 0o600
	dirPerms  = 0o700
)

// tokenFile is the on-disk layout: one credential per session id.
type tokenFile struct {
	Sessions map[string]*Credential `json:"sessions"`
}

// FileStore persists credentials as JSON in a single owner-only file.
//
// Writes go to a temp file in the same directory and are renamed into place, so
// a crash never leaves a truncated token file behind. Token values are never logged.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a FileStore backed by path. The file is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Save(_ context.Context, sessionID string, cred *Credential) error {
	if err := cred.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tf, err := s.read()
	if err != nil {
		return err
	}
	tf.Sessions[sessionID] = cred.Clone()
	return s.write(tf)
}

func (s *FileStore) Load(_ context.Context, sessionID string) (*Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tf, err := s.read()
	if err != nil {
		return nil, false, err
	}
	cred, ok := tf.Sessions[sessionID]
	if !ok || cred == nil {
		return nil, false, nil
	}
	return cred, true, nil
}

func (s *FileStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tf, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := tf.Sessions[sessionID]; !ok {
		return nil
	}
	delete(tf.Sessions, sessionID)

	if len(tf.Sessions) == 0 {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("credentials: removing %s: %w", s.path, err)
		}
		return nil
	}
	return s.write(tf)
}

func (s *FileStore) read() (*tokenFile, error) {
	tf := &tokenFile{Sessions: make(map[string]*Credential)}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return tf, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credentials: reading %s: %w", s.path, err)
	}

	if err := json.Unmarshal(data, tf); err != nil {
		return nil, fmt.Errorf("credentials: decoding %s: %w", s.path, err)
	}
	if tf.Sessions == nil {
		tf.Sessions = make(map[string]*Credential)
	}
	return tf, nil
}

func (s *FileStore) write(tf *tokenFile) error {
	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("credentials: encoding: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return fmt.Errorf("credentials: creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("credentials: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(filePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("credentials: setting permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("credentials: writing: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("credentials: syncing: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credentials: closing: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("credentials: renaming: %w", err)
	}

	committed = true
	return nil
}
