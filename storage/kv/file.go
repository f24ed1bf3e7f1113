package kv

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// File is a durable store keeping all entries in a single JSON document.
type File struct {
	path string
	mu   sync.Mutex
}

var _ Store = (*File)(nil)

func NewFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "creating storage directory")
	}
	return &File{path: path}, nil
}

func (s *File) load() (map[string]string, error) {
	data := make(map[string]string)
	b, err := ioutil.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return data, nil
		}
		return nil, errors.Wrap(err, "reading storage file")
	}
	if len(b) == 0 {
		return data, nil
	}
	if err = json.Unmarshal(b, &data); err != nil {
		return nil, errors.Wrap(err, "decoding storage file")
	}
	return data, nil
}

// save writes to a temp file first so a crash never leaves a truncated document behind.
func (s *File) save(data map[string]string) error {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding storage file")
	}
	tmp := s.path + ".tmp"
	if err = ioutil.WriteFile(tmp, b, 0o600); err != nil {
		return errors.Wrap(err, "writing storage file")
	}
	return errors.Wrap(os.Rename(tmp, s.path), "replacing storage file")
}

func (s *File) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.load()
	if err != nil {
		return "", err
	}
	v, ok := data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *File) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.load()
	if err != nil {
		return err
	}
	data[key] = value
	return s.save(data)
}

func (s *File) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.load()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(data, k)
	}
	return s.save(data)
}

func (s *File) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.load()
	if err != nil {
		return nil, err
	}
	return keysWithPrefix(data, prefix), nil
}
