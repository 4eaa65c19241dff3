package checkpoint

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// FileStore keeps the checkpoint as a YAML document on disk.
// Writes go to a temporary file that is renamed over the target, so a crash
// mid-write leaves the previous checkpoint intact.
type FileStore struct {
	path string
}

type fileDocument struct {
	Key    string `yaml:"key"`
	Record Record `yaml:"checkpoint"`
}

// NewFileStore creates a FileStore at path, creating the parent directory.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create checkpoint directory")
	}
	return &FileStore{path: path}, nil
}

// Path returns the checkpoint file path.
func (s *FileStore) Path() string {
	return s.path
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, r Record) error {
	data, err := yaml.Marshal(fileDocument{Key: Key, Record: r})
	if err != nil {
		return errors.Wrap(err, "failed to marshal checkpoint")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".checkpoint-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "failed to write checkpoint")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "failed to sync checkpoint")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close checkpoint")
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Wrap(err, "failed to replace checkpoint")
	}
	return nil
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context) (Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, ErrNotFound
		}
		return Record{}, errors.Wrap(err, "failed to read checkpoint")
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Record{}, errors.Mark(errors.Wrap(err, "failed to parse checkpoint"), ErrCorrupt)
	}
	if doc.Key != Key {
		return Record{}, errors.Mark(errors.Newf("unexpected checkpoint key %q", doc.Key), ErrCorrupt)
	}
	if err := doc.Record.Validate(); err != nil {
		return Record{}, err
	}
	return doc.Record, nil
}

// Clear implements Store.
func (s *FileStore) Clear(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "failed to remove checkpoint")
	}
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}
