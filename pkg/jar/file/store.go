// Package jarfile keeps cookie jar snapshots as YAML files, one per profile.
package jarfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/goccy/go-yaml"

	"github.com/borrowbook/borrowbook/pkg/jar"
)

const (
	dirMode  = 0o700
	fileMode = 0o600
)

var profilePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

var ErrInvalidProfile = errors.New("invalid profile name")

type snapshot struct {
	Profile string      `yaml:"profile"`
	Cookies []jar.Entry `yaml:"cookies"`
}

type Store struct {
	dir string
}

var _ jar.Store = (*Store)(nil)

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Load(_ context.Context, profile string) ([]jar.Entry, error) {
	path, err := s.path(profile)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	return snap.Cookies, nil
}

// Save writes the snapshot to a temporary file and renames it into place.
func (s *Store) Save(_ context.Context, profile string, entries []jar.Entry) error {
	path, err := s.path(profile)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(snapshot{Profile: profile, Cookies: entries})
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	if err := os.MkdirAll(s.dir, dirMode); err != nil {
		return fmt.Errorf("creating %s: %w", s.dir, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+profile+"-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("changing mode of %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming into %s: %w", path, err)
	}

	return nil
}

func (s *Store) Delete(_ context.Context, profile string) error {
	path, err := s.path(profile)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", path, err)
	}

	return nil
}

func (s *Store) path(profile string) (string, error) {
	if !profilePattern.MatchString(profile) || profile == "." || profile == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidProfile, profile)
	}

	return filepath.Join(s.dir, profile+".yaml"), nil
}
