package jarmock

import (
	"context"
	"slices"
	"sync"

	"github.com/borrowbook/borrowbook/pkg/jar"
)

type Store struct {
	mu       sync.Mutex
	Profiles map[string][]jar.Entry

	LoadError, SaveError, DeleteError error
}

func NewStore() *Store {
	return &Store{
		Profiles: make(map[string][]jar.Entry),
	}
}

func (s *Store) Load(ctx context.Context, profile string) ([]jar.Entry, error) {
	if s.LoadError != nil {
		return nil, s.LoadError
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.Profiles[profile]), nil
}

func (s *Store) Save(ctx context.Context, profile string, entries []jar.Entry) error {
	if s.SaveError != nil {
		return s.SaveError
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.Profiles[profile] = slices.Clone(entries)
	return nil
}

func (s *Store) Delete(ctx context.Context, profile string) error {
	if s.DeleteError != nil {
		return s.DeleteError
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.Profiles, profile)
	return nil
}
