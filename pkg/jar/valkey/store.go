// Package jarvalkey keeps cookie jar snapshots in ValKey so that several
// machines can share one logged in profile.
package jarvalkey

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/borrowbook/borrowbook/pkg/jar"
)

const objectType = "jar"

type Store struct {
	valkey valkey.Client
	prefix string
}

var _ jar.Store = (*Store)(nil)

func NewStore(valkeyClient valkey.Client, prefix string) *Store {
	prefix = strings.TrimSuffix(prefix, ":")
	return &Store{
		valkey: valkeyClient,
		prefix: prefix,
	}
}

func (s *Store) Load(ctx context.Context, profile string) ([]jar.Entry, error) {
	bytes, err := s.valkey.Do(ctx, s.valkey.B().Get().Key(s.key(profile)).Build()).AsBytes()
	if err != nil {
		valkeyErr, ok := valkey.IsValkeyErr(err)
		if ok && valkeyErr.IsNil() {
			return nil, nil
		}

		return nil, fmt.Errorf("executing get command: %w", err)
	}

	var entries []jar.Entry
	if err := json.Unmarshal(bytes, &entries); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	return entries, nil
}

// Save replaces the snapshot of profile. The key expires together with the
// longest lived cookie; snapshots holding a session cookie never expire.
func (s *Store) Save(ctx context.Context, profile string, entries []jar.Entry) error {
	if len(entries) == 0 {
		return s.Delete(ctx, profile)
	}

	bytes, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling json: %w", err)
	}

	key := s.key(profile)
	set := s.valkey.B().Set().Key(key).Value(valkey.BinaryString(bytes))

	if expiry, ok := latestExpiry(entries); ok {
		err = s.valkey.Do(ctx, set.ExatTimestamp(expiry.Unix()).Build()).Error()
	} else {
		err = s.valkey.Do(ctx, set.Build()).Error()
	}
	if err != nil {
		return fmt.Errorf("executing set command: %w", err)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, profile string) error {
	if err := s.valkey.Do(ctx, s.valkey.B().Del().Key(s.key(profile)).Build()).Error(); err != nil {
		return fmt.Errorf("executing del command: %w", err)
	}

	return nil
}

func (s *Store) key(profile string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, objectType, profile)
}

func latestExpiry(entries []jar.Entry) (time.Time, bool) {
	var latest time.Time
	for _, e := range entries {
		if e.Expires.IsZero() {
			return time.Time{}, false
		}
		if e.Expires.After(latest) {
			latest = e.Expires
		}
	}

	return latest, true
}
