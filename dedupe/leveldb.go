package dedupe

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	deliveryKeyPrefix = "delivery:"
	observedKeyPrefix = "observed:"
)

// LevelDBStore persists observations so duplicate suppression survives
// restarts.
type LevelDBStore struct {
	mu sync.Mutex
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) the store at path.
func OpenLevelDB(path string) (*LevelDBStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("dedupe: leveldb path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("dedupe: resolve leveldb path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("dedupe: open leveldb: %w", err)
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Mark(_ context.Context, key Key, at time.Time) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := key.String()
	deliveryKey := []byte(deliveryKeyPrefix + id)
	nanos := at.UTC().UnixNano()

	batch := new(leveldb.Batch)
	var previous time.Time
	existing, err := s.db.Get(deliveryKey, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
	case err != nil:
		return time.Time{}, false, fmt.Errorf("dedupe: load delivery: %w", err)
	default:
		if len(existing) != 8 {
			return time.Time{}, false, fmt.Errorf("dedupe: corrupt delivery record %s", id)
		}
		prevNanos := int64(binary.BigEndian.Uint64(existing))
		previous = time.Unix(0, prevNanos).UTC()
		batch.Delete(observedKey(prevNanos, id))
	}
	batch.Put(deliveryKey, encodeUnixNano(nanos))
	batch.Put(observedKey(nanos, id), nil)
	if err := s.db.Write(batch, nil); err != nil {
		return time.Time{}, false, fmt.Errorf("dedupe: record delivery: %w", err)
	}
	return previous, !previous.IsZero(), nil
}

// Prune walks the observation index in time order and deletes entries older
// than cutoff.
func (s *LevelDBStore) Prune(ctx context.Context, cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoffKey := observedKey(cutoff.UTC().UnixNano(), "")
	iter := s.db.NewIterator(util.BytesPrefix([]byte(observedKeyPrefix)), nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if bytes.Compare(iter.Key(), cutoffKey) >= 0 {
			break
		}
		id, ok := parseObservedKey(iter.Key())
		if !ok {
			continue
		}
		batch.Delete(append([]byte(nil), iter.Key()...))
		batch.Delete([]byte(deliveryKeyPrefix + id))
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("dedupe: iterate observations: %w", err)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("dedupe: prune: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *LevelDBStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func observedKey(nanos int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", observedKeyPrefix, nanos, id))
}

func parseObservedKey(key []byte) (string, bool) {
	parts := strings.SplitN(string(key), ":", 3)
	if len(parts) != 3 || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

func encodeUnixNano(nanos int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(nanos))
	return buf
}
