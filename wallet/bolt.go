package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketWallets = []byte("wallets")

// BoltPersister stores the registry in a BoltDB bucket keyed by participant id.
type BoltPersister struct {
	db *bolt.DB
}

// NewBoltPersister opens (and initialises) the BoltDB file at path.
func NewBoltPersister(path string, options *bolt.Options) (*BoltPersister, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("wallet: bolt path required")
	}
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(trimmed, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketWallets)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltPersister{db: db}, nil
}

// Close releases the underlying Bolt database handle.
func (p *BoltPersister) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Load returns every stored wallet record.
func (p *BoltPersister) Load(ctx context.Context) (map[string]Record, error) {
	records := make(map[string]Record)
	err := p.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWallets).ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode wallet %s: %w", string(k), err)
			}
			records[string(k)] = rec
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Save replaces the bucket contents with records in a single transaction.
func (p *BoltPersister) Save(ctx context.Context, records map[string]Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketWallets); err != nil {
			return err
		}
		bucket, err := tx.CreateBucket(bucketWallets)
		if err != nil {
			return err
		}
		for id, rec := range records {
			encoded, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(id), encoded); err != nil {
				return err
			}
		}
		return nil
	})
}
