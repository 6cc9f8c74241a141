package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket layout: frequencies/<prefix>/<continuation> = uint64 big-endian count.
var (
	bucketFrequencies = []byte("frequencies")
	bucketMetadata    = []byte("metadata")
)

// BoltStore keeps the table in a bbolt file with one nested bucket per prefix. A prefix
// lookup is a single B+ tree descent; writes are serialized by bbolt.
type BoltStore struct {
	db        *bolt.DB
	batchSize int
}

// OpenBolt opens (or creates) a bbolt database at the given path.
func OpenBolt(path string, batchSize int) (*BoltStore, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketFrequencies); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMetadata)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bbolt init buckets: %w", err)
	}

	return &BoltStore{db: db, batchSize: batchSize}, nil
}

func encodeCount(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

func decodeCount(prefix, continuation, v []byte) (uint64, error) {
	if len(v) != 8 {
		return 0, &InconsistencyError{
			Prefix:       string(prefix),
			Continuation: string(continuation),
			Detail:       fmt.Sprintf("count has %d bytes", len(v)),
		}
	}
	return binary.BigEndian.Uint64(v), nil
}

// boltFits reports whether both keys can be stored, logging why not. The prefix is a bucket
// name and the continuation a key, and bbolt caps both at MaxKeySize bytes.
func boltFits(prefix, continuation string) bool {
	if !storable(prefix, continuation) {
		logSkipped("empty key", prefix, continuation)
		return false
	}
	if len(prefix) > bolt.MaxKeySize || len(continuation) > bolt.MaxKeySize {
		logSkipped("key too long", prefix, continuation)
		return false
	}
	return true
}

func incrementTx(tx *bolt.Tx, prefix, continuation string, delta uint64) error {
	if !boltFits(prefix, continuation) {
		return nil
	}
	pb, err := tx.Bucket(bucketFrequencies).CreateBucketIfNotExists([]byte(prefix))
	if err != nil {
		return err
	}
	key := []byte(continuation)
	var current uint64
	if v := pb.Get(key); v != nil {
		if current, err = decodeCount([]byte(prefix), key, v); err != nil {
			return err
		}
	}
	return pb.Put(key, encodeCount(current+delta))
}

// wrap marks err as an availability failure unless it already reports an inconsistency.
func wrap(op string, err error) error {
	if err == nil || errors.Is(err, ErrStoreInconsistency) {
		return err
	}
	return unavailable(op, err)
}

func (s *BoltStore) UpsertIncrement(ctx context.Context, prefix, continuation string, delta uint64) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return incrementTx(tx, prefix, continuation, delta)
	})
	return wrap("upsert", err)
}

func (s *BoltStore) IncrementBatch(ctx context.Context, entries []Entry) error {
	for start := 0; start < len(entries); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := entries[start:min(start+s.batchSize, len(entries))]
		err := s.db.Update(func(tx *bolt.Tx) error {
			for _, e := range chunk {
				if e.Count == 0 {
					continue
				}
				if err := incrementTx(tx, e.Prefix, e.Continuation, e.Count); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return wrap("increment batch", err)
		}
	}
	return nil
}

func (s *BoltStore) TopK(ctx context.Context, prefix string, k int) ([]Hit, error) {
	if k <= 0 || prefix == "" {
		return nil, nil
	}

	var hits []Hit
	err := s.db.View(func(tx *bolt.Tx) error {
		pb := tx.Bucket(bucketFrequencies).Bucket([]byte(prefix))
		if pb == nil {
			return nil
		}
		return pb.ForEach(func(c, v []byte) error {
			n, err := decodeCount([]byte(prefix), c, v)
			if err != nil {
				return err
			}
			// Copy: bbolt slices are only valid within the transaction.
			hits = append(hits, Hit{Continuation: string(c), Count: n})
			return nil
		})
	})
	if err != nil {
		return nil, wrap("top-k", err)
	}

	return Rank(prefix, hits, k)
}

// Each visits rows in key order; bbolt keeps keys sorted bytewise.
func (s *BoltStore) Each(ctx context.Context, fn func(Entry) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketFrequencies)
		return root.ForEach(func(p, v []byte) error {
			if v != nil {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			prefix := string(p)
			return root.Bucket(p).ForEach(func(c, v []byte) error {
				n, err := decodeCount(p, c, v)
				if err != nil {
					return err
				}
				return fn(Entry{Prefix: prefix, Continuation: string(c), Count: n})
			})
		})
	})
}

func (s *BoltStore) Prune(ctx context.Context, minCount uint64, keepTop int) (int64, error) {
	var deleted int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketFrequencies)

		var prefixes [][]byte
		if err := root.ForEach(func(p, v []byte) error {
			if v == nil {
				prefixes = append(prefixes, append([]byte(nil), p...))
			}
			return nil
		}); err != nil {
			return err
		}

		for _, p := range prefixes {
			pb := root.Bucket(p)
			var hits []Hit
			if err := pb.ForEach(func(c, v []byte) error {
				n, err := decodeCount(p, c, v)
				if err != nil {
					return err
				}
				hits = append(hits, Hit{Continuation: string(c), Count: n})
				return nil
			}); err != nil {
				return err
			}

			drop := pruned(hits, minCount, keepTop)
			if len(drop) == len(hits) {
				if err := root.DeleteBucket(p); err != nil {
					return err
				}
				deleted += int64(len(drop))
				continue
			}
			for _, h := range drop {
				if err := pb.Delete([]byte(h.Continuation)); err != nil {
					return err
				}
				deleted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, wrap("prune", err)
	}
	return deleted, nil
}

// Verify checks every stored count decodes. Keys are unique within a bucket by construction.
func (s *BoltStore) Verify(ctx context.Context) error {
	return s.Each(ctx, func(Entry) error { return nil })
}

func (s *BoltStore) Reset(ctx context.Context) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketFrequencies, bucketMetadata} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
	return wrap("reset", err)
}

func (s *BoltStore) SetMetadata(ctx context.Context, key, value string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMetadata).Put([]byte(key), []byte(value))
	})
	return wrap("set metadata", err)
}

func (s *BoltStore) Metadata(ctx context.Context) (map[string]string, error) {
	meta := make(map[string]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMetadata).ForEach(func(k, v []byte) error {
			meta[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, wrap("metadata", err)
	}
	return meta, nil
}

// Close closes the underlying bbolt database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
