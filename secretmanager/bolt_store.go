// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package secretmanager

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	bbolt "go.etcd.io/bbolt"
	"go.uber.org/atomic"

	gerrors "github.com/tochemey/dtoken/errors"
	"github.com/tochemey/dtoken/internal/codec"
)

const boltFileMode os.FileMode = 0o600

var (
	boltKeysBucket   = []byte("master_keys")
	boltTokensBucket = []byte("tokens")
	boltMetaBucket   = []byte("meta")
	boltSequenceKey  = []byte("sequence")

	defaultBoltOptions = &bbolt.Options{Timeout: 5 * time.Second}
)

// BoltStore persists the Manager state in a local bbolt file.
//
// bbolt allows a single writer and many readers. Every Store call is one
// transaction so a crash never leaves a half written record.
type BoltStore struct {
	db     *bbolt.DB
	path   string
	closed *atomic.Bool
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore opens or creates the bbolt file at path
func NewBoltStore(path string) (*BoltStore, error) {
	options := *defaultBoltOptions
	db, err := bbolt.Open(path, boltFileMode, &options)
	if err != nil {
		return nil, fmt.Errorf("secretmanager: opening boltdb %s: %w", path, err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{boltKeysBucket, boltTokensBucket, boltMetaBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("secretmanager: initializing boltdb buckets: %w", err)
	}

	return &BoltStore{db: db, path: path, closed: atomic.NewBool(false)}, nil
}

// Path returns the database file location
func (s *BoltStore) Path() string {
	return s.path
}

// PutMasterKey implements Store
func (s *BoltStore) PutMasterKey(ctx context.Context, key *MasterKey) error {
	data, err := codec.Marshal(key)
	if err != nil {
		return err
	}
	return s.update(ctx, boltKeysBucket, func(bucket *bbolt.Bucket) error {
		return bucket.Put(keyID(key.ID), data)
	})
}

// DeleteMasterKey implements Store
func (s *BoltStore) DeleteMasterKey(ctx context.Context, id int32) error {
	return s.update(ctx, boltKeysBucket, func(bucket *bbolt.Bucket) error {
		return bucket.Delete(keyID(id))
	})
}

// PutToken implements Store
func (s *BoltStore) PutToken(ctx context.Context, info *TokenInfo) error {
	data, err := codec.Marshal(info)
	if err != nil {
		return err
	}
	return s.update(ctx, boltTokensBucket, func(bucket *bbolt.Bucket) error {
		return bucket.Put(info.Identifier, data)
	})
}

// DeleteToken implements Store
func (s *BoltStore) DeleteToken(ctx context.Context, identifier []byte) error {
	return s.update(ctx, boltTokensBucket, func(bucket *bbolt.Bucket) error {
		return bucket.Delete(identifier)
	})
}

// PutSequence implements Store
func (s *BoltStore) PutSequence(ctx context.Context, sequence int64) error {
	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, uint64(sequence))
	return s.update(ctx, boltMetaBucket, func(bucket *bbolt.Bucket) error {
		return bucket.Put(boltSequenceKey, value)
	})
}

// Load implements Store
func (s *BoltStore) Load(ctx context.Context) (*Snapshot, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	snapshot := new(Snapshot)
	err := s.db.View(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(boltKeysBucket).ForEach(func(_, value []byte) error {
			key := new(MasterKey)
			if err := codec.Unmarshal(value, key); err != nil {
				return fmt.Errorf("secretmanager: decoding master key: %w", err)
			}
			snapshot.Keys = append(snapshot.Keys, key)
			return nil
		}); err != nil {
			return err
		}

		if err := tx.Bucket(boltTokensBucket).ForEach(func(_, value []byte) error {
			info := new(TokenInfo)
			if err := codec.Unmarshal(value, info); err != nil {
				return fmt.Errorf("secretmanager: decoding token: %w", err)
			}
			snapshot.Tokens = append(snapshot.Tokens, info)
			return nil
		}); err != nil {
			return err
		}

		if raw := tx.Bucket(boltMetaBucket).Get(boltSequenceKey); len(raw) == 8 {
			snapshot.Sequence = int64(binary.BigEndian.Uint64(raw))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Close implements Store. The database file is kept.
func (s *BoltStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

func (s *BoltStore) update(ctx context.Context, name []byte, fn func(*bbolt.Bucket) error) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(name)
		if bucket == nil {
			return fmt.Errorf("secretmanager: bucket %q missing", name)
		}
		return fn(bucket)
	})
}

func (s *BoltStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return gerrors.ErrStoreClosed
	}
	return ctx.Err()
}

// keyID encodes a master key id so that bbolt iterates keys in id order
func keyID(id int32) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, uint32(id)^(1<<31))
	return out
}
