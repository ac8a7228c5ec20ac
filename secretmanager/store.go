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
	"sort"
	"sync"

	"go.uber.org/atomic"

	gerrors "github.com/tochemey/dtoken/errors"
)

// Store persists the durable state of a Manager. Implementations must be
// safe for concurrent use. The Manager serializes its own writes.
type Store interface {
	// PutMasterKey creates or replaces a master key
	PutMasterKey(ctx context.Context, key *MasterKey) error
	// DeleteMasterKey removes a master key. Removing a missing key is not an error.
	DeleteMasterKey(ctx context.Context, id int32) error
	// PutToken creates or replaces an outstanding token
	PutToken(ctx context.Context, info *TokenInfo) error
	// DeleteToken removes an outstanding token by its encoded identifier
	DeleteToken(ctx context.Context, identifier []byte) error
	// PutSequence records the last allocated sequence number
	PutSequence(ctx context.Context, sequence int64) error
	// Load returns everything persisted so far
	Load(ctx context.Context) (*Snapshot, error)
	// Close releases the store resources
	Close() error
}

// MemoryStore keeps the durable state in memory. A single MemoryStore can
// back several Managers in one process, which is how coordinators of an
// in-process cluster share their state.
type MemoryStore struct {
	mu       sync.RWMutex
	keys     map[int32]*MasterKey
	tokens   map[string]*TokenInfo
	sequence int64
	closed   *atomic.Bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys:   make(map[int32]*MasterKey),
		tokens: make(map[string]*TokenInfo),
		closed: atomic.NewBool(false),
	}
}

// PutMasterKey implements Store
func (s *MemoryStore) PutMasterKey(ctx context.Context, key *MasterKey) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.keys[key.ID] = key.clone()
	s.mu.Unlock()
	return nil
}

// DeleteMasterKey implements Store
func (s *MemoryStore) DeleteMasterKey(ctx context.Context, id int32) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.keys, id)
	s.mu.Unlock()
	return nil
}

// PutToken implements Store
func (s *MemoryStore) PutToken(ctx context.Context, info *TokenInfo) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.tokens[TokenKey(info.Identifier)] = info.clone()
	s.mu.Unlock()
	return nil
}

// DeleteToken implements Store
func (s *MemoryStore) DeleteToken(ctx context.Context, identifier []byte) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.tokens, TokenKey(identifier))
	s.mu.Unlock()
	return nil
}

// PutSequence implements Store
func (s *MemoryStore) PutSequence(ctx context.Context, sequence int64) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.sequence = sequence
	s.mu.Unlock()
	return nil
}

// Load implements Store. Keys are ordered by id and tokens by storage key.
func (s *MemoryStore) Load(ctx context.Context) (*Snapshot, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := &Snapshot{
		Keys:     make([]*MasterKey, 0, len(s.keys)),
		Tokens:   make([]*TokenInfo, 0, len(s.tokens)),
		Sequence: s.sequence,
	}

	for _, key := range s.keys {
		snapshot.Keys = append(snapshot.Keys, key.clone())
	}
	sort.Slice(snapshot.Keys, func(i, j int) bool { return snapshot.Keys[i].ID < snapshot.Keys[j].ID })

	names := make([]string, 0, len(s.tokens))
	for name := range s.tokens {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		snapshot.Tokens = append(snapshot.Tokens, s.tokens[name].clone())
	}
	return snapshot, nil
}

// Close implements Store. The state is kept so that a test can inspect it.
func (s *MemoryStore) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *MemoryStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return gerrors.ErrStoreClosed
	}
	return ctx.Err()
}
