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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flowchartsman/retry"

	gerrors "github.com/tochemey/dtoken/errors"
	"github.com/tochemey/dtoken/log"
)

type entryKind int

const (
	putMasterKey entryKind = iota
	deleteMasterKey
	putToken
	deleteToken
	putSequence
)

// entry is one pending Store write
type entry struct {
	kind       entryKind
	key        *MasterKey
	keyID      int32
	info       *TokenInfo
	identifier []byte
	sequence   int64
}

// journal orders Store writes. Entries are appended while the Manager
// state lock is held, so their order is the order of the state changes.
// They are written later by sync, without holding the state lock.
//
// Every txid returned by append is answered exactly once by sync: nil when
// all of its entries reached the Store, the write failure otherwise.
type journal struct {
	store   Store
	retries int
	logger  log.Logger

	// mu guards the fields below
	mu      sync.Mutex
	pending []entry
	last    uint64
	waiting map[uint64]struct{}
	failed  map[uint64]error

	// syncMu serializes Store writes
	syncMu sync.Mutex
	synced uint64
}

func newJournal(store Store, retries int, logger log.Logger) *journal {
	return &journal{
		store:   store,
		retries: retries,
		logger:  logger,
		waiting: make(map[uint64]struct{}),
		failed:  make(map[uint64]error),
	}
}

// append queues entries and returns the id to sync up to
func (j *journal) append(entries ...entry) uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(entries) == 0 {
		return 0
	}
	j.pending = append(j.pending, entries...)
	j.last += uint64(len(entries))
	j.waiting[j.last] = struct{}{}
	return j.last
}

// sync returns once every entry up to txid has been written, or has
// failed to. A caller may find its entries written by a concurrent sync.
func (j *journal) sync(ctx context.Context, txid uint64) error {
	j.syncMu.Lock()
	defer j.syncMu.Unlock()

	if txid > j.synced {
		j.mu.Lock()
		batch := j.pending
		j.pending = nil
		from, to := j.synced, j.last
		j.mu.Unlock()

		// the batch carries other callers' entries, their durability must not
		// depend on this caller's cancellation
		written, err := j.write(context.WithoutCancel(ctx), batch)
		j.synced = to
		if err != nil {
			j.logger.Errorf("failed to persist %d of %d secret manager entries: %v", len(batch)-written, len(batch), err)
			j.fail(from+uint64(written)+1, to, err)
		}
	}
	return j.answer(txid)
}

// discard drops the pending entries. Their callers are answered with a
// role-state failure since the Manager stopped serving before they were written.
func (j *journal) discard() {
	j.syncMu.Lock()
	defer j.syncMu.Unlock()

	j.mu.Lock()
	dropped := len(j.pending)
	from, to := j.synced, j.last
	j.pending = nil
	j.mu.Unlock()

	if dropped == 0 {
		return
	}

	j.synced = to
	j.fail(from+1, to, gerrors.NewErrRoleState(categoryWrite, standbyState))
	j.logger.Warnf("dropped %d unwritten secret manager entries", dropped)
}

// fail records err for every waiting txid in [from, to]
func (j *journal) fail(from, to uint64, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for txid := range j.waiting {
		if txid >= from && txid <= to {
			j.failed[txid] = err
		}
	}
}

func (j *journal) answer(txid uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.waiting, txid)
	err, ok := j.failed[txid]
	if ok {
		delete(j.failed, txid)
	}
	return err
}

// write applies batch in order and stops at the first entry that cannot be
// written. It returns the number of entries written.
func (j *journal) write(ctx context.Context, batch []entry) (int, error) {
	for index, e := range batch {
		retrier := retry.NewRetrier(j.retries, 10*time.Millisecond, 500*time.Millisecond)
		err := retrier.RunContext(ctx, func(ctx context.Context) error {
			err := j.apply(ctx, e)
			if errors.Is(err, gerrors.ErrStoreClosed) {
				return retry.Stop(err)
			}
			return err
		})
		if err != nil {
			return index, err
		}
	}
	return len(batch), nil
}

func (j *journal) apply(ctx context.Context, e entry) error {
	switch e.kind {
	case putMasterKey:
		return j.store.PutMasterKey(ctx, e.key)
	case deleteMasterKey:
		return j.store.DeleteMasterKey(ctx, e.keyID)
	case putToken:
		return j.store.PutToken(ctx, e.info)
	case deleteToken:
		return j.store.DeleteToken(ctx, e.identifier)
	case putSequence:
		return j.store.PutSequence(ctx, e.sequence)
	default:
		return fmt.Errorf("unknown journal entry kind %d", e.kind)
	}
}
