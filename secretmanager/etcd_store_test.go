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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	testcontainer "github.com/testcontainers/testcontainers-go/modules/etcd"

	gerrors "github.com/tochemey/dtoken/errors"
	"github.com/tochemey/dtoken/internal/clock"
)

func TestEtcdStore(t *testing.T) {
	cluster := startEtcdCluster(t)

	newStore := func(t *testing.T, prefix string) *EtcdStore {
		t.Helper()
		ctx := t.Context()
		endpoints, err := cluster.ClientEndpoints(ctx)
		require.NoError(t, err)

		store, err := NewEtcdStore(ctx, &EtcdConfig{
			Endpoints:   endpoints,
			Prefix:      prefix,
			DialTimeout: 5 * time.Second,
			Timeout:     5 * time.Second,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	}

	t.Run("With empty state", func(t *testing.T) {
		store := newStore(t, "empty")
		snapshot, err := store.Load(t.Context())
		require.NoError(t, err)
		assert.Empty(t, snapshot.Keys)
		assert.Empty(t, snapshot.Tokens)
		assert.Zero(t, snapshot.Sequence)
	})
	t.Run("With records round trip", func(t *testing.T) {
		ctx := t.Context()
		store := newStore(t, "records")

		key := &MasterKey{ID: 3, Expiry: epoch.UnixMilli(), Secret: []byte("secret")}
		info := &TokenInfo{Identifier: []byte{1, 2, 3}, RenewDate: epoch.UnixMilli(), Password: []byte("password")}
		require.NoError(t, store.PutMasterKey(ctx, key))
		require.NoError(t, store.PutMasterKey(ctx, &MasterKey{ID: 4, Expiry: 1, Secret: []byte("other")}))
		require.NoError(t, store.PutToken(ctx, info))
		require.NoError(t, store.PutSequence(ctx, 42))
		require.NoError(t, store.DeleteMasterKey(ctx, 4))

		snapshot, err := store.Load(ctx)
		require.NoError(t, err)
		require.Len(t, snapshot.Keys, 1)
		assert.Equal(t, key, snapshot.Keys[0])
		require.Len(t, snapshot.Tokens, 1)
		assert.Equal(t, info, snapshot.Tokens[0])
		assert.EqualValues(t, 42, snapshot.Sequence)

		require.NoError(t, store.DeleteToken(ctx, info.Identifier))
		snapshot, err = store.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, snapshot.Tokens)
	})
	t.Run("With prefixes isolating nameservices", func(t *testing.T) {
		ctx := t.Context()
		first := newStore(t, "ns1")
		second := newStore(t, "ns2")

		require.NoError(t, first.PutSequence(ctx, 7))
		snapshot, err := second.Load(ctx)
		require.NoError(t, err)
		assert.Zero(t, snapshot.Sequence)
	})
	t.Run("With coordinators sharing the store", func(t *testing.T) {
		ctx := t.Context()
		fake := clock.Fake(epoch)

		first := newManager(t, newStore(t, "shared"), fake)
		require.NoError(t, first.Activate(ctx))
		tok, err := first.IssueToken(ctx, "alice", "JobTracker", "")
		require.NoError(t, err)
		require.NoError(t, first.Close(ctx))

		second := newManager(t, newStore(t, "shared"), fake)
		require.NoError(t, second.Activate(ctx))
		t.Cleanup(func() { _ = second.Close(context.Background()) })

		require.NoError(t, second.VerifyToken(tok))
		assert.EqualValues(t, 1, second.Stats().Sequence)
	})
	t.Run("With closed store", func(t *testing.T) {
		store := newStore(t, "closed")
		require.NoError(t, store.Close())
		require.NoError(t, store.Close())
		assert.ErrorIs(t, store.PutSequence(t.Context(), 1), gerrors.ErrStoreClosed)
	})
	t.Run("With invalid config", func(t *testing.T) {
		_, err := NewEtcdStore(t.Context(), &EtcdConfig{Prefix: "x"})
		assert.Error(t, err)
	})
}

func startEtcdCluster(t *testing.T) *testcontainer.EtcdContainer {
	t.Helper()
	etcdContainer, err := testcontainer.Run(
		t.Context(),
		"gcr.io/etcd-development/etcd:v3.5.14",
		testcontainer.WithNodes("etcd-1", "etcd-2", "etcd-3"),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		err := testcontainers.TerminateContainer(etcdContainer)
		require.NoError(t, err)
	})
	return etcdContainer
}
