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

package testkit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/tochemey/dtoken/client"
	"github.com/tochemey/dtoken/coordinator"
	"github.com/tochemey/dtoken/credentials"
	gerrors "github.com/tochemey/dtoken/errors"
	"github.com/tochemey/dtoken/failure"
	"github.com/tochemey/dtoken/resolver"
	"github.com/tochemey/dtoken/token"
)

const (
	jobTracker  = "JobTracker/foo.com@FOO.COM"
	authToLocal = "RULE:[2:$1@$0](JobTracker@.*FOO.COM)s/@.*//DEFAULT"
)

func newCluster(t *testing.T) *Cluster {
	t.Helper()
	return NewCluster(context.Background(), t, 2, WithAuthToLocal(authToLocal))
}

func transports() map[string]func() client.Transport {
	return map[string]func() client.Transport{
		"rpc":  func() client.Transport { return client.NewRPCTransport(5 * time.Second) },
		"rest": func() client.Transport { return client.NewRESTTransport(5 * time.Second) },
	}
}

func TestCluster(t *testing.T) {
	t.Run("With coordinators started standby", func(t *testing.T) {
		cluster := newCluster(t)
		require.Equal(t, 2, cluster.Size())
		for index := range cluster.Size() {
			assert.Equal(t, coordinator.RoleStandby, cluster.Node(index).Role())
			assert.NotEmpty(t, cluster.Endpoint(index))
		}

		assert.Equal(t, "hdfs://my-ha-uri", cluster.LogicalURI())
		assert.Equal(t, []string{cluster.Endpoint(0), cluster.Endpoint(1)}, cluster.Endpoints())
		assert.True(t, cluster.Resolver().IsLogical(cluster.LogicalURI()))
	})
	t.Run("With failover", func(t *testing.T) {
		cluster := newCluster(t)
		cluster.TransitionToActive(0)
		assert.Equal(t, coordinator.RoleActive, cluster.Node(0).Role())

		cluster.Failover(0, 1)
		assert.Equal(t, coordinator.RoleStandby, cluster.Node(0).Role())
		assert.Equal(t, coordinator.RoleActive, cluster.Node(1).Role())
	})
	t.Run("With shutdown", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		cluster := NewCluster(context.Background(), t, 3)
		cluster.TransitionToActive(2)

		require.NoError(t, cluster.Shutdown(context.Background()))
		require.NoError(t, cluster.Shutdown(context.Background()))
		assert.Empty(t, cluster.Server(2).Address())
	})
}

func TestDelegationTokensWithHA(t *testing.T) {
	ctx := context.Background()

	for name, newTransport := range transports() {
		t.Run("With token acquired through the logical identity over "+name, func(t *testing.T) {
			cluster := newCluster(t)
			cluster.TransitionToActive(0)
			x := cluster.Client(client.WithTransport(newTransport()))

			creds := credentials.New(jobTracker)
			tok, err := x.Acquire(ctx, creds, cluster.LogicalURI(), "JobTracker")
			require.NoError(t, err)

			canonical, err := x.CanonicalServiceName(cluster.LogicalURI())
			require.NoError(t, err)
			assert.Equal(t, canonical, tok.Service)
			assert.Equal(t, resolver.ServiceTagForLogical(cluster.LogicalURI()), tok.Service)
			require.NoError(t, cluster.Node(0).Manager().VerifyToken(tok))

			for _, endpoint := range cluster.Endpoints() {
				selected := credentials.Select(creds, token.DelegationKind, endpoint)
				require.NotNil(t, selected)
				assert.True(t, selected.SameCredential(tok))
			}
		})
		t.Run("With renewal across a failover over "+name, func(t *testing.T) {
			cluster := newCluster(t)
			cluster.TransitionToActive(0)
			x := cluster.Client(client.WithTransport(newTransport()))

			creds := credentials.New(jobTracker)
			tok, err := x.Acquire(ctx, creds, cluster.LogicalURI(), "JobTracker")
			require.NoError(t, err)

			cluster.Failover(0, 1)

			expiry, err := x.Renew(ctx, creds, cluster.LogicalURI())
			require.NoError(t, err)
			assert.True(t, expiry.After(time.Now()))
			require.NoError(t, cluster.Node(1).Manager().VerifyToken(tok))

			require.NoError(t, x.Cancel(ctx, creds, cluster.LogicalURI()))
			assert.Zero(t, creds.Len())
			assert.Error(t, cluster.Node(1).Manager().VerifyToken(tok))
		})
		t.Run("With the standby listed first over "+name, func(t *testing.T) {
			cluster := newCluster(t)
			cluster.TransitionToActive(1)
			x := cluster.Client(client.WithTransport(newTransport()))

			creds := credentials.New(jobTracker)
			_, err := x.Acquire(ctx, creds, cluster.LogicalURI(), "JobTracker")
			require.NoError(t, err)

			status, err := x.Status(ctx, creds, cluster.LogicalURI())
			require.NoError(t, err)
			assert.Equal(t, "nn1", status.NodeID)
			assert.Equal(t, coordinator.RoleActive.String(), status.Role)
		})
	}

	t.Run("With every coordinator standby", func(t *testing.T) {
		cluster := newCluster(t)
		cluster.TransitionToActive(0)
		x := cluster.Client()

		creds := credentials.New(jobTracker)
		_, err := x.Acquire(ctx, creds, cluster.LogicalURI(), "JobTracker")
		require.NoError(t, err)

		cluster.TransitionToStandby(0)

		_, err = x.Renew(ctx, creds, cluster.LogicalURI())
		require.Error(t, err)
		assert.ErrorIs(t, err, gerrors.ErrRoleState)
		assert.Equal(t, failure.Transient, failure.Classify(err))
	})
	t.Run("With a coordinator down", func(t *testing.T) {
		cluster := newCluster(t)
		cluster.TransitionToActive(1)
		require.NoError(t, cluster.Server(0).Stop(ctx))
		x := cluster.Client()

		creds := credentials.New(jobTracker)
		tok, err := x.Acquire(ctx, creds, cluster.LogicalURI(), "JobTracker")
		require.NoError(t, err)
		require.NoError(t, cluster.Node(1).Manager().VerifyToken(tok))

		_, err = x.Renew(ctx, creds, cluster.LogicalURI())
		require.NoError(t, err)
	})
	t.Run("With token operations after a failover", func(t *testing.T) {
		cluster := newCluster(t)
		cluster.TransitionToActive(0)
		x := cluster.Client()

		creds := credentials.New("alice")
		tok, err := x.Acquire(ctx, creds, cluster.LogicalURI(), "JobTracker")
		require.NoError(t, err)

		cluster.Failover(0, 1)

		_, err = x.RenewToken(ctx, "bob", tok)
		require.Error(t, err)
		assert.Equal(t, failure.Permanent, failure.Classify(err))

		_, err = x.RenewToken(ctx, jobTracker, tok)
		require.NoError(t, err)

		require.NoError(t, x.CancelToken(ctx, jobTracker, tok))

		_, err = x.RenewToken(ctx, jobTracker, tok)
		require.Error(t, err)
		assert.Equal(t, failure.Permanent, failure.Classify(err))
	})
	t.Run("With concurrent renewals", func(t *testing.T) {
		cluster := newCluster(t)
		cluster.TransitionToActive(1)
		x := cluster.Client()

		creds := credentials.New(jobTracker)
		_, err := x.Acquire(ctx, creds, cluster.LogicalURI(), "JobTracker")
		require.NoError(t, err)

		eg, egCtx := errgroup.WithContext(ctx)
		for range 16 {
			eg.Go(func() error {
				_, err := x.Renew(egCtx, creds, cluster.LogicalURI())
				return err
			})
		}
		require.NoError(t, eg.Wait())
	})
	t.Run("With no nameservice configured", func(t *testing.T) {
		cluster := newCluster(t)
		cluster.TransitionToActive(0)

		x, err := client.New(resolver.New(nil))
		require.NoError(t, err)
		defer x.Close()

		_, err = x.Renew(ctx, credentials.New(jobTracker), cluster.LogicalURI())
		require.Error(t, err)
		assert.ErrorIs(t, err, gerrors.ErrUnknownLogicalIdentity)
		assert.Equal(t, failure.KindUnknownLogicalIdentity, failure.KindOf(err))
	})
}
