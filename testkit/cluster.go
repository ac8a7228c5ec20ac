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
	"fmt"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/travisjeffery/go-dynaport"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/tochemey/dtoken/client"
	"github.com/tochemey/dtoken/coordinator"
	"github.com/tochemey/dtoken/log"
	"github.com/tochemey/dtoken/principal"
	"github.com/tochemey/dtoken/resolver"
	"github.com/tochemey/dtoken/secretmanager"
)

const (
	// DefaultNameservice is the logical identity a Cluster registers its coordinators under
	DefaultNameservice = "my-ha-uri"
	// DefaultStartTimeout bounds the start and the shutdown of a Cluster
	DefaultStartTimeout = 10 * time.Second
)

// Cluster runs a set of coordinators on the loopback interface behind a single
// logical identity. The coordinators share one secret store so that any of
// them can take over the tokens issued by another. All of them start standby.
type Cluster struct {
	t            *testing.T
	nameservice  string
	store        secretmanager.Store
	logger       log.Logger
	authToLocal  string
	managerOpts  []secretmanager.Option
	startTimeout time.Duration

	servers  []*coordinator.Server
	resolver *resolver.Resolver
	started  *atomic.Bool
}

// NewCluster starts size coordinators and returns the running Cluster.
// The Cluster is shut down when the test completes.
func NewCluster(ctx context.Context, t *testing.T, size int, opts ...Option) *Cluster {
	t.Helper()
	require.Positive(t, size)

	cluster := &Cluster{
		t:            t,
		nameservice:  DefaultNameservice,
		logger:       log.DiscardLogger,
		startTimeout: DefaultStartTimeout,
		started:      atomic.NewBool(false),
	}

	for _, opt := range opts {
		opt.Apply(cluster)
	}

	if cluster.store == nil {
		cluster.store = secretmanager.NewMemoryStore()
	}

	mapper := principal.DefaultMapper("")
	if cluster.authToLocal != "" {
		var err error
		mapper, err = principal.NewMapper(cluster.authToLocal, "")
		require.NoError(t, err)
	}

	ports := dynaport.Get(size)
	cluster.servers = make([]*coordinator.Server, size)
	for index := range size {
		managerOpts := append([]secretmanager.Option{
			secretmanager.WithMapper(mapper),
			secretmanager.WithLogger(cluster.logger),
			secretmanager.WithMeterProvider(noop.NewMeterProvider()),
		}, cluster.managerOpts...)

		manager, err := secretmanager.New(cluster.store, managerOpts...)
		require.NoError(t, err)

		server, err := coordinator.NewServer(manager,
			net.JoinHostPort("127.0.0.1", strconv.Itoa(ports[index])),
			coordinator.WithID(fmt.Sprintf("nn%d", index)),
			coordinator.WithLogger(cluster.logger))
		require.NoError(t, err)
		cluster.servers[index] = server
	}

	startCtx, cancel := context.WithTimeout(ctx, cluster.startTimeout)
	defer cancel()

	eg, egCtx := errgroup.WithContext(startCtx)
	for _, server := range cluster.servers {
		eg.Go(func() error {
			return server.Start(egCtx)
		})
	}

	if err := eg.Wait(); err != nil {
		_ = cluster.stopServers(context.Background())
		require.NoError(t, err)
	}

	endpoints := make([]string, size)
	for index, server := range cluster.servers {
		endpoints[index] = server.Address()
	}

	cluster.resolver = resolver.New(map[string][]string{cluster.nameservice: endpoints})
	cluster.started.Store(true)

	t.Cleanup(func() {
		require.NoError(t, cluster.Shutdown(context.Background()))
	})
	return cluster
}

// Size returns the number of coordinators
func (c *Cluster) Size() int {
	return len(c.servers)
}

// Server returns the coordinator server at index
func (c *Cluster) Server(index int) *coordinator.Server {
	require.Less(c.t, index, len(c.servers))
	return c.servers[index]
}

// Node returns the coordinator node at index
func (c *Cluster) Node(index int) *coordinator.Node {
	return c.Server(index).Node()
}

// Endpoint returns the physical address of the coordinator at index
func (c *Cluster) Endpoint(index int) string {
	return c.Server(index).Address()
}

// Endpoints returns the physical addresses of the coordinators in
// configuration order
func (c *Cluster) Endpoints() []string {
	endpoints, err := c.resolver.PhysicalEndpoints(c.LogicalURI())
	require.NoError(c.t, err)
	return endpoints
}

// TransitionToActive makes the coordinator at index active
func (c *Cluster) TransitionToActive(index int) {
	c.t.Helper()
	require.NoError(c.t, c.Node(index).TransitionToActive(context.Background()))
}

// TransitionToStandby makes the coordinator at index standby
func (c *Cluster) TransitionToStandby(index int) {
	c.t.Helper()
	require.NoError(c.t, c.Node(index).TransitionToStandby(context.Background()))
}

// Failover moves the active role from the coordinator at from to the one at to.
// Both transitions complete before Failover returns.
func (c *Cluster) Failover(from, to int) {
	c.t.Helper()
	c.TransitionToStandby(from)
	c.TransitionToActive(to)
}

// Nameservice returns the name of the logical identity
func (c *Cluster) Nameservice() string {
	return c.nameservice
}

// LogicalURI returns the logical identity URI clients address the cluster with
func (c *Cluster) LogicalURI() string {
	return "hdfs://" + c.nameservice
}

// Resolver returns a resolver that maps the logical identity to the
// coordinators in index order
func (c *Cluster) Resolver() *resolver.Resolver {
	return c.resolver
}

// Store returns the secret store shared by the coordinators
func (c *Cluster) Store() secretmanager.Store {
	return c.store
}

// Client creates a client configured against the cluster. It is closed
// when the test completes.
func (c *Cluster) Client(opts ...client.Option) *client.Client {
	c.t.Helper()
	x, err := client.New(c.resolver, opts...)
	require.NoError(c.t, err)
	c.t.Cleanup(x.Close)
	return x
}

// Shutdown stops every coordinator and closes the shared store.
// Calling it again is a no-op.
func (c *Cluster) Shutdown(ctx context.Context) error {
	if !c.started.CompareAndSwap(true, false) {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.startTimeout)
	defer cancel()
	return multierr.Combine(c.stopServers(ctx), c.store.Close())
}

func (c *Cluster) stopServers(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, server := range c.servers {
		if server == nil {
			continue
		}
		eg.Go(func() error {
			return server.Stop(ctx)
		})
	}
	return eg.Wait()
}
