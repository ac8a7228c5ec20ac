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

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	gerrors "github.com/tochemey/dtoken/errors"
	"github.com/tochemey/dtoken/internal/http"
	"github.com/tochemey/dtoken/internal/tcp"
	"github.com/tochemey/dtoken/internal/validation"
	"github.com/tochemey/dtoken/log"
	"github.com/tochemey/dtoken/secretmanager"
)

// Server serves a Node over h2c: the connect token service and the REST
// surface share one listener.
type Server struct {
	id              string
	bindAddress     string
	logger          log.Logger
	shutdownTimeout time.Duration

	node       *Node
	service    *Service
	httpServer *nethttp.Server
	listener   net.Listener
	address    string
	started    *atomic.Bool
	serveErr   chan error

	mu sync.RWMutex
}

// NewServer creates a Server listening on bindAddress (host:port) in front
// of manager. The node starts in standby.
func NewServer(manager *secretmanager.Manager, bindAddress string, opts ...Option) (*Server, error) {
	s := &Server{
		id:              uuid.NewString(),
		bindAddress:     bindAddress,
		logger:          log.DefaultLogger,
		shutdownTimeout: DefaultShutdownTimeout,
		started:         atomic.NewBool(false),
	}

	for _, opt := range opts {
		opt.Apply(s)
	}

	if err := validation.New(validation.FailFast()).
		AddAssertion(manager != nil, "the [manager] is required").
		AddValidator(validation.NewEmptyStringValidator("id", s.id)).
		AddValidator(validation.NewAddressValidator(bindAddress)).
		AddValidator(validation.NewPositiveValidator("shutdown timeout", s.shutdownTimeout)).
		AddAssertion(s.logger != nil, "the [logger] is required").
		Validate(); err != nil {
		return nil, gerrors.NewErrInvalidConfig(err)
	}

	s.logger = s.logger.Named("coordinator").With("node", s.id)
	s.node = newNode(s.id, manager, s.logger)
	s.service = NewService(s.node, s.logger)
	return s, nil
}

// Node returns the served node
func (s *Server) Node() *Node {
	return s.node
}

// Start binds the listener and serves in the background
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started.Load() {
		return nil
	}

	listener, err := net.Listen("tcp", s.bindAddress)
	if err != nil {
		return fmt.Errorf("coordinator %s failed to listen on %s: %w", s.id, s.bindAddress, err)
	}

	address, err := tcp.AdvertiseAddress(listener.Addr())
	if err != nil {
		_ = listener.Close()
		return err
	}

	mux := nethttp.NewServeMux()
	mux.Handle(NewHandler(s.service))
	mux.Handle(RESTPath, &restHandler{node: s.node, logger: s.logger})

	s.listener = listener
	s.address = address
	// requests outlive the start call, so only ctx values are kept
	s.httpServer = http.NewServer(context.WithoutCancel(ctx), mux)
	s.serveErr = make(chan error, 1)

	go func(server *nethttp.Server, errc chan<- error) {
		err := server.Serve(listener)
		if errors.Is(err, nethttp.ErrServerClosed) {
			err = nil
		}
		errc <- err
	}(s.httpServer, s.serveErr)

	s.started.Store(true)
	s.logger.Infof("listening on %s", address)
	return nil
}

// Stop shuts the server down gracefully and closes the node secret
// manager. The shared secret store is left open.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started.Load() {
		return s.node.close(ctx)
	}

	s.started.Store(false)
	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	err := multierr.Combine(
		s.httpServer.Shutdown(ctx),
		<-s.serveErr,
		s.node.close(ctx),
	)
	if err != nil {
		s.logger.Errorf("failed to stop: %v", err)
		return err
	}

	s.logger.Info("stopped")
	return nil
}

// Address returns the advertised host:port, or an empty string when the
// server is not running
func (s *Server) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started.Load() {
		return ""
	}
	return s.address
}
