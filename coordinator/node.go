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
	"crypto/hmac"
	"fmt"
	"sync"

	"go.uber.org/atomic"

	gerrors "github.com/tochemey/dtoken/errors"
	"github.com/tochemey/dtoken/log"
	"github.com/tochemey/dtoken/secretmanager"
	"github.com/tochemey/dtoken/token"
)

// Node is one coordinator: an id, an HA role and the secret manager that
// is active whenever the role is.
type Node struct {
	id      string
	manager *secretmanager.Manager
	role    *atomic.Int32
	logger  log.Logger

	// transitionMu serializes role transitions
	transitionMu sync.Mutex
}

func newNode(id string, manager *secretmanager.Manager, logger log.Logger) *Node {
	return &Node{
		id:      id,
		manager: manager,
		role:    atomic.NewInt32(int32(RoleStandby)),
		logger:  logger,
	}
}

// ID returns the node id
func (n *Node) ID() string {
	return n.id
}

// Role returns the current role
func (n *Node) Role() Role {
	return Role(n.role.Load())
}

// Manager returns the node secret manager
func (n *Node) Manager() *secretmanager.Manager {
	return n.manager
}

// TransitionToActive loads the shared secret state and starts serving token
// calls. Calls arriving meanwhile get a retriable failure.
func (n *Node) TransitionToActive(ctx context.Context) error {
	n.transitionMu.Lock()
	defer n.transitionMu.Unlock()

	if n.Role() == RoleActive {
		return nil
	}

	n.role.Store(int32(RoleTransitioning))
	if err := n.manager.Activate(ctx); err != nil {
		n.role.Store(int32(RoleStandby))
		return fmt.Errorf("coordinator %s failed to become active: %w", n.id, err)
	}

	n.role.Store(int32(RoleActive))
	n.logger.Info("transitioned to active")
	return nil
}

// TransitionToStandby stops serving token calls and drops the secret state
func (n *Node) TransitionToStandby(ctx context.Context) error {
	n.transitionMu.Lock()
	defer n.transitionMu.Unlock()

	if n.Role() == RoleStandby {
		return nil
	}

	n.role.Store(int32(RoleStandby))
	if err := n.manager.Deactivate(ctx); err != nil {
		return fmt.Errorf("coordinator %s failed to become standby: %w", n.id, err)
	}

	n.logger.Info("transitioned to standby")
	return nil
}

// Authenticate verifies tok against the secret manager and returns its
// identifier. Failures are wrapped in a SecurityError, the way a generic
// authentication layer reports them; the cause stays in the chain.
func (n *Node) Authenticate(tok *token.Token) (*token.Identifier, error) {
	if tok == nil || tok.Kind != token.DelegationKind {
		return nil, gerrors.NewSecurityError(gerrors.NewErrAccessDenied("unsupported credential"))
	}

	id, err := tok.DecodeIdentifier()
	if err != nil {
		return nil, gerrors.NewSecurityError(err)
	}

	password, err := n.manager.RetrievePassword(id)
	if err != nil {
		return nil, gerrors.NewSecurityError(err)
	}

	if !hmac.Equal(password, tok.Password) {
		return nil, gerrors.NewSecurityError(
			gerrors.NewErrInvalidToken(fmt.Sprintf("invalid password for token (%s)", id)))
	}
	return id, nil
}

// checkServing fails while a transition to active is in flight
func (n *Node) checkServing() error {
	if n.Role() == RoleTransitioning {
		return gerrors.NewErrRetriable(fmt.Sprintf("coordinator %s is transitioning to active", n.id))
	}
	return nil
}

// close releases the secret manager
func (n *Node) close(ctx context.Context) error {
	n.transitionMu.Lock()
	defer n.transitionMu.Unlock()

	n.role.Store(int32(RoleStandby))
	return n.manager.Close(ctx)
}
