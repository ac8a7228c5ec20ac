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

package client

import (
	"context"
	"fmt"
	"time"

	"github.com/tochemey/dtoken/credentials"
	gerrors "github.com/tochemey/dtoken/errors"
	"github.com/tochemey/dtoken/failure"
	"github.com/tochemey/dtoken/internal/validation"
	"github.com/tochemey/dtoken/log"
	"github.com/tochemey/dtoken/resolver"
	"github.com/tochemey/dtoken/token"
)

// Client manages delegation tokens of highly available nameservices.
// Every call walks the physical endpoints of the nameservice in order,
// moving on when a coordinator is standby or unreachable and stopping at
// the first permanent failure.
//
// A Client is safe for concurrent use. Call Close to release its transport.
type Client struct {
	resolver  *resolver.Resolver
	transport Transport
	timeout   time.Duration
	useIP     bool
	logger    log.Logger
}

// New creates a Client resolving nameservices with r
func New(r *resolver.Resolver, opts ...Option) (*Client, error) {
	x := &Client{
		resolver: r,
		timeout:  DefaultTimeout,
		useIP:    true,
		logger:   log.DiscardLogger,
	}

	for _, opt := range opts {
		opt.Apply(x)
	}

	if err := validation.New(validation.FailFast()).
		AddAssertion(r != nil, "the [resolver] is required").
		AddValidator(validation.NewPositiveValidator("timeout", x.timeout)).
		AddAssertion(x.logger != nil, "the [logger] is required").
		Validate(); err != nil {
		return nil, gerrors.NewErrInvalidConfig(err)
	}

	x.logger = x.logger.Named("client")
	if x.transport == nil {
		x.transport = NewRPCTransport(x.timeout)
	}
	return x, nil
}

// Close releases the transport
func (x *Client) Close() {
	x.transport.Close()
}

// CanonicalServiceName returns the service tag of tokens acquired for logical
func (x *Client) CanonicalServiceName(logical string) (string, error) {
	if !x.resolver.IsLogical(logical) {
		return "", gerrors.NewErrUnknownLogicalIdentity(logical)
	}
	return resolver.ServiceTagForLogical(logical), nil
}

// Acquire obtains a token of logical for the principal of creds, renewable
// by renewer. The token is tagged with the logical service tag, added to
// creds and cloned for every physical endpoint.
func (x *Client) Acquire(ctx context.Context, creds *credentials.Credentials, logical, renewer string) (*token.Token, error) {
	endpoints, err := x.resolver.PhysicalEndpoints(logical)
	if err != nil {
		return nil, err
	}

	var tok *token.Token
	err = x.failover(ctx, "acquire", endpoints, func(ctx context.Context, endpoint string) error {
		issued, err := x.transport.GetDelegationToken(ctx, endpoint, creds.Principal(), renewer)
		if err != nil {
			return err
		}
		tok = issued
		return nil
	})
	if err != nil {
		return nil, err
	}

	tagged := tok.WithService(resolver.ServiceTagForLogical(logical))
	creds.AddToken(tagged)
	if err := credentials.CloneForLogicalIdentity(ctx, creds, x.resolver, logical, endpoints, x.useIP); err != nil {
		return nil, err
	}
	return tagged, nil
}

// Renew renews the token creds holds for logical
func (x *Client) Renew(ctx context.Context, creds *credentials.Credentials, logical string) (time.Time, error) {
	endpoints, err := x.resolver.PhysicalEndpoints(logical)
	if err != nil {
		return time.Time{}, err
	}

	var expiry time.Time
	err = x.failover(ctx, "renew", endpoints, func(ctx context.Context, endpoint string) error {
		tok, err := x.selectToken(ctx, creds, logical, endpoint)
		if err != nil {
			return err
		}

		expiry, err = x.transport.RenewDelegationToken(ctx, endpoint, creds.Principal(), tok)
		return err
	})
	return expiry, err
}

// Cancel cancels the token creds holds for logical and drops it together
// with its per-endpoint copies
func (x *Client) Cancel(ctx context.Context, creds *credentials.Credentials, logical string) error {
	endpoints, err := x.resolver.PhysicalEndpoints(logical)
	if err != nil {
		return err
	}

	var cancelled *token.Token
	err = x.failover(ctx, "cancel", endpoints, func(ctx context.Context, endpoint string) error {
		tok, err := x.selectToken(ctx, creds, logical, endpoint)
		if err != nil {
			return err
		}

		if err := x.transport.CancelDelegationToken(ctx, endpoint, creds.Principal(), tok); err != nil {
			return err
		}
		cancelled = tok
		return nil
	})
	if err != nil {
		return err
	}

	for _, held := range creds.Tokens() {
		if held.SameCredential(cancelled) {
			creds.RemoveToken(held.Kind, held.Service)
		}
	}
	return nil
}

// RenewToken renews tok on behalf of caller. The coordinators to try are
// found from the token service tag: every endpoint of a logical tag, or
// the tagged endpoint itself.
func (x *Client) RenewToken(ctx context.Context, caller string, tok *token.Token) (time.Time, error) {
	endpoints, err := x.endpointsOf(tok)
	if err != nil {
		return time.Time{}, err
	}

	var expiry time.Time
	err = x.failover(ctx, "renew", endpoints, func(ctx context.Context, endpoint string) error {
		var err error
		expiry, err = x.transport.RenewDelegationToken(ctx, endpoint, caller, tok)
		return err
	})
	return expiry, err
}

// CancelToken cancels tok on behalf of caller. See RenewToken for how the
// coordinators are found.
func (x *Client) CancelToken(ctx context.Context, caller string, tok *token.Token) error {
	endpoints, err := x.endpointsOf(tok)
	if err != nil {
		return err
	}

	return x.failover(ctx, "cancel", endpoints, func(ctx context.Context, endpoint string) error {
		return x.transport.CancelDelegationToken(ctx, endpoint, caller, tok)
	})
}

// Status returns the status of the first coordinator of logical that
// authenticates the caller. The token creds holds for an endpoint is
// presented when there is one, which makes a standby fail the call.
func (x *Client) Status(ctx context.Context, creds *credentials.Credentials, logical string) (*ServiceStatus, error) {
	endpoints, err := x.resolver.PhysicalEndpoints(logical)
	if err != nil {
		return nil, err
	}

	var status *ServiceStatus
	err = x.failover(ctx, "status", endpoints, func(ctx context.Context, endpoint string) error {
		tag, err := x.resolver.ServiceTagFor(ctx, endpoint, x.useIP)
		if err != nil {
			return err
		}

		tok := credentials.Select(creds, token.DelegationKind, tag)
		status, err = x.transport.GetServiceStatus(ctx, endpoint, creds.Principal(), tok)
		return err
	})
	return status, err
}

// failover runs call against each endpoint in turn until one succeeds or
// fails permanently. Once the endpoints are exhausted the last transient
// failure is returned as is.
func (x *Client) failover(ctx context.Context, op string, endpoints []string, call func(ctx context.Context, endpoint string) error) error {
	if len(endpoints) == 0 {
		return gerrors.ErrNoEndpoints
	}

	var lastErr error
	for index, endpoint := range endpoints {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, x.timeout)
		err := call(attemptCtx, endpoint)
		cancel()

		if err == nil {
			if index > 0 {
				x.logger.Infof("%s succeeded against %s after %d failover(s)", op, endpoint, index)
			}
			return nil
		}

		if failure.Classify(err) == failure.Permanent {
			return err
		}

		x.logger.Warnf("%s failed against %s (%d/%d), trying the next coordinator: %v",
			op, endpoint, index+1, len(endpoints), err)
		lastErr = err
	}
	return lastErr
}

// selectToken returns the token creds holds for endpoint, falling back to
// the logically tagged one
func (x *Client) selectToken(ctx context.Context, creds *credentials.Credentials, logical, endpoint string) (*token.Token, error) {
	tag, err := x.resolver.ServiceTagFor(ctx, endpoint, x.useIP)
	if err != nil {
		return nil, err
	}

	if tok := credentials.Select(creds, token.DelegationKind, tag); tok != nil {
		return tok, nil
	}

	if tok := credentials.Select(creds, token.DelegationKind, resolver.ServiceTagForLogical(logical)); tok != nil {
		return tok, nil
	}
	return nil, gerrors.NewErrInvalidToken(fmt.Sprintf("%s holds no delegation token for %s", creds.Principal(), logical))
}

func (x *Client) endpointsOf(tok *token.Token) ([]string, error) {
	if tok == nil {
		return nil, gerrors.NewErrMalformedToken("missing token")
	}

	if logical, ok := resolver.LogicalFromServiceTag(tok.Service); ok {
		return x.resolver.PhysicalEndpoints(logical)
	}

	if tok.Service == "" {
		return nil, gerrors.NewErrInvalidToken("token carries no service tag")
	}
	return []string{tok.Service}, nil
}
