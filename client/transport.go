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
	"time"

	"github.com/tochemey/dtoken/token"
)

// ServiceStatus is what a coordinator reports about itself
type ServiceStatus struct {
	NodeID string
	Role   string
	// User is the principal the coordinator authenticated
	User string
}

// Transport performs a single call against a single coordinator endpoint
// (host:port). Failover is the Client's job.
type Transport interface {
	GetDelegationToken(ctx context.Context, endpoint, caller, renewer string) (*token.Token, error)
	RenewDelegationToken(ctx context.Context, endpoint, caller string, tok *token.Token) (time.Time, error)
	CancelDelegationToken(ctx context.Context, endpoint, caller string, tok *token.Token) error
	// GetServiceStatus authenticates with tok when it is not nil and with
	// caller otherwise
	GetServiceStatus(ctx context.Context, endpoint, caller string, tok *token.Token) (*ServiceStatus, error)
	Close()
}
