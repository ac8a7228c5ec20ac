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
	nethttp "net/http"
	"time"

	"connectrpc.com/connect"

	"github.com/tochemey/dtoken/coordinator"
	"github.com/tochemey/dtoken/failure"
	"github.com/tochemey/dtoken/internal/codec"
	"github.com/tochemey/dtoken/internal/http"
	"github.com/tochemey/dtoken/token"
)

// RPCTransport calls coordinators over connect RPC
type RPCTransport struct {
	client *nethttp.Client
}

var _ Transport = (*RPCTransport)(nil)

// NewRPCTransport creates an RPCTransport whose calls time out after timeout
func NewRPCTransport(timeout time.Duration) *RPCTransport {
	return &RPCTransport{client: http.NewClient(timeout)}
}

// GetDelegationToken implements Transport
func (x *RPCTransport) GetDelegationToken(ctx context.Context, endpoint, caller, renewer string) (*token.Token, error) {
	response, err := unary[coordinator.GetDelegationTokenRequest, coordinator.GetDelegationTokenResponse](
		ctx, x.client, endpoint, coordinator.GetDelegationTokenProcedure,
		&coordinator.GetDelegationTokenRequest{Renewer: renewer}, caller, nil)
	if err != nil {
		return nil, err
	}
	return response.Token.Token(), nil
}

// RenewDelegationToken implements Transport
func (x *RPCTransport) RenewDelegationToken(ctx context.Context, endpoint, caller string, tok *token.Token) (time.Time, error) {
	response, err := unary[coordinator.RenewDelegationTokenRequest, coordinator.RenewDelegationTokenResponse](
		ctx, x.client, endpoint, coordinator.RenewDelegationTokenProcedure,
		&coordinator.RenewDelegationTokenRequest{Token: coordinator.ToWire(tok)}, caller, nil)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(response.ExpiryTime), nil
}

// CancelDelegationToken implements Transport
func (x *RPCTransport) CancelDelegationToken(ctx context.Context, endpoint, caller string, tok *token.Token) error {
	_, err := unary[coordinator.CancelDelegationTokenRequest, coordinator.CancelDelegationTokenResponse](
		ctx, x.client, endpoint, coordinator.CancelDelegationTokenProcedure,
		&coordinator.CancelDelegationTokenRequest{Token: coordinator.ToWire(tok)}, caller, nil)
	return err
}

// GetServiceStatus implements Transport
func (x *RPCTransport) GetServiceStatus(ctx context.Context, endpoint, caller string, tok *token.Token) (*ServiceStatus, error) {
	response, err := unary[coordinator.GetServiceStatusRequest, coordinator.GetServiceStatusResponse](
		ctx, x.client, endpoint, coordinator.GetServiceStatusProcedure,
		&coordinator.GetServiceStatusRequest{}, caller, tok)
	if err != nil {
		return nil, err
	}
	return &ServiceStatus{NodeID: response.NodeID, Role: response.Role, User: response.User}, nil
}

// Close releases idle connections
func (x *RPCTransport) Close() {
	x.client.CloseIdleConnections()
}

func unary[Req, Res any](ctx context.Context, client *nethttp.Client, endpoint, procedure string, msg *Req, caller string, tok *token.Token) (*Res, error) {
	rpc := connect.NewClient[Req, Res](client, http.URL(endpoint)+procedure, codec.Option())
	request := connect.NewRequest(msg)
	if tok != nil {
		request.Header().Set(coordinator.TokenHeader, tok.EncodeToURLString())
	} else {
		request.Header().Set(coordinator.PrincipalHeader, caller)
	}

	response, err := rpc.CallUnary(ctx, request)
	if err != nil {
		return nil, failure.FromConnectError(err)
	}
	return response.Msg, nil
}
