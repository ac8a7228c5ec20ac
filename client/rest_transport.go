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
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"net/url"
	"time"

	"github.com/tochemey/dtoken/coordinator"
	"github.com/tochemey/dtoken/failure"
	"github.com/tochemey/dtoken/internal/http"
	"github.com/tochemey/dtoken/token"
)

// RESTTransport calls the REST surface of coordinators. Failures come
// back as JSON envelopes.
type RESTTransport struct {
	client *nethttp.Client
}

var _ Transport = (*RESTTransport)(nil)

// NewRESTTransport creates a RESTTransport whose calls time out after timeout
func NewRESTTransport(timeout time.Duration) *RESTTransport {
	return &RESTTransport{client: http.NewClient(timeout)}
}

// GetDelegationToken implements Transport
func (x *RESTTransport) GetDelegationToken(ctx context.Context, endpoint, caller, renewer string) (*token.Token, error) {
	var out coordinator.RESTToken
	if err := x.get(ctx, endpoint, url.Values{
		coordinator.ParamOp:      {coordinator.OpGetDelegationToken},
		coordinator.ParamUser:    {caller},
		coordinator.ParamRenewer: {renewer},
	}, &out); err != nil {
		return nil, err
	}
	return token.DecodeFromURLString(out.Token.URLString)
}

// RenewDelegationToken implements Transport
func (x *RESTTransport) RenewDelegationToken(ctx context.Context, endpoint, caller string, tok *token.Token) (time.Time, error) {
	var out coordinator.RESTExpiry
	if err := x.get(ctx, endpoint, url.Values{
		coordinator.ParamOp:    {coordinator.OpRenewDelegationToken},
		coordinator.ParamUser:  {caller},
		coordinator.ParamToken: {tok.EncodeToURLString()},
	}, &out); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(out.Long), nil
}

// CancelDelegationToken implements Transport
func (x *RESTTransport) CancelDelegationToken(ctx context.Context, endpoint, caller string, tok *token.Token) error {
	return x.get(ctx, endpoint, url.Values{
		coordinator.ParamOp:    {coordinator.OpCancelDelegationToken},
		coordinator.ParamUser:  {caller},
		coordinator.ParamToken: {tok.EncodeToURLString()},
	}, nil)
}

// GetServiceStatus implements Transport
func (x *RESTTransport) GetServiceStatus(ctx context.Context, endpoint, caller string, tok *token.Token) (*ServiceStatus, error) {
	params := url.Values{coordinator.ParamOp: {coordinator.OpGetServiceStatus}}
	if tok != nil {
		params.Set(coordinator.ParamDelegation, tok.EncodeToURLString())
	} else {
		params.Set(coordinator.ParamUser, caller)
	}

	var out coordinator.RESTStatus
	if err := x.get(ctx, endpoint, params, &out); err != nil {
		return nil, err
	}
	return &ServiceStatus{
		NodeID: out.ServiceStatus.NodeID,
		Role:   out.ServiceStatus.Role,
		User:   out.ServiceStatus.User,
	}, nil
}

// Close releases idle connections
func (x *RESTTransport) Close() {
	x.client.CloseIdleConnections()
}

// get sends the request and decodes a successful JSON body into out
// when out is not nil
func (x *RESTTransport) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	target := http.URL(endpoint) + coordinator.RESTPath + "?" + params.Encode()
	request, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, target, nethttp.NoBody)
	if err != nil {
		return err
	}

	response, err := x.client.Do(request)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	defer response.Body.Close()

	if err := failure.ReadHTTP(response); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(response.Body).Decode(out)
}
