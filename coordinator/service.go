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
	"net/http"

	"connectrpc.com/connect"

	gerrors "github.com/tochemey/dtoken/errors"
	"github.com/tochemey/dtoken/failure"
	"github.com/tochemey/dtoken/internal/codec"
	"github.com/tochemey/dtoken/log"
)

// Service implements the token RPCs of a Node
type Service struct {
	node   *Node
	logger log.Logger
}

// NewService creates a Service backed by node
func NewService(node *Node, logger log.Logger) *Service {
	return &Service{node: node, logger: logger}
}

// NewHandler builds the connect handler of svc. It returns the path to
// mount the handler on.
func NewHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{
		codec.Option(),
		connect.WithInterceptors(svc.interceptor()),
	}, opts...)

	getToken := connect.NewUnaryHandler(GetDelegationTokenProcedure, svc.GetDelegationToken, opts...)
	renewToken := connect.NewUnaryHandler(RenewDelegationTokenProcedure, svc.RenewDelegationToken, opts...)
	cancelToken := connect.NewUnaryHandler(CancelDelegationTokenProcedure, svc.CancelDelegationToken, opts...)
	status := connect.NewUnaryHandler(GetServiceStatusProcedure, svc.GetServiceStatus, opts...)

	return "/" + ServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case GetDelegationTokenProcedure:
			getToken.ServeHTTP(w, r)
		case RenewDelegationTokenProcedure:
			renewToken.ServeHTTP(w, r)
		case CancelDelegationTokenProcedure:
			cancelToken.ServeHTTP(w, r)
		case GetServiceStatusProcedure:
			status.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// GetDelegationToken issues a token owned by the caller
func (s *Service) GetDelegationToken(ctx context.Context, request *connect.Request[GetDelegationTokenRequest]) (*connect.Response[GetDelegationTokenResponse], error) {
	caller, err := principalCaller(ctx, "token issuance")
	if err != nil {
		return nil, err
	}

	tok, err := s.node.manager.IssueToken(ctx, caller.Principal, request.Msg.Renewer, "")
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&GetDelegationTokenResponse{Token: ToWire(tok)}), nil
}

// RenewDelegationToken extends the validity of a token on behalf of the caller
func (s *Service) RenewDelegationToken(ctx context.Context, request *connect.Request[RenewDelegationTokenRequest]) (*connect.Response[RenewDelegationTokenResponse], error) {
	caller, err := principalCaller(ctx, "token renewal")
	if err != nil {
		return nil, err
	}

	if request.Msg.Token == nil {
		return nil, gerrors.NewErrMalformedToken("missing token")
	}

	expiry, err := s.node.manager.RenewToken(ctx, request.Msg.Token.Token(), caller.Principal)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&RenewDelegationTokenResponse{ExpiryTime: expiry.UnixMilli()}), nil
}

// CancelDelegationToken revokes a token on behalf of the caller
func (s *Service) CancelDelegationToken(ctx context.Context, request *connect.Request[CancelDelegationTokenRequest]) (*connect.Response[CancelDelegationTokenResponse], error) {
	caller, err := principalCaller(ctx, "token cancellation")
	if err != nil {
		return nil, err
	}

	if request.Msg.Token == nil {
		return nil, gerrors.NewErrMalformedToken("missing token")
	}

	if _, err := s.node.manager.CancelToken(ctx, request.Msg.Token.Token(), caller.Principal); err != nil {
		return nil, err
	}
	return connect.NewResponse(&CancelDelegationTokenResponse{}), nil
}

// GetServiceStatus reports the node role. Any authenticated caller may
// ask, so clients call it to check that token authentication works.
func (s *Service) GetServiceStatus(ctx context.Context, _ *connect.Request[GetServiceStatusRequest]) (*connect.Response[GetServiceStatusResponse], error) {
	caller, ok := CallerFrom(ctx)
	if !ok {
		return nil, gerrors.NewSecurityError(gerrors.NewErrAccessDenied("unauthenticated call"))
	}

	return connect.NewResponse(&GetServiceStatusResponse{
		NodeID: s.node.id,
		Role:   s.node.Role().String(),
		User:   caller.Principal,
	}), nil
}

// interceptor authenticates every call and turns failures into connect
// errors carrying their envelope
func (s *Service) interceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, request connect.AnyRequest) (connect.AnyResponse, error) {
			if request.Spec().IsClient {
				return next(ctx, request)
			}

			caller, err := s.node.authenticateHeader(request.Header())
			if err != nil {
				s.logger.Debugf("rejected %s: %v", request.Spec().Procedure, err)
				return nil, failure.ToConnectError(err)
			}

			response, err := next(withCaller(ctx, caller), request)
			if err != nil {
				s.logger.Debugf("%s failed for %s: %v", request.Spec().Procedure, caller.Principal, err)
				return nil, failure.ToConnectError(err)
			}
			return response, nil
		}
	}
}
