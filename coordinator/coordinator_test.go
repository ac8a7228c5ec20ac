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
	"encoding/json"
	"net"
	nethttp "net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travisjeffery/go-dynaport"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/goleak"

	gerrors "github.com/tochemey/dtoken/errors"
	"github.com/tochemey/dtoken/failure"
	"github.com/tochemey/dtoken/internal/codec"
	"github.com/tochemey/dtoken/internal/http"
	"github.com/tochemey/dtoken/log"
	"github.com/tochemey/dtoken/principal"
	"github.com/tochemey/dtoken/secretmanager"
	"github.com/tochemey/dtoken/token"
)

const jobTrackerLong = "JobTracker/foo.com@FOO.COM"

func newManager(t *testing.T, store secretmanager.Store) *secretmanager.Manager {
	t.Helper()
	mapper, err := principal.NewMapper("RULE:[2:$1@$0](JobTracker@.*FOO.COM)s/@.*//DEFAULT", "")
	require.NoError(t, err)

	manager, err := secretmanager.New(store,
		secretmanager.WithMapper(mapper),
		secretmanager.WithMeterProvider(noop.NewMeterProvider()))
	require.NoError(t, err)
	return manager
}

func newServer(t *testing.T, store secretmanager.Store) *Server {
	t.Helper()
	port := dynaport.Get(1)[0]
	server, err := NewServer(newManager(t, store),
		net.JoinHostPort("127.0.0.1", strconv.Itoa(port)),
		WithLogger(log.DiscardLogger))
	require.NoError(t, err)
	require.NoError(t, server.Start(context.Background()))
	t.Cleanup(func() { _ = server.Stop(context.Background()) })
	return server
}

func call[Req, Res any](t *testing.T, address, procedure string, msg *Req, caller string, tok *token.Token) (*Res, error) {
	t.Helper()
	httpClient := http.NewClient(5 * time.Second)
	defer httpClient.CloseIdleConnections()

	client := connect.NewClient[Req, Res](httpClient, http.URL(address)+procedure, codec.Option())
	request := connect.NewRequest(msg)
	if caller != "" {
		request.Header().Set(PrincipalHeader, caller)
	}
	if tok != nil {
		request.Header().Set(TokenHeader, tok.EncodeToURLString())
	}

	response, err := client.CallUnary(context.Background(), request)
	if err != nil {
		return nil, failure.FromConnectError(err)
	}
	return response.Msg, nil
}

func issue(t *testing.T, address, caller, renewer string) (*token.Token, error) {
	t.Helper()
	response, err := call[GetDelegationTokenRequest, GetDelegationTokenResponse](t, address,
		GetDelegationTokenProcedure, &GetDelegationTokenRequest{Renewer: renewer}, caller, nil)
	if err != nil {
		return nil, err
	}
	return response.Token.Token(), nil
}

func renew(t *testing.T, address, caller string, tok *token.Token) (time.Time, error) {
	t.Helper()
	response, err := call[RenewDelegationTokenRequest, RenewDelegationTokenResponse](t, address,
		RenewDelegationTokenProcedure, &RenewDelegationTokenRequest{Token: ToWire(tok)}, caller, nil)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(response.ExpiryTime), nil
}

func cancel(t *testing.T, address, caller string, tok *token.Token) error {
	t.Helper()
	_, err := call[CancelDelegationTokenRequest, CancelDelegationTokenResponse](t, address,
		CancelDelegationTokenProcedure, &CancelDelegationTokenRequest{Token: ToWire(tok)}, caller, nil)
	return err
}

func status(t *testing.T, address, caller string, tok *token.Token) (*GetServiceStatusResponse, error) {
	t.Helper()
	return call[GetServiceStatusRequest, GetServiceStatusResponse](t, address,
		GetServiceStatusProcedure, &GetServiceStatusRequest{}, caller, tok)
}

func TestNewServer(t *testing.T) {
	t.Run("With missing manager", func(t *testing.T) {
		_, err := NewServer(nil, "127.0.0.1:8020")
		assert.ErrorIs(t, err, gerrors.ErrInvalidConfig)
	})
	t.Run("With invalid bind address", func(t *testing.T) {
		_, err := NewServer(newManager(t, secretmanager.NewMemoryStore()), "localhost")
		assert.ErrorIs(t, err, gerrors.ErrInvalidConfig)
	})
	t.Run("With custom id", func(t *testing.T) {
		server, err := NewServer(newManager(t, secretmanager.NewMemoryStore()), "127.0.0.1:8020", WithID("nn0"))
		require.NoError(t, err)
		assert.Equal(t, "nn0", server.Node().ID())
		assert.Equal(t, RoleStandby, server.Node().Role())
		assert.Empty(t, server.Address())
	})
}

func TestServerLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	port := dynaport.Get(1)[0]
	bindAddress := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	server, err := NewServer(newManager(t, secretmanager.NewMemoryStore()), bindAddress,
		WithLogger(log.DiscardLogger),
		WithShutdownTimeout(time.Second))
	require.NoError(t, err)

	require.NoError(t, server.Start(ctx))
	require.NoError(t, server.Start(ctx))
	assert.Equal(t, bindAddress, server.Address())

	node := server.Node()
	require.NoError(t, node.TransitionToActive(ctx))
	require.NoError(t, node.TransitionToActive(ctx))
	assert.Equal(t, RoleActive, node.Role())
	assert.True(t, node.Manager().Active())

	require.NoError(t, node.TransitionToStandby(ctx))
	assert.Equal(t, RoleStandby, node.Role())
	assert.False(t, node.Manager().Active())

	require.NoError(t, node.TransitionToActive(ctx))
	require.NoError(t, server.Stop(ctx))
	assert.Empty(t, server.Address())
	assert.Equal(t, RoleStandby, node.Role())
}

func TestTokenService(t *testing.T) {
	ctx := context.Background()
	store := secretmanager.NewMemoryStore()
	active := newServer(t, store)
	standby := newServer(t, store)
	require.NoError(t, active.Node().TransitionToActive(ctx))

	t.Run("With token lifecycle", func(t *testing.T) {
		tok, err := issue(t, active.Address(), "alice", "JobTracker")
		require.NoError(t, err)
		assert.Equal(t, token.DelegationKind, tok.Kind)

		id, err := tok.DecodeIdentifier()
		require.NoError(t, err)
		assert.Equal(t, "alice", id.Owner)
		assert.Equal(t, "JobTracker", id.Renewer)

		expiry, err := renew(t, active.Address(), jobTrackerLong, tok)
		require.NoError(t, err)
		assert.True(t, expiry.After(time.Now()))

		_, err = renew(t, active.Address(), "bob", tok)
		require.Error(t, err)
		assert.Equal(t, failure.Permanent, failure.Classify(err))
		assert.ErrorIs(t, err, gerrors.ErrAccessDenied)

		require.NoError(t, cancel(t, active.Address(), jobTrackerLong, tok))

		_, err = renew(t, active.Address(), "JobTracker", tok)
		require.Error(t, err)
		assert.Equal(t, failure.KindInvalidToken, failure.KindOf(err))
	})
	t.Run("With standby coordinator", func(t *testing.T) {
		_, err := issue(t, standby.Address(), "alice", "JobTracker")
		require.Error(t, err)
		assert.ErrorIs(t, err, gerrors.ErrRoleState)
		assert.Equal(t, failure.Transient, failure.Classify(err))

		response, err := status(t, standby.Address(), "alice", nil)
		require.NoError(t, err)
		assert.Equal(t, "standby", response.Role)
		assert.Equal(t, standby.Node().ID(), response.NodeID)
	})
	t.Run("With token authentication", func(t *testing.T) {
		tok, err := issue(t, active.Address(), "alice", "JobTracker")
		require.NoError(t, err)

		response, err := status(t, active.Address(), "", tok)
		require.NoError(t, err)
		assert.Equal(t, "alice", response.User)
		assert.Equal(t, "active", response.Role)

		// token authentication cannot be used to obtain more tokens
		_, err = call[GetDelegationTokenRequest, GetDelegationTokenResponse](t, active.Address(),
			GetDelegationTokenProcedure, &GetDelegationTokenRequest{Renewer: "JobTracker"}, "", tok)
		require.Error(t, err)
		assert.Equal(t, failure.KindAccessControl, failure.KindOf(err))
	})
	t.Run("With token presented to the standby", func(t *testing.T) {
		tok, err := issue(t, active.Address(), "alice", "JobTracker")
		require.NoError(t, err)

		_, err = status(t, standby.Address(), "", tok)
		require.Error(t, err)
		assert.Equal(t, failure.KindStandby, failure.KindOf(err))
		assert.Equal(t, failure.Transient, failure.Classify(err))
		assert.ErrorIs(t, err, gerrors.ErrRoleState)
		assert.Contains(t, err.Error(), "standby")
	})
	t.Run("With forged token", func(t *testing.T) {
		tok, err := issue(t, active.Address(), "alice", "JobTracker")
		require.NoError(t, err)
		forged := tok.Copy()
		forged.Password[0] ^= 0xff

		_, err = status(t, active.Address(), "", forged)
		require.Error(t, err)
		assert.Equal(t, failure.KindInvalidToken, failure.KindOf(err))
	})
	t.Run("With no credentials", func(t *testing.T) {
		_, err := status(t, active.Address(), "", nil)
		require.Error(t, err)
		assert.Equal(t, failure.KindAccessControl, failure.KindOf(err))
		assert.Equal(t, failure.Permanent, failure.Classify(err))
	})
	t.Run("With missing token", func(t *testing.T) {
		_, err := renew(t, active.Address(), "JobTracker", nil)
		require.Error(t, err)
		assert.Equal(t, failure.KindMalformedToken, failure.KindOf(err))
	})
}

func TestREST(t *testing.T) {
	ctx := context.Background()
	store := secretmanager.NewMemoryStore()
	active := newServer(t, store)
	standby := newServer(t, store)
	require.NoError(t, active.Node().TransitionToActive(ctx))

	httpClient := http.NewClient(5 * time.Second)
	t.Cleanup(httpClient.CloseIdleConnections)

	get := func(t *testing.T, address string, params url.Values) *nethttp.Response {
		t.Helper()
		resp, err := httpClient.Get(http.URL(address) + RESTPath + "?" + params.Encode())
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	var issued RESTToken
	resp := get(t, active.Address(), url.Values{
		ParamOp:      {OpGetDelegationToken},
		ParamUser:    {"alice"},
		ParamRenewer: {"JobTracker"},
	})
	require.NoError(t, failure.ReadHTTP(resp))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&issued))
	tok, err := token.DecodeFromURLString(issued.Token.URLString)
	require.NoError(t, err)

	t.Run("With renewal", func(t *testing.T) {
		resp := get(t, active.Address(), url.Values{
			ParamOp:    {OpRenewDelegationToken},
			ParamUser:  {jobTrackerLong},
			ParamToken: {tok.EncodeToURLString()},
		})
		require.NoError(t, failure.ReadHTTP(resp))

		var expiry RESTExpiry
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&expiry))
		assert.Greater(t, expiry.Long, time.Now().UnixMilli())
	})
	t.Run("With token presented to the standby", func(t *testing.T) {
		resp := get(t, standby.Address(), url.Values{
			ParamOp:         {OpGetServiceStatus},
			ParamDelegation: {tok.EncodeToURLString()},
		})
		assert.Equal(t, nethttp.StatusServiceUnavailable, resp.StatusCode)

		err := failure.ReadHTTP(resp)
		remote := failure.UnwrapRemote(err)
		require.NotNil(t, remote)
		assert.Equal(t, failure.KindStandby, remote.Kind)
		assert.Equal(t, failure.Transient, failure.Classify(err))
	})
	t.Run("With token presented to the active", func(t *testing.T) {
		resp := get(t, active.Address(), url.Values{
			ParamOp:         {OpGetServiceStatus},
			ParamDelegation: {tok.EncodeToURLString()},
		})
		require.NoError(t, failure.ReadHTTP(resp))

		var out RESTStatus
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Equal(t, "alice", out.ServiceStatus.User)
		assert.Equal(t, active.Node().ID(), out.ServiceStatus.NodeID)
	})
	t.Run("With unauthorized renewer", func(t *testing.T) {
		resp := get(t, active.Address(), url.Values{
			ParamOp:    {OpRenewDelegationToken},
			ParamUser:  {"bob"},
			ParamToken: {tok.EncodeToURLString()},
		})
		assert.Equal(t, nethttp.StatusForbidden, resp.StatusCode)
		assert.Equal(t, failure.Permanent, failure.Classify(failure.ReadHTTP(resp)))
	})
	t.Run("With cancellation", func(t *testing.T) {
		resp := get(t, active.Address(), url.Values{
			ParamOp:    {OpCancelDelegationToken},
			ParamUser:  {"alice"},
			ParamToken: {tok.EncodeToURLString()},
		})
		require.NoError(t, failure.ReadHTTP(resp))
		assert.Error(t, active.Node().Manager().VerifyToken(tok))
	})
	t.Run("With unsupported operation", func(t *testing.T) {
		resp := get(t, active.Address(), url.Values{ParamOp: {"MKDIRS"}, ParamUser: {"alice"}})
		assert.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)
	})
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	manager := newManager(t, secretmanager.NewMemoryStore())
	node := newNode("nn0", manager, log.DiscardLogger)
	t.Cleanup(func() { _ = node.close(ctx) })

	require.NoError(t, node.TransitionToActive(ctx))
	tok, err := manager.IssueToken(ctx, "alice", "JobTracker", "")
	require.NoError(t, err)

	t.Run("With valid token", func(t *testing.T) {
		id, err := node.Authenticate(tok)
		require.NoError(t, err)
		assert.Equal(t, "alice", id.Owner)
	})
	t.Run("With foreign credential kind", func(t *testing.T) {
		foreign := tok.Copy()
		foreign.Kind = "HDFS_BLOCK_TOKEN"
		_, err := node.Authenticate(foreign)
		var securityErr *gerrors.SecurityError
		require.ErrorAs(t, err, &securityErr)
		assert.ErrorIs(t, err, gerrors.ErrAccessDenied)
	})
	t.Run("With standby role", func(t *testing.T) {
		require.NoError(t, node.TransitionToStandby(ctx))
		t.Cleanup(func() { _ = node.TransitionToActive(ctx) })

		_, err := node.Authenticate(tok)
		var securityErr *gerrors.SecurityError
		require.ErrorAs(t, err, &securityErr)
		assert.ErrorIs(t, err, gerrors.ErrInvalidToken)
		assert.ErrorIs(t, err, gerrors.ErrRoleState)
		assert.Equal(t, failure.KindStandby, failure.KindOf(err))
	})
	t.Run("With transition in flight", func(t *testing.T) {
		node.role.Store(int32(RoleTransitioning))
		t.Cleanup(func() { node.role.Store(int32(RoleActive)) })

		_, err := node.authenticate("alice", "")
		assert.ErrorIs(t, err, gerrors.ErrRetriable)
		assert.Equal(t, failure.Transient, failure.Classify(err))
	})
	t.Run("With role names", func(t *testing.T) {
		assert.Equal(t, "standby", RoleStandby.String())
		assert.Equal(t, "transitioning", RoleTransitioning.String())
		assert.Equal(t, "active", RoleActive.String())
		assert.Equal(t, "unknown", Role(42).String())
	})
}
