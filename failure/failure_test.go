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

package failure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"syscall"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gerrors "github.com/tochemey/dtoken/errors"
)

// standbyPasswordFailure is what an authentication layer raises when a
// standby coordinator is asked for a password
func standbyPasswordFailure() error {
	return gerrors.NewSecurityError(gerrors.NewErrInvalidTokenCause(gerrors.NewErrRoleState("READ", "standby")))
}

func TestClassOf(t *testing.T) {
	transient := []Kind{KindStandby, KindRetriable, KindConnect, KindSocketTimeout}
	for _, kind := range transient {
		assert.Equal(t, Transient, ClassOf(kind), kind)
		assert.True(t, kind.Known())
	}

	permanent := []Kind{KindInvalidToken, KindAccessControl, KindMalformedToken, KindUnknownLogicalIdentity, KindSecurity, KindUnknown}
	for _, kind := range permanent {
		assert.Equal(t, Permanent, ClassOf(kind), kind)
	}

	assert.Equal(t, Permanent, ClassOf("SomethingNew"))
	assert.False(t, Kind("SomethingNew").Known())
	assert.Equal(t, "Transient", Transient.String())
	assert.Equal(t, "Permanent", Permanent.String())
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		name  string
		err   error
		kind  Kind
		class Class
	}{
		{"nil", nil, KindUnknown, Permanent},
		{"plain error", errors.New("boom"), KindUnknown, Permanent},
		{"role state", gerrors.NewErrRoleState("WRITE", "standby"), KindStandby, Transient},
		{"retriable", gerrors.NewErrRetriable("becoming active"), KindRetriable, Transient},
		{"invalid token", gerrors.NewErrInvalidToken("token is expired"), KindInvalidToken, Permanent},
		{"malformed", gerrors.NewErrMalformedToken("truncated"), KindMalformedToken, Permanent},
		{"access denied", gerrors.NewErrAccessDenied("not the renewer"), KindAccessControl, Permanent},
		{"unknown logical", gerrors.NewErrUnknownLogicalIdentity("hdfs://x"), KindUnknownLogicalIdentity, Permanent},
		{"invalid token caused by role state", gerrors.NewErrInvalidTokenCause(gerrors.NewErrRoleState("READ", "standby")), KindStandby, Transient},
		{"security wrapping role state", standbyPasswordFailure(), KindStandby, Transient},
		{"security wrapping invalid token", gerrors.NewSecurityError(gerrors.NewErrInvalidToken("bad password")), KindInvalidToken, Permanent},
		{"bare security", gerrors.NewSecurityError(errors.New("no user")), KindSecurity, Permanent},
		{"decorated", fmt.Errorf("renew: %w", standbyPasswordFailure()), KindStandby, Transient},
		{"joined", errors.Join(errors.New("x"), gerrors.ErrRoleState), KindStandby, Transient},
		{"unreachable", gerrors.NewErrUnreachable("a:1", nil), KindConnect, Transient},
		{"connection refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, KindConnect, Transient},
		{"unreachable with timeout", gerrors.NewErrUnreachable("a:1", context.DeadlineExceeded), KindSocketTimeout, Transient},
		{"deadline", context.DeadlineExceeded, KindSocketTimeout, Transient},
		{"canceled", context.Canceled, KindUnknown, Permanent},
		{"remote standby", &RemoteError{Kind: KindStandby}, KindStandby, Transient},
		{"remote unknown kind", &RemoteError{Kind: "FutureException"}, "FutureException", Permanent},
		{"connect unavailable", connect.NewError(connect.CodeUnavailable, errors.New("down")), KindConnect, Transient},
		{"connect internal", connect.NewError(connect.CodeInternal, errors.New("oops")), KindUnknown, Permanent},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, KindOf(tc.err))
			assert.Equal(t, tc.class, Classify(tc.err))
		})
	}
}

func TestIs(t *testing.T) {
	err := standbyPasswordFailure()
	assert.True(t, Is(err, KindStandby))
	assert.True(t, Is(err, KindInvalidToken))
	assert.False(t, Is(err, KindConnect))
	assert.True(t, Is(&RemoteError{Kind: KindStandby}, KindStandby))
}

func TestEnvelope(t *testing.T) {
	t.Run("With innermost kind and message", func(t *testing.T) {
		envelope := FromError(standbyPasswordFailure())
		require.NotNil(t, envelope)
		assert.Equal(t, KindStandby, envelope.Kind)
		assert.Equal(t, KindStandby.ClassName(), envelope.ClassName)
		assert.Contains(t, envelope.Message, "operation category READ is not supported in state standby")
		assert.NotContains(t, envelope.Message, "user group information")
		assert.Equal(t, Transient, envelope.Class())
	})
	t.Run("With unknown failure", func(t *testing.T) {
		envelope := FromError(errors.New("disk on fire"))
		assert.Equal(t, KindUnknown, envelope.Kind)
		assert.Equal(t, "disk on fire", envelope.Message)
		assert.Nil(t, FromError(nil))
	})
	t.Run("With JSON shape", func(t *testing.T) {
		data, err := json.Marshal(&Envelope{Kind: KindStandby, ClassName: "c", Message: "m"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"RemoteException":{"exception":"StandbyException","javaClassName":"c","message":"m"}}`, string(data))

		parsed, err := ParseEnvelope(data)
		require.NoError(t, err)
		assert.Equal(t, &Envelope{Kind: KindStandby, ClassName: "c", Message: "m"}, parsed)
	})
	t.Run("With invalid JSON", func(t *testing.T) {
		_, err := ParseEnvelope([]byte(`{"other":{}}`))
		require.Error(t, err)
		_, err = ParseEnvelope([]byte(`not json`))
		require.Error(t, err)
	})
	t.Run("With remote error unwrap", func(t *testing.T) {
		remote := FromError(standbyPasswordFailure()).Err()
		assert.ErrorIs(t, remote, gerrors.ErrRoleState)
		assert.Equal(t, Transient, remote.Class())
		assert.Equal(t, KindStandby, FromError(fmt.Errorf("call: %w", remote)).Kind)

		unwrapped := UnwrapRemote(standbyPasswordFailure(), KindStandby)
		require.NotNil(t, unwrapped)
		assert.Equal(t, KindStandby, unwrapped.Kind)
		assert.Nil(t, UnwrapRemote(standbyPasswordFailure(), KindInvalidToken))

		unfiltered := UnwrapRemote(standbyPasswordFailure())
		require.NotNil(t, unfiltered)
		assert.Equal(t, KindStandby, unfiltered.Kind)
		assert.Nil(t, UnwrapRemote(nil))

		assert.Nil(t, (&RemoteError{Kind: KindSecurity}).Unwrap())
		assert.Equal(t, "SecurityException", (&RemoteError{Kind: KindSecurity}).Error())
	})
}

func TestConnectErrors(t *testing.T) {
	t.Run("With envelope detail", func(t *testing.T) {
		err := ToConnectError(standbyPasswordFailure())
		var cerr *connect.Error
		require.True(t, errors.As(err, &cerr))
		assert.Equal(t, connect.CodeUnavailable, cerr.Code())
		assert.Equal(t, KindStandby, KindOf(cerr))

		back := FromConnectError(err)
		var remote *RemoteError
		require.True(t, errors.As(back, &remote))
		assert.Equal(t, KindStandby, remote.Kind)
		assert.Equal(t, Transient, Classify(back))
	})
	t.Run("With permanent codes", func(t *testing.T) {
		assert.Equal(t, connect.CodeUnauthenticated, CodeOf(KindInvalidToken))
		assert.Equal(t, connect.CodePermissionDenied, CodeOf(KindAccessControl))
		assert.Equal(t, connect.CodeInvalidArgument, CodeOf(KindMalformedToken))
		assert.Equal(t, connect.CodeUnknown, CodeOf(KindUnknown))
	})
	t.Run("With plain errors", func(t *testing.T) {
		assert.NoError(t, ToConnectError(nil))
		plain := errors.New("x")
		assert.Equal(t, plain, FromConnectError(plain))

		bare := connect.NewError(connect.CodeUnavailable, errors.New("down"))
		assert.Equal(t, error(bare), FromConnectError(bare))
	})
}

func TestHTTP(t *testing.T) {
	t.Run("With standby behind security failure", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		WriteHTTP(recorder, standbyPasswordFailure())

		resp := recorder.Result()
		defer resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

		err := ReadHTTP(resp)
		require.Error(t, err)
		unwrapped := UnwrapRemote(err, KindStandby)
		require.NotNil(t, unwrapped)
		assert.ErrorIs(t, err, gerrors.ErrRoleState)
		assert.Equal(t, Transient, Classify(err))
	})
	t.Run("With invalid token", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		WriteHTTP(recorder, gerrors.NewSecurityError(gerrors.NewErrInvalidToken("bad password")))
		assert.Equal(t, http.StatusForbidden, recorder.Code)

		err := ReadHTTP(recorder.Result())
		assert.ErrorIs(t, err, gerrors.ErrInvalidToken)
		assert.Equal(t, Permanent, Classify(err))
	})
	t.Run("With success and raw statuses", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		WriteHTTP(recorder, nil)
		assert.NoError(t, ReadHTTP(recorder.Result()))

		recorder = httptest.NewRecorder()
		recorder.WriteHeader(http.StatusBadGateway)
		assert.Equal(t, KindConnect, KindOf(ReadHTTP(recorder.Result())))

		recorder = httptest.NewRecorder()
		recorder.WriteHeader(http.StatusTeapot)
		assert.Equal(t, Permanent, Classify(ReadHTTP(recorder.Result())))
	})
	t.Run("With status mapping", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, StatusOf(KindUnknownLogicalIdentity))
		assert.Equal(t, http.StatusInternalServerError, StatusOf(KindUnknown))
	})
}
