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

	gerrors "github.com/tochemey/dtoken/errors"
	"github.com/tochemey/dtoken/token"
)

// Caller is the authenticated party of a call
type Caller struct {
	// Principal is the asserted principal, or the owner of the presented token
	Principal string
	// Token is set when the caller authenticated with a delegation token
	Token *token.Identifier
}

type callerKey struct{}

// CallerFrom returns the caller authenticated for ctx
func CallerFrom(ctx context.Context) (*Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(*Caller)
	return caller, ok
}

func withCaller(ctx context.Context, caller *Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// authenticate resolves the caller from the request credentials. A token
// takes precedence over an asserted principal.
func (n *Node) authenticate(principal, encodedToken string) (*Caller, error) {
	if err := n.checkServing(); err != nil {
		return nil, err
	}

	if encodedToken != "" {
		tok, err := token.DecodeFromURLString(encodedToken)
		if err != nil {
			return nil, gerrors.NewSecurityError(err)
		}

		id, err := n.Authenticate(tok)
		if err != nil {
			return nil, err
		}
		return &Caller{Principal: id.Owner, Token: id}, nil
	}

	if principal == "" {
		return nil, gerrors.NewSecurityError(gerrors.NewErrAccessDenied("no credentials presented"))
	}
	return &Caller{Principal: principal}, nil
}

func (n *Node) authenticateHeader(header http.Header) (*Caller, error) {
	return n.authenticate(header.Get(PrincipalHeader), header.Get(TokenHeader))
}

// principalCaller returns the caller of a token management call, which
// may not itself be authenticated with a delegation token
func principalCaller(ctx context.Context, operation string) (*Caller, error) {
	caller, ok := CallerFrom(ctx)
	if !ok {
		return nil, gerrors.NewSecurityError(gerrors.NewErrAccessDenied("unauthenticated call"))
	}

	if caller.Token != nil {
		return nil, gerrors.NewErrAccessDenied(operation + " is only allowed with principal authentication")
	}
	return caller, nil
}
