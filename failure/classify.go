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
	"errors"
	"net"
	"syscall"

	"connectrpc.com/connect"

	gerrors "github.com/tochemey/dtoken/errors"
)

var sentinels = []struct {
	err  error
	kind Kind
}{
	{gerrors.ErrRoleState, KindStandby},
	{gerrors.ErrRetriable, KindRetriable},
	{gerrors.ErrUnreachable, KindConnect},
	{gerrors.ErrInvalidToken, KindInvalidToken},
	{gerrors.ErrAccessDenied, KindAccessControl},
	{gerrors.ErrMalformedToken, KindMalformedToken},
	{gerrors.ErrUnknownLogicalIdentity, KindUnknownLogicalIdentity},
}

// Classify returns the class of err. A nil error is Permanent, as is an
// error carrying no known kind.
func Classify(err error) Class {
	return ClassOf(KindOf(err))
}

// KindOf returns the innermost known kind found in err's tree, or KindUnknown.
// When two known kinds sit at the same depth the one reached last wins,
// so in fmt.Errorf("%w: %w", sentinel, cause) the cause decides.
func KindOf(err error) Kind {
	found := innermost(err)
	if found == nil {
		return KindUnknown
	}
	return found.kind
}

// match is the result of walking an error tree
type match struct {
	kind  Kind
	depth int
	// message is the text describing the matched failure: the outermost
	// single-wrapping decoration of the node carrying the kind
	message string
}

func innermost(err error) *match {
	var best *match
	var walk func(err error, depth int, message string)
	walk = func(err error, depth int, message string) {
		if err == nil {
			return
		}

		kind, known := kindOfNode(err)
		if known {
			if best == nil || depth >= best.depth {
				best = &match{kind: kind, depth: depth, message: message}
			}
		}

		// a remote error already names its innermost kind
		if _, ok := err.(*RemoteError); ok {
			return
		}

		switch x := err.(type) {
		case interface{ Unwrap() []error }:
			for _, child := range x.Unwrap() {
				if child != nil {
					walk(child, depth+1, child.Error())
				}
			}
		case interface{ Unwrap() error }:
			child := x.Unwrap()
			if child == nil {
				return
			}
			// a plain decoration keeps describing the same failure
			if known {
				message = child.Error()
			}
			walk(child, depth+1, message)
		}
	}

	if err != nil {
		walk(err, 0, err.Error())
	}
	return best
}

// kindOfNode inspects a single node of an error tree without unwrapping it
func kindOfNode(err error) (Kind, bool) {
	for _, s := range sentinels {
		if err == s.err {
			return s.kind, true
		}
	}

	switch x := err.(type) {
	case *RemoteError:
		return x.Kind, true
	case *gerrors.SecurityError:
		return KindSecurity, true
	case *connect.Error:
		if envelope, ok := envelopeFromDetails(x); ok {
			return envelope.Kind, true
		}
		switch x.Code() {
		case connect.CodeUnavailable:
			return KindConnect, true
		case connect.CodeDeadlineExceeded:
			return KindSocketTimeout, true
		}
		return "", false
	case syscall.Errno:
		switch x {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EHOSTUNREACH, syscall.ENETUNREACH:
			return KindConnect, true
		}
		return "", false
	case *net.OpError:
		if x.Timeout() {
			return KindSocketTimeout, true
		}
		if x.Op == "dial" {
			return KindConnect, true
		}
		return "", false
	case net.Error:
		if x.Timeout() {
			return KindSocketTimeout, true
		}
		return "", false
	}
	return "", false
}

// Is reports whether err carries kind anywhere in its tree
func Is(err error, kind Kind) bool {
	var remote *RemoteError
	if errors.As(err, &remote) && remote.Kind == kind {
		return true
	}

	for _, s := range sentinels {
		if s.kind == kind && errors.Is(err, s.err) {
			return true
		}
	}
	return KindOf(err) == kind
}
