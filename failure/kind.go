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

// Package failure classifies errors as transient or permanent and carries
// that classification across the RPC boundary.
//
// A failure travels as an Envelope whose Kind is part of the wire contract.
// Classification walks the whole error tree and keeps the innermost known
// kind, so a role-state failure wrapped by an invalid-token failure and
// again by a generic security failure is still seen as transient.
// Unrecognized kinds are permanent.
package failure

// Kind is the discriminator tag of a failure
type Kind string

const (
	KindStandby                Kind = "StandbyException"
	KindRetriable              Kind = "RetriableException"
	KindConnect                Kind = "ConnectException"
	KindSocketTimeout          Kind = "SocketTimeoutException"
	KindInvalidToken           Kind = "InvalidToken"
	KindAccessControl          Kind = "AccessControlException"
	KindMalformedToken         Kind = "MalformedToken"
	KindUnknownLogicalIdentity Kind = "UnknownLogicalIdentity"
	KindSecurity               Kind = "SecurityException"
	KindUnknown                Kind = "Unknown"
)

// classNamePrefix qualifies kinds in the envelope class name
const classNamePrefix = "github.com/tochemey/dtoken/failure."

// Class tells whether another coordinator may succeed where one failed
type Class int

const (
	// Permanent failures are surfaced to the caller as is
	Permanent Class = iota
	// Transient failures move the caller to the next endpoint
	Transient
)

// String returns the class name
func (c Class) String() string {
	if c == Transient {
		return "Transient"
	}
	return "Permanent"
}

var classes = map[Kind]Class{
	KindStandby:                Transient,
	KindRetriable:              Transient,
	KindConnect:                Transient,
	KindSocketTimeout:          Transient,
	KindInvalidToken:           Permanent,
	KindAccessControl:          Permanent,
	KindMalformedToken:         Permanent,
	KindUnknownLogicalIdentity: Permanent,
	KindSecurity:               Permanent,
	KindUnknown:                Permanent,
}

// ClassOf maps a kind to its class. Any kind not listed above,
// including one received from a newer peer, is Permanent.
func ClassOf(kind Kind) Class {
	if class, ok := classes[kind]; ok {
		return class
	}
	return Permanent
}

// Known reports whether kind is one this package defines
func (k Kind) Known() bool {
	_, ok := classes[k]
	return ok
}

// ClassName returns the qualified name reported in envelopes
func (k Kind) ClassName() string {
	return classNamePrefix + string(k)
}
