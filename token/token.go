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

package token

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tochemey/dtoken/errors"
)

// DelegationKind is the kind discriminator of delegation tokens issued by a coordinator.
const DelegationKind = "HA_DELEGATION_TOKEN"

// Token is an encoded identifier, the password derived from it and the
// service tag of the endpoint it authenticates to.
//
// Identifier and Password are never mutated once issued. Service is
// re-tagged when a token is cloned for a physical endpoint.
type Token struct {
	Identifier []byte
	Password   []byte
	Kind       string
	Service    string
}

// New creates a delegation Token from an identifier and its password.
// The service tag is left empty.
func New(id *Identifier, password []byte) *Token {
	return &Token{
		Identifier: Encode(id),
		Password:   bytes.Clone(password),
		Kind:       DelegationKind,
	}
}

// DecodeIdentifier decodes the token identifier
func (x *Token) DecodeIdentifier() (*Identifier, error) {
	return Decode(x.Identifier)
}

// Copy returns a deep copy of the token
func (x *Token) Copy() *Token {
	return &Token{
		Identifier: bytes.Clone(x.Identifier),
		Password:   bytes.Clone(x.Password),
		Kind:       x.Kind,
		Service:    x.Service,
	}
}

// WithService returns a copy of the token tagged with the given service
func (x *Token) WithService(service string) *Token {
	clone := x.Copy()
	clone.Service = service
	return clone
}

// SameCredential reports whether both tokens share identifier and password.
func (x *Token) SameCredential(other *Token) bool {
	if other == nil {
		return false
	}
	return bytes.Equal(x.Identifier, other.Identifier) && hmac.Equal(x.Password, other.Password)
}

// String returns a log friendly representation of the token. The password is never printed.
func (x *Token) String() string {
	id, err := x.DecodeIdentifier()
	if err != nil {
		return fmt.Sprintf("Kind: %s, Service: %s, Ident: <malformed>", x.Kind, x.Service)
	}
	return fmt.Sprintf("Kind: %s, Service: %s, Ident: (%s)", x.Kind, x.Service, id.String())
}

// EncodeToURLString serialises the whole token, password included, into a
// URL-safe string suitable for query parameters.
func (x *Token) EncodeToURLString() string {
	buf := make([]byte, 0, len(x.Identifier)+len(x.Password)+len(x.Kind)+len(x.Service)+4*binaryLenSize+4)
	buf = protowire.AppendTag(buf, 1, protowire.BytesType)
	buf = protowire.AppendBytes(buf, x.Identifier)
	buf = protowire.AppendTag(buf, 2, protowire.BytesType)
	buf = protowire.AppendBytes(buf, x.Password)
	buf = protowire.AppendTag(buf, 3, protowire.BytesType)
	buf = protowire.AppendString(buf, x.Kind)
	buf = protowire.AppendTag(buf, 4, protowire.BytesType)
	buf = protowire.AppendString(buf, x.Service)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// DecodeFromURLString parses a string produced by EncodeToURLString
func DecodeFromURLString(s string) (*Token, error) {
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.NewErrMalformedToken(err.Error())
	}

	fields := make([][]byte, 0, 4)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, errors.NewErrMalformedToken(protowire.ParseError(n).Error())
		}

		if typ != protowire.BytesType || int(num) != len(fields)+1 || len(fields) == 4 {
			return nil, errors.NewErrMalformedToken(fmt.Sprintf("unexpected token field #%d", num))
		}

		value, m := protowire.ConsumeBytes(data[n:])
		if m < 0 {
			return nil, errors.NewErrMalformedToken(protowire.ParseError(m).Error())
		}

		fields = append(fields, bytes.Clone(value))
		data = data[n+m:]
	}

	if len(fields) != 4 {
		return nil, errors.NewErrMalformedToken("truncated token")
	}

	return &Token{
		Identifier: fields[0],
		Password:   fields[1],
		Kind:       string(fields[2]),
		Service:    string(fields[3]),
	}, nil
}

// ComputePassword derives the token password from the encoded identifier
// using HMAC-SHA256 keyed by the master key.
func ComputePassword(identifier, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(identifier)
	return mac.Sum(nil)
}

// VerifyPassword reports in constant time whether password was derived from
// identifier with the given key.
func VerifyPassword(identifier, password, key []byte) bool {
	return hmac.Equal(ComputePassword(identifier, key), password)
}
