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
	"github.com/tochemey/dtoken/token"
)

const (
	// ServiceName is the fully qualified name of the token service
	ServiceName = "dtoken.v1.TokenService"

	// GetDelegationTokenProcedure is the path of the GetDelegationToken RPC
	GetDelegationTokenProcedure = "/" + ServiceName + "/GetDelegationToken"
	// RenewDelegationTokenProcedure is the path of the RenewDelegationToken RPC
	RenewDelegationTokenProcedure = "/" + ServiceName + "/RenewDelegationToken"
	// CancelDelegationTokenProcedure is the path of the CancelDelegationToken RPC
	CancelDelegationTokenProcedure = "/" + ServiceName + "/CancelDelegationToken"
	// GetServiceStatusProcedure is the path of the GetServiceStatus RPC
	GetServiceStatusProcedure = "/" + ServiceName + "/GetServiceStatus"

	// PrincipalHeader carries the principal a caller asserts
	PrincipalHeader = "X-Dtoken-Principal"
	// TokenHeader carries a delegation token in URL-safe form
	TokenHeader = "X-Dtoken-Token"
)

// Token is the wire form of a token.Token
type Token struct {
	Identifier []byte `cbor:"1,keyasint"`
	Password   []byte `cbor:"2,keyasint"`
	Kind       string `cbor:"3,keyasint"`
	Service    string `cbor:"4,keyasint"`
}

// ToWire converts tok to its wire form
func ToWire(tok *token.Token) *Token {
	if tok == nil {
		return nil
	}
	return &Token{
		Identifier: tok.Identifier,
		Password:   tok.Password,
		Kind:       tok.Kind,
		Service:    tok.Service,
	}
}

// Token converts the wire form back to a token.Token
func (x *Token) Token() *token.Token {
	if x == nil {
		return nil
	}
	return &token.Token{
		Identifier: x.Identifier,
		Password:   x.Password,
		Kind:       x.Kind,
		Service:    x.Service,
	}
}

type GetDelegationTokenRequest struct {
	Renewer string `cbor:"1,keyasint"`
}

type GetDelegationTokenResponse struct {
	Token *Token `cbor:"1,keyasint"`
}

type RenewDelegationTokenRequest struct {
	Token *Token `cbor:"1,keyasint"`
}

type RenewDelegationTokenResponse struct {
	// ExpiryTime is in milliseconds since the epoch
	ExpiryTime int64 `cbor:"1,keyasint"`
}

type CancelDelegationTokenRequest struct {
	Token *Token `cbor:"1,keyasint"`
}

type CancelDelegationTokenResponse struct{}

type GetServiceStatusRequest struct{}

type GetServiceStatusResponse struct {
	NodeID string `cbor:"1,keyasint"`
	Role   string `cbor:"2,keyasint"`
	// User is the authenticated caller
	User string `cbor:"3,keyasint"`
}
