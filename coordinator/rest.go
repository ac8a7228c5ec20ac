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
	"encoding/json"
	"net/http"

	gerrors "github.com/tochemey/dtoken/errors"
	"github.com/tochemey/dtoken/failure"
	"github.com/tochemey/dtoken/log"
	"github.com/tochemey/dtoken/token"
)

const (
	// RESTPath is where the REST surface is mounted
	RESTPath = "/webhdfs/v1/"

	OpGetDelegationToken    = "GETDELEGATIONTOKEN"
	OpRenewDelegationToken  = "RENEWDELEGATIONTOKEN"
	OpCancelDelegationToken = "CANCELDELEGATIONTOKEN"
	OpGetServiceStatus      = "GETSERVICESTATUS"

	ParamOp         = "op"
	ParamUser       = "user.name"
	ParamRenewer    = "renewer"
	ParamToken      = "token"
	ParamDelegation = "delegation"
)

// RESTToken is the REST form of an issued token
type RESTToken struct {
	Token struct {
		URLString string `json:"urlString"`
	} `json:"Token"`
}

// RESTExpiry is the REST form of a renewal result
type RESTExpiry struct {
	Long int64 `json:"long"`
}

// RESTStatus is the REST form of GetServiceStatusResponse
type RESTStatus struct {
	ServiceStatus struct {
		NodeID string `json:"nodeId"`
		Role   string `json:"role"`
		User   string `json:"user"`
	} `json:"ServiceStatus"`
}

// restHandler serves the token operations over plain HTTP. Every failure
// is written as a JSON envelope.
type restHandler struct {
	node   *Node
	logger log.Logger
}

var _ http.Handler = (*restHandler)(nil)

func (h *restHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	op := query.Get(ParamOp)

	caller, err := h.node.authenticate(query.Get(ParamUser), query.Get(ParamDelegation))
	if err != nil {
		h.fail(w, op, err)
		return
	}

	switch op {
	case OpGetDelegationToken:
		if caller.Token != nil {
			h.fail(w, op, gerrors.NewErrAccessDenied("token issuance is only allowed with principal authentication"))
			return
		}

		tok, err := h.node.manager.IssueToken(r.Context(), caller.Principal, query.Get(ParamRenewer), "")
		if err != nil {
			h.fail(w, op, err)
			return
		}

		var out RESTToken
		out.Token.URLString = tok.EncodeToURLString()
		writeJSON(w, out)

	case OpRenewDelegationToken, OpCancelDelegationToken:
		if caller.Token != nil {
			h.fail(w, op, gerrors.NewErrAccessDenied("token management is only allowed with principal authentication"))
			return
		}

		tok, err := token.DecodeFromURLString(query.Get(ParamToken))
		if err != nil {
			h.fail(w, op, err)
			return
		}

		if op == OpCancelDelegationToken {
			if _, err := h.node.manager.CancelToken(r.Context(), tok, caller.Principal); err != nil {
				h.fail(w, op, err)
				return
			}
			w.WriteHeader(http.StatusOK)
			return
		}

		expiry, err := h.node.manager.RenewToken(r.Context(), tok, caller.Principal)
		if err != nil {
			h.fail(w, op, err)
			return
		}
		writeJSON(w, RESTExpiry{Long: expiry.UnixMilli()})

	case OpGetServiceStatus:
		var out RESTStatus
		out.ServiceStatus.NodeID = h.node.id
		out.ServiceStatus.Role = h.node.Role().String()
		out.ServiceStatus.User = caller.Principal
		writeJSON(w, out)

	default:
		http.Error(w, "unsupported operation: "+op, http.StatusBadRequest)
	}
}

func (h *restHandler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Debugf("%s failed: %v", op, err)
	failure.WriteHTTP(w, err)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
