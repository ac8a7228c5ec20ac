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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	fieldException = "exception"
	fieldClassName = "javaClassName"
	fieldMessage   = "message"

	structDetailType = "google.protobuf.Struct"
	maxBodySize      = 64 << 10
)

// CodeOf returns the connect code a failure of the given kind travels with
func CodeOf(kind Kind) connect.Code {
	switch kind {
	case KindStandby, KindRetriable, KindConnect, KindSocketTimeout:
		return connect.CodeUnavailable
	case KindInvalidToken, KindSecurity:
		return connect.CodeUnauthenticated
	case KindAccessControl:
		return connect.CodePermissionDenied
	case KindMalformedToken, KindUnknownLogicalIdentity:
		return connect.CodeInvalidArgument
	default:
		return connect.CodeUnknown
	}
}

// StatusOf returns the HTTP status a failure of the given kind is written with
func StatusOf(kind Kind) int {
	switch kind {
	case KindStandby, KindRetriable, KindConnect, KindSocketTimeout:
		return http.StatusServiceUnavailable
	case KindInvalidToken, KindSecurity, KindAccessControl:
		return http.StatusForbidden
	case KindMalformedToken, KindUnknownLogicalIdentity:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ToConnectError converts err into a connect error carrying its envelope
// as a google.protobuf.Struct detail.
func ToConnectError(err error) error {
	if err == nil {
		return nil
	}

	envelope := FromError(err)
	cerr := connect.NewError(CodeOf(envelope.Kind), errors.New(envelope.Message))

	detail, derr := envelopeDetail(envelope)
	if derr != nil {
		// the code alone still classifies correctly for transient kinds
		return cerr
	}
	cerr.AddDetail(detail)
	return cerr
}

// FromConnectError turns a connect error carrying an envelope back into a
// RemoteError. Any other error is returned as is.
func FromConnectError(err error) error {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return err
	}

	if envelope, ok := envelopeFromDetails(cerr); ok {
		return envelope.Err()
	}
	return err
}

func envelopeDetail(envelope *Envelope) (*connect.ErrorDetail, error) {
	fields, err := structpb.NewStruct(map[string]any{
		fieldException: string(envelope.Kind),
		fieldClassName: envelope.ClassName,
		fieldMessage:   envelope.Message,
	})
	if err != nil {
		return nil, err
	}
	return connect.NewErrorDetail(fields)
}

func envelopeFromDetails(cerr *connect.Error) (*Envelope, bool) {
	for _, detail := range cerr.Details() {
		if detail.Type() != structDetailType {
			continue
		}

		value, err := detail.Value()
		if err != nil {
			continue
		}

		fields, ok := value.(*structpb.Struct)
		if !ok {
			continue
		}

		kind := fields.GetFields()[fieldException].GetStringValue()
		if kind == "" {
			continue
		}

		return &Envelope{
			Kind:      Kind(kind),
			ClassName: fields.GetFields()[fieldClassName].GetStringValue(),
			Message:   fields.GetFields()[fieldMessage].GetStringValue(),
		}, true
	}
	return nil, false
}

// WriteHTTP writes err as a JSON envelope with the status of its kind
func WriteHTTP(w http.ResponseWriter, err error) {
	envelope := FromError(err)
	if envelope == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	body, merr := json.Marshal(envelope)
	if merr != nil {
		http.Error(w, merr.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusOf(envelope.Kind))
	_, _ = w.Write(body)
}

// ReadHTTP returns the failure carried by resp, or nil for a 2xx status.
// A body that is not an envelope is reported by status: gateway statuses
// are a ConnectException, anything else is Unknown.
func ReadHTTP(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err == nil {
		if envelope, perr := ParseEnvelope(body); perr == nil {
			return envelope.Err()
		}
	}

	kind := KindUnknown
	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		kind = KindConnect
	}
	return &RemoteError{
		Kind:      kind,
		ClassName: kind.ClassName(),
		Message:   fmt.Sprintf("unexpected HTTP status %d", resp.StatusCode),
	}
}
