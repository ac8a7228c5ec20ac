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
)

// Envelope is the serialization-safe form of a failure. Its JSON form is
//
//	{"RemoteException":{"exception":"<kind>","javaClassName":"<class>","message":"<text>"}}
//
// which is what HTTP clients of the coordinator already parse.
type Envelope struct {
	Kind      Kind
	ClassName string
	Message   string
}

type envelopeBody struct {
	Exception string `json:"exception"`
	ClassName string `json:"javaClassName"`
	Message   string `json:"message"`
}

type envelopeJSON struct {
	RemoteException *envelopeBody `json:"RemoteException"`
}

// FromError builds the envelope of err from the innermost known kind in
// its tree. The message is the text of that failure, not of its wrappers.
func FromError(err error) *Envelope {
	if err == nil {
		return nil
	}

	found := innermost(err)
	if found == nil {
		return &Envelope{Kind: KindUnknown, ClassName: KindUnknown.ClassName(), Message: err.Error()}
	}

	var remote *RemoteError
	if errors.As(err, &remote) && remote.Kind == found.kind {
		return remote.Envelope()
	}
	return &Envelope{Kind: found.kind, ClassName: found.kind.ClassName(), Message: found.message}
}

// Class returns the class of the envelope kind
func (e *Envelope) Class() Class {
	return ClassOf(e.Kind)
}

// Err re-materializes the envelope as an error
func (e *Envelope) Err() *RemoteError {
	return &RemoteError{Kind: e.Kind, ClassName: e.ClassName, Message: e.Message}
}

// MarshalJSON implements json.Marshaler
func (e *Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelopeJSON{RemoteException: &envelopeBody{
		Exception: string(e.Kind),
		ClassName: e.ClassName,
		Message:   e.Message,
	}})
}

// UnmarshalJSON implements json.Unmarshaler
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw envelopeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.RemoteException == nil || raw.RemoteException.Exception == "" {
		return fmt.Errorf("not a remote exception: %s", truncate(data, 128))
	}

	e.Kind = Kind(raw.RemoteException.Exception)
	e.ClassName = raw.RemoteException.ClassName
	e.Message = raw.RemoteException.Message
	return nil
}

// ParseEnvelope decodes the JSON form of an envelope
func ParseEnvelope(data []byte) (*Envelope, error) {
	envelope := new(Envelope)
	if err := json.Unmarshal(data, envelope); err != nil {
		return nil, err
	}
	return envelope, nil
}

// RemoteError is a failure raised by a peer. It unwraps to the local
// sentinel of its kind so that errors.Is keeps working on the caller side.
type RemoteError struct {
	Kind      Kind
	ClassName string
	Message   string
}

var _ error = (*RemoteError)(nil)

// Error implements error
func (e *RemoteError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

// Unwrap returns the local sentinel matching the kind, or nil
func (e *RemoteError) Unwrap() error {
	for _, s := range sentinels {
		if s.kind == e.Kind {
			return s.err
		}
	}
	return nil
}

// Class returns the class of the remote failure
func (e *RemoteError) Class() Class {
	return ClassOf(e.Kind)
}

// Envelope returns the envelope describing e
func (e *RemoteError) Envelope() *Envelope {
	return &Envelope{Kind: e.Kind, ClassName: e.ClassName, Message: e.Message}
}

// UnwrapRemote returns the innermost failure of err as a RemoteError when
// its kind is one of kinds, and nil otherwise. With no kinds the failure
// is returned whatever its kind.
func UnwrapRemote(err error, kinds ...Kind) *RemoteError {
	envelope := FromError(err)
	if envelope == nil {
		return nil
	}
	if len(kinds) == 0 {
		return envelope.Err()
	}
	for _, kind := range kinds {
		if envelope.Kind == kind {
			return envelope.Err()
		}
	}
	return nil
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
