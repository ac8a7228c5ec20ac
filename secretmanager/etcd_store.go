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

package secretmanager

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/namespace"
	"go.uber.org/atomic"

	gerrors "github.com/tochemey/dtoken/errors"
	"github.com/tochemey/dtoken/internal/codec"
	"github.com/tochemey/dtoken/internal/validation"
)

const (
	etcdKeysPrefix   = "keys/"
	etcdTokensPrefix = "tokens/"
	etcdSequenceKey  = "sequence"
)

// EtcdConfig configures an EtcdStore
type EtcdConfig struct {
	// Endpoints is the list of etcd cluster endpoints
	Endpoints []string
	// Prefix namespaces every key written by the store, for instance
	// the nameservice the coordinators serve
	Prefix string
	// DialTimeout bounds connection establishment
	DialTimeout time.Duration
	// Timeout bounds every store operation
	Timeout time.Duration
	// TLS configuration (optional)
	TLS *tls.Config
	// Username for etcd authentication (optional)
	Username string
	// Password for etcd authentication (optional)
	Password string
}

var _ validation.Validator = (*EtcdConfig)(nil)

// Validate implements validation.Validator
func (c *EtcdConfig) Validate() error {
	return validation.New(validation.FailFast()).
		AddAssertion(len(c.Endpoints) > 0, "Endpoints must not be empty").
		AddValidator(validation.NewEmptyStringValidator("Prefix", c.Prefix)).
		AddAssertion(c.DialTimeout > 0, "DialTimeout must be greater than 0").
		AddAssertion(c.Timeout > 0, "Timeout must be greater than 0").
		Validate()
}

// EtcdStore persists the Manager state in etcd so that every coordinator
// of a nameservice reads the state written by the active one.
type EtcdStore struct {
	client  *clientv3.Client
	kv      clientv3.KV
	timeout time.Duration
	closed  *atomic.Bool
}

var _ Store = (*EtcdStore)(nil)

// NewEtcdStore connects to etcd and checks that the first endpoint answers
func NewEtcdStore(ctx context.Context, config *EtcdConfig) (*EtcdStore, error) {
	if err := config.Validate(); err != nil {
		return nil, gerrors.NewErrInvalidConfig(err)
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   config.Endpoints,
		DialTimeout: config.DialTimeout,
		TLS:         config.TLS,
		Username:    config.Username,
		Password:    config.Password,
		Context:     ctx,
	})
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithTimeout(ctx, config.DialTimeout)
	defer cancel()

	if _, err := client.Status(sctx, config.Endpoints[0]); err != nil {
		if cerr := client.Close(); cerr != nil {
			return nil, errors.Join(err, fmt.Errorf("failed to close etcd client: %w", cerr))
		}
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	prefix := config.Prefix
	if prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}

	return &EtcdStore{
		client:  client,
		kv:      namespace.NewKV(client.KV, prefix),
		timeout: config.Timeout,
		closed:  atomic.NewBool(false),
	}, nil
}

// PutMasterKey implements Store
func (s *EtcdStore) PutMasterKey(ctx context.Context, key *MasterKey) error {
	data, err := codec.Marshal(key)
	if err != nil {
		return err
	}
	return s.put(ctx, etcdKeysPrefix+strconv.Itoa(int(key.ID)), data)
}

// DeleteMasterKey implements Store
func (s *EtcdStore) DeleteMasterKey(ctx context.Context, id int32) error {
	return s.delete(ctx, etcdKeysPrefix+strconv.Itoa(int(id)))
}

// PutToken implements Store
func (s *EtcdStore) PutToken(ctx context.Context, info *TokenInfo) error {
	data, err := codec.Marshal(info)
	if err != nil {
		return err
	}
	return s.put(ctx, etcdTokensPrefix+TokenKey(info.Identifier), data)
}

// DeleteToken implements Store
func (s *EtcdStore) DeleteToken(ctx context.Context, identifier []byte) error {
	return s.delete(ctx, etcdTokensPrefix+TokenKey(identifier))
}

// PutSequence implements Store
func (s *EtcdStore) PutSequence(ctx context.Context, sequence int64) error {
	return s.put(ctx, etcdSequenceKey, []byte(strconv.FormatInt(sequence, 10)))
}

// Load implements Store. All three reads happen at the same revision.
func (s *EtcdStore) Load(ctx context.Context) (*Snapshot, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	snapshot := new(Snapshot)
	seqResp, err := s.kv.Get(ctx, etcdSequenceKey)
	if err != nil {
		return nil, err
	}

	if len(seqResp.Kvs) > 0 {
		snapshot.Sequence, err = strconv.ParseInt(string(seqResp.Kvs[0].Value), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("secretmanager: decoding sequence: %w", err)
		}
	}

	revision := clientv3.WithRev(seqResp.Header.GetRevision())
	keysResp, err := s.kv.Get(ctx, etcdKeysPrefix, clientv3.WithPrefix(), revision)
	if err != nil {
		return nil, err
	}

	for _, kv := range keysResp.Kvs {
		key := new(MasterKey)
		if err := codec.Unmarshal(kv.Value, key); err != nil {
			return nil, fmt.Errorf("secretmanager: decoding master key %s: %w", kv.Key, err)
		}
		snapshot.Keys = append(snapshot.Keys, key)
	}

	tokensResp, err := s.kv.Get(ctx, etcdTokensPrefix, clientv3.WithPrefix(), revision)
	if err != nil {
		return nil, err
	}

	for _, kv := range tokensResp.Kvs {
		info := new(TokenInfo)
		if err := codec.Unmarshal(kv.Value, info); err != nil {
			return nil, fmt.Errorf("secretmanager: decoding token: %w", err)
		}
		snapshot.Tokens = append(snapshot.Tokens, info)
	}
	return snapshot, nil
}

// Close implements Store
func (s *EtcdStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.client.Close()
}

func (s *EtcdStore) put(ctx context.Context, key string, value []byte) error {
	if err := s.check(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.kv.Put(ctx, key, string(value))
	return err
}

func (s *EtcdStore) delete(ctx context.Context, key string) error {
	if err := s.check(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.kv.Delete(ctx, key)
	return err
}

func (s *EtcdStore) check() error {
	if s.closed.Load() {
		return gerrors.ErrStoreClosed
	}
	return nil
}
