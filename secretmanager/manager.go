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
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/atomic"

	gerrors "github.com/tochemey/dtoken/errors"
	"github.com/tochemey/dtoken/internal/clock"
	"github.com/tochemey/dtoken/internal/validation"
	"github.com/tochemey/dtoken/log"
	"github.com/tochemey/dtoken/principal"
	"github.com/tochemey/dtoken/token"
)

const (
	secretSize = 32

	categoryRead  = "READ"
	categoryWrite = "WRITE"
	standbyState  = "standby"
)

// Manager issues and verifies delegation tokens
type Manager struct {
	// mu guards the token state below
	mu            sync.RWMutex
	keys          map[int32]*MasterKey
	current       *MasterKey
	tokens        map[string]*TokenInfo
	sequence      int64
	lastKeyUpdate time.Time
	// epoch counts activations, a rollback only applies to the state it undoes
	epoch          uint64
	active         *atomic.Bool
	lifecycleMu    sync.Mutex
	stopSignal     chan struct{}
	stopped        chan struct{}
	journal        *journal
	store          Store
	metrics        *metrics
	clock          clock.Clock
	logger         log.Logger
	mapper         *principal.Mapper
	meterProvider  metric.MeterProvider
	persistRetries int

	keyUpdateInterval   time.Duration
	maxLifetime         time.Duration
	renewInterval       time.Duration
	removerScanInterval time.Duration
}

// New creates a Manager persisting to store. The Manager starts inactive.
func New(store Store, opts ...Option) (*Manager, error) {
	m := &Manager{
		keys:                make(map[int32]*MasterKey),
		tokens:              make(map[string]*TokenInfo),
		active:              atomic.NewBool(false),
		store:               store,
		clock:               clock.Real(),
		logger:              log.DiscardLogger,
		mapper:              principal.DefaultMapper(""),
		meterProvider:       otel.GetMeterProvider(),
		persistRetries:      defaultPersistRetries,
		keyUpdateInterval:   DefaultKeyUpdateInterval,
		maxLifetime:         DefaultMaxLifetime,
		renewInterval:       DefaultRenewInterval,
		removerScanInterval: DefaultRemoverScanInterval,
	}

	for _, opt := range opts {
		opt.Apply(m)
	}

	if err := validation.New(validation.AllErrors()).
		AddAssertion(store != nil, "the [store] is required").
		AddValidator(validation.NewPositiveValidator("key update interval", m.keyUpdateInterval)).
		AddValidator(validation.NewPositiveValidator("max lifetime", m.maxLifetime)).
		AddValidator(validation.NewPositiveValidator("renew interval", m.renewInterval)).
		AddValidator(validation.NewPositiveValidator("remover scan interval", m.removerScanInterval)).
		AddValidator(validation.NewPositiveValidator("persist retries", m.persistRetries)).
		AddAssertion(m.clock != nil, "the [clock] is required").
		AddAssertion(m.mapper != nil, "the [mapper] is required").
		AddAssertion(m.logger != nil, "the [logger] is required").
		Validate(); err != nil {
		return nil, gerrors.NewErrInvalidConfig(err)
	}

	m.logger = m.logger.Named("secretmanager")

	metrics, err := newMetrics(m.meterProvider, m)
	if err != nil {
		return nil, err
	}

	m.metrics = metrics
	m.journal = newJournal(store, m.persistRetries, m.logger)
	return m, nil
}

// Activate loads the persisted state, rolls a fresh master key and starts
// the background sweeper. Activating an active Manager is a no-op.
func (m *Manager) Activate(ctx context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.active.Load() {
		return nil
	}

	snapshot, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load secret manager state: %w", err)
	}

	now := m.clock.Now()
	m.mu.Lock()
	m.keys = make(map[int32]*MasterKey, len(snapshot.Keys)+1)
	m.tokens = make(map[string]*TokenInfo, len(snapshot.Tokens))
	m.current = nil
	m.sequence = snapshot.Sequence
	m.epoch++

	for _, key := range snapshot.Keys {
		m.keys[key.ID] = key.clone()
		if m.current == nil || key.ID > m.current.ID {
			m.current = m.keys[key.ID]
		}
	}

	for _, info := range snapshot.Tokens {
		id, err := token.Decode(info.Identifier)
		if err != nil {
			m.logger.Warnf("dropping undecodable persisted token: %v", err)
			continue
		}
		if id.SequenceNumber > m.sequence {
			m.sequence = id.SequenceNumber
		}
		m.tokens[TokenKey(info.Identifier)] = info.clone()
	}

	txid := m.journal.append(m.rotateLocked(now)...)
	m.active.Store(true)
	currentID := m.current.ID
	m.mu.Unlock()

	if err := m.journal.sync(ctx, txid); err != nil {
		m.deactivate()
		return fmt.Errorf("failed to persist master key: %w", err)
	}

	m.stopSignal = make(chan struct{})
	m.stopped = make(chan struct{})
	go m.sweep(m.clock.NewTicker(m.removerScanInterval), m.stopSignal, m.stopped)

	m.logger.Infof("secret manager activated (keys=%d, tokens=%d, current key=%d, sequence=%d)",
		len(snapshot.Keys)+1, len(snapshot.Tokens), currentID, snapshot.Sequence)
	return nil
}

// Deactivate stops the sweeper and drops the in-memory state. Every call
// is then answered with a role-state failure until Activate is called.
func (m *Manager) Deactivate(context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if !m.active.Load() {
		return nil
	}

	close(m.stopSignal)
	<-m.stopped
	m.deactivate()
	m.logger.Info("secret manager deactivated")
	return nil
}

func (m *Manager) deactivate() {
	m.journal.discard()

	m.mu.Lock()
	m.active.Store(false)
	m.keys = make(map[int32]*MasterKey)
	m.tokens = make(map[string]*TokenInfo)
	m.current = nil
	m.sequence = 0
	m.mu.Unlock()
}

// Active reports whether the Manager serves calls
func (m *Manager) Active() bool {
	return m.active.Load()
}

// Close deactivates the Manager and unregisters its metrics. The Store is
// left open since it may be shared. Closing twice is a no-op.
func (m *Manager) Close(ctx context.Context) error {
	err := m.Deactivate(ctx)

	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	if m.metrics.registration != nil {
		if uerr := m.metrics.registration.Unregister(); uerr != nil && err == nil {
			err = uerr
		}
		m.metrics.registration = nil
	}
	return err
}

// IssueToken creates a token owned by owner that renewer may renew.
// The renewer is stored as its short name.
func (m *Manager) IssueToken(ctx context.Context, owner, renewer, realUser string) (*token.Token, error) {
	if renewer != "" {
		short, err := m.mapper.ShortName(renewer)
		if err != nil {
			return nil, err
		}
		renewer = short
	}

	m.mu.Lock()
	if !m.active.Load() {
		m.mu.Unlock()
		return nil, gerrors.NewErrRoleState(categoryWrite, standbyState)
	}

	now := m.clock.Now()
	m.sequence++
	id := &token.Identifier{
		Owner:          owner,
		Renewer:        renewer,
		RealUser:       realUser,
		IssueDate:      now.UnixMilli(),
		MaxDate:        now.Add(m.maxLifetime).UnixMilli(),
		SequenceNumber: m.sequence,
		MasterKeyID:    m.current.ID,
	}

	encoded := token.Encode(id)
	password := token.ComputePassword(encoded, m.current.Secret)
	info := &TokenInfo{
		Identifier: encoded,
		RenewDate:  min(now.Add(m.renewInterval).UnixMilli(), id.MaxDate),
		Password:   password,
	}

	name := TokenKey(encoded)
	m.tokens[name] = info
	txid := m.journal.append(
		entry{kind: putSequence, sequence: m.sequence},
		entry{kind: putToken, info: info.clone()},
	)
	epoch := m.epoch
	m.mu.Unlock()

	if err := m.journal.sync(ctx, txid); err != nil {
		m.rollback(epoch, name, info, nil)
		return nil, err
	}

	m.metrics.issued.Add(ctx, 1)
	m.logger.Debugf("issued delegation token (%s)", id)
	return token.New(id, password), nil
}

// RenewToken extends the validity of tok on behalf of renewer and returns
// the new expiry. The expiry never exceeds the token max date. Renewing
// does not change the identifier or the password.
func (m *Manager) RenewToken(ctx context.Context, tok *token.Token, renewer string) (time.Time, error) {
	id, err := tok.DecodeIdentifier()
	if err != nil {
		return time.Time{}, err
	}

	short, err := m.mapper.ShortName(renewer)
	if err != nil {
		return time.Time{}, gerrors.NewErrInvalidTokenCause(err)
	}

	m.mu.Lock()
	if !m.active.Load() {
		m.mu.Unlock()
		return time.Time{}, gerrors.NewErrRoleState(categoryWrite, standbyState)
	}

	now := m.clock.Now()
	info, err := m.checkRenewLocked(id, tok.Password, short, now)
	if err != nil {
		m.mu.Unlock()
		return time.Time{}, err
	}

	name := TokenKey(info.Identifier)
	renewed := info.clone()
	renewed.RenewDate = min(now.Add(m.renewInterval).UnixMilli(), id.MaxDate)
	m.tokens[name] = renewed
	txid := m.journal.append(entry{kind: putToken, info: renewed.clone()})
	epoch := m.epoch
	m.mu.Unlock()

	if err := m.journal.sync(ctx, txid); err != nil {
		m.rollback(epoch, name, renewed, info)
		return time.Time{}, err
	}

	m.metrics.renewed.Add(ctx, 1)
	m.logger.Debugf("renewed delegation token (%s) until %s", id, renewed.RenewTime().UTC())
	return renewed.RenewTime(), nil
}

func (m *Manager) checkRenewLocked(id *token.Identifier, password []byte, renewer string, now time.Time) (*TokenInfo, error) {
	if id.MaxDate < now.UnixMilli() {
		return nil, gerrors.NewErrInvalidToken(fmt.Sprintf("%s tried to renew an expired token (%s), max expiration date: %s",
			renewer, id, id.MaxTime().UTC()))
	}

	if id.Renewer == "" {
		return nil, gerrors.NewErrInvalidTokenCause(
			gerrors.NewErrAccessDenied(fmt.Sprintf("%s tried to renew a token (%s) without a renewer", renewer, id)))
	}

	if id.Renewer != renewer {
		return nil, gerrors.NewErrInvalidTokenCause(
			gerrors.NewErrAccessDenied(fmt.Sprintf("client %s tries to renew a token (%s) with non-matching renewer %s", renewer, id, id.Renewer)))
	}

	key, ok := m.keys[id.MasterKeyID]
	if !ok {
		return nil, gerrors.NewErrInvalidToken(fmt.Sprintf("unable to find master key for keyId=%d from cache", id.MasterKeyID))
	}

	if !token.VerifyPassword(token.Encode(id), password, key.Secret) {
		m.metrics.verifyFailures.Add(context.Background(), 1)
		return nil, gerrors.NewErrInvalidTokenCause(
			gerrors.NewErrAccessDenied(fmt.Sprintf("client %s tries to renew a token (%s) with invalid password", renewer, id)))
	}

	info, ok := m.tokens[tokenKeyOf(id)]
	if !ok {
		return nil, gerrors.NewErrInvalidToken(fmt.Sprintf("renewal request for unknown token (%s)", id))
	}
	return info, nil
}

// CancelToken revokes tok on behalf of canceller, who must be its owner or
// its renewer. It returns the identifier of the revoked token.
func (m *Manager) CancelToken(ctx context.Context, tok *token.Token, canceller string) (*token.Identifier, error) {
	id, err := tok.DecodeIdentifier()
	if err != nil {
		return nil, err
	}

	short, err := m.mapper.ShortName(canceller)
	if err != nil {
		return nil, gerrors.NewErrInvalidTokenCause(err)
	}

	m.mu.Lock()
	if !m.active.Load() {
		m.mu.Unlock()
		return nil, gerrors.NewErrRoleState(categoryWrite, standbyState)
	}

	name := tokenKeyOf(id)
	info, ok := m.tokens[name]
	if !ok {
		m.mu.Unlock()
		return nil, gerrors.NewErrInvalidToken(fmt.Sprintf("token (%s) not found", id))
	}

	if !hmac.Equal(info.Password, tok.Password) {
		m.mu.Unlock()
		m.metrics.verifyFailures.Add(ctx, 1)
		return nil, gerrors.NewErrInvalidTokenCause(
			gerrors.NewErrAccessDenied(fmt.Sprintf("%s tries to cancel a token (%s) with invalid password", short, id)))
	}

	if short != m.ownerShortName(id.Owner) && (id.Renewer == "" || short != id.Renewer) {
		m.mu.Unlock()
		return nil, gerrors.NewErrInvalidTokenCause(
			gerrors.NewErrAccessDenied(fmt.Sprintf("%s is not authorized to cancel the token (%s)", short, id)))
	}

	delete(m.tokens, name)
	txid := m.journal.append(entry{kind: deleteToken, identifier: bytes.Clone(info.Identifier)})
	epoch := m.epoch
	m.mu.Unlock()

	if err := m.journal.sync(ctx, txid); err != nil {
		m.rollback(epoch, name, nil, info)
		return nil, err
	}

	m.metrics.cancelled.Add(ctx, 1)
	m.logger.Debugf("cancelled delegation token (%s)", id)
	return id, nil
}

// rollback undoes an outstanding-table change whose write failed: the entry
// at name goes back from applied to previous, a nil meaning absent. It is a
// no-op once the Manager was reactivated or the entry changed again.
func (m *Manager) rollback(epoch uint64, name string, applied, previous *TokenInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active.Load() || m.epoch != epoch {
		return
	}

	current, ok := m.tokens[name]
	if (applied == nil && ok) || (applied != nil && current != applied) {
		return
	}

	if previous == nil {
		delete(m.tokens, name)
	} else {
		m.tokens[name] = previous
	}
	m.logger.Warnf("reverted an unpersisted change of token %s", name)
}

// ownerShortName shortens an owner name, keeping it as is when no rule applies
func (m *Manager) ownerShortName(owner string) string {
	short, err := m.mapper.ShortName(owner)
	if err != nil {
		return owner
	}
	return short
}

// RetrievePassword returns the password of an outstanding token. It fails
// with an invalid-token error when the token is unknown, expired or signed
// by an evicted master key. On an inactive Manager the invalid-token error
// is caused by a role-state failure.
//
// Every authenticated call goes through here so only the read lock is taken.
func (m *Manager) RetrievePassword(id *token.Identifier) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.active.Load() {
		return nil, gerrors.NewErrInvalidTokenCause(gerrors.NewErrRoleState(categoryRead, standbyState))
	}

	info, ok := m.tokens[tokenKeyOf(id)]
	if !ok {
		return nil, gerrors.NewErrInvalidToken(fmt.Sprintf("token (%s) can't be found in cache", id))
	}

	now := m.clock.Now()
	if info.RenewDate < now.UnixMilli() {
		return nil, gerrors.NewErrInvalidToken(fmt.Sprintf("token (%s) is expired, current time: %s expected renewal time: %s",
			id, now.UTC(), info.RenewTime().UTC()))
	}

	key, ok := m.keys[id.MasterKeyID]
	if !ok || key.Expiry < now.UnixMilli() {
		return nil, gerrors.NewErrInvalidToken(fmt.Sprintf("master key %d of token (%s) is expired or unknown", id.MasterKeyID, id))
	}
	return bytes.Clone(info.Password), nil
}

// VerifyToken checks that tok carries the password of an outstanding token
func (m *Manager) VerifyToken(tok *token.Token) error {
	id, err := tok.DecodeIdentifier()
	if err != nil {
		return err
	}

	password, err := m.RetrievePassword(id)
	if err != nil {
		return err
	}

	if !hmac.Equal(password, tok.Password) {
		m.metrics.verifyFailures.Add(context.Background(), 1)
		return gerrors.NewErrInvalidToken(fmt.Sprintf("invalid password for token (%s)", id))
	}
	return nil
}

// RotateMasterKey makes a new master key current. The previous key is kept
// for at most the max token lifetime, and evicted sooner when no
// outstanding token references it.
func (m *Manager) RotateMasterKey(ctx context.Context) error {
	m.mu.Lock()
	if !m.active.Load() {
		m.mu.Unlock()
		return gerrors.NewErrRoleState(categoryWrite, standbyState)
	}
	txid := m.journal.append(m.rotateLocked(m.clock.Now())...)
	currentID := m.current.ID
	m.mu.Unlock()

	if err := m.journal.sync(ctx, txid); err != nil {
		return err
	}
	m.logger.Infof("rotated master key, current key id=%d", currentID)
	return nil
}

func (m *Manager) rotateLocked(now time.Time) []entry {
	var entries []entry
	nextID := int32(1)
	if m.current != nil {
		nextID = m.current.ID + 1
		grace := now.Add(m.maxLifetime).UnixMilli()
		if m.current.Expiry > grace {
			m.current.Expiry = grace
			entries = append(entries, entry{kind: putMasterKey, key: m.current.clone()})
		}
	}

	secret := make([]byte, secretSize)
	// crypto/rand.Read never returns an error
	_, _ = rand.Read(secret)

	key := &MasterKey{
		ID:     nextID,
		Expiry: now.Add(m.keyUpdateInterval + m.maxLifetime).UnixMilli(),
		Secret: secret,
	}
	m.keys[key.ID] = key
	m.current = key
	m.lastKeyUpdate = now

	entries = append(entries, entry{kind: putMasterKey, key: key.clone()})
	return append(entries, m.evictKeysLocked(now)...)
}

// evictKeysLocked drops the retired keys that are expired or that no
// outstanding token references
func (m *Manager) evictKeysLocked(now time.Time) []entry {
	referenced := mapset.NewThreadUnsafeSet[int32]()
	for _, info := range m.tokens {
		id, err := token.Decode(info.Identifier)
		if err != nil {
			continue
		}
		referenced.Add(id.MasterKeyID)
	}

	var entries []entry
	for keyID, key := range m.keys {
		if keyID == m.current.ID {
			continue
		}
		if key.Expiry < now.UnixMilli() || !referenced.Contains(keyID) {
			delete(m.keys, keyID)
			entries = append(entries, entry{kind: deleteMasterKey, keyID: keyID})
		}
	}
	return entries
}

// RemoveExpired drops the tokens whose renew date has passed and the
// retired keys that can go. It returns the number of tokens removed.
// An inactive Manager has nothing to remove.
func (m *Manager) RemoveExpired(ctx context.Context) (int, error) {
	m.mu.Lock()
	if !m.active.Load() {
		m.mu.Unlock()
		return 0, nil
	}

	now := m.clock.Now()
	var entries []entry
	for name, info := range m.tokens {
		if info.RenewDate < now.UnixMilli() {
			delete(m.tokens, name)
			entries = append(entries, entry{kind: deleteToken, identifier: bytes.Clone(info.Identifier)})
		}
	}

	removed := len(entries)
	entries = append(entries, m.evictKeysLocked(now)...)
	if len(entries) == 0 {
		m.mu.Unlock()
		return 0, nil
	}

	txid := m.journal.append(entries...)
	m.mu.Unlock()

	if err := m.journal.sync(ctx, txid); err != nil {
		return removed, err
	}

	if removed > 0 {
		m.logger.Infof("removed %d expired delegation tokens", removed)
	}
	return removed, nil
}

// Stats returns a snapshot of the Manager counters
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Active:            m.active.Load(),
		OutstandingTokens: len(m.tokens),
		MasterKeys:        len(m.keys),
		Sequence:          m.sequence,
	}
	if m.current != nil {
		stats.CurrentKeyID = m.current.ID
	}
	return stats
}

// sweep periodically removes expired state and rotates the master key
func (m *Manager) sweep(ticker clock.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			ctx := context.Background()
			if _, err := m.RemoveExpired(ctx); err != nil {
				m.logger.Errorf("failed to remove expired delegation tokens: %v", err)
			}

			m.mu.RLock()
			due := !m.clock.Now().Before(m.lastKeyUpdate.Add(m.keyUpdateInterval))
			m.mu.RUnlock()

			if due {
				if err := m.RotateMasterKey(ctx); err != nil {
					m.logger.Errorf("failed to rotate master key: %v", err)
				}
			}
		}
	}
}
