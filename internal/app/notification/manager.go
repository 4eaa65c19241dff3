// Package notification provides the notification manager for broadcasting
// timer snapshots and phase completions.
package notification

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/freetime/internal/domain/session"
)

// DefaultSendTimeout bounds a single observer or notifier send.
const DefaultSendTimeout = 500 * time.Millisecond

// MaxSendTimeouts is the number of consecutive timed out sends after which
// an observer is dropped.
const MaxSendTimeouts = 3

// Errors
var (
	// ErrDetached is returned by an observer that will never accept another
	// snapshot. The manager drops it on the next broadcast.
	ErrDetached = errors.New("observer detached")

	errSendTimeout = errors.New("send timed out")
)

// Observer receives timer snapshots.
type Observer interface {
	Send(session.Snapshot) error
}

// Notifier receives phase completions.
type Notifier interface {
	Notify(session.Completion) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(session.Snapshot) error

// Send implements Observer.
func (f ObserverFunc) Send(s session.Snapshot) error {
	return f(s)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(session.Completion) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(c session.Completion) error {
	return f(c)
}

// subscription represents a subscriber's subscription.
// At most one send per subscription is in flight.
type subscription struct {
	id       string
	observer Observer
	busy     atomic.Bool
	timeouts atomic.Int32
}

type registration struct {
	notifier Notifier
	busy     atomic.Bool
}

// Manager manages snapshot subscriptions and completion notifiers.
// Completions are filtered per Completion.Source, so one Manager may serve
// several controllers.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	notifiers     map[string]*registration
	timeout       time.Duration

	lastSeqMu sync.Mutex
	lastSeq   map[string]uint64
}

// NewManager creates a new notification manager. A non-positive timeout
// selects DefaultSendTimeout.
func NewManager(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Manager{
		subscriptions: make(map[string]*subscription),
		notifiers:     make(map[string]*registration),
		timeout:       timeout,
		lastSeq:       make(map[string]uint64),
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(observer Observer) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:       id,
		observer: observer,
	}
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// AddNotifier registers a completion notifier and returns its ID.
func (m *Manager) AddNotifier(n Notifier) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.notifiers[id] = &registration{notifier: n}
	return id
}

// RemoveNotifier removes a completion notifier.
func (m *Manager) RemoveNotifier(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.notifiers, id)
}

// Broadcast sends a snapshot to all subscribers.
// Each send runs in its own goroutine with a timeout so a slow observer
// cannot hold up the others.
func (m *Manager) Broadcast(snapshot session.Snapshot) {
	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var (
		wg       sync.WaitGroup
		detached sync.Map
	)
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			if err := m.deliver(s, snapshot); err != nil {
				if errors.Is(err, ErrDetached) {
					detached.Store(s.id, struct{}{})
					return
				}
				zlog.Warn().Err(err).Msgf("notification: send failed: subscription=%s", s.id)
			}
		}(sub)
	}

	// Wait for all sends to complete or timeout
	wg.Wait()

	detached.Range(func(key, _ any) bool {
		id := key.(string)
		zlog.Debug().Msgf("notification: dropping detached subscription=%s", id)
		m.Unsubscribe(id)
		return true
	})
}

// deliver sends a snapshot to one subscription. A subscription whose previous
// send is still running is not sent to again; that counts as a timeout.
// After MaxSendTimeouts consecutive timeouts the error is marked ErrDetached.
func (m *Manager) deliver(s *subscription, snapshot session.Snapshot) error {
	if !s.busy.CompareAndSwap(false, true) {
		return m.timedOut(s, errors.Wrap(errSendTimeout, "previous send still pending"))
	}

	err := m.sendWithTimeout(func() error {
		defer s.busy.Store(false)
		return s.observer.Send(snapshot)
	})
	if errors.Is(err, errSendTimeout) {
		return m.timedOut(s, err)
	}
	s.timeouts.Store(0)
	return err
}

func (m *Manager) timedOut(s *subscription, err error) error {
	if s.timeouts.Add(1) >= MaxSendTimeouts {
		zlog.Warn().Msgf("notification: observer unresponsive: subscription=%s timeouts=%d", s.id, s.timeouts.Load())
		return errors.Mark(err, ErrDetached)
	}
	return err
}

// sendWithTimeout runs send in its own goroutine and waits at most the
// manager's timeout for it.
func (m *Manager) sendWithTimeout(send func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- send()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errors.Wrapf(errSendTimeout, "after %s", m.timeout)
	}
}

// Send sends a snapshot to a specific subscriber. Unknown IDs are ignored.
func (m *Manager) Send(subscriptionID string, snapshot session.Snapshot) error {
	m.mu.RLock()
	sub, ok := m.subscriptions[subscriptionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	err := m.deliver(sub, snapshot)
	if errors.Is(err, ErrDetached) {
		m.Unsubscribe(subscriptionID)
	}
	return err
}

// Complete delivers a completion to every notifier. A completion whose
// sequence number was already delivered for its source is dropped, so each
// transition reaches a notifier at most once. Notifiers run in parallel and
// each is waited on for at most the send timeout; a notifier still busy with
// an earlier completion is skipped.
func (m *Manager) Complete(c session.Completion) {
	m.lastSeqMu.Lock()
	if c.Seq <= m.lastSeq[c.Source] {
		m.lastSeqMu.Unlock()
		zlog.Debug().Msgf("notification: duplicate completion dropped: source=%s seq=%d", c.Source, c.Seq)
		return
	}
	m.lastSeq[c.Source] = c.Seq
	m.lastSeqMu.Unlock()

	m.mu.RLock()
	regs := make(map[string]*registration, len(m.notifiers))
	for id, r := range m.notifiers {
		regs[id] = r
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for id, r := range regs {
		if !r.busy.CompareAndSwap(false, true) {
			zlog.Warn().Msgf("notification: notifier busy, completion skipped: id=%s seq=%d", id, c.Seq)
			continue
		}
		wg.Add(1)
		go func(id string, r *registration) {
			defer wg.Done()
			err := m.sendWithTimeout(func() error {
				defer r.busy.Store(false)
				return r.notifier.Notify(c)
			})
			if err != nil {
				zlog.Warn().Err(err).Msgf("notification: notifier failed: id=%s seq=%d", id, c.Seq)
			}
		}(id, r)
	}
	wg.Wait()
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions and notifiers.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
	m.notifiers = make(map[string]*registration)
}
