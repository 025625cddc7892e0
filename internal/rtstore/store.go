// Package rtstore implements the path-addressed realtime store shared by the
// panel and the agent. It holds a JSON-shaped tree addressed by slash paths
// (servers/{id}, commands/{id}, agent/status), applies last-writer-wins merge
// per path, evaluates declarative access predicates on every read and write,
// and pushes admitted writes to subscribers.
//
// Two credential tiers exist: ordinary identities are evaluated against the
// ruleset on every operation, while the agent's elevated service credential
// bypasses rule evaluation entirely. The elevated credential is a trusted
// principal, not a predicate that happens to pass; it is never handed to
// panel clients.
//
// Subscriptions are explicit resource handles: Subscribe returns a
// *Subscription whose Close method is the only unsubscribe path. There is no
// process-wide listener registry keyed by path strings.
package rtstore

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

var (
	// ErrPermissionDenied is returned when the ruleset rejects an operation.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrAlreadyExists is returned by Create when the path is occupied.
	ErrAlreadyExists = errors.New("path already exists")
	// ErrInvalidPath is returned for empty or malformed paths.
	ErrInvalidPath = errors.New("invalid path")
	// ErrConflict is returned by UpdateIf when the condition rejects the
	// current value at the path.
	ErrConflict = errors.New("conditional update conflict")
)

// Auth identifies the principal performing a store operation.
type Auth struct {
	// UID is the identity ID; empty means anonymous
	UID string
	// Email is denormalized for audit display
	Email string
	// Elevated marks the agent's service credential, which bypasses the
	// ruleset entirely
	Elevated bool
}

// Anonymous reports whether the caller has no identity.
func (a Auth) Anonymous() bool {
	return a.UID == "" && !a.Elevated
}

// Anonymous returns the identity of an unauthenticated caller.
func Anonymous() Auth {
	return Auth{}
}

// Event is a change notification delivered to subscribers. Value is the full
// value at Path after the write (nil on the initial replay of an empty path).
type Event struct {
	Path      string `json:"path"`
	Value     any    `json:"value"`
	Timestamp int64  `json:"timestamp"`
}

// Store is the in-process realtime store engine.
type Store struct {
	mu     sync.RWMutex
	root   map[string]any
	stamps map[string]int64
	rules  *Ruleset
	subs   map[*Subscription]struct{}
	now    func() time.Time
}

// New creates a store guarded by the given ruleset.
func New(rules *Ruleset) *Store {
	return &Store{
		root:   make(map[string]any),
		stamps: make(map[string]int64),
		rules:  rules,
		subs:   make(map[*Subscription]struct{}),
		now:    time.Now,
	}
}

// SetClock overrides the store clock. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func splitPath(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, ErrInvalidPath
	}
	segs := strings.Split(path, "/")
	for _, seg := range segs {
		if seg == "" {
			return nil, ErrInvalidPath
		}
	}
	return segs, nil
}

// raw returns the value at path without access checks. Caller holds the lock.
func (s *Store) raw(segs []string) any {
	var cur any = s.root
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return deepCopy(cur)
}

// rawReader exposes unauthenticated reads to rule predicates so a rule at
// commands/{id} can consult servers/{id}/allowedUsers.
type rawReader struct{ s *Store }

func (r rawReader) Raw(path string) any {
	segs, err := splitPath(path)
	if err != nil {
		return nil
	}
	return r.s.raw(segs)
}

// Get reads the value at path, gated by the read predicates.
func (s *Store) Get(auth Auth, path string) (any, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	existing := s.raw(segs)
	if !auth.Elevated {
		if !s.rules.CanRead(&Request{
			Auth:     auth,
			Path:     strings.Join(segs, "/"),
			Existing: existing,
			Store:    rawReader{s},
		}) {
			return nil, fmt.Errorf("read %s: %w", path, ErrPermissionDenied)
		}
	}
	return existing, nil
}

// Set replaces the value at path. Every admitted write is stamped with the
// store clock in epoch milliseconds; the latest stamp wins per path.
func (s *Store) Set(auth Auth, path string, value any) error {
	return s.write(auth, path, value, false, false, nil)
}

// Update merges the given fields into the map at path, leaving other
// children untouched. Non-map existing values are replaced.
func (s *Store) Update(auth Auth, path string, fields map[string]any) error {
	return s.write(auth, path, fields, true, false, nil)
}

// UpdateIf merges fields like Update, but only when cond admits the value
// currently at path. The check and the merge run under the same write lock,
// so no concurrent writer can slip in between; a rejected condition returns
// ErrConflict and leaves the value untouched.
func (s *Store) UpdateIf(auth Auth, path string, fields map[string]any, cond func(existing any) bool) error {
	return s.write(auth, path, fields, true, false, cond)
}

// Create writes the value at path only if nothing exists there. This is the
// append-only discipline for command records: a commandId can never be
// overwritten by its creator.
func (s *Store) Create(auth Auth, path string, value any) error {
	return s.write(auth, path, value, false, true, nil)
}

func (s *Store) write(auth Auth, path string, value any, merge, createOnly bool, cond func(existing any) bool) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	canonical := strings.Join(segs, "/")

	s.mu.Lock()
	existing := s.raw(segs)

	if createOnly && existing != nil {
		s.mu.Unlock()
		return fmt.Errorf("create %s: %w", path, ErrAlreadyExists)
	}

	if !auth.Elevated {
		ok := s.rules.CanWrite(&Request{
			Auth:     auth,
			Path:     canonical,
			Existing: existing,
			Incoming: value,
			Store:    rawReader{s},
		})
		if !ok {
			s.mu.Unlock()
			return fmt.Errorf("write %s: %w", path, ErrPermissionDenied)
		}
	}

	if cond != nil && !cond(existing) {
		s.mu.Unlock()
		return fmt.Errorf("write %s: %w", path, ErrConflict)
	}

	stored := deepCopy(value)
	if merge {
		if cur, ok := existing.(map[string]any); ok {
			for k, v := range stored.(map[string]any) {
				cur[k] = v
			}
			stored = cur
		}
	}
	s.setAt(segs, stored)

	stamp := s.now().UnixMilli()
	s.stamps[canonical] = stamp

	// Snapshot the full new value and the subscriber set before unlocking.
	newValue := s.raw(segs)
	subs := make([]*Subscription, 0, len(s.subs))
	for sub := range s.subs {
		if sub.matches(canonical) {
			subs = append(subs, sub)
		}
	}
	s.mu.Unlock()

	ev := Event{Path: canonical, Value: newValue, Timestamp: stamp}
	for _, sub := range subs {
		sub.deliver(ev, s)
	}
	return nil
}

// setAt stores value at segs, creating intermediate maps. Caller holds the
// lock.
func (s *Store) setAt(segs []string, value any) {
	cur := s.root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
	last := segs[len(segs)-1]
	if value == nil {
		delete(cur, last)
		return
	}
	cur[last] = value
}

// Stamp returns the last write timestamp recorded for path, 0 if never
// written.
func (s *Store) Stamp(path string) int64 {
	segs, err := splitPath(path)
	if err != nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stamps[strings.Join(segs, "/")]
}

// Subscription is the handle returned by Subscribe. Events arrive on the
// channel returned by Events; Close releases the subscription and is the only
// unsubscribe path. A subscriber that falls too far behind is dropped, the
// same way the panel's websocket hub drops slow clients; on reconnect the
// replay-on-subscribe semantics restore current state.
type Subscription struct {
	path string
	ch   chan Event
	once sync.Once
}

const subscriptionBuffer = 256

// Subscribe registers for changes at or under path. The current value at
// path is replayed immediately as the first event, so a consumer that
// resubscribes after a connection loss resumes from current store state
// rather than assuming nothing changed. Delivery is at-least-once; consumers
// must be idempotent.
//
// Access control for remote subscribers is enforced by the sync transport at
// subscribe time; in-process callers are trusted (panel server internals).
func (s *Store) Subscribe(path string) (*Subscription, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	canonical := strings.Join(segs, "/")

	sub := &Subscription{
		path: canonical,
		ch:   make(chan Event, subscriptionBuffer),
	}

	s.mu.Lock()
	current := s.raw(segs)
	stamp := s.stamps[canonical]
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	sub.ch <- Event{Path: canonical, Value: current, Timestamp: stamp}
	return sub, nil
}

// Events returns the subscription's delivery channel. The channel is closed
// when the subscription is closed or dropped.
func (sub *Subscription) Events() <-chan Event {
	return sub.ch
}

// Path returns the subscribed path.
func (sub *Subscription) Path() string {
	return sub.path
}

// Close releases the subscription.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		close(sub.ch)
	})
}

func (sub *Subscription) matches(path string) bool {
	return path == sub.path || strings.HasPrefix(path, sub.path+"/")
}

func (sub *Subscription) deliver(ev Event, s *Store) {
	defer func() {
		// Close races with deliver when a consumer drops out mid-write;
		// sending on the closed channel must not take the store down.
		if recover() != nil {
			s.drop(sub)
		}
	}()
	select {
	case sub.ch <- ev:
	default:
		log.Printf("rtstore: dropping slow subscriber on %s", sub.path)
		s.drop(sub)
		sub.Close()
	}
}

func (s *Store) drop(sub *Subscription) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

// Unsubscribe removes the subscription from the store and closes it.
func (s *Store) Unsubscribe(sub *Subscription) {
	s.drop(sub)
	sub.Close()
}

// deepCopy clones a JSON-shaped value so readers never alias store state.
func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}
