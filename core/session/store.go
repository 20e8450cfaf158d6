package session

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

type State int

const (
	Unresolved State = iota
	Resolving
	Authenticated
	Anonymous
)

func (s State) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Resolving:
		return "resolving"
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Cause tells what triggered a Transition.
type Cause int

const (
	CauseStartup Cause = iota
	CauseLogin
	CauseLogout
	CauseForcedLogout
)

func (c Cause) String() string {
	switch c {
	case CauseStartup:
		return "startup"
	case CauseLogin:
		return "login"
	case CauseLogout:
		return "logout"
	case CauseForcedLogout:
		return "forced logout"
	default:
		return "unknown"
	}
}

var (
	ErrNotResolving = errors.New("session is not resolving")
	ErrNotSettled   = errors.New("session is not resolved yet")
)

type (
	// Session is a read-only snapshot of the client's authentication state.
	// Resolving is true until the startup check has completed.
	Session struct {
		Identity  *Identity
		Resolving bool
	}

	Transition struct {
		From     State
		To       State
		Cause    Cause
		Identity *Identity // the identity after the transition, nil when anonymous
	}

	// Reader is the read side of the Store handed to views.
	Reader interface {
		Snapshot() Session
		State() State
		// Settled returns a channel closed once the startup resolution has completed.
		Settled() <-chan struct{}
		// Subscribe registers fn for every future Transition and returns a func removing it.
		// fn is called synchronously, in order, and must not write to the Store.
		Subscribe(fn func(Transition)) (unsubscribe func())
	}
)

func (s Session) Authenticated() bool {
	return !s.Resolving && s.Identity != nil
}

// Store holds the process-wide Session.
// Its writers are meant for the auth controller only.
type Store struct {
	wmu sync.Mutex // serializes writers and their notifications

	mu       sync.RWMutex
	state    State
	identity *Identity
	settled  chan struct{}

	lmu       sync.Mutex
	listeners map[int]func(Transition)
	nextID    int
}

var _ Reader = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		state:     Unresolved,
		settled:   make(chan struct{}),
		listeners: make(map[int]func(Transition)),
	}
}

func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Session{
		Identity:  copyIdentity(s.identity),
		Resolving: s.state == Unresolved || s.state == Resolving,
	}
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) Settled() <-chan struct{} {
	return s.settled
}

func (s *Store) Subscribe(fn func(Transition)) func() {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.lmu.Lock()
		defer s.lmu.Unlock()
		delete(s.listeners, id)
	}
}

// BeginResolve moves an Unresolved store to Resolving.
// It returns false if the resolution has already been started.
func (s *Store) BeginResolve() bool {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	if s.state != Unresolved {
		s.mu.Unlock()
		return false
	}
	s.state = Resolving
	s.mu.Unlock()

	s.notify(Transition{From: Unresolved, To: Resolving, Cause: CauseStartup})
	return true
}

// FinishResolve ends the startup resolution: Authenticated when id is set, Anonymous otherwise.
func (s *Store) FinishResolve(id *Identity) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	if s.state != Resolving {
		s.mu.Unlock()
		return ErrNotResolving
	}
	t := Transition{From: Resolving, To: Anonymous, Cause: CauseStartup}
	if id != nil {
		s.identity = copyIdentity(id)
		t.To = Authenticated
		t.Identity = copyIdentity(id)
	}
	s.state = t.To
	close(s.settled)
	s.mu.Unlock()

	s.notify(t)
	return nil
}

// Authenticate replaces the current identity with id.
// Replacing an identity is reported as a transition through Anonymous.
func (s *Store) Authenticate(id Identity, cause Cause) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	var ts []Transition
	switch s.state {
	case Authenticated:
		ts = append(ts, Transition{From: Authenticated, To: Anonymous, Cause: cause})
	case Anonymous:
	default:
		s.mu.Unlock()
		return ErrNotSettled
	}
	s.identity = &id
	s.state = Authenticated
	ts = append(ts, Transition{From: Anonymous, To: Authenticated, Cause: cause, Identity: copyIdentity(&id)})
	s.mu.Unlock()

	for _, t := range ts {
		s.notify(t)
	}
	return nil
}

// Clear drops the identity of an authenticated store.
// It returns false when there was nothing to clear.
func (s *Store) Clear(cause Cause) bool {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	if s.state != Authenticated {
		s.mu.Unlock()
		return false
	}
	s.identity = nil
	s.state = Anonymous
	s.mu.Unlock()

	s.notify(Transition{From: Authenticated, To: Anonymous, Cause: cause})
	return true
}

func (s *Store) notify(t Transition) {
	s.lmu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	fns := make([]func(Transition), 0, len(ids))
	sort.Ints(ids) // subscription order
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	s.lmu.Unlock()

	for _, fn := range fns {
		fn(t)
	}
}

func copyIdentity(id *Identity) *Identity {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}
