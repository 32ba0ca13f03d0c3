package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/tartampluch/go-ketchup/internal/config"
)

// State is the phase of a catch-up session.
type State int

const (
	// StateIdle means no session was started yet.
	StateIdle State = iota
	// StateActive means the queue is non-empty and its head is current.
	StateActive
	// StateAwaitingAction means the head was picked and waits for an outcome.
	StateAwaitingAction
	// StateEmpty means the queue is exhausted.
	StateEmpty
)

var stateNames = map[State]string{
	StateIdle:           "idle",
	StateActive:         "active",
	StateAwaitingAction: "awaiting_action",
	StateEmpty:          "empty",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrInvalidTransition is returned when an operation is not allowed in the
// current state. The session is left unchanged.
var ErrInvalidTransition = errors.New(config.ErrInvalidTransition)

// Session consumes a ranked queue one contact at a time.
//
// A Session is owned by a single caller and is not safe for concurrent use;
// hosts must serialize calls. The queue is a snapshot taken by Start and is
// never reordered or rescored until the next Start.
type Session struct {
	// Scorer orders the queue built by Start.
	Scorer Scorer
	// OnPick, if set, is called with the contact chosen for action.
	OnPick func(Contact)

	state  State
	queue  []Contact
	picked *Contact
}

// NewSession returns an idle session ranking with scorer.
func NewSession(scorer Scorer) *Session {
	return &Session{Scorer: scorer}
}

// State returns the current phase.
func (s *Session) State() State {
	return s.state
}

// Start replaces any previous queue with a fresh one built from contacts.
// It is allowed from every state and yields StateEmpty when nothing matches.
func (s *Session) Start(contacts []Contact, filter Filter, now time.Time) State {
	s.queue = s.Scorer.BuildQueue(contacts, filter, now)
	s.picked = nil
	s.settle()
	return s.state
}

// Defer drops the current head without acting on it.
func (s *Session) Defer() (State, error) {
	if s.state != StateActive {
		return s.state, s.invalid("defer")
	}
	s.queue = s.queue[1:]
	s.settle()
	return s.state, nil
}

// Pick moves the current head into the picked slot and calls OnPick.
// The rest of the queue is left as is.
func (s *Session) Pick() (Contact, error) {
	if s.state != StateActive {
		return Contact{}, s.invalid("pick")
	}
	head := s.queue[0]
	s.queue = s.queue[1:]
	s.picked = &head
	s.state = StateAwaitingAction
	if s.OnPick != nil {
		s.OnPick(head.Clone())
	}
	return head.Clone(), nil
}

// ResolveAction consumes the picked contact, as Defer would have.
// It returns the resolved contact.
func (s *Session) ResolveAction() (Contact, error) {
	if s.state != StateAwaitingAction {
		return Contact{}, s.invalid("resolve")
	}
	resolved := *s.picked
	s.picked = nil
	s.settle()
	return resolved.Clone(), nil
}

// CancelPick puts the picked contact back at the head of the queue.
func (s *Session) CancelPick() (State, error) {
	if s.state != StateAwaitingAction {
		return s.state, s.invalid("cancel")
	}
	s.queue = append([]Contact{*s.picked}, s.queue...)
	s.picked = nil
	s.state = StateActive
	return s.state, nil
}

// CurrentHead returns the contact on top of the queue while Active.
func (s *Session) CurrentHead() (Contact, bool) {
	if s.state != StateActive {
		return Contact{}, false
	}
	return s.queue[0].Clone(), true
}

// CurrentPicked returns the contact held for action while AwaitingAction.
func (s *Session) CurrentPicked() (Contact, bool) {
	if s.picked == nil {
		return Contact{}, false
	}
	return s.picked.Clone(), true
}

// Remaining returns a copy of the queue, head first. A picked contact is
// not part of it.
func (s *Session) Remaining() []Contact {
	out := make([]Contact, len(s.queue))
	for i, c := range s.queue {
		out[i] = c.Clone()
	}
	return out
}

// Len returns the number of contacts left in the queue.
func (s *Session) Len() int {
	return len(s.queue)
}

// settle derives Active or Empty from the queue once nothing is picked.
func (s *Session) settle() {
	if len(s.queue) == 0 {
		s.state = StateEmpty
		return
	}
	s.state = StateActive
}

func (s *Session) invalid(op string) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, op, s.state)
}
