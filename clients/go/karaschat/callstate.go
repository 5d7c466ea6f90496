package karaschat

import (
	"errors"
	"sync"
)

// CallPhase is the client-local call state. The engine relays signaling but
// enforces no call lifecycle; a compliant client exposes these states and
// applies its own ring timeout.
type CallPhase int

const (
	CallIdle CallPhase = iota
	CallCalling
	CallIncoming
	CallConnected
)

func (p CallPhase) String() string {
	switch p {
	case CallCalling:
		return "calling"
	case CallIncoming:
		return "incoming"
	case CallConnected:
		return "connected"
	default:
		return "idle"
	}
}

// ErrBadTransition reports a call event that is not legal in the current phase.
var ErrBadTransition = errors.New("karaschat: illegal call transition")

// CallState is a small state machine for one two-party call.
type CallState struct {
	mu     sync.Mutex
	phase  CallPhase
	peerID uint
}

func NewCallState() *CallState { return &CallState{} }

// Phase returns the current phase and the peer it concerns.
func (s *CallState) Phase() (CallPhase, uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase, s.peerID
}

// Dial transitions idle -> calling when the local user starts a call.
func (s *CallState) Dial(peerID uint) error {
	return s.move(CallIdle, CallCalling, peerID)
}

// Ring transitions idle -> incoming on an incoming_call event.
func (s *CallState) Ring(peerID uint) error {
	return s.move(CallIdle, CallIncoming, peerID)
}

// Accept transitions incoming -> connected when the callee answers.
func (s *CallState) Accept() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != CallIncoming {
		return ErrBadTransition
	}
	s.phase = CallConnected
	return nil
}

// Answered transitions calling -> connected when the caller receives the answer.
func (s *CallState) Answered() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != CallCalling {
		return ErrBadTransition
	}
	s.phase = CallConnected
	return nil
}

// End returns to idle from any active phase: reject, hangup, ring timeout or
// a synthesized call_ended all land here.
func (s *CallState) End() {
	s.mu.Lock()
	s.phase = CallIdle
	s.peerID = 0
	s.mu.Unlock()
}

func (s *CallState) move(from, to CallPhase, peerID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != from {
		return ErrBadTransition
	}
	s.phase = to
	s.peerID = peerID
	return nil
}
