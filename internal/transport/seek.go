package transport

import (
	"log"
	"math"
	"sync"
	"time"
)

// SeekState is the phase of a remote seek.
type SeekState int

const (
	SeekIdle SeekState = iota
	SeekStopping
	SeekAwaitingConfirm
	SeekResuming
)

func (s SeekState) String() string {
	switch s {
	case SeekIdle:
		return "idle"
	case SeekStopping:
		return "stopping"
	case SeekAwaitingConfirm:
		return "awaiting_confirm"
	case SeekResuming:
		return "resuming"
	}
	return "unknown"
}

// SeekTiming holds the delays between seek phases.
type SeekTiming struct {
	Settle  time.Duration // stop -> seek
	Confirm time.Duration // seek -> accept audio, unless the server confirms first
	Resume  time.Duration // accept audio -> play
}

// DefaultSeekTiming is 50ms settle, 200ms confirm, 150ms resume.
var DefaultSeekTiming = SeekTiming{
	Settle:  50 * time.Millisecond,
	Confirm: 200 * time.Millisecond,
	Resume:  150 * time.Millisecond,
}

func (t SeekTiming) withDefaults() SeekTiming {
	if t.Settle <= 0 {
		t.Settle = DefaultSeekTiming.Settle
	}
	if t.Confirm <= 0 {
		t.Confirm = DefaultSeekTiming.Confirm
	}
	if t.Resume <= 0 {
		t.Resume = DefaultSeekTiming.Resume
	}
	return t
}

// confirmTolerance is how far a seeked position may be from the target and
// still confirm the current seek.
const confirmTolerance = 1e-3

// seekMachine runs Idle -> Stopping -> AwaitingConfirm -> Resuming -> Idle.
// Each seek bumps gen; timer callbacks carrying an older gen do nothing.
// Actions run with mu held and must not call back into the machine.
type seekMachine struct {
	mu     sync.Mutex
	timing SeekTiming
	send   func(Control) error
	flush  func()

	state  SeekState
	gen    uint64
	target float64
	resume bool
	timer  *time.Timer
}

func newSeekMachine(timing SeekTiming, send func(Control) error, flush func()) *seekMachine {
	return &seekMachine{timing: timing.withDefaults(), send: send, flush: flush}
}

func (m *seekMachine) do(c Control) {
	if err := m.send(c); err != nil {
		log.Printf("transport: seek: send %s: %v", c.Type, err)
	}
}

func (m *seekMachine) arm(d time.Duration, gen uint64, step func()) {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(d, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if gen != m.gen {
			return
		}
		step()
	})
}

// begin starts a seek to p. A seek that supersedes one in flight keeps its
// resume intent.
func (m *seekMachine) begin(p float64, wasPlaying bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resume = wasPlaying || (m.state != SeekIdle && m.resume)
	m.gen++
	m.target = p
	m.state = SeekStopping
	gen := m.gen

	m.do(Control{Type: TypeStop})
	m.flush()
	m.arm(m.timing.Settle, gen, func() {
		m.state = SeekAwaitingConfirm
		m.do(seekMessage(m.target))
		m.arm(m.timing.Confirm, gen, m.confirmLocked)
	})
}

// confirm handles a seeked message. Positions that do not match the
// current target belong to a superseded seek.
func (m *seekMachine) confirm(pos *float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != SeekAwaitingConfirm {
		return false
	}
	if pos != nil && math.Abs(*pos-m.target) > confirmTolerance {
		return false
	}
	m.confirmLocked()
	return true
}

func (m *seekMachine) confirmLocked() {
	if !m.resume {
		m.idleLocked()
		return
	}
	m.state = SeekResuming
	m.arm(m.timing.Resume, m.gen, func() {
		if m.resume {
			m.do(Control{Type: TypePlay})
		}
		m.idleLocked()
	})
}

func (m *seekMachine) idleLocked() {
	m.state = SeekIdle
	m.resume = false
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// setResume records a play or pause issued while a seek is in flight. It
// reports whether a seek was in flight.
func (m *seekMachine) setResume(v bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == SeekIdle {
		return false
	}
	m.resume = v
	return true
}

// cancel abandons any seek in flight.
func (m *seekMachine) cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.idleLocked()
}

// discarding reports whether inbound audio belongs to the pre-seek stream.
func (m *seekMachine) discarding() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == SeekStopping || m.state == SeekAwaitingConfirm
}

func (m *seekMachine) current() SeekState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
