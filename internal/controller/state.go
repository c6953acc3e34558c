package controller

import (
	"sync"

	"SessionChat/internal/session"
)

// State is an immutable snapshot of the controller
type State struct {
	Messages         []session.Message
	Sessions         []session.Summary
	CurrentSessionID string
	Pending          bool

	// Version increases with every committed transition
	Version uint64
}

// Empty reports whether the view shows a fresh, unsent chat
func (s State) Empty() bool {
	return len(s.Messages) == 0 && s.CurrentSessionID == ""
}

func (s State) clone() State {
	out := s
	out.Messages = append(make([]session.Message, 0, len(s.Messages)), s.Messages...)
	out.Sessions = append(make([]session.Summary, 0, len(s.Sessions)), s.Sessions...)
	return out
}

// subscribers fans snapshots out to coalescing channels. Each channel has a
// single slot; a slower reader only ever sees the newest snapshot.
type subscribers struct {
	mu     sync.Mutex
	nextID int
	chans  map[int]chan State
	last   map[int]uint64
}

func (s *subscribers) init() {
	s.chans = make(map[int]chan State)
	s.last = make(map[int]uint64)
}

func (s *subscribers) add(initial State) (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan State, 1)
	ch <- initial
	s.chans[id] = ch
	s.last[id] = initial.Version

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.chans, id)
			delete(s.last, id)
			close(ch)
		})
	}
	return ch, cancel
}

func (s *subscribers) publish(snap State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, ch := range s.chans {
		// snapshots can be published out of order by racing operations
		if snap.Version <= s.last[id] {
			continue
		}
		s.last[id] = snap.Version
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
