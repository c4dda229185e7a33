package common

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether an operator halted a module at the node level.
// It is independent from any pause flag a module keeps in its own state.
type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSet is an in-memory PauseView toggled by operators.
type PauseSet struct {
	mu     sync.RWMutex
	paused map[string]struct{}
}

// NewPauseSet seeds the set with the supplied module names.
func NewPauseSet(modules ...string) *PauseSet {
	set := &PauseSet{paused: make(map[string]struct{})}
	for _, module := range modules {
		set.Set(module, true)
	}
	return set
}

// IsPaused implements PauseView.
func (s *PauseSet) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.paused[strings.ToLower(strings.TrimSpace(module))]
	return ok
}

// Set pauses or resumes a module.
func (s *PauseSet) Set(module string, paused bool) {
	key := strings.ToLower(strings.TrimSpace(module))
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if paused {
		s.paused[key] = struct{}{}
		return
	}
	delete(s.paused, key)
}

// Modules lists the paused modules in sorted order.
func (s *PauseSet) Modules() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.paused))
	for module := range s.paused {
		out = append(out, module)
	}
	sort.Strings(out)
	return out
}
