// Copyright 2026 The OpenAGX Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event

import (
	"fmt"
	"sync/atomic"

	"gvisor.dev/gvisor/pkg/eventfd"
	"gvisor.dev/gvisor/pkg/log"
	"gvisor.dev/gvisor/pkg/sync"

	"github.com/openagx/openagx/pkg/errors"
)

// SlotManager is an in-process Manager over a fixed slot table, driven
// by explicit Fire calls standing in for the firmware event channel.
// Each subscribed slot gets a dispatcher goroutine parked on an eventfd,
// so listeners are signaled from a single notification path per slot,
// the way the real interrupt handler delivers them.
type SlotManager struct {
	mu    sync.Mutex
	slots []*managedSlot
}

type managedSlot struct {
	mgr   *SlotManager
	index uint32

	counter atomic.Uint32
	efd     eventfd.Eventfd

	// Guarded by mgr.mu.
	listener Listener
	busy     bool
}

// NewSlotManager creates a manager with the given number of counter
// slots.
func NewSlotManager(slots int) (*SlotManager, error) {
	if slots <= 0 {
		return nil, errors.EINVAL
	}
	m := &SlotManager{}
	for i := 0; i < slots; i++ {
		efd, err := eventfd.Create()
		if err != nil {
			for _, s := range m.slots {
				s.efd.Close()
			}
			return nil, err
		}
		s := &managedSlot{mgr: m, index: uint32(i), efd: efd}
		m.slots = append(m.slots, s)
		go s.dispatch()
	}
	return m, nil
}

// Subscribe implements Manager.Subscribe.
func (m *SlotManager) Subscribe(prev *Token, l Listener) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev != nil {
		if i := int(*prev); i >= 0 && i < len(m.slots) && !m.slots[i].busy {
			return m.slots[i].subscribeLocked(l), nil
		}
	}
	for _, s := range m.slots {
		if !s.busy {
			return s.subscribeLocked(l), nil
		}
	}
	return nil, fmt.Errorf("no free event slot: %w", errors.ENOMEM)
}

func (s *managedSlot) subscribeLocked(l Listener) Event {
	s.listener = l
	s.busy = true
	return s
}

// Fire sets a slot's counter and kicks its dispatcher, as the firmware
// event channel would.
func (m *SlotManager) Fire(slot uint32, v Value) error {
	if int(slot) >= len(m.slots) {
		return errors.EINVAL
	}
	s := m.slots[slot]
	s.counter.Store(uint32(v))
	return s.efd.Notify()
}

// Close shuts down the dispatchers. Slots must not be fired afterwards.
func (m *SlotManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots {
		s.efd.Close()
	}
}

func (s *managedSlot) dispatch() {
	for {
		if err := s.efd.Wait(); err != nil {
			return
		}
		s.mgr.mu.Lock()
		l := s.listener
		s.mgr.mu.Unlock()
		if l == nil {
			log.Warningf("event: slot %d fired with no listener", s.index)
			continue
		}
		if l.Signal() {
			s.mgr.mu.Lock()
			s.busy = false
			s.mgr.mu.Unlock()
		}
	}
}

// Slot implements Event.Slot.
func (s *managedSlot) Slot() uint32 {
	return s.index
}

// Token implements Event.Token.
func (s *managedSlot) Token() Token {
	return Token(s.index)
}

// Current implements Event.Current.
func (s *managedSlot) Current() Value {
	return Value(s.counter.Load())
}
