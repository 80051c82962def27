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

// Package event models the firmware completion counters work queues
// subscribe to.
//
// Firmware advances a per-slot 32-bit counter to signal progress; a unit
// of work is complete once the counter reaches the value recorded for
// it. The interrupt-driven subsystem that notices counter movement lives
// outside this module and is consumed through the Manager interface. A
// slot-table manager driven by explicit Fire calls is provided for tests
// and bring-up.
package event

import (
	"fmt"
)

// Value is a completion counter value. Counters are 32 bits and wrap, so
// comparisons must be wrap-aware; a Value is considered reached once the
// counter is at most half the number space ahead of it.
type Value uint32

// Next returns the successor value.
func (v Value) Next() Value {
	return v + 1
}

// ReachedBy reports whether a counter currently at cur has reached v.
func (v Value) ReachedBy(cur Value) bool {
	return int32(cur-v) >= 0
}

// String implements fmt.Stringer.String.
func (v Value) String() string {
	return fmt.Sprintf("%#x", uint32(v))
}

// Token identifies a previous subscription so a queue resubscribing for
// a new run of work can land on the same slot when it is still free.
type Token int32

// Listener receives completion notifications for a subscribed slot.
// Signal reports whether the listener has drained all outstanding work,
// at which point the slot may be handed to someone else.
type Listener interface {
	Signal() bool
}

// Event is one live subscription to a completion-counter slot.
type Event interface {
	// Slot returns the firmware slot index backing this subscription.
	Slot() uint32

	// Token returns the token to pass on a future resubscription.
	Token() Token

	// Current returns the counter's current value.
	Current() Value
}

// Manager hands out completion-counter subscriptions. It is the boundary
// to the interrupt/notifier subsystem.
type Manager interface {
	// Subscribe attaches the listener to a counter slot, preferring the
	// slot named by prev when it is still available. prev is nil on a
	// queue's first subscription.
	Subscribe(prev *Token, l Listener) (Event, error)
}
