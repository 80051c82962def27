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

package workqueue

import (
	"fmt"

	"golang.org/x/sys/unix"
	"gvisor.dev/gvisor/pkg/sync"

	"github.com/openagx/openagx/pkg/errors"
	"github.com/openagx/openagx/pkg/event"
	"github.com/openagx/openagx/pkg/fw"
)

// Terminal batch outcomes. These attach to a batch rather than propagate
// synchronously; Wait surfaces them once the batch completes.
var (
	// ErrTimeout is injected by the upstream watchdog when it gives up
	// on a hung queue. Nothing in this package times out on its own.
	ErrTimeout = errors.New(unix.ETIMEDOUT, "batch timed out")

	// ErrUnknown marks a batch firmware abandoned without a usable
	// fault record.
	ErrUnknown = errors.New(unix.ENODATA, "batch failed for an unknown reason")

	// ErrKilled marks a batch killed as collateral of a fault in a
	// different execution context.
	ErrKilled = errors.New(unix.ECANCELED, "batch killed")
)

// FaultError is a GPU fault attributed to the batch's own execution
// context.
type FaultError struct {
	Info fw.FaultInfo
}

// Error implements error.Error.
func (e *FaultError) Error() string {
	return e.Info.String()
}

// Errno returns the errno this fault maps to at the uapi boundary. Not
// EFAULT, which is reserved for userspace memory faults.
func (e *FaultError) Errno() unix.Errno {
	return unix.EIO
}

// Batch is a committed, firmware-visible unit of one or more commands,
// complete once the queue's event counter reaches its value. Batches are
// shared between the queue (for reconciliation) and callers (for
// waiting).
type Batch struct {
	value    event.Value
	commands int
	wptr     uint32
	vmSlot   uint32

	// done is closed exactly once, when reconciliation retires the
	// batch.
	done chan struct{}

	mu  sync.Mutex
	err error
}

func newBatch(value event.Value, commands int, wptr, vmSlot uint32) *Batch {
	return &Batch{
		value:    value,
		commands: commands,
		wptr:     wptr,
		vmSlot:   vmSlot,
		done:     make(chan struct{}),
	}
}

// Value returns the completion counter value the batch retires at.
func (b *Batch) Value() event.Value {
	return b.value
}

// Commands returns the number of commands committed in the batch.
func (b *Batch) Commands() int {
	return b.commands
}

// Wait blocks until the batch completes and returns its settled outcome,
// nil for success. There is no cancelling an in-flight wait.
func (b *Batch) Wait() error {
	<-b.done
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *Batch) setError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

// String implements fmt.Stringer.String.
func (b *Batch) String() string {
	return fmt.Sprintf("batch{value: %v, commands: %d, wptr: %#x}", b.value, b.commands, b.wptr)
}
