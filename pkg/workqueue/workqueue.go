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

// Package workqueue implements the per-pipeline command submission
// queues.
//
// A queue owns a ring buffer of command slots shared with the firmware
// scheduler. Callers accumulate commands through a Builder, commit them
// into Batches identified by completion counter values, and submit a
// doorbell over a channel. Firmware later advances the counter; the
// notifier path calls Signal to retire completed batches, or MarkError
// when the advance was caused by a fault.
package workqueue

import (
	"fmt"

	"gvisor.dev/gvisor/pkg/cleanup"
	"gvisor.dev/gvisor/pkg/log"
	"gvisor.dev/gvisor/pkg/sync"

	"github.com/openagx/openagx/pkg/errors"
	"github.com/openagx/openagx/pkg/event"
	"github.com/openagx/openagx/pkg/fw"
	"github.com/openagx/openagx/pkg/gpumem"
	"github.com/openagx/openagx/pkg/gpuobj"
)

const (
	// DefaultRingSize is the ring capacity, in command slots, used when
	// the config does not override it.
	DefaultRingSize = 0x500

	// scratchSize is the size of the firmware-private scratch buffer
	// every queue descriptor points at.
	scratchSize = 0x2c18
)

// Channel is the message channel doorbells are sent over on submission.
type Channel interface {
	Send(*fw.RunWorkQueueMsg)
}

// Config carries the collaborators and parameters a queue is built from.
type Config struct {
	Allocators   gpumem.KernelAllocators
	EventManager event.Manager
	GPUContext   gpuobj.WeakPointer[fw.GpuContextData]
	NotifierList gpuobj.WeakPointer[fw.NotifierList]
	PipeType     fw.PipeType
	Priority     uint32
	ID           uint64

	// RingSize overrides DefaultRingSize when non-zero.
	RingSize uint32
}

// Queue is one submission ring for one hardware pipeline. All mutable
// state sits behind mu; cond carries ring-space backpressure and is
// broadcast on every Signal.
type Queue struct {
	pipe        fw.PipeType
	infoPointer gpuobj.WeakPointer[fw.QueueInfo]

	mu    sync.Mutex
	cond  *sync.Cond
	inner queueInner
}

// queueInner is the mu-guarded state.
type queueInner struct {
	mgr   event.Manager
	info  *gpuobj.GpuObject[fw.QueueInfo, fw.RawQueueInfo]
	isNew bool
	size  uint32
	wptr  uint32

	// pending holds every submitted command not yet acknowledged done,
	// in ring order. Entries are released as batches retire.
	pending []gpuobj.Opaque

	// batches holds outstanding batches in increasing value order.
	batches []*Batch

	lastToken *event.Token
	ev        event.Event
	evValue   event.Value

	// interrupted is the pending-interrupt flag consumed by a ring-full
	// waiter, which fails with ERESTARTSYS instead of retrying.
	interrupted bool
}

// donePtr reads the firmware-advanced done pointer from the shared ring
// state. Must be an acquire load so the ring contents firmware freed are
// observed consistently; see fw.RawRingState.
func (i *queueInner) donePtr() uint32 {
	var v uint32
	i.info.Inner().State.With(func(raw *fw.RawRingState, _ *fw.RingState) {
		v = raw.GPUDonePtr.Load()
	})
	return v
}

// New creates a work queue and its firmware descriptor.
func New(cfg Config) (*Queue, error) {
	if cfg.EventManager == nil || cfg.Allocators.Shared == nil || cfg.Allocators.Private == nil {
		return nil, errors.EINVAL
	}
	size := cfg.RingSize
	if size == 0 {
		size = DefaultRingSize
	}

	stateAlloc, err := cfg.Allocators.Shared.Alloc(64, 64)
	if err != nil {
		return nil, err
	}
	state, err := gpuobj.NewDefault[fw.RingState](stateAlloc)
	if err != nil {
		return nil, err
	}
	cu := cleanup.Make(state.Release)

	state.With(func(raw *fw.RawRingState, _ *fw.RingState) {
		raw.Size = size
	})

	ringAlloc, err := cfg.Allocators.Shared.Alloc(uint64(size)*8, 64)
	if err != nil {
		cu.Clean()
		return nil, err
	}
	ring, err := gpuobj.NewGpuArrayEmpty[uint64](ringAlloc, int(size))
	if err != nil {
		cu.Clean()
		return nil, err
	}
	cu.Add(ring.Release)

	scratchAlloc, err := cfg.Allocators.Private.Alloc(scratchSize, 64)
	if err != nil {
		cu.Clean()
		return nil, err
	}
	scratch, err := gpuobj.NewGpuOnlyArray[byte](scratchAlloc, scratchSize)
	if err != nil {
		cu.Clean()
		return nil, err
	}
	cu.Add(scratch.Release)

	infoAlloc, err := cfg.Allocators.Private.Alloc(256, 64)
	if err != nil {
		cu.Clean()
		return nil, err
	}
	info, err := gpuobj.NewBoxed(infoAlloc,
		&fw.QueueInfo{State: state, Ring: ring, Scratch: scratch},
		func(inner *fw.QueueInfo, raw *fw.RawQueueInfo) (*fw.RawQueueInfo, error) {
			raw.State = inner.State.WeakPointer()
			raw.Ring = inner.Ring.WeakPointer()
			raw.NotifierList = cfg.NotifierList
			raw.Scratch = scratch.WeakPointer()
			raw.GPURptr1 = 0
			raw.GPURptr2 = 0
			raw.GPURptr3 = 0
			raw.EventSlot.Store(-1)
			raw.Priority = cfg.Priority
			raw.UUID = uint32(cfg.ID)
			raw.Unk54 = -1
			raw.Pending.Store(0)
			raw.GPUContext = cfg.GPUContext
			return raw, nil
		})
	if err != nil {
		cu.Clean()
		return nil, err
	}
	cu.Release()

	q := &Queue{
		pipe:        cfg.PipeType,
		infoPointer: info.WeakPointer(),
		inner: queueInner{
			mgr:   cfg.EventManager,
			info:  info,
			isNew: true,
			size:  size,
		},
	}
	q.cond = sync.NewCond(&q.mu)
	log.Infof("workqueue(%s): created queue %d, ring size %d", q.pipe, cfg.ID, size)
	return q, nil
}

// InfoPointer returns the weak pointer to the queue descriptor, for
// embedding in other firmware structures.
func (q *Queue) InfoPointer() gpuobj.WeakPointer[fw.QueueInfo] {
	return q.infoPointer
}

// PipeType returns the pipeline class this queue feeds.
func (q *Queue) PipeType() fw.PipeType {
	return q.pipe
}

// StartBatch starts accumulating commands to run under the given VM
// slot. If the queue has no active completion-counter subscription, one
// is obtained and its current value recorded as the baseline. The
// returned Builder holds the queue lock until Close.
func (q *Queue) StartBatch(vmSlot uint32) (*Builder, error) {
	q.mu.Lock()

	inner := &q.inner
	if inner.ev == nil {
		ev, err := inner.mgr.Subscribe(inner.lastToken, q)
		if err != nil {
			q.mu.Unlock()
			return nil, err
		}
		tok := ev.Token()
		inner.lastToken = &tok
		inner.ev = ev
		inner.evValue = ev.Current()
		inner.info.With(func(raw *fw.RawQueueInfo, _ *fw.QueueInfo) {
			raw.EventSlot.Store(int32(ev.Slot()))
		})
	}

	return &Builder{
		q:      q,
		wptr:   inner.wptr,
		vmSlot: vmSlot,
	}, nil
}

// Signal reconciles completions after the firmware counter advanced.
// Called from the notifier path, potentially concurrently with
// submitters. It retires every outstanding batch the counter has
// reached, in commit order, and reports whether the outstanding set is
// now empty, in which case the subscription is dropped and the next
// StartBatch obtains a fresh one.
func (q *Queue) Signal() bool {
	q.mu.Lock()
	inner := &q.inner

	if inner.ev == nil {
		log.Warningf("workqueue(%s): Signal() called with no active event", q.pipe)
		q.mu.Unlock()
		return true
	}
	cur := inner.ev.Current()

	if log.IsLogging(log.Debug) {
		log.Debugf("workqueue(%s): signaling event %d value %v", q.pipe, inner.ev.Slot(), cur)
	}

	completedCommands := 0
	n := 0
	for _, batch := range inner.batches {
		if !batch.value.ReachedBy(cur) {
			break
		}
		if log.IsLogging(log.Debug) {
			log.Debugf("workqueue(%s): batch at value %v complete", q.pipe, batch.value)
		}
		completedCommands += batch.commands
		n++
	}

	completed := inner.batches[:n:n]
	inner.batches = inner.batches[n:]
	if n > 0 {
		last := completed[n-1]
		inner.info.Inner().State.With(func(raw *fw.RawRingState, _ *fw.RingState) {
			raw.CPUFreePtr.Store(last.wptr)
		})
	}

	for _, cmd := range inner.pending[:completedCommands] {
		cmd.Release()
	}
	inner.pending = inner.pending[completedCommands:]

	// Wake ring-full waiters even when no batch retired: the done
	// pointer may have advanced regardless.
	q.cond.Broadcast()

	empty := len(inner.batches) == 0
	if empty {
		inner.ev = nil
	}
	q.mu.Unlock()

	// Completion wakeups happen outside the lock so a waiter's wake
	// path never contends with a submitter holding it.
	for _, batch := range completed {
		close(batch.done)
	}
	return empty
}

// MarkError applies a terminal error to every outstanding batch up to
// and including value. Anything firmware already reports complete is
// treated as successful first, even if the fault arrived concurrently.
// A fault belonging to a different VM slot than a batch's own marks that
// batch killed instead: its context was not at fault.
func (q *Queue) MarkError(value event.Value, err error) {
	q.Signal()

	q.mu.Lock()
	defer q.mu.Unlock()
	inner := &q.inner

	if inner.ev == nil {
		log.Warningf("workqueue(%s): MarkError() called with no active event", q.pipe)
		return
	}

	log.Infof("workqueue(%s): marking batches up to %v failed: %v", q.pipe, value, err)

	for _, batch := range inner.batches {
		if !batch.value.ReachedBy(value) {
			break
		}
		if f, ok := err.(*FaultError); ok && f.Info.VMSlot != batch.vmSlot {
			batch.setError(ErrKilled)
		} else {
			batch.setError(err)
		}
	}
}

// Interrupt wakes any goroutine blocked on ring space and makes it fail
// with ERESTARTSYS. One pending interrupt aborts one waiter.
func (q *Queue) Interrupt() {
	q.mu.Lock()
	q.inner.interrupted = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Builder accumulates commands for one or more batches. It holds the
// queue lock for its whole lifetime; callers must Close it (normally
// deferred) to roll back anything uncommitted and release the lock.
type Builder struct {
	q        *Queue
	wptr     uint32
	commands int
	vmSlot   uint32
	closed   bool
}

// Add appends a command to the ring. Commands are opaque device objects;
// only their device address is written into the ring slot, and the queue
// takes ownership until firmware acknowledges them done. If the ring is
// full, Add blocks until space frees, or fails with ERESTARTSYS when
// interrupted.
func (b *Builder) Add(cmd gpuobj.Opaque) error {
	inner := &b.q.inner

	next := (b.wptr + 1) % inner.size
	if inner.donePtr() == next {
		log.Warningf("workqueue(%s): ring buffer is full, waiting", b.q.pipe)
		for inner.donePtr() == next {
			b.q.cond.Wait()
			if inner.interrupted {
				inner.interrupted = false
				return errors.ERESTARTSYS
			}
		}
	}

	inner.info.Inner().Ring.Slice()[b.wptr] = cmd.DeviceAddress()
	b.wptr = next
	inner.pending = append(inner.pending, cmd)
	b.commands++
	return nil
}

// Commit seals the commands added since the last commit into a Batch:
// the next completion counter value is assigned, the new write pointer
// is published to firmware, and the batch joins the outstanding FIFO.
func (b *Builder) Commit() (*Batch, error) {
	inner := &b.q.inner

	if b.commands == 0 {
		return nil, fmt.Errorf("committing zero commands: %w", errors.EINVAL)
	}

	inner.evValue = inner.evValue.Next()

	// Release-publish the write pointer; firmware polls it with acquire
	// semantics and must observe the ring slots written before it.
	inner.info.Inner().State.With(func(raw *fw.RawRingState, _ *fw.RingState) {
		raw.CPUWritePtr.Store(b.wptr)
	})
	inner.wptr = b.wptr

	batch := newBatch(inner.evValue, b.commands, b.wptr, b.vmSlot)
	inner.batches = append(inner.batches, batch)
	b.commands = 0
	return batch, nil
}

// Submit sends the doorbell announcing everything committed so far.
// Commands added but not committed are an error.
func (b *Builder) Submit(ch Channel) error {
	if b.commands != 0 {
		return fmt.Errorf("submitting with %d uncommitted commands: %w", b.commands, errors.EINVAL)
	}

	inner := &b.q.inner
	msg := fw.RunWorkQueueMsg{
		PipeType:  b.q.pipe,
		WorkQueue: inner.info.WeakPointer(),
		WritePtr:  inner.wptr,
		EventSlot: inner.ev.Slot(),
		New:       inner.isNew,
	}
	ch.Send(&msg)
	inner.isNew = false
	return nil
}

// Close rolls back any uncommitted commands and releases the queue lock.
// Safe to call more than once.
func (b *Builder) Close() {
	if b.closed {
		return
	}
	b.closed = true

	if b.commands != 0 {
		log.Warningf("workqueue(%s): rolling back %d commands", b.q.pipe, b.commands)
		inner := &b.q.inner
		n := len(inner.pending) - b.commands
		for _, cmd := range inner.pending[n:] {
			cmd.Release()
		}
		inner.pending = inner.pending[:n]
	}
	b.q.mu.Unlock()
}
