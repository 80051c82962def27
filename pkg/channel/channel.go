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

// Package channel implements the pipe channel doorbell messages travel
// over: a device-memory ring of marshaled messages plus a doorbell that
// tells firmware to look.
package channel

import (
	"gvisor.dev/gvisor/pkg/log"
	"gvisor.dev/gvisor/pkg/sync"

	"github.com/openagx/openagx/pkg/fw"
	"github.com/openagx/openagx/pkg/gpumem"
	"github.com/openagx/openagx/pkg/gpuobj"
)

// Pipe is one submission channel. The driver is the producer; firmware
// (or a test standing in for it) drains messages and advances the read
// pointer.
type Pipe struct {
	doorbell func()
	count    uint32

	mu    sync.Mutex
	cond  *sync.Cond
	state *gpuobj.GpuObject[fw.ChannelState, fw.RawChannelState]
	ring  *gpuobj.GpuArray[byte]

	// Local copy of the write pointer, so the shared cursor is only
	// touched at the publish point.
	wptr uint32
}

// NewPipe creates a channel with room for count in-flight messages. The
// doorbell callback is invoked after each published message.
func NewPipe(alloc gpumem.Allocator, count int, doorbell func()) (*Pipe, error) {
	stateAlloc, err := alloc.Alloc(64, 64)
	if err != nil {
		return nil, err
	}
	state, err := gpuobj.NewDefault[fw.ChannelState](stateAlloc)
	if err != nil {
		return nil, err
	}
	ringAlloc, err := alloc.Alloc(uint64(count)*fw.SizeofRunWorkQueueMsg, 64)
	if err != nil {
		return nil, err
	}
	ring, err := gpuobj.NewGpuArrayEmpty[byte](ringAlloc, count*fw.SizeofRunWorkQueueMsg)
	if err != nil {
		return nil, err
	}
	p := &Pipe{
		doorbell: doorbell,
		count:    uint32(count),
		state:    state,
		ring:     ring,
	}
	p.cond = sync.NewCond(&p.mu)
	return p, nil
}

// Send publishes a doorbell message, blocking while the ring is full.
func (p *Pipe) Send(msg *fw.RunWorkQueueMsg) {
	p.mu.Lock()

	next := (p.wptr + 1) % p.count
	for p.readPtr() == next {
		log.Warningf("channel: %s pipe ring full, waiting", msg.PipeType)
		p.cond.Wait()
	}

	off := int(p.wptr) * fw.SizeofRunWorkQueueMsg
	msg.MarshalBytes(p.ring.Slice()[off : off+fw.SizeofRunWorkQueueMsg])

	p.wptr = next
	p.state.With(func(raw *fw.RawChannelState, _ *fw.ChannelState) {
		raw.WritePtr.Store(next)
	})
	p.mu.Unlock()

	p.doorbell()
}

// Receive drains the next message, or returns false when the ring is
// empty. This is the consumer side firmware normally plays.
func (p *Pipe) Receive() (fw.RunWorkQueueMsg, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rptr := p.readPtr()
	var wptr uint32
	p.state.With(func(raw *fw.RawChannelState, _ *fw.ChannelState) {
		wptr = raw.WritePtr.Load()
	})
	if rptr == wptr {
		return fw.RunWorkQueueMsg{}, false
	}

	var msg fw.RunWorkQueueMsg
	off := int(rptr) * fw.SizeofRunWorkQueueMsg
	msg.UnmarshalBytes(p.ring.Slice()[off : off+fw.SizeofRunWorkQueueMsg])

	p.state.With(func(raw *fw.RawChannelState, _ *fw.ChannelState) {
		raw.ReadPtr.Store((rptr + 1) % p.count)
	})
	p.cond.Broadcast()
	return msg, true
}

func (p *Pipe) readPtr() uint32 {
	var rptr uint32
	p.state.With(func(raw *fw.RawChannelState, _ *fw.ChannelState) {
		rptr = raw.ReadPtr.Load()
	})
	return rptr
}
