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

package channel

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/openagx/openagx/pkg/fw"
	"github.com/openagx/openagx/pkg/gpumem"
	"github.com/openagx/openagx/pkg/gpuobj"
)

var weakPointerCmp = cmp.Comparer(func(a, b gpuobj.WeakPointer[fw.QueueInfo]) bool {
	return a.Address() == b.Address()
})

func testPipe(t *testing.T, count int, doorbell func()) *Pipe {
	t.Helper()
	alloc, err := gpumem.NewSimpleAllocator("gpu0", 0xf80_0000_0000, 1<<16)
	if err != nil {
		t.Fatalf("NewSimpleAllocator: %v", err)
	}
	if doorbell == nil {
		doorbell = func() {}
	}
	p, err := NewPipe(alloc, count, doorbell)
	if err != nil {
		t.Fatalf("NewPipe: %v", err)
	}
	return p
}

func TestPipeSendReceive(t *testing.T) {
	var rings atomic.Int32
	p := testPipe(t, 4, func() { rings.Add(1) })

	msg := fw.RunWorkQueueMsg{
		PipeType:  fw.PipeVertex,
		WorkQueue: gpuobj.WeakPointerAt[fw.QueueInfo](0xf8000001000),
		WritePtr:  3,
		EventSlot: 1,
		New:       true,
	}
	p.Send(&msg)

	if got := rings.Load(); got != 1 {
		t.Errorf("doorbell count after Send: got %d, want 1", got)
	}

	got, ok := p.Receive()
	if !ok {
		t.Fatal("Receive: ring empty after Send")
	}
	if diff := cmp.Diff(msg, got, weakPointerCmp); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}

	if _, ok := p.Receive(); ok {
		t.Error("Receive on drained ring: got a message")
	}
}

func TestPipeSendBlocksWhenFull(t *testing.T) {
	p := testPipe(t, 2, nil)

	// Capacity is count-1 slots; the first send fills the ring.
	p.Send(&fw.RunWorkQueueMsg{WritePtr: 1})

	sent := make(chan struct{})
	go func() {
		p.Send(&fw.RunWorkQueueMsg{WritePtr: 2})
		close(sent)
	}()

	select {
	case <-sent:
		t.Fatal("Send on a full ring returned without a Receive")
	case <-time.After(100 * time.Millisecond):
	}

	if _, ok := p.Receive(); !ok {
		t.Fatal("Receive: ring unexpectedly empty")
	}
	select {
	case <-sent:
	case <-time.After(5 * time.Second):
		t.Fatal("Send never unblocked after Receive")
	}

	got, ok := p.Receive()
	if !ok {
		t.Fatal("Receive: second message missing")
	}
	if got.WritePtr != 2 {
		t.Errorf("second message WritePtr: got %d, want 2", got.WritePtr)
	}
}
