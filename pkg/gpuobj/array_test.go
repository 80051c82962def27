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

package gpuobj

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	drverr "github.com/openagx/openagx/pkg/errors"
)

func TestGpuArrayRoundTrip(t *testing.T) {
	alloc := testAlloc(t, 64)
	data := []uint32{1, 2, 3, 0xdeadbeef, 5}
	a, err := NewGpuArray(alloc, data)
	if err != nil {
		t.Fatalf("NewGpuArray: %v", err)
	}
	if got := a.Len(); got != len(data) {
		t.Errorf("Len(): got %d, want %d", got, len(data))
	}
	if diff := cmp.Diff(data, a.Slice()); diff != "" {
		t.Errorf("Slice() mismatch (-want +got):\n%s", diff)
	}
}

func TestGpuArrayEmptyZeroes(t *testing.T) {
	alloc := testAlloc(t, 64)

	// Dirty the backing memory so zero-fill is observable.
	for i, s := 0, rawSlice[uint32](alloc, 8); i < 8; i++ {
		s[i] = 0xffffffff
	}

	a, err := NewGpuArrayEmpty[uint32](alloc, 8)
	if err != nil {
		t.Fatalf("NewGpuArrayEmpty: %v", err)
	}
	for i, v := range a.Slice() {
		if v != 0 {
			t.Errorf("element %d: got %#x, want 0", i, v)
		}
	}
}

func TestGpuArrayTooSmall(t *testing.T) {
	alloc := testAlloc(t, 16)
	if _, err := NewGpuOnlyArray[uint64](alloc, 3); !errors.Is(err, drverr.ENOMEM) {
		t.Errorf("oversized count: got %v, want ENOMEM", err)
	}
}

func TestGpuArrayPointers(t *testing.T) {
	alloc := testAlloc(t, 64)
	a, err := NewGpuArrayEmpty[uint64](alloc, 4)
	if err != nil {
		t.Fatalf("NewGpuArrayEmpty: %v", err)
	}

	base := a.DeviceAddress()
	if got := a.ItemPointer(2).Address(); got != base+16 {
		t.Errorf("ItemPointer(2): got %#x, want %#x", got, base+16)
	}
	if got := a.WeakItemPointer(3).Address(); got != base+24 {
		t.Errorf("WeakItemPointer(3): got %#x, want %#x", got, base+24)
	}
	// One-past-the-end is a valid offset but not a valid index.
	if got := a.OffsetPointer(4).Address(); got != base+32 {
		t.Errorf("OffsetPointer(4): got %#x, want %#x", got, base+32)
	}
}

func mustPanic(t *testing.T, name string, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic on out-of-bounds access", name)
		}
	}()
	f()
}

func TestGpuArrayBoundsPanic(t *testing.T) {
	alloc := testAlloc(t, 64)
	a, err := NewGpuArrayEmpty[uint64](alloc, 4)
	if err != nil {
		t.Fatalf("NewGpuArrayEmpty: %v", err)
	}

	mustPanic(t, "ItemPointer(4)", func() { a.ItemPointer(4) })
	mustPanic(t, "ItemPointer(-1)", func() { a.ItemPointer(-1) })
	mustPanic(t, "WeakItemPointer(4)", func() { a.WeakItemPointer(4) })
	mustPanic(t, "OffsetPointer(5)", func() { a.OffsetPointer(5) })
	mustPanic(t, "WeakOffsetPointer(5)", func() { a.WeakOffsetPointer(5) })
	mustPanic(t, "Slice()[4]", func() { _ = a.Slice()[4] })
}
