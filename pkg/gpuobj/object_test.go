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
	"unsafe"

	drverr "github.com/openagx/openagx/pkg/errors"
	"github.com/openagx/openagx/pkg/gpumem"
)

// testShadow is a small shadow type for construction tests.
type testShadow struct {
	Seed uint32

	// Self is only populated by the two-phase constructor.
	Self WeakPointer[testShadow]
}

// DeviceLayout implements GpuStruct.DeviceLayout.
func (testShadow) DeviceLayout() rawTestShadow { return rawTestShadow{} }

type rawTestShadow struct {
	A    uint32
	B    uint32
	Next WeakPointer[testShadow]
}

func testAlloc(t *testing.T, size uint64) gpumem.Allocation {
	t.Helper()
	a, err := gpumem.NewSimpleAllocator("gpu0", 0xf80_0000_0000, 1<<16)
	if err != nil {
		t.Fatalf("NewSimpleAllocator: %v", err)
	}
	alloc, err := a.Alloc(size, 64)
	if err != nil {
		t.Fatalf("Alloc(%d): %v", size, err)
	}
	return alloc
}

func TestNewByValue(t *testing.T) {
	alloc := testAlloc(t, 64)
	o, err := New(alloc, testShadow{Seed: 7}, func(inner *testShadow) rawTestShadow {
		return rawTestShadow{A: inner.Seed, B: inner.Seed * 2}
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := o.DeviceAddress(); got != alloc.DeviceAddress() {
		t.Errorf("DeviceAddress(): got %#x, want %#x", got, alloc.DeviceAddress())
	}
	o.With(func(raw *rawTestShadow, inner *testShadow) {
		if raw.A != 7 || raw.B != 14 {
			t.Errorf("mirror: got A=%d B=%d, want A=7 B=14", raw.A, raw.B)
		}
		if inner.Seed != 7 {
			t.Errorf("shadow: got Seed=%d, want 7", inner.Seed)
		}
	})

	// The mirror really lives in the allocation's memory.
	back := (*rawTestShadow)(alloc.CPUPointer())
	if back.A != 7 {
		t.Errorf("allocation bytes: got A=%d, want 7", back.A)
	}
}

func TestNewTooSmall(t *testing.T) {
	alloc := testAlloc(t, 4) // sizeof(rawTestShadow) is 16
	_, err := New(alloc, testShadow{}, func(*testShadow) rawTestShadow {
		return rawTestShadow{}
	})
	if !errors.Is(err, drverr.ENOMEM) {
		t.Errorf("undersized allocation: got %v, want ENOMEM", err)
	}
}

// nullAllocation fakes an allocation whose device mapping was never set
// up.
type nullAllocation struct{}

func (nullAllocation) Device() string             { return "gpu0" }
func (nullAllocation) DeviceAddress() uint64      { return 0 }
func (nullAllocation) CPUPointer() unsafe.Pointer { return nil }
func (nullAllocation) Size() uint64               { return 1 << 16 }

func TestNewNullAddress(t *testing.T) {
	_, err := New(nullAllocation{}, testShadow{}, func(*testShadow) rawTestShadow {
		return rawTestShadow{}
	})
	if !errors.Is(err, drverr.EINVAL) {
		t.Errorf("zero device address: got %v, want EINVAL", err)
	}
}

func TestNewBoxedInPlace(t *testing.T) {
	alloc := testAlloc(t, 64)
	o, err := NewBoxed(alloc, &testShadow{Seed: 3}, func(inner *testShadow, raw *rawTestShadow) (*rawTestShadow, error) {
		raw.A = inner.Seed
		raw.B = 99
		return raw, nil
	})
	if err != nil {
		t.Fatalf("NewBoxed: %v", err)
	}
	o.With(func(raw *rawTestShadow, _ *testShadow) {
		if raw.A != 3 || raw.B != 99 {
			t.Errorf("mirror: got A=%d B=%d, want A=3 B=99", raw.A, raw.B)
		}
	})
}

func TestNewBoxedMismatchedReference(t *testing.T) {
	alloc := testAlloc(t, 64)
	var rogue rawTestShadow
	_, err := NewBoxed(alloc, &testShadow{}, func(_ *testShadow, _ *rawTestShadow) (*rawTestShadow, error) {
		return &rogue, nil
	})
	if !errors.Is(err, drverr.EINVAL) {
		t.Errorf("mismatched callback return: got %v, want EINVAL", err)
	}
}

func TestNewPreallocSelfReference(t *testing.T) {
	alloc := testAlloc(t, 64)
	o, err := NewPrealloc(alloc,
		func(self WeakPointer[testShadow]) (*testShadow, error) {
			// The shadow embeds its own pointer before the mirror
			// exists.
			return &testShadow{Seed: 1, Self: self}, nil
		},
		func(inner *testShadow, raw *rawTestShadow) (*rawTestShadow, error) {
			raw.Next = inner.Self
			return raw, nil
		})
	if err != nil {
		t.Fatalf("NewPrealloc: %v", err)
	}

	o.With(func(raw *rawTestShadow, inner *testShadow) {
		if got := raw.Next.Address(); got != o.DeviceAddress() {
			t.Errorf("self pointer in mirror: got %#x, want %#x", got, o.DeviceAddress())
		}
		if got := inner.Self.Address(); got != o.DeviceAddress() {
			t.Errorf("self pointer in shadow: got %#x, want %#x", got, o.DeviceAddress())
		}
	})
}

func TestNewDefaultZeroes(t *testing.T) {
	alloc := testAlloc(t, 64)

	// Dirty the memory first so zeroing is observable.
	dirty := (*rawTestShadow)(alloc.CPUPointer())
	dirty.A = 0xffffffff
	dirty.B = 0xffffffff

	o, err := NewDefault[testShadow](alloc)
	if err != nil {
		t.Fatalf("NewDefault: %v", err)
	}
	o.With(func(raw *rawTestShadow, inner *testShadow) {
		if raw.A != 0 || raw.B != 0 || !raw.Next.IsNull() {
			t.Errorf("mirror not zeroed: %+v", *raw)
		}
		if inner.Seed != 0 {
			t.Errorf("shadow not zero: %+v", *inner)
		}
	})
}

func TestObjectPointers(t *testing.T) {
	alloc := testAlloc(t, 64)
	o, err := New(alloc, testShadow{}, func(*testShadow) rawTestShadow {
		return rawTestShadow{}
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got, want := o.Pointer().Address(), o.DeviceAddress(); got != want {
		t.Errorf("Pointer(): got %#x, want %#x", got, want)
	}
	if got, want := o.WeakPointer().Address(), o.DeviceAddress(); got != want {
		t.Errorf("WeakPointer(): got %#x, want %#x", got, want)
	}

	// Deriving a field pointer inside the (possibly unwritten) mirror.
	var zero rawTestShadow
	p := OffsetAs[WeakPointer[testShadow]](o.Pointer(), unsafe.Offsetof(zero.Next))
	if got, want := p.Address(), o.DeviceAddress()+8; got != want {
		t.Errorf("field pointer: got %#x, want %#x", got, want)
	}
}
