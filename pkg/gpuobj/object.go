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
	"fmt"

	"gvisor.dev/gvisor/pkg/log"

	"github.com/openagx/openagx/pkg/errors"
	"github.com/openagx/openagx/pkg/gpumem"
)

// byValueWarnSize is the mirror size above which by-value construction
// logs a warning; layouts that big belong on NewInPlace.
const byValueWarnSize = 0x1000

// GpuObject couples a CPU shadow value with its firmware-visible mirror
// and the allocation backing the mirror.
//
// The object performs no locking of its own. Callers that share an object
// across goroutines (or with the firmware notification path) must hold
// their own coarser lock around every accessor; the work queue holds its
// mutex around all descriptor access, for example.
type GpuObject[T GpuStruct[R], R any] struct {
	raw   *R
	alloc gpumem.Allocation
	addr  uint64
	inner *T
}

// checkAlloc validates the allocation against T's layout and returns the
// device address and the host pointer to the mirror.
func checkAlloc[T GpuStruct[R], R any](alloc gpumem.Allocation) (uint64, *R, error) {
	addr := alloc.DeviceAddress()
	if addr == 0 {
		return 0, nil, fmt.Errorf("%s has no device address: %w", typeName[T](), errors.EINVAL)
	}
	if alloc.Size() < layoutSize[R]() {
		return 0, nil, fmt.Errorf("allocation too small for %s (%d < %d): %w",
			typeName[T](), alloc.Size(), layoutSize[R](), errors.ENOMEM)
	}
	if alloc.CPUPointer() == nil {
		return 0, nil, fmt.Errorf("%s allocation is not CPU-mapped: %w", typeName[T](), errors.EINVAL)
	}
	return addr, rawPointer[R](alloc), nil
}

// New constructs an object by value: the mirror is produced on the stack
// by the callback and then copied into the allocation. Only suitable for
// small layouts; larger ones must use NewInPlace or NewBoxed.
func New[T GpuStruct[R], R any](alloc gpumem.Allocation, inner T, cb func(*T) R) (*GpuObject[T, R], error) {
	if size := layoutSize[R](); size > byValueWarnSize {
		log.Warningf("gpuobj: constructing %s of size %#x by value, use NewInPlace", typeName[T](), size)
	}
	addr, raw, err := checkAlloc[T, R](alloc)
	if err != nil {
		return nil, err
	}
	if log.IsLogging(log.Debug) {
		log.Debugf("gpuobj: allocating %s @ %#x", typeName[T](), addr)
	}
	*raw = cb(&inner)
	return &GpuObject[T, R]{raw: raw, alloc: alloc, addr: addr, inner: &inner}, nil
}

// NewBoxed constructs an object whose shadow is already heap-owned. The
// callback receives the shadow and the uninitialized mirror, initializes
// the mirror in place, and returns the pointer it was handed back. A
// mismatched return is a driver bug: the callback must not initialize
// some other memory.
func NewBoxed[T GpuStruct[R], R any](alloc gpumem.Allocation, inner *T, cb func(*T, *R) (*R, error)) (*GpuObject[T, R], error) {
	addr, raw, err := checkAlloc[T, R](alloc)
	if err != nil {
		return nil, err
	}
	if log.IsLogging(log.Debug) {
		log.Debugf("gpuobj: allocating %s @ %#x", typeName[T](), addr)
	}
	ret, err := cb(inner, raw)
	if err != nil {
		return nil, err
	}
	if ret != raw {
		log.Warningf("gpuobj: construction callback returned a mismatched reference (%s)", typeName[T]())
		return nil, errors.EINVAL
	}
	return &GpuObject[T, R]{raw: raw, alloc: alloc, addr: addr, inner: inner}, nil
}

// NewInPlace is NewBoxed for a shadow value not yet on the heap.
func NewInPlace[T GpuStruct[R], R any](alloc gpumem.Allocation, inner T, cb func(*T, *R) (*R, error)) (*GpuObject[T, R], error) {
	return NewBoxed(alloc, &inner, cb)
}

// NewPrealloc constructs an object whose shadow needs its own device
// address before it can be built, for layouts that self-reference or
// reference a sibling constructed from the same address. The weak pointer
// is computed from the allocation first, innerCb builds the shadow around
// it, and then the mirror is initialized as in NewBoxed.
func NewPrealloc[T GpuStruct[R], R any](alloc gpumem.Allocation, innerCb func(WeakPointer[T]) (*T, error), rawCb func(*T, *R) (*R, error)) (*GpuObject[T, R], error) {
	addr, raw, err := checkAlloc[T, R](alloc)
	if err != nil {
		return nil, err
	}
	if log.IsLogging(log.Debug) {
		log.Debugf("gpuobj: allocating %s @ %#x", typeName[T](), addr)
	}
	inner, err := innerCb(WeakPointer[T]{addr: addr})
	if err != nil {
		return nil, err
	}
	ret, err := rawCb(inner, raw)
	if err != nil {
		return nil, err
	}
	if ret != raw {
		log.Warningf("gpuobj: construction callback returned a mismatched reference (%s)", typeName[T]())
		return nil, errors.EINVAL
	}
	return &GpuObject[T, R]{raw: raw, alloc: alloc, addr: addr, inner: inner}, nil
}

// NewDefault constructs an object with a zero shadow and a zeroed
// mirror. The mirror is zeroed bytewise so layouts containing atomics
// work too.
func NewDefault[T GpuStruct[R], R any](alloc gpumem.Allocation) (*GpuObject[T, R], error) {
	return NewBoxed(alloc, new(T), func(_ *T, raw *R) (*R, error) {
		zeroBytes(alloc, layoutSize[R]())
		return raw, nil
	})
}

// DeviceAddress returns the mirror's device virtual address.
func (o *GpuObject[T, R]) DeviceAddress() uint64 {
	return o.addr
}

// Pointer returns an owning pointer to the mirror, valid only while o is.
func (o *GpuObject[T, R]) Pointer() Pointer[T] {
	return Pointer[T]{addr: o.addr}
}

// WeakPointer returns a copyable pointer to the mirror with no lifetime
// attached.
func (o *GpuObject[T, R]) WeakPointer() WeakPointer[T] {
	return WeakPointer[T]{addr: o.addr}
}

// Inner returns the CPU shadow value.
func (o *GpuObject[T, R]) Inner() *T {
	return o.inner
}

// With grants the callback access to the mirror and the shadow together
// for the duration of the call. This is the only sanctioned way to touch
// the mirror; the caller is responsible for holding whatever lock guards
// the object against concurrent use.
func (o *GpuObject[T, R]) With(cb func(raw *R, inner *T)) {
	cb(o.raw, o.inner)
}

// Release logs the object's death. The backing memory is the allocator's
// to reclaim; it is neither zeroed nor reused here.
func (o *GpuObject[T, R]) Release() {
	if log.IsLogging(log.Debug) {
		log.Debugf("gpuobj: dropping %s @ %#x", typeName[T](), o.addr)
	}
}
