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

// GpuOnlyArray is a homogeneous array in device memory with no CPU
// mapping requirement. Bounds violations on any accessor are driver bugs
// and panic rather than returning an error.
type GpuOnlyArray[T any] struct {
	len   int
	alloc gpumem.Allocation
	addr  uint64
}

// NewGpuOnlyArray creates an array of count elements over the allocation.
func NewGpuOnlyArray[T any](alloc gpumem.Allocation, count int) (*GpuOnlyArray[T], error) {
	addr := alloc.DeviceAddress()
	if addr == 0 || count < 0 {
		return nil, errors.EINVAL
	}
	if bytes := uint64(count) * layoutSize[T](); alloc.Size() < bytes {
		return nil, fmt.Errorf("allocation too small for [%d]%s (%d < %d): %w",
			count, typeName[T](), alloc.Size(), bytes, errors.ENOMEM)
	}
	return &GpuOnlyArray[T]{len: count, alloc: alloc, addr: addr}, nil
}

// Len returns the element count.
func (a *GpuOnlyArray[T]) Len() int {
	return a.len
}

// DeviceAddress returns the device virtual address of the first element.
func (a *GpuOnlyArray[T]) DeviceAddress() uint64 {
	return a.addr
}

// Pointer returns an owning pointer to the array.
func (a *GpuOnlyArray[T]) Pointer() Pointer[[]T] {
	return Pointer[[]T]{addr: a.addr}
}

// WeakPointer returns a copyable pointer to the array.
func (a *GpuOnlyArray[T]) WeakPointer() WeakPointer[[]T] {
	return WeakPointer[[]T]{addr: a.addr}
}

func (a *GpuOnlyArray[T]) checkIndex(i int) {
	if i < 0 || i >= a.len {
		panic(fmt.Sprintf("index %d out of bounds (len %d)", i, a.len))
	}
}

func (a *GpuOnlyArray[T]) checkOffset(off int) {
	if off < 0 || off > a.len {
		panic(fmt.Sprintf("offset %d out of bounds (len %d)", off, a.len))
	}
}

// ItemPointer returns an owning pointer to element i.
func (a *GpuOnlyArray[T]) ItemPointer(i int) Pointer[T] {
	a.checkIndex(i)
	return Pointer[T]{addr: a.addr + uint64(i)*layoutSize[T]()}
}

// WeakItemPointer returns a copyable pointer to element i.
func (a *GpuOnlyArray[T]) WeakItemPointer(i int) WeakPointer[T] {
	a.checkIndex(i)
	return WeakPointer[T]{addr: a.addr + uint64(i)*layoutSize[T]()}
}

// OffsetPointer returns an owning pointer to the tail starting at off.
// off == Len() is allowed and yields the one-past-the-end address.
func (a *GpuOnlyArray[T]) OffsetPointer(off int) Pointer[[]T] {
	a.checkOffset(off)
	return Pointer[[]T]{addr: a.addr + uint64(off)*layoutSize[T]()}
}

// WeakOffsetPointer is OffsetPointer without ownership.
func (a *GpuOnlyArray[T]) WeakOffsetPointer(off int) WeakPointer[[]T] {
	a.checkOffset(off)
	return WeakPointer[[]T]{addr: a.addr + uint64(off)*layoutSize[T]()}
}

// Release logs the array's death.
func (a *GpuOnlyArray[T]) Release() {
	if log.IsLogging(log.Debug) {
		log.Debugf("gpuobj: dropping [%d]%s @ %#x", a.len, typeName[T](), a.addr)
	}
}

// GpuArray is a GpuOnlyArray whose allocation is CPU-mapped, giving the
// driver read/write access to the elements.
type GpuArray[T any] struct {
	GpuOnlyArray[T]
	raw []T
}

func newGpuArray[T any](alloc gpumem.Allocation, count int) (*GpuArray[T], error) {
	if alloc.CPUPointer() == nil {
		return nil, errors.EINVAL
	}
	inner, err := NewGpuOnlyArray[T](alloc, count)
	if err != nil {
		return nil, err
	}
	return &GpuArray[T]{
		GpuOnlyArray: *inner,
		raw:          rawSlice[T](alloc, count),
	}, nil
}

// NewGpuArray creates an array initialized with a copy of data. T must be
// a plain-data type: no host pointers, maps, or slices, since the bytes
// land in firmware-visible memory.
func NewGpuArray[T any](alloc gpumem.Allocation, data []T) (*GpuArray[T], error) {
	a, err := newGpuArray[T](alloc, len(data))
	if err != nil {
		return nil, err
	}
	copy(a.raw, data)
	return a, nil
}

// NewGpuArrayEmpty creates an array of count zero elements.
func NewGpuArrayEmpty[T any](alloc gpumem.Allocation, count int) (*GpuArray[T], error) {
	a, err := newGpuArray[T](alloc, count)
	if err != nil {
		return nil, err
	}
	clear(a.raw)
	return a, nil
}

// Slice returns the CPU view of the elements. Indexing past Len panics
// like any slice access.
func (a *GpuArray[T]) Slice() []T {
	return a.raw
}
