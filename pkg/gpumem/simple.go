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

package gpumem

import (
	"unsafe"

	"gvisor.dev/gvisor/pkg/log"
	"gvisor.dev/gvisor/pkg/sync"

	"github.com/openagx/openagx/pkg/errors"
)

// SimpleAllocator is a bump arena over a single host block standing in
// for a device-visible heap. It never frees; it exists so the submission
// core can run against real memory without the MMU layer.
type SimpleAllocator struct {
	device string
	base   uint64

	mu    sync.Mutex
	block []byte
	off   uint64
}

// NewSimpleAllocator creates an arena of the given size whose device
// addresses start at base. base must be non-zero since a zero device
// address is the reserved null pointer.
func NewSimpleAllocator(device string, base, size uint64) (*SimpleAllocator, error) {
	if base == 0 || size == 0 {
		return nil, errors.EINVAL
	}
	return &SimpleAllocator{
		device: device,
		base:   base,
		block:  make([]byte, size),
	}, nil
}

// Alloc implements Allocator.Alloc.
func (a *SimpleAllocator) Alloc(size, align uint64) (Allocation, error) {
	if size == 0 || align == 0 || align&(align-1) != 0 {
		return nil, errors.EINVAL
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	off := (a.off + align - 1) &^ (align - 1)
	if off+size < off || off+size > uint64(len(a.block)) {
		log.Warningf("SimpleAllocator(%s): out of arena space (%d requested, %d free)",
			a.device, size, uint64(len(a.block))-a.off)
		return nil, errors.ENOMEM
	}
	a.off = off + size

	alloc := &simpleAllocation{
		device: a.device,
		addr:   a.base + off,
		ptr:    unsafe.Pointer(&a.block[off]),
		size:   size,
	}
	if log.IsLogging(log.Debug) {
		log.Debugf("SimpleAllocator(%s): alloc %d bytes @ %#x", a.device, size, alloc.addr)
	}
	return alloc, nil
}

type simpleAllocation struct {
	device string
	addr   uint64
	ptr    unsafe.Pointer
	size   uint64
}

// Device implements Allocation.Device.
func (s *simpleAllocation) Device() string { return s.device }

// DeviceAddress implements Allocation.DeviceAddress.
func (s *simpleAllocation) DeviceAddress() uint64 { return s.addr }

// CPUPointer implements Allocation.CPUPointer.
func (s *simpleAllocation) CPUPointer() unsafe.Pointer { return s.ptr }

// Size implements Allocation.Size.
func (s *simpleAllocation) Size() uint64 { return s.size }
