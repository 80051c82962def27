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

// Package gpumem defines the contract between the submission core and the
// device memory allocator.
//
// The allocator itself lives outside this module; everything here consumes
// allocations through the Allocation interface and nothing more. A simple
// arena allocator backed by host memory is provided for bring-up and tests.
package gpumem

import (
	"unsafe"
)

// Allocation is a region of device-visible memory handed out by an
// allocator. The device address is what firmware sees; the CPU pointer is
// the host mapping of the same bytes, or nil for GPU-only memory.
//
// Allocations are not reclaimed by this module. Dropping the consuming
// object only logs; the allocator owns the memory's lifetime.
type Allocation interface {
	// Device returns the name of the owning device, for diagnostics.
	Device() string

	// DeviceAddress returns the device virtual address of the region.
	// A valid allocation never has address zero.
	DeviceAddress() uint64

	// CPUPointer returns the host mapping of the region, or nil if the
	// region is not CPU-accessible.
	CPUPointer() unsafe.Pointer

	// Size returns the size of the region in bytes.
	Size() uint64
}

// Allocator hands out device-visible allocations.
type Allocator interface {
	Alloc(size, align uint64) (Allocation, error)
}

// KernelAllocators groups the allocators the submission core draws from:
// Shared carves memory both agents read and write (ring state, rings);
// Private carves memory only firmware touches after initialization.
type KernelAllocators struct {
	Shared  Allocator
	Private Allocator
}
