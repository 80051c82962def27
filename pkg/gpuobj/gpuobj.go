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

// Package gpuobj implements the typed object model for structures shared
// between the driver and GPU firmware.
//
// Every shared structure exists twice: a CPU-resident shadow value the
// driver works with, and a byte-exact mirror in device-visible memory that
// firmware reads. A GpuObject couples the two with the allocation backing
// the mirror. Typed device pointers reference mirrors by device virtual
// address; they are values written into other mirrors for firmware to
// traverse, never dereferenced by the CPU.
package gpuobj

import (
	"reflect"
)

// GpuStruct binds a shadow type to its firmware memory layout. The
// DeviceLayout method is a type-level marker only: the zero value it
// returns is never read.
type GpuStruct[R any] interface {
	DeviceLayout() R
}

// Opaque is the type-erased view of a device object. Work queues hold
// pending commands this way; they need the device address to write into
// the ring and ownership to release once firmware is done, nothing else.
type Opaque interface {
	DeviceAddress() uint64
	Release()
}

func typeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}

func layoutSize[R any]() uint64 {
	return uint64(reflect.TypeOf((*R)(nil)).Elem().Size())
}
