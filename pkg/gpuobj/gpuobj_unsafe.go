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
	"unsafe"

	"github.com/openagx/openagx/pkg/gpumem"
)

// rawPointer reinterprets the allocation's host mapping as a layout
// value. The caller has already checked the mapping exists and is large
// enough.
func rawPointer[R any](alloc gpumem.Allocation) *R {
	return (*R)(alloc.CPUPointer())
}

// rawSlice reinterprets the allocation's host mapping as a slice of
// count elements.
func rawSlice[T any](alloc gpumem.Allocation, count int) []T {
	return unsafe.Slice((*T)(alloc.CPUPointer()), count)
}

// zeroBytes clears the first size bytes of the allocation's host
// mapping.
func zeroBytes(alloc gpumem.Allocation, size uint64) {
	clear(unsafe.Slice((*byte)(alloc.CPUPointer()), size))
}
