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
)

// Pointer is a non-null device virtual address tagged with the type it
// points at. Owning pointers are only produced by accessors on a live
// object or array and must not outlive it; embed a WeakPointer instead
// when no ownership relation is intended.
type Pointer[T any] struct {
	addr uint64
}

// Or returns the pointer with the given low tag bits set.
func (p Pointer[T]) Or(mask uint64) Pointer[T] {
	return Pointer[T]{addr: p.addr | mask}
}

// Address returns the raw device virtual address.
func (p Pointer[T]) Address() uint64 {
	return p.addr
}

// Weak drops the ownership relation.
func (p Pointer[T]) Weak() WeakPointer[T] {
	return WeakPointer[T]{addr: p.addr}
}

// String implements fmt.Stringer.String.
func (p Pointer[T]) String() string {
	return fmt.Sprintf("%#x (%s)", p.addr, typeName[T]())
}

// WeakPointer is a Pointer with no ownership implied. It is freely
// copyable and is the form embedded in firmware-visible layouts for
// back-references and self-references. From the CPU's perspective it is
// write-only: it is a value firmware traverses, never a host pointer.
type WeakPointer[T any] struct {
	addr uint64
}

// WeakPointerAt returns a weak pointer to the given device address. It is
// meant for decoding firmware messages; addresses originating on the CPU
// side come from object accessors instead.
func WeakPointerAt[T any](addr uint64) WeakPointer[T] {
	return WeakPointer[T]{addr: addr}
}

// Or returns the pointer with the given low tag bits set.
func (p WeakPointer[T]) Or(mask uint64) WeakPointer[T] {
	return WeakPointer[T]{addr: p.addr | mask}
}

// Address returns the raw device virtual address.
func (p WeakPointer[T]) Address() uint64 {
	return p.addr
}

// IsNull returns true for the zero pointer. A null weak pointer encodes
// "no object" in layouts with optional references.
func (p WeakPointer[T]) IsNull() bool {
	return p.addr == 0
}

// String implements fmt.Stringer.String.
func (p WeakPointer[T]) String() string {
	return fmt.Sprintf("%#x (%s)", p.addr, typeName[T]())
}

// OffsetAs derives a pointer to a field of type U at the given byte
// offset inside T's layout. The offset comes from unsafe.Offsetof on a
// zero value of the layout; the mirror itself is never read, so this is
// safe to use before the mirror has been populated. The offset is not
// checked against the layout.
func OffsetAs[U, T any](p Pointer[T], off uintptr) Pointer[U] {
	return Pointer[U]{addr: p.addr + uint64(off)}
}

// WeakOffsetAs is OffsetAs for weak pointers.
func WeakOffsetAs[U, T any](p WeakPointer[T], off uintptr) WeakPointer[U] {
	return WeakPointer[U]{addr: p.addr + uint64(off)}
}
