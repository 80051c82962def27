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

package fw

import (
	"sync/atomic"

	"github.com/openagx/openagx/pkg/gpuobj"
)

// RingState is the shadow of the ring-buffer state block. All the
// interesting data lives on the firmware side, so the shadow is empty.
type RingState struct{}

// DeviceLayout implements gpuobj.GpuStruct.DeviceLayout.
func (RingState) DeviceLayout() RawRingState { return RawRingState{} }

// RawRingState is the ring-buffer state block shared with firmware.
//
// GPUDonePtr and CPUWritePtr are a cross-agent mailbox, not ordinary
// shared state between goroutines: firmware advances GPUDonePtr outside
// any CPU lock, and polls CPUWritePtr with acquire semantics. The CPU
// side must therefore read GPUDonePtr and publish CPUWritePtr through
// the atomic accessors, whose sequentially consistent ordering satisfies
// the acquire/release contract. No lock substitutes for this.
type RawRingState struct {
	Size        uint32
	CPUWritePtr atomic.Uint32 // published by the CPU on commit
	GPUDonePtr  atomic.Uint32 // advanced by firmware as slots retire
	CPUFreePtr  atomic.Uint32 // trailing pointer of reclaimed slots
	GPUReadPtr  atomic.Uint32 // firmware consumption cursor
	Busy        atomic.Uint32
	Unk18       uint32
	Unk1C       uint32
}

// QueueInfo is the shadow of the queue descriptor. It owns the ring
// state block, the command ring, and the firmware scratch buffer the
// descriptor points at.
type QueueInfo struct {
	State   *gpuobj.GpuObject[RingState, RawRingState]
	Ring    *gpuobj.GpuArray[uint64]
	Scratch *gpuobj.GpuOnlyArray[byte]
}

// DeviceLayout implements gpuobj.GpuStruct.DeviceLayout.
func (QueueInfo) DeviceLayout() RawQueueInfo { return RawQueueInfo{} }

// RawQueueInfo is the queue descriptor visible to firmware. Created once
// per work queue; both agents mutate it for the queue's lifetime.
type RawQueueInfo struct {
	State        gpuobj.WeakPointer[RingState]
	Ring         gpuobj.WeakPointer[[]uint64]
	NotifierList gpuobj.WeakPointer[NotifierList]
	Scratch      gpuobj.WeakPointer[[]byte]
	GPURptr1     uint64
	GPURptr2     uint64
	GPURptr3     uint64
	EventSlot    atomic.Int32
	Priority     uint32
	UUID         uint32
	Unk54        int32
	Pending      atomic.Uint32
	Unk5C        uint32
	GPUContext   gpuobj.WeakPointer[GpuContextData]
	Unk68        uint64
}

// NotifierList is the shadow of the firmware notifier list head. The
// event subsystem owns its contents; queues only embed a pointer to it.
type NotifierList struct{}

// DeviceLayout implements gpuobj.GpuStruct.DeviceLayout.
func (NotifierList) DeviceLayout() RawNotifierList { return RawNotifierList{} }

// RawNotifierList is the firmware notifier list head.
type RawNotifierList struct {
	Count uint32
	Unk4  uint32
	Head  gpuobj.WeakPointer[NotifierList]
}

// GpuContextData is the shadow of the firmware GPU context block. The
// context subsystem owns it; queues embed a back-pointer.
type GpuContextData struct{}

// DeviceLayout implements gpuobj.GpuStruct.DeviceLayout.
func (GpuContextData) DeviceLayout() RawGpuContextData { return RawGpuContextData{} }

// RawGpuContextData is the firmware GPU context block.
type RawGpuContextData struct {
	Unk0 uint64
	Unk8 uint64
}
