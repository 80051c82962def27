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
	"encoding/binary"
	"sync/atomic"

	"github.com/openagx/openagx/pkg/gpuobj"
)

// ChannelState is the shadow of a message channel's cursor block.
type ChannelState struct{}

// DeviceLayout implements gpuobj.GpuStruct.DeviceLayout.
func (ChannelState) DeviceLayout() RawChannelState { return RawChannelState{} }

// RawChannelState holds the cursors of a message channel ring. The CPU
// publishes WritePtr with release ordering after filling a slot; the
// consumer advances ReadPtr as it drains.
type RawChannelState struct {
	WritePtr atomic.Uint32
	ReadPtr  atomic.Uint32
}

// SizeofRunWorkQueueMsg is the wire size of a RunWorkQueueMsg.
const SizeofRunWorkQueueMsg = 24

// RunWorkQueueMsg is the doorbell message announcing new ring contents
// on a work queue. The wire layout is firmware ABI and must round-trip
// unchanged.
type RunWorkQueueMsg struct {
	PipeType  PipeType
	WorkQueue gpuobj.WeakPointer[QueueInfo]
	WritePtr  uint32
	EventSlot uint32
	New       bool
	// 3 bytes of padding on the wire.
}

// SizeBytes returns the wire size of the message.
func (m *RunWorkQueueMsg) SizeBytes() int {
	return SizeofRunWorkQueueMsg
}

// MarshalBytes serializes the message into dst.
func (m *RunWorkQueueMsg) MarshalBytes(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:], uint32(m.PipeType))
	binary.LittleEndian.PutUint64(dst[4:], m.WorkQueue.Address())
	binary.LittleEndian.PutUint32(dst[12:], m.WritePtr)
	binary.LittleEndian.PutUint32(dst[16:], m.EventSlot)
	if m.New {
		dst[20] = 1
	} else {
		dst[20] = 0
	}
	dst[21] = 0
	dst[22] = 0
	dst[23] = 0
}

// UnmarshalBytes deserializes the message from src.
func (m *RunWorkQueueMsg) UnmarshalBytes(src []byte) {
	m.PipeType = PipeType(binary.LittleEndian.Uint32(src[0:]))
	m.WorkQueue = gpuobj.WeakPointerAt[QueueInfo](binary.LittleEndian.Uint64(src[4:]))
	m.WritePtr = binary.LittleEndian.Uint32(src[12:])
	m.EventSlot = binary.LittleEndian.Uint32(src[16:])
	m.New = src[20] != 0
}
