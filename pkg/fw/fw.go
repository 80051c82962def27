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

// Package fw defines the memory layouts and messages shared with the
// GPU firmware scheduler.
//
// Raw* types are byte-exact firmware ABI: field order, widths, and
// padding are fixed and little-endian. Their companion shadow types are
// what the driver holds on the CPU side.
package fw

import (
	"fmt"
)

// PipeType identifies the hardware pipeline a queue feeds.
type PipeType uint32

// Pipeline classes.
const (
	PipeVertex PipeType = iota
	PipeFragment
	PipeCompute
)

// String implements fmt.Stringer.String.
func (p PipeType) String() string {
	switch p {
	case PipeVertex:
		return "Vertex"
	case PipeFragment:
		return "Fragment"
	case PipeCompute:
		return "Compute"
	default:
		return fmt.Sprintf("PipeType(%d)", uint32(p))
	}
}

// FaultInfo describes a GPU fault as decoded from the fault registers.
// The register decode itself lives outside this module.
type FaultInfo struct {
	Address uint64
	Unit    uint32
	VMSlot  uint32
	Reason  uint32
}

// String implements fmt.Stringer.String.
func (f FaultInfo) String() string {
	return fmt.Sprintf("fault @ %#x, unit %d, vm slot %d, reason %d",
		f.Address, f.Unit, f.VMSlot, f.Reason)
}
