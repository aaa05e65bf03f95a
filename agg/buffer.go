// Copyright 2023 Sneller, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

package agg

import (
	"fmt"
	"sync/atomic"
)

var bufferHandles uint64

// Buffer is a fixed-capacity byte arena holding accumulator slots.
// The grouping layer owns the buffer and hands aggregators a
// (buffer, position) pair on every call; aggregators never own or
// resize buffers themselves.
//
// Every buffer carries a process-unique handle so that off-buffer
// side tables can key state by (handle, position) instead of
// relying on object identity.
type Buffer struct {
	handle uint64
	mem    []byte
}

// NewBuffer returns a zeroed buffer of the given size.
func NewBuffer(size int) *Buffer {
	return &Buffer{
		handle: atomic.AddUint64(&bufferHandles, 1),
		mem:    make([]byte, size),
	}
}

// Handle returns the process-unique identity of the buffer.
func (b *Buffer) Handle() uint64 { return b.handle }

// Size returns the buffer capacity in bytes.
func (b *Buffer) Size() int { return len(b.mem) }

// Bytes returns the bounds-checked slot view [pos, pos+width).
// The view's capacity is clipped to its length so an aggregator
// cannot accidentally append into the adjacent group's slot.
func (b *Buffer) Bytes(pos, width int) []byte {
	if pos < 0 || width < 0 || pos+width > len(b.mem) {
		panic(fmt.Sprintf("agg: slot [%d:%d) out of range for buffer of %d bytes",
			pos, pos+width, len(b.mem)))
	}
	return b.mem[pos : pos+width : pos+width]
}

// Slot identifies one accumulator slot across buffers; it is the
// side-table key for aggregators whose state cannot live in the
// buffer bytes.
type Slot struct {
	Buffer uint64 // Buffer.Handle of the owning buffer
	Pos    int
}

func slotOf(buf *Buffer, pos int) Slot {
	return Slot{Buffer: buf.handle, Pos: pos}
}
