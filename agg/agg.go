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

// Package agg implements in-place aggregation of column values
// inside caller-owned byte buffers.
//
// Accumulator state for a single group lives in a fixed-width slot
// of a Buffer, identified by a byte position assigned by the caller
// (typically a GroupTable). A BufferAggregator mutates exactly the
// bytes in [pos, pos+Width()) of its slot and nothing else, so the
// grouping layer can pack many groups into one buffer without any
// per-group allocation.
package agg

import (
	"errors"
)

// NullHandling selects how aggregators treat rows for which the
// bound selector reports null. The mode is fixed at factory
// construction time; it is never consulted as mutable global state.
type NullHandling uint8

const (
	// NullSQL skips null rows: an all-null group aggregates to null.
	NullSQL NullHandling = iota
	// NullZero is the legacy mode in which a numeric null reads as
	// zero and is accumulated like any other value.
	NullZero
)

func (n NullHandling) String() string {
	if n == NullZero {
		return "zero"
	}
	return "sql"
}

var (
	// ErrUnsupportedGet is the panic value (wrapped) raised when a
	// typed getter is invoked on an aggregator whose declared output
	// type cannot produce that primitive. This is a planner bug, not
	// a data condition.
	ErrUnsupportedGet = errors.New("agg: typed getter unsupported for this aggregator")

	// ErrSlotUnknown is the panic value (wrapped) raised by
	// side-table-backed aggregators when a (buffer, position) pair
	// that was never initialized is aggregated, read, or relocated.
	ErrSlotUnknown = errors.New("agg: slot was never initialized")

	// ErrClosed is the panic value (wrapped) raised when an
	// aggregator is used after Close.
	ErrClosed = errors.New("agg: aggregator is closed")
)

// Selector yields the value of one logical column at the engine's
// current cursor position. Implementations are supplied by the scan
// layer; aggregators never advance the cursor themselves.
type Selector interface {
	// IsNull reports whether the current row has no value
	// for this column.
	IsNull() bool
	// Float64 returns the current value as a float.
	// The result is unspecified when IsNull() is true,
	// except in NullZero mode where it must be 0.
	Float64() float64
	// Int64 returns the current value as an integer,
	// truncating a fractional value. The same null caveat
	// as Float64 applies.
	Int64() int64
	// Value returns the current value boxed, or nil.
	Value() any
}

// SelectorSource resolves column names to selectors; it is how a
// Factory binds its input field when instantiating an aggregator.
// A source may return nil for an unknown column, in which case the
// aggregator sees an always-null selector.
type SelectorSource interface {
	ColumnSelector(name string) Selector
}

// BufferAggregator accumulates one aggregate value per group
// in place inside a caller-owned Buffer.
//
// The lifecycle for one slot is
//
//	Init -> Aggregate* -> Get* -> (Relocate -> Aggregate* -> Get*)* -> Close
//
// Aggregate or Get before Init observes garbage; Relocate after
// Close is a programming error. Instances are not safe for
// concurrent use unless the implementation documents otherwise.
type BufferAggregator interface {
	// Init writes the aggregation's neutral value into
	// [pos, pos+width). It must not read prior buffer contents
	// and calling it twice is equivalent to calling it once.
	Init(buf *Buffer, pos int)

	// Aggregate folds the bound selector's current value into
	// the accumulator at pos.
	Aggregate(buf *Buffer, pos int)

	// Get returns the logical result for the slot; a group that
	// never observed a value yields nil (or a null-bearing
	// wrapper such as TimedValue) rather than a raw zero.
	Get(buf *Buffer, pos int) any

	// Float64 is the unchecked fast-path getter; callers use it
	// only when nulls are impossible for the slot.
	Float64(buf *Buffer, pos int) float64

	// Int64 is the integer fast path; on a float-valued
	// aggregator it truncates.
	Int64(buf *Buffer, pos int) int64

	// Relocate moves the slot state from (oldBuf, oldPos) to
	// (newBuf, newPos). oldBuf and newBuf may be the same buffer.
	// After Relocate the old slot must no longer be addressed.
	Relocate(oldPos, newPos int, oldBuf, newBuf *Buffer)

	// Close releases off-buffer resources. It is safe to call
	// even if no accumulation ever happened, and must be called
	// exactly once.
	Close()
}

// Aggregator is the heap counterpart of BufferAggregator: the
// accumulator lives in object fields rather than buffer bytes.
// It is used for single-group streaming computation and for
// accumulator types that are inherently heap-shaped.
type Aggregator interface {
	// Aggregate folds the bound selector's current value in.
	Aggregate()
	// Get returns the logical result, nil for an all-null input.
	Get() any
	// Float64 and Int64 panic with ErrUnsupportedGet when the
	// declared output type has no such projection.
	Float64() float64
	Int64() int64
	// Clone returns an independent aggregator with the same
	// selector and configuration but reset accumulation state.
	Clone() Aggregator
	Close()
}

// ShapeInspector receives runtime-shape fields from aggregators
// that support introspection. Purely diagnostic.
type ShapeInspector interface {
	Visit(field string, value any)
}

// Shaped is implemented by aggregators that expose their runtime
// shape to the execution engine's specialization analysis.
type Shaped interface {
	InspectShape(si ShapeInspector)
}

// Factory is an immutable aggregation spec. It is created once per
// query plan, is safe to share across threads, and constructs the
// per-cursor aggregator instances.
type Factory interface {
	// Name is the output name of the aggregation.
	Name() string

	// Width is the exact number of slot bytes every
	// BufferAggregator created by this factory touches.
	Width() int

	// New constructs a buffer aggregator bound to the source's
	// selector for this factory's input field.
	New(src SelectorSource) BufferAggregator

	// NewHeap constructs the heap variant.
	NewHeap(src SelectorSource) Aggregator

	// CacheKey returns the stable byte fingerprint of this spec.
	CacheKey() []byte

	// Combine merges two already-finalized Get results. It is
	// associative and tolerates either side being nil.
	Combine(a, b any) any

	// Finalize maps a Get result to its user-visible value
	// (e.g. a sketch to its estimate); identity for scalars.
	Finalize(v any) any

	// CombiningFactory returns a factory suitable for merging
	// already-aggregated inputs, reading from this factory's
	// output name.
	CombiningFactory() Factory

	// Spillable reports whether the whole intermediate state is
	// buffer-resident, i.e. whether MergeSlot can merge raw slot
	// bytes from a spilled table.
	Spillable() bool

	// MergeSlot merges raw intermediate slot bytes from src into
	// dst. Only valid when Spillable returns true.
	MergeSlot(dst, src []byte)
}

// nullSelector is the always-null selector substituted for
// unresolvable columns.
type nullSelector struct{}

func (nullSelector) IsNull() bool     { return true }
func (nullSelector) Float64() float64 { return 0 }
func (nullSelector) Int64() int64     { return 0 }
func (nullSelector) Value() any       { return nil }

// columnOf resolves a column, falling back to an always-null
// selector so that a factory bound to a missing column aggregates
// an all-null group instead of crashing the scan.
func columnOf(src SelectorSource, name string) Selector {
	if src == nil {
		return nullSelector{}
	}
	if s := src.ColumnSelector(name); s != nil {
		return s
	}
	return nullSelector{}
}
