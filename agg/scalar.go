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

	"github.com/SnellerInc/aggbuf/cachekey"
)

// scalarOps is the per-kind behavior table for fixed-width scalar
// aggregations. Each aggregation kind (sum, min, any, ...) declares
// its slot width, neutral value, row fold, raw-slot merge and
// finalized-value combine exactly once; dispatch is resolved at
// factory construction, never per row.
type scalarOps struct {
	id    byte // cache-key type discriminator
	kind  string
	width int

	// countsNulls kinds fold every row, even when the selector
	// reports null in SQL null mode (COUNT(*)).
	countsNulls bool

	init   func(slot []byte)
	update func(slot []byte, a *scalarBufferAggregator)
	get    func(slot []byte) any
	f64    func(slot []byte) float64
	i64    func(slot []byte) int64
	merge  func(dst, src []byte)

	// combine merges two finalized non-nil Get results
	combine func(a, b any) any

	// heap variant hooks; the accumulator state is the
	// numericHeap's own fields
	heapInit func(h *numericHeap)
	heapFold func(h *numericHeap)
	heapGet  func(h *numericHeap) any

	// pairwise, when set, is the ops table used by the combining
	// factory: it folds finalized composite results (TimedValue
	// pairs) instead of raw scalar rows
	pairwise *scalarOps
}

// scalarFactory implements Factory for every fixed-width scalar
// aggregation kind.
type scalarFactory struct {
	name      string
	field     string
	timeField string // set only for first/last kinds
	nulls     NullHandling
	ops       *scalarOps

	// combining, when set, overrides the ops used by
	// CombiningFactory (e.g. count merges as an integer sum)
	combining *scalarOps
}

func (f *scalarFactory) Name() string { return f.name }
func (f *scalarFactory) Width() int   { return f.ops.width }

func (f *scalarFactory) New(src SelectorSource) BufferAggregator {
	a := &scalarBufferAggregator{
		ops:   f.ops,
		nulls: f.nulls,
		sel:   columnOf(src, f.field),
	}
	if f.timeField != "" {
		a.ts = columnOf(src, f.timeField)
	}
	return a
}

func (f *scalarFactory) NewHeap(src SelectorSource) Aggregator {
	h := &numericHeap{
		ops:   f.ops,
		nulls: f.nulls,
		sel:   columnOf(src, f.field),
	}
	if f.timeField != "" {
		h.ts = columnOf(src, f.timeField)
	}
	h.ops.heapInit(h)
	return h
}

func (f *scalarFactory) CacheKey() []byte {
	b := cachekey.New(f.ops.id)
	b.AppendString(f.name)
	b.AppendString(f.field)
	b.AppendString(f.timeField)
	b.AppendBool(f.nulls == NullZero)
	return b.Build()
}

func (f *scalarFactory) Combine(a, b any) any {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return f.ops.combine(a, b)
}

func (f *scalarFactory) Finalize(v any) any {
	switch m := v.(type) {
	case Mean:
		if m.Count == 0 {
			return nil
		}
		return m.Sum / float64(m.Count)
	case MeanInt:
		if m.Count == 0 {
			return nil
		}
		return m.Sum / m.Count
	}
	return v
}

func (f *scalarFactory) CombiningFactory() Factory {
	ops := f.ops
	if f.combining != nil {
		ops = f.combining
	} else if f.ops.pairwise != nil {
		ops = f.ops.pairwise
	}
	return &scalarFactory{
		name:  f.name,
		field: f.name,
		nulls: f.nulls,
		ops:   ops,
	}
}

func (f *scalarFactory) Spillable() bool { return true }

func (f *scalarFactory) MergeSlot(dst, src []byte) {
	f.ops.merge(dst[:f.ops.width], src[:f.ops.width])
}

// scalarBufferAggregator drives one scalarOps kind against a
// caller-owned buffer slot. Not safe for concurrent use.
type scalarBufferAggregator struct {
	sel   Selector
	ts    Selector // timestamp column for first/last, else nil
	nulls NullHandling
	ops   *scalarOps
}

func (a *scalarBufferAggregator) Init(buf *Buffer, pos int) {
	a.ops.init(buf.Bytes(pos, a.ops.width))
}

func (a *scalarBufferAggregator) Aggregate(buf *Buffer, pos int) {
	if a.nulls == NullSQL && !a.ops.countsNulls && a.sel.IsNull() {
		return
	}
	a.ops.update(buf.Bytes(pos, a.ops.width), a)
}

func (a *scalarBufferAggregator) Get(buf *Buffer, pos int) any {
	return a.ops.get(buf.Bytes(pos, a.ops.width))
}

func (a *scalarBufferAggregator) Float64(buf *Buffer, pos int) float64 {
	return a.ops.f64(buf.Bytes(pos, a.ops.width))
}

func (a *scalarBufferAggregator) Int64(buf *Buffer, pos int) int64 {
	return a.ops.i64(buf.Bytes(pos, a.ops.width))
}

func (a *scalarBufferAggregator) Relocate(oldPos, newPos int, oldBuf, newBuf *Buffer) {
	// state is entirely buffer-resident: a byte copy is the move.
	// copy() tolerates overlapping ranges within one buffer.
	copy(newBuf.Bytes(newPos, a.ops.width), oldBuf.Bytes(oldPos, a.ops.width))
}

func (a *scalarBufferAggregator) Close() {}

func (a *scalarBufferAggregator) InspectShape(si ShapeInspector) {
	si.Visit("kind", a.ops.kind)
	si.Visit("width", a.ops.width)
	si.Visit("nulls", a.nulls.String())
	si.Visit("selector", fmt.Sprintf("%T", a.sel))
}

// numericHeap is the heap-variant accumulator shared by the scalar
// kinds: state lives in its fields instead of buffer bytes.
type numericHeap struct {
	sel   Selector
	ts    Selector
	nulls NullHandling
	ops   *scalarOps

	seen bool
	f    float64
	i    int64
	at   int64 // first/last timestamp
}

func (h *numericHeap) Aggregate() {
	if h.nulls == NullSQL && !h.ops.countsNulls && h.sel.IsNull() {
		return
	}
	h.ops.heapFold(h)
}

func (h *numericHeap) Get() any { return h.ops.heapGet(h) }

func (h *numericHeap) Float64() float64 {
	switch v := h.ops.heapGet(h).(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case TimedValue:
		return timedFloat(v)
	case Mean:
		return meanFloat(v.Sum, v.Count)
	case MeanInt:
		return meanFloat(float64(v.Sum), v.Count)
	case nil:
		return 0
	default:
		panic(fmt.Errorf("%w: %s has no float projection", ErrUnsupportedGet, h.ops.kind))
	}
}

func (h *numericHeap) Int64() int64 {
	switch v := h.ops.heapGet(h).(type) {
	case float64:
		return int64(v) // truncated integer part
	case int64:
		return v
	case TimedValue:
		return int64(timedFloat(v))
	case Mean:
		return int64(meanFloat(v.Sum, v.Count))
	case MeanInt:
		if v.Count != 0 {
			return v.Sum / v.Count
		}
		return 0
	case nil:
		return 0
	default:
		panic(fmt.Errorf("%w: %s has no integer projection", ErrUnsupportedGet, h.ops.kind))
	}
}

func (h *numericHeap) Clone() Aggregator {
	c := *h
	c.seen = false
	c.f = 0
	c.i = 0
	c.at = 0
	c.ops.heapInit(&c)
	return &c
}

func (h *numericHeap) Close() {}

func meanFloat(sum float64, n int64) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func timedFloat(v TimedValue) float64 {
	switch x := v.Value.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	}
	return 0
}
