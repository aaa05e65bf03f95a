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

// Additive kinds. Slot layout is [value:8][mark:8]; the mark word
// records that at least one row folded in, so an all-null group can
// finalize to null instead of zero.

// Mean is the mergeable intermediate result of a float average.
type Mean struct {
	Sum   float64
	Count int64
}

// MeanInt is the mergeable intermediate result of an integer
// average; finalization uses integer division.
type MeanInt struct {
	Sum   int64
	Count int64
}

var opsSumFloat = &scalarOps{
	id:    ckSumFloat,
	kind:  "sum.float",
	width: 16,
	init: func(slot []byte) {
		putf64(slot, 0)
		putu64(slot[8:], 0)
	},
	update: func(slot []byte, a *scalarBufferAggregator) {
		putf64(slot, getf64(slot)+a.sel.Float64())
		putu64(slot[8:], 1)
	},
	get: func(slot []byte) any {
		if getu64(slot[8:]) == 0 {
			return nil
		}
		return getf64(slot)
	},
	f64: func(slot []byte) float64 { return getf64(slot) },
	i64: func(slot []byte) int64 { return int64(getf64(slot)) },
	merge: func(dst, src []byte) {
		bufferAddFloat64(dst, src)
		bufferOrInt64(dst[8:], src[8:])
	},
	combine:  func(a, b any) any { return a.(float64) + b.(float64) },
	heapInit: func(h *numericHeap) {},
	heapFold: func(h *numericHeap) {
		h.f += h.sel.Float64()
		h.seen = true
	},
	heapGet: func(h *numericHeap) any {
		if !h.seen {
			return nil
		}
		return h.f
	},
}

var opsSumInt = &scalarOps{
	id:    ckSumInt,
	kind:  "sum.int",
	width: 16,
	init: func(slot []byte) {
		puti64(slot, 0)
		putu64(slot[8:], 0)
	},
	update: func(slot []byte, a *scalarBufferAggregator) {
		puti64(slot, geti64(slot)+a.sel.Int64())
		putu64(slot[8:], 1)
	},
	get: func(slot []byte) any {
		if getu64(slot[8:]) == 0 {
			return nil
		}
		return geti64(slot)
	},
	f64: func(slot []byte) float64 { return float64(geti64(slot)) },
	i64: func(slot []byte) int64 { return geti64(slot) },
	merge: func(dst, src []byte) {
		bufferAddInt64(dst, src)
		bufferOrInt64(dst[8:], src[8:])
	},
	combine:  func(a, b any) any { return a.(int64) + b.(int64) },
	heapInit: func(h *numericHeap) {},
	heapFold: func(h *numericHeap) {
		h.i += h.sel.Int64()
		h.seen = true
	},
	heapGet: func(h *numericHeap) any {
		if !h.seen {
			return nil
		}
		return h.i
	},
}

var opsAvgFloat = &scalarOps{
	id:    ckAvgFloat,
	kind:  "avg.float",
	width: 16,
	init: func(slot []byte) {
		putf64(slot, 0)
		puti64(slot[8:], 0)
	},
	update: func(slot []byte, a *scalarBufferAggregator) {
		putf64(slot, getf64(slot)+a.sel.Float64())
		puti64(slot[8:], geti64(slot[8:])+1)
	},
	get: func(slot []byte) any {
		n := geti64(slot[8:])
		if n == 0 {
			return nil
		}
		return Mean{Sum: getf64(slot), Count: n}
	},
	f64: func(slot []byte) float64 {
		if n := geti64(slot[8:]); n != 0 {
			return getf64(slot) / float64(n)
		}
		return 0
	},
	i64: func(slot []byte) int64 {
		if n := geti64(slot[8:]); n != 0 {
			return int64(getf64(slot) / float64(n))
		}
		return 0
	},
	merge: func(dst, src []byte) {
		bufferAddFloat64(dst, src)
		bufferAddInt64(dst[8:], src[8:])
	},
	combine: func(a, b any) any {
		x, y := a.(Mean), b.(Mean)
		return Mean{Sum: x.Sum + y.Sum, Count: x.Count + y.Count}
	},
	heapInit: func(h *numericHeap) {},
	heapFold: func(h *numericHeap) {
		h.f += h.sel.Float64()
		h.i++
		h.seen = true
	},
	heapGet: func(h *numericHeap) any {
		if !h.seen {
			return nil
		}
		return Mean{Sum: h.f, Count: h.i}
	},
}

var opsAvgInt = &scalarOps{
	id:    ckAvgInt,
	kind:  "avg.int",
	width: 16,
	init: func(slot []byte) {
		puti64(slot, 0)
		puti64(slot[8:], 0)
	},
	update: func(slot []byte, a *scalarBufferAggregator) {
		puti64(slot, geti64(slot)+a.sel.Int64())
		puti64(slot[8:], geti64(slot[8:])+1)
	},
	get: func(slot []byte) any {
		n := geti64(slot[8:])
		if n == 0 {
			return nil
		}
		return MeanInt{Sum: geti64(slot), Count: n}
	},
	f64: func(slot []byte) float64 {
		if n := geti64(slot[8:]); n != 0 {
			return float64(geti64(slot)) / float64(n)
		}
		return 0
	},
	i64: func(slot []byte) int64 {
		if n := geti64(slot[8:]); n != 0 {
			return geti64(slot) / n
		}
		return 0
	},
	merge: func(dst, src []byte) {
		bufferAddInt64(dst, src)
		bufferAddInt64(dst[8:], src[8:])
	},
	combine: func(a, b any) any {
		x, y := a.(MeanInt), b.(MeanInt)
		return MeanInt{Sum: x.Sum + y.Sum, Count: x.Count + y.Count}
	},
	heapInit: func(h *numericHeap) {},
	heapFold: func(h *numericHeap) {
		h.i += h.sel.Int64()
		h.at++ // reuse the spare word as the row count
		h.seen = true
	},
	heapGet: func(h *numericHeap) any {
		if !h.seen {
			return nil
		}
		return MeanInt{Sum: h.i, Count: h.at}
	},
}

var opsCount = &scalarOps{
	id:          ckCount,
	kind:        "count",
	width:       8,
	countsNulls: true,
	init: func(slot []byte) {
		putu64(slot, 0)
	},
	update: func(slot []byte, a *scalarBufferAggregator) {
		putu64(slot, getu64(slot)+1)
	},
	get: func(slot []byte) any { return geti64(slot) },
	f64: func(slot []byte) float64 { return float64(getu64(slot)) },
	i64: func(slot []byte) int64 { return geti64(slot) },
	merge: func(dst, src []byte) {
		bufferAddInt64(dst, src)
	},
	combine:  func(a, b any) any { return a.(int64) + b.(int64) },
	heapInit: func(h *numericHeap) {},
	heapFold: func(h *numericHeap) {
		h.i++
		h.seen = true
	},
	heapGet: func(h *numericHeap) any { return h.i },
}

// NewSumFloat returns a factory computing the float sum of field.
// An all-null group aggregates to nil in NullSQL mode.
func NewSumFloat(name, field string, nulls NullHandling) Factory {
	return &scalarFactory{name: name, field: field, nulls: nulls, ops: opsSumFloat}
}

// NewSumInt returns a factory computing the integer sum of field.
func NewSumInt(name, field string, nulls NullHandling) Factory {
	return &scalarFactory{name: name, field: field, nulls: nulls, ops: opsSumInt}
}

// NewAvgFloat returns a factory computing the float mean of field.
// Get yields the mergeable Mean intermediate; Finalize divides.
func NewAvgFloat(name, field string, nulls NullHandling) Factory {
	return &scalarFactory{name: name, field: field, nulls: nulls, ops: opsAvgFloat}
}

// NewAvgInt returns a factory computing the integer mean of field
// with integer-division finalization.
func NewAvgInt(name, field string, nulls NullHandling) Factory {
	return &scalarFactory{name: name, field: field, nulls: nulls, ops: opsAvgInt}
}

// opsCountNonNull is the column-count form: identical slot shape,
// but the generic null gate applies, so null rows are skipped in
// NullSQL mode.
var opsCountNonNull = func() *scalarOps {
	ops := *opsCount
	ops.id = ckCountNonNull
	ops.kind = "count.field"
	ops.countsNulls = false
	return &ops
}()

// NewCount returns a factory counting rows (COUNT(*)).
// Counts from different segments merge as an integer sum.
func NewCount(name string) Factory {
	return &scalarFactory{name: name, nulls: NullZero, ops: opsCount, combining: opsSumInt}
}

// NewCountNonNull returns a factory counting the rows for which
// field is non-null (COUNT(col)); in NullZero mode it counts every
// row, matching the legacy treatment of null as zero.
func NewCountNonNull(name, field string, nulls NullHandling) Factory {
	return &scalarFactory{name: name, field: field, nulls: nulls, ops: opsCountNonNull, combining: opsSumInt}
}
