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

import "math"

// Min/max kinds initialize the value word to the type's extreme
// sentinel (+Inf/-Inf, MaxInt64/MinInt64). Get returns the raw
// value word, sentinel included, so an empty group merges with real
// values through Combine without an empty-group special case.

var opsMinFloat = &scalarOps{
	id:    ckMinFloat,
	kind:  "min.float",
	width: 16,
	init: func(slot []byte) {
		putf64(slot, math.Inf(1))
		putu64(slot[8:], 0)
	},
	update: func(slot []byte, a *scalarBufferAggregator) {
		if v := a.sel.Float64(); v < getf64(slot) {
			putf64(slot, v)
		}
		putu64(slot[8:], 1)
	},
	get: func(slot []byte) any { return getf64(slot) },
	f64: func(slot []byte) float64 { return getf64(slot) },
	i64: func(slot []byte) int64 { return int64(getf64(slot)) },
	merge: func(dst, src []byte) {
		bufferMinFloat64(dst, src)
		bufferOrInt64(dst[8:], src[8:])
	},
	combine:  func(a, b any) any { return math.Min(a.(float64), b.(float64)) },
	heapInit: func(h *numericHeap) { h.f = math.Inf(1) },
	heapFold: func(h *numericHeap) {
		if v := h.sel.Float64(); v < h.f {
			h.f = v
		}
		h.seen = true
	},
	heapGet: func(h *numericHeap) any { return h.f },
}

var opsMaxFloat = &scalarOps{
	id:    ckMaxFloat,
	kind:  "max.float",
	width: 16,
	init: func(slot []byte) {
		putf64(slot, math.Inf(-1))
		putu64(slot[8:], 0)
	},
	update: func(slot []byte, a *scalarBufferAggregator) {
		if v := a.sel.Float64(); v > getf64(slot) {
			putf64(slot, v)
		}
		putu64(slot[8:], 1)
	},
	get: func(slot []byte) any { return getf64(slot) },
	f64: func(slot []byte) float64 { return getf64(slot) },
	i64: func(slot []byte) int64 { return int64(getf64(slot)) },
	merge: func(dst, src []byte) {
		bufferMaxFloat64(dst, src)
		bufferOrInt64(dst[8:], src[8:])
	},
	combine:  func(a, b any) any { return math.Max(a.(float64), b.(float64)) },
	heapInit: func(h *numericHeap) { h.f = math.Inf(-1) },
	heapFold: func(h *numericHeap) {
		if v := h.sel.Float64(); v > h.f {
			h.f = v
		}
		h.seen = true
	},
	heapGet: func(h *numericHeap) any { return h.f },
}

var opsMinInt = &scalarOps{
	id:    ckMinInt,
	kind:  "min.int",
	width: 16,
	init: func(slot []byte) {
		puti64(slot, math.MaxInt64)
		putu64(slot[8:], 0)
	},
	update: func(slot []byte, a *scalarBufferAggregator) {
		if v := a.sel.Int64(); v < geti64(slot) {
			puti64(slot, v)
		}
		putu64(slot[8:], 1)
	},
	get: func(slot []byte) any { return geti64(slot) },
	f64: func(slot []byte) float64 { return float64(geti64(slot)) },
	i64: func(slot []byte) int64 { return geti64(slot) },
	merge: func(dst, src []byte) {
		bufferMinInt64(dst, src)
		bufferOrInt64(dst[8:], src[8:])
	},
	combine: func(a, b any) any {
		x, y := a.(int64), b.(int64)
		if y < x {
			return y
		}
		return x
	},
	heapInit: func(h *numericHeap) { h.i = math.MaxInt64 },
	heapFold: func(h *numericHeap) {
		if v := h.sel.Int64(); v < h.i {
			h.i = v
		}
		h.seen = true
	},
	heapGet: func(h *numericHeap) any { return h.i },
}

var opsMaxInt = &scalarOps{
	id:    ckMaxInt,
	kind:  "max.int",
	width: 16,
	init: func(slot []byte) {
		puti64(slot, math.MinInt64)
		putu64(slot[8:], 0)
	},
	update: func(slot []byte, a *scalarBufferAggregator) {
		if v := a.sel.Int64(); v > geti64(slot) {
			puti64(slot, v)
		}
		putu64(slot[8:], 1)
	},
	get: func(slot []byte) any { return geti64(slot) },
	f64: func(slot []byte) float64 { return float64(geti64(slot)) },
	i64: func(slot []byte) int64 { return geti64(slot) },
	merge: func(dst, src []byte) {
		bufferMaxInt64(dst, src)
		bufferOrInt64(dst[8:], src[8:])
	},
	combine: func(a, b any) any {
		x, y := a.(int64), b.(int64)
		if y > x {
			return y
		}
		return x
	},
	heapInit: func(h *numericHeap) { h.i = math.MinInt64 },
	heapFold: func(h *numericHeap) {
		if v := h.sel.Int64(); v > h.i {
			h.i = v
		}
		h.seen = true
	},
	heapGet: func(h *numericHeap) any { return h.i },
}

// NewMinFloat returns a factory computing the float minimum of
// field; an empty group yields the +Inf sentinel.
func NewMinFloat(name, field string, nulls NullHandling) Factory {
	return &scalarFactory{name: name, field: field, nulls: nulls, ops: opsMinFloat}
}

// NewMaxFloat returns a factory computing the float maximum of
// field; an empty group yields the -Inf sentinel.
func NewMaxFloat(name, field string, nulls NullHandling) Factory {
	return &scalarFactory{name: name, field: field, nulls: nulls, ops: opsMaxFloat}
}

// NewMinInt returns a factory computing the integer minimum of
// field; an empty group yields MaxInt64.
func NewMinInt(name, field string, nulls NullHandling) Factory {
	return &scalarFactory{name: name, field: field, nulls: nulls, ops: opsMinInt}
}

// NewMaxInt returns a factory computing the integer maximum of
// field; an empty group yields MinInt64.
func NewMaxInt(name, field string, nulls NullHandling) Factory {
	return &scalarFactory{name: name, field: field, nulls: nulls, ops: opsMaxInt}
}
