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

// Any kinds capture the first non-null value observed and never
// overwrite it; the mark word is the "found" flag. Null rows are
// skipped by the generic null gate, so in NullSQL mode a later
// non-null value can still win over earlier nulls.

var opsAnyFloat = &scalarOps{
	id:    ckAnyFloat,
	kind:  "any.float",
	width: 16,
	init: func(slot []byte) {
		putf64(slot, 0)
		putu64(slot[8:], 0)
	},
	update: func(slot []byte, a *scalarBufferAggregator) {
		if getu64(slot[8:]) != 0 {
			return
		}
		putf64(slot, a.sel.Float64())
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
		if getu64(dst[8:]) == 0 && getu64(src[8:]) != 0 {
			copy(dst[:16], src[:16])
		}
	},
	combine:  func(a, b any) any { return a },
	heapInit: func(h *numericHeap) {},
	heapFold: func(h *numericHeap) {
		if h.seen {
			return
		}
		h.f = h.sel.Float64()
		h.seen = true
	},
	heapGet: func(h *numericHeap) any {
		if !h.seen {
			return nil
		}
		return h.f
	},
}

var opsAnyInt = &scalarOps{
	id:    ckAnyInt,
	kind:  "any.int",
	width: 16,
	init: func(slot []byte) {
		puti64(slot, 0)
		putu64(slot[8:], 0)
	},
	update: func(slot []byte, a *scalarBufferAggregator) {
		if getu64(slot[8:]) != 0 {
			return
		}
		puti64(slot, a.sel.Int64())
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
		if getu64(dst[8:]) == 0 && getu64(src[8:]) != 0 {
			copy(dst[:16], src[:16])
		}
	},
	combine:  func(a, b any) any { return a },
	heapInit: func(h *numericHeap) {},
	heapFold: func(h *numericHeap) {
		if h.seen {
			return
		}
		h.i = h.sel.Int64()
		h.seen = true
	},
	heapGet: func(h *numericHeap) any {
		if !h.seen {
			return nil
		}
		return h.i
	},
}

// NewAnyFloat returns a factory capturing the first non-null float
// observed for field; Get yields nil when the group never produced
// a non-null value.
func NewAnyFloat(name, field string, nulls NullHandling) Factory {
	return &scalarFactory{name: name, field: field, nulls: nulls, ops: opsAnyFloat}
}

// NewAnyInt is the integer form of NewAnyFloat.
func NewAnyInt(name, field string, nulls NullHandling) Factory {
	return &scalarFactory{name: name, field: field, nulls: nulls, ops: opsAnyInt}
}
