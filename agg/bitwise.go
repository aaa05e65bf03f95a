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

// Bitwise and boolean kinds. The neutral values mirror the
// operator identities: all-ones for AND, zero for OR/XOR, true for
// boolean AND, false for boolean OR.

func bitOps(id byte, kind string, neutral uint64, fold func(dst, src []byte), word func(a, b uint64) uint64) *scalarOps {
	return &scalarOps{
		id:    id,
		kind:  kind,
		width: 16,
		init: func(slot []byte) {
			putu64(slot, neutral)
			putu64(slot[8:], 0)
		},
		update: func(slot []byte, a *scalarBufferAggregator) {
			putu64(slot, word(getu64(slot), uint64(a.sel.Int64())))
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
			if getu64(src[8:]) == 0 {
				return
			}
			if getu64(dst[8:]) == 0 {
				copy(dst[:16], src[:16])
				return
			}
			fold(dst, src)
		},
		combine:  func(a, b any) any { return int64(word(uint64(a.(int64)), uint64(b.(int64)))) },
		heapInit: func(h *numericHeap) { h.i = int64(neutral) },
		heapFold: func(h *numericHeap) {
			h.i = int64(word(uint64(h.i), uint64(h.sel.Int64())))
			h.seen = true
		},
		heapGet: func(h *numericHeap) any {
			if !h.seen {
				return nil
			}
			return h.i
		},
	}
}

func boolOps(id byte, kind string, neutral uint64, word func(a, b uint64) uint64) *scalarOps {
	ops := bitOps(id, kind, neutral, nil, word)
	ops.merge = func(dst, src []byte) {
		if getu64(src[8:]) == 0 {
			return
		}
		if getu64(dst[8:]) == 0 {
			copy(dst[:16], src[:16])
			return
		}
		putu64(dst, word(getu64(dst), getu64(src)))
	}
	ops.update = func(slot []byte, a *scalarBufferAggregator) {
		v := uint64(0)
		if a.sel.Int64() != 0 {
			v = 1
		}
		putu64(slot, word(getu64(slot), v))
		putu64(slot[8:], 1)
	}
	ops.get = func(slot []byte) any {
		if getu64(slot[8:]) == 0 {
			return nil
		}
		return getu64(slot) != 0
	}
	ops.combine = func(a, b any) any {
		x, y := uint64(0), uint64(0)
		if a.(bool) {
			x = 1
		}
		if b.(bool) {
			y = 1
		}
		return word(x, y) != 0
	}
	ops.heapFold = func(h *numericHeap) {
		v := uint64(0)
		if h.sel.Int64() != 0 {
			v = 1
		}
		h.i = int64(word(uint64(h.i), v))
		h.seen = true
	}
	ops.heapGet = func(h *numericHeap) any {
		if !h.seen {
			return nil
		}
		return h.i != 0
	}
	return ops
}

var (
	opsBitAnd = bitOps(ckBitAnd, "bit.and", ^uint64(0),
		func(dst, src []byte) { bufferAndInt64(dst, src) },
		func(a, b uint64) uint64 { return a & b })
	opsBitOr = bitOps(ckBitOr, "bit.or", 0,
		func(dst, src []byte) { bufferOrInt64(dst, src) },
		func(a, b uint64) uint64 { return a | b })
	opsBitXor = bitOps(ckBitXor, "bit.xor", 0,
		func(dst, src []byte) { bufferXorInt64(dst, src) },
		func(a, b uint64) uint64 { return a ^ b })

	opsBoolAnd = boolOps(ckBoolAnd, "bool.and", 1,
		func(a, b uint64) uint64 { return a & b })
	opsBoolOr = boolOps(ckBoolOr, "bool.or", 0,
		func(a, b uint64) uint64 { return a | b })
)

// NewBitAnd returns a factory computing the bitwise AND of field.
func NewBitAnd(name, field string, nulls NullHandling) Factory {
	return &scalarFactory{name: name, field: field, nulls: nulls, ops: opsBitAnd}
}

// NewBitOr returns a factory computing the bitwise OR of field.
func NewBitOr(name, field string, nulls NullHandling) Factory {
	return &scalarFactory{name: name, field: field, nulls: nulls, ops: opsBitOr}
}

// NewBitXor returns a factory computing the bitwise XOR of field.
func NewBitXor(name, field string, nulls NullHandling) Factory {
	return &scalarFactory{name: name, field: field, nulls: nulls, ops: opsBitXor}
}

// NewBoolAnd returns a factory computing the conjunction of field
// interpreted as a boolean (non-zero is true).
func NewBoolAnd(name, field string, nulls NullHandling) Factory {
	return &scalarFactory{name: name, field: field, nulls: nulls, ops: opsBoolAnd}
}

// NewBoolOr is the disjunction form of NewBoolAnd.
func NewBoolOr(name, field string, nulls NullHandling) Factory {
	return &scalarFactory{name: name, field: field, nulls: nulls, ops: opsBoolOr}
}
