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

// First/last kinds are timestamp-directed: the winning row is
// chosen by comparing the bound time column, not by arrival order,
// so the result is row-order independent given correct timestamps.
// Slot layout is [timestamp:8][value:8][mark:8], timestamps in unix
// microseconds. Ties: first keeps the incumbent, last takes the
// newcomer.

// TimedValue is the null-bearing pair returned by first/last
// aggregations: the winning row's timestamp plus its value.
// Value is a float64 or int64; a group that never observed a
// non-null row yields nil from Get instead of a TimedValue.
type TimedValue struct {
	At    int64 // unix microseconds
	Value any
}

func firstlastOps(id byte, kind string, last, float bool) *scalarOps {
	wins := func(t, cur int64) bool {
		if last {
			return t >= cur
		}
		return t < cur
	}
	ops := &scalarOps{
		id:    id,
		kind:  kind,
		width: 24,
		init: func(slot []byte) {
			puti64(slot, 0)
			putu64(slot[8:], 0)
			putu64(slot[16:], 0)
		},
		update: func(slot []byte, a *scalarBufferAggregator) {
			t := int64(0)
			if a.ts != nil {
				t = a.ts.Int64()
			}
			if getu64(slot[16:]) != 0 && !wins(t, geti64(slot)) {
				return
			}
			puti64(slot, t)
			if float {
				putf64(slot[8:], a.sel.Float64())
			} else {
				puti64(slot[8:], a.sel.Int64())
			}
			putu64(slot[16:], 1)
		},
		get: func(slot []byte) any {
			if getu64(slot[16:]) == 0 {
				return nil
			}
			tv := TimedValue{At: geti64(slot)}
			if float {
				tv.Value = getf64(slot[8:])
			} else {
				tv.Value = geti64(slot[8:])
			}
			return tv
		},
		f64: func(slot []byte) float64 {
			if float {
				return getf64(slot[8:])
			}
			return float64(geti64(slot[8:]))
		},
		i64: func(slot []byte) int64 {
			if float {
				return int64(getf64(slot[8:]))
			}
			return geti64(slot[8:])
		},
		merge: func(dst, src []byte) {
			if getu64(src[16:]) == 0 {
				return
			}
			if getu64(dst[16:]) != 0 && !wins(geti64(src), geti64(dst)) {
				return
			}
			copy(dst[:24], src[:24])
		},
		combine: func(a, b any) any {
			x, y := a.(TimedValue), b.(TimedValue)
			if wins(y.At, x.At) {
				return y
			}
			return x
		},
		heapInit: func(h *numericHeap) {},
		heapFold: func(h *numericHeap) {
			t := int64(0)
			if h.ts != nil {
				t = h.ts.Int64()
			}
			if h.seen && !wins(t, h.at) {
				return
			}
			h.at = t
			if float {
				h.f = h.sel.Float64()
			} else {
				h.i = h.sel.Int64()
			}
			h.seen = true
		},
		heapGet: func(h *numericHeap) any {
			if !h.seen {
				return nil
			}
			tv := TimedValue{At: h.at}
			if float {
				tv.Value = h.f
			} else {
				tv.Value = h.i
			}
			return tv
		},
	}

	// the combining form folds already-finalized TimedValue pairs
	// (read from this aggregation's own output column) instead of
	// raw scalar rows
	pairs := *ops
	pairs.update = func(slot []byte, a *scalarBufferAggregator) {
		tv, ok := a.sel.Value().(TimedValue)
		if !ok {
			return
		}
		if getu64(slot[16:]) != 0 && !wins(tv.At, geti64(slot)) {
			return
		}
		puti64(slot, tv.At)
		if float {
			putf64(slot[8:], timedFloat(tv))
		} else {
			puti64(slot[8:], int64(timedFloat(tv)))
		}
		putu64(slot[16:], 1)
	}
	pairs.heapFold = func(h *numericHeap) {
		tv, ok := h.sel.Value().(TimedValue)
		if !ok {
			return
		}
		if h.seen && !wins(tv.At, h.at) {
			return
		}
		h.at = tv.At
		if float {
			h.f = timedFloat(tv)
		} else {
			h.i = int64(timedFloat(tv))
		}
		h.seen = true
	}
	ops.pairwise = &pairs
	return ops
}

var (
	opsFirstFloat = firstlastOps(ckFirstFloat, "first.float", false, true)
	opsFirstInt   = firstlastOps(ckFirstInt, "first.int", false, false)
	opsLastFloat  = firstlastOps(ckLastFloat, "last.float", true, true)
	opsLastInt    = firstlastOps(ckLastInt, "last.int", true, false)
)

// NewFirstFloat returns a factory keeping the earliest-timestamped
// non-null float of field; timeField supplies the timestamp column
// in unix microseconds.
func NewFirstFloat(name, field, timeField string, nulls NullHandling) Factory {
	return &scalarFactory{name: name, field: field, timeField: timeField, nulls: nulls, ops: opsFirstFloat}
}

// NewFirstInt is the integer form of NewFirstFloat.
func NewFirstInt(name, field, timeField string, nulls NullHandling) Factory {
	return &scalarFactory{name: name, field: field, timeField: timeField, nulls: nulls, ops: opsFirstInt}
}

// NewLastFloat returns a factory keeping the latest-timestamped
// non-null float of field.
func NewLastFloat(name, field, timeField string, nulls NullHandling) Factory {
	return &scalarFactory{name: name, field: field, timeField: timeField, nulls: nulls, ops: opsLastFloat}
}

// NewLastInt is the integer form of NewLastFloat.
func NewLastInt(name, field, timeField string, nulls NullHandling) Factory {
	return &scalarFactory{name: name, field: field, timeField: timeField, nulls: nulls, ops: opsLastInt}
}
