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

// HyperLogLog union aggregation, based on "HyperLogLog: the
// analysis of a near-optimal cardinality estimation algorithm"
// http://algo.inria.fr/flajolet/Publications/FlFuGaMe07.pdf
//
// The register array is small and fixed-width, so the whole sketch
// lives directly in the buffer slot: Init copies nothing but
// zeroes, Aggregate touches one register, and Get wraps the raw
// slot bytes as a view without materializing a heap sketch.

package agg

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"

	"github.com/axiomhq/hyperloglog"
	"github.com/dchest/siphash"

	"github.com/SnellerInc/aggbuf/cachekey"
)

const (
	hllMinPrecision = 4
	hllMaxPrecision = 16

	// fixed keys: the hash only needs to be stable within one
	// process, the same property the cache key format has
	hllK0 = 0
	hllK1 = 1
)

// HLL is a HyperLogLog register array. Values returned by a buffer
// aggregator's Get are views over the live slot bytes and are only
// valid until the slot is mutated; Combine always returns an owned
// copy.
type HLL struct {
	regs []byte
}

// Precision returns log2 of the register count.
func (h *HLL) Precision() int { return bits.TrailingZeros(uint(len(h.regs))) }

// Clone returns an owned copy of the registers.
func (h *HLL) Clone() *HLL {
	c := make([]byte, len(h.regs))
	copy(c, h.regs)
	return &HLL{regs: c}
}

// Merge folds other's registers into h (byte-wise maximum).
func (h *HLL) Merge(other *HLL) {
	bufferMaxBytes(h.regs, other.regs)
}

// Estimate returns the approximate cardinality with the usual
// small- and large-range corrections applied.
func (h *HLL) Estimate() uint64 {
	e := h.raw()
	m := float64(len(h.regs))

	if e < 5*m/2 {
		// small range correction
		if v := h.zeros(); v != 0 {
			e = m * math.Log(m/float64(v))
		}
		return uint64(e)
	}

	const pow = float64(1 << 32) // 2^32
	if e > pow/30 {
		// large range correction
		return uint64(-pow * math.Log(1-e/pow))
	}
	return uint64(e)
}

func (h *HLL) raw() float64 {
	s := 0.0
	for i := range h.regs {
		s += 1.0 / float64(uint64(1)<<h.regs[i])
	}
	m := len(h.regs)
	return hllAlpha(m) * float64(m) * float64(m) / s
}

func (h *HLL) zeros() int {
	n := 0
	for i := range h.regs {
		if h.regs[i] == 0 {
			n++
		}
	}
	return n
}

func hllAlpha(m int) float64 {
	switch m {
	case 16:
		return 0.673
	case 32:
		return 0.697
	case 64:
		return 0.709
	}
	return 0.7213 / (1.0 + 1.079/float64(m))
}

// hllHash hashes one column value into the 64-bit space the
// registers observe. Numeric values hash their 8-byte encoding so
// that equal values hash equally regardless of the row they came
// from.
func hllHash(v any) (uint64, bool) {
	var buf [8]byte
	switch x := v.(type) {
	case string:
		return siphash.Hash(hllK0, hllK1, []byte(x)), true
	case []byte:
		return siphash.Hash(hllK0, hllK1, x), true
	case int64:
		binary.LittleEndian.PutUint64(buf[:], uint64(x))
	case uint64:
		binary.LittleEndian.PutUint64(buf[:], x)
	case float64:
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(x))
	case bool:
		if x {
			buf[0] = 1
		}
	case nil:
		return 0, false
	default:
		return siphash.Hash(hllK0, hllK1, []byte(fmt.Sprint(x))), true
	}
	return siphash.Hash(hllK0, hllK1, buf[:]), true
}

type hllFactory struct {
	name      string
	field     string
	precision int
}

// NewApproxCountDistinct returns a factory estimating the count of
// distinct non-null values of field with a HyperLogLog of 2^precision
// registers (precision in [4,16]). The buffer variant keeps the
// registers in the slot bytes; the heap variant holds a sketch
// object directly.
func NewApproxCountDistinct(name, field string, precision int) (Factory, error) {
	if precision < hllMinPrecision || precision > hllMaxPrecision {
		return nil, fmt.Errorf("agg: precision %d outside [%d, %d]",
			precision, hllMinPrecision, hllMaxPrecision)
	}
	return &hllFactory{name: name, field: field, precision: precision}, nil
}

func (f *hllFactory) Name() string { return f.name }
func (f *hllFactory) Width() int   { return 1 << f.precision }

func (f *hllFactory) New(src SelectorSource) BufferAggregator {
	return &hllBufferAggregator{
		sel:       columnOf(src, f.field),
		precision: f.precision,
		width:     1 << f.precision,
	}
}

func (f *hllFactory) NewHeap(src SelectorSource) Aggregator {
	return newCardinalityAggregator(columnOf(src, f.field))
}

func (f *hllFactory) CacheKey() []byte {
	b := cachekey.New(ckApproxCountDistinct)
	b.AppendString(f.name)
	b.AppendString(f.field)
	b.AppendInt(f.precision)
	return b.Build()
}

func (f *hllFactory) Combine(a, b any) any {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	switch x := a.(type) {
	case *HLL:
		out := x.Clone()
		out.Merge(b.(*HLL))
		return out
	case *hyperloglog.Sketch:
		out := x.Clone()
		if err := out.Merge(b.(*hyperloglog.Sketch)); err != nil {
			panic(fmt.Errorf("agg: merging cardinality sketches: %w", err))
		}
		return out
	default:
		panic(fmt.Errorf("agg: cannot combine %T cardinality results", a))
	}
}

func (f *hllFactory) Finalize(v any) any {
	switch x := v.(type) {
	case *HLL:
		return int64(x.Estimate())
	case *hyperloglog.Sketch:
		return int64(x.Estimate())
	case nil:
		return int64(0)
	}
	return v
}

func (f *hllFactory) CombiningFactory() Factory {
	return &hllFactory{name: f.name, field: f.name, precision: f.precision}
}

func (f *hllFactory) Spillable() bool { return true }

func (f *hllFactory) MergeSlot(dst, src []byte) {
	bufferMaxBytes(dst[:1<<f.precision], src[:1<<f.precision])
}

// hllBufferAggregator unions values into the registers stored in
// the slot bytes. Not safe for concurrent use.
type hllBufferAggregator struct {
	sel       Selector
	precision int
	width     int
}

func (a *hllBufferAggregator) Init(buf *Buffer, pos int) {
	regs := buf.Bytes(pos, a.width)
	for i := range regs {
		regs[i] = 0
	}
}

func (a *hllBufferAggregator) Aggregate(buf *Buffer, pos int) {
	// null is never a distinct value, in either null mode
	if a.sel.IsNull() {
		return
	}
	h, ok := hllHash(a.sel.Value())
	if !ok {
		return
	}
	regs := buf.Bytes(pos, a.width)
	p := uint(a.precision)
	bucket := h >> (64 - p)
	rho := uint8(bits.LeadingZeros64(h<<p)) + 1
	if lim := uint8(64 - p + 1); rho > lim {
		rho = lim
	}
	if rho > regs[bucket] {
		regs[bucket] = rho
	}
}

func (a *hllBufferAggregator) Get(buf *Buffer, pos int) any {
	return &HLL{regs: buf.Bytes(pos, a.width)}
}

// Float64 returns the current estimate; the sketch's only numeric
// projection is its cardinality.
func (a *hllBufferAggregator) Float64(buf *Buffer, pos int) float64 {
	return float64((&HLL{regs: buf.Bytes(pos, a.width)}).Estimate())
}

func (a *hllBufferAggregator) Int64(buf *Buffer, pos int) int64 {
	return int64((&HLL{regs: buf.Bytes(pos, a.width)}).Estimate())
}

func (a *hllBufferAggregator) Relocate(oldPos, newPos int, oldBuf, newBuf *Buffer) {
	copy(newBuf.Bytes(newPos, a.width), oldBuf.Bytes(oldPos, a.width))
}

func (a *hllBufferAggregator) Close() {}

func (a *hllBufferAggregator) InspectShape(si ShapeInspector) {
	si.Visit("kind", "approx_count_distinct")
	si.Visit("precision", a.precision)
	si.Visit("selector", fmt.Sprintf("%T", a.sel))
}
