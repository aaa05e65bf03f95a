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
	"sync"

	"github.com/influxdata/tdigest"

	"github.com/SnellerInc/aggbuf/cachekey"
)

// The t-digest library type cannot be represented as fixed-width
// slot bytes, so the aggregator keeps a side table keyed by
// (buffer handle, position) and writes only a tag word into the
// slot itself. The side table is shared between relocation calls
// and aggregate calls on other positions of the same buffer, so
// every public method takes the aggregator's lock.

// tdigestTag marks a slot whose state lives in the side table;
// Init writes it, and a mismatch on read means the slot was never
// initialized by this aggregator.
const tdigestTag uint64 = 0x7d16e577a65b1e5c

const tdigestWidth = 8

type tdigestFactory struct {
	name        string
	field       string
	compression float64
	quantile    float64
}

// NewTDigest returns a factory merging field values into a t-digest
// with the given compression; Finalize reports the value at
// quantile (in (0,1)).
func NewTDigest(name, field string, compression, quantile float64) (Factory, error) {
	if compression <= 0 {
		return nil, fmt.Errorf("agg: t-digest compression %v must be positive", compression)
	}
	if quantile <= 0 || quantile >= 1 {
		return nil, fmt.Errorf("agg: quantile %v outside (0, 1)", quantile)
	}
	return &tdigestFactory{
		name:        name,
		field:       field,
		compression: compression,
		quantile:    quantile,
	}, nil
}

func (f *tdigestFactory) Name() string { return f.name }
func (f *tdigestFactory) Width() int   { return tdigestWidth }

func (f *tdigestFactory) New(src SelectorSource) BufferAggregator {
	return &tdigestBufferAggregator{
		sel:         columnOf(src, f.field),
		compression: f.compression,
		digests:     make(map[Slot]*tdigest.TDigest),
	}
}

func (f *tdigestFactory) NewHeap(src SelectorSource) Aggregator {
	return &tdigestHeapAggregator{
		sel:         columnOf(src, f.field),
		compression: f.compression,
		digest:      tdigest.NewWithCompression(f.compression),
	}
}

func (f *tdigestFactory) CacheKey() []byte {
	b := cachekey.New(ckTDigest)
	b.AppendString(f.name)
	b.AppendString(f.field)
	b.AppendDouble(f.compression)
	b.AppendDouble(f.quantile)
	return b.Build()
}

// Combine merges into a fresh digest so neither operand is
// mutated; callers may hold a partial result across combines.
func (f *tdigestFactory) Combine(a, b any) any {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	out := tdigest.NewWithCompression(f.compression)
	out.Merge(a.(*tdigest.TDigest))
	out.Merge(b.(*tdigest.TDigest))
	return out
}

func (f *tdigestFactory) Finalize(v any) any {
	if v == nil {
		return nil
	}
	return v.(*tdigest.TDigest).Quantile(f.quantile)
}

func (f *tdigestFactory) CombiningFactory() Factory {
	return &tdigestCombiningFactory{tdigestFactory{
		name:        f.name,
		field:       f.name,
		compression: f.compression,
		quantile:    f.quantile,
	}}
}

// Spillable is false: the intermediate state lives in the side
// table, not in the slot bytes, so a raw-slot spill would lose it.
func (f *tdigestFactory) Spillable() bool { return false }

func (f *tdigestFactory) MergeSlot(dst, src []byte) {
	panic(fmt.Errorf("agg: t-digest slots hold no mergeable bytes"))
}

// tdigestCombiningFactory reads finalized *tdigest.TDigest values
// from its input column instead of raw floats.
type tdigestCombiningFactory struct {
	tdigestFactory
}

func (f *tdigestCombiningFactory) New(src SelectorSource) BufferAggregator {
	a := f.tdigestFactory.New(src).(*tdigestBufferAggregator)
	a.pairs = true
	return a
}

type tdigestBufferAggregator struct {
	mu          sync.Mutex
	sel         Selector
	compression float64
	pairs       bool // fold *tdigest.TDigest inputs instead of floats
	closed      bool
	digests     map[Slot]*tdigest.TDigest
}

func (a *tdigestBufferAggregator) Init(buf *Buffer, pos int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		panic(fmt.Errorf("%w: Init after Close", ErrClosed))
	}
	putu64(buf.Bytes(pos, tdigestWidth), tdigestTag)
	// idempotent: re-initializing an existing slot resets it
	a.digests[slotOf(buf, pos)] = tdigest.NewWithCompression(a.compression)
}

func (a *tdigestBufferAggregator) Aggregate(buf *Buffer, pos int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	d := a.lookup(buf, pos)
	if a.sel.IsNull() {
		return
	}
	if a.pairs {
		if t, ok := a.sel.Value().(*tdigest.TDigest); ok {
			d.Merge(t)
		}
		return
	}
	d.Add(a.sel.Float64(), 1)
}

func (a *tdigestBufferAggregator) Get(buf *Buffer, pos int) any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lookup(buf, pos)
}

// Float64 and Int64 are deliberately unsupported: a quantile
// sketch has no canonical scalar until it is finalized against a
// quantile, and guessing one here would silently change results.
func (a *tdigestBufferAggregator) Float64(buf *Buffer, pos int) float64 {
	panic(fmt.Errorf("%w: t-digest has no float projection", ErrUnsupportedGet))
}

func (a *tdigestBufferAggregator) Int64(buf *Buffer, pos int) int64 {
	panic(fmt.Errorf("%w: t-digest has no integer projection", ErrUnsupportedGet))
}

func (a *tdigestBufferAggregator) Relocate(oldPos, newPos int, oldBuf, newBuf *Buffer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		panic(fmt.Errorf("%w: Relocate after Close", ErrClosed))
	}
	old := slotOf(oldBuf, oldPos)
	d := a.digests[old]
	if d == nil {
		panic(fmt.Errorf("%w: relocate of (%d, %d)", ErrSlotUnknown, oldBuf.Handle(), oldPos))
	}
	delete(a.digests, old)
	a.digests[slotOf(newBuf, newPos)] = d
	putu64(newBuf.Bytes(newPos, tdigestWidth), tdigestTag)
}

func (a *tdigestBufferAggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.digests = nil
}

func (a *tdigestBufferAggregator) InspectShape(si ShapeInspector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	si.Visit("kind", "tdigest")
	si.Visit("compression", a.compression)
	si.Visit("slots", len(a.digests))
}

// lookup must be called with the lock held.
func (a *tdigestBufferAggregator) lookup(buf *Buffer, pos int) *tdigest.TDigest {
	if a.closed {
		panic(fmt.Errorf("%w: use after Close", ErrClosed))
	}
	d := a.digests[slotOf(buf, pos)]
	if d == nil || getu64(buf.Bytes(pos, tdigestWidth)) != tdigestTag {
		panic(fmt.Errorf("%w: slot (%d, %d)", ErrSlotUnknown, buf.Handle(), pos))
	}
	return d
}

type tdigestHeapAggregator struct {
	sel         Selector
	compression float64
	digest      *tdigest.TDigest
}

func (a *tdigestHeapAggregator) Aggregate() {
	if a.sel.IsNull() {
		return
	}
	a.digest.Add(a.sel.Float64(), 1)
}

func (a *tdigestHeapAggregator) Get() any { return a.digest }

func (a *tdigestHeapAggregator) Float64() float64 {
	panic(fmt.Errorf("%w: t-digest has no float projection", ErrUnsupportedGet))
}

func (a *tdigestHeapAggregator) Int64() int64 {
	panic(fmt.Errorf("%w: t-digest has no integer projection", ErrUnsupportedGet))
}

func (a *tdigestHeapAggregator) Clone() Aggregator {
	return &tdigestHeapAggregator{
		sel:         a.sel,
		compression: a.compression,
		digest:      tdigest.NewWithCompression(a.compression),
	}
}

func (a *tdigestHeapAggregator) Close() { a.digest = nil }
