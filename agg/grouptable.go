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
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dolthub/swiss"
	"github.com/go-kit/log"
	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/SnellerInc/aggbuf/compr"
)

var (
	// ErrNotSpillable is returned by Spill and Merge when some
	// aggregation keeps state outside the buffer slots, so a raw
	// slot stream cannot represent it.
	ErrNotSpillable = errors.New("agg: aggregation state is not buffer-resident")

	// ErrTableClosed is returned when a closed table is used.
	ErrTableClosed = errors.New("agg: group table is closed")
)

// spill stream framing
const (
	spillMagic   = "AGTB"
	spillVersion = 1
)

// GroupTable is the grouping engine: it owns one buffer arena of
// fixed-width rows (one row per group, one slot per aggregation)
// and drives every aggregator against it. A table is driven by a
// single cursor thread; it is not safe for concurrent use.
type GroupTable struct {
	id     uuid.UUID
	logger log.Logger

	facs     []Factory
	aggs     []BufferAggregator
	offs     []int // slot offset of each aggregation within a row
	rowWidth int

	buf   *Buffer
	slots *swiss.Map[string, int32]
	keys  []string // slot -> group key
	comp  string   // spill codec name

	closed bool
}

// NewGroupTable builds a grouping table over the given aggregation
// factories, binding each aggregator to src's selectors. The
// caller advances its cursor and calls Update once per row.
func NewGroupTable(cfg Config, facs []Factory, src SelectorSource) (*GroupTable, error) {
	if len(facs) == 0 {
		return nil, fmt.Errorf("agg: group table needs at least one aggregation")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &GroupTable{
		id:     uuid.New(),
		logger: log.NewNopLogger(),
		facs:   facs,
		aggs:   make([]BufferAggregator, len(facs)),
		offs:   make([]int, len(facs)),
		comp:   cfg.SpillCompression,
	}
	if g.comp == "" {
		g.comp = "s2"
	}
	width := 0
	for i, f := range facs {
		g.offs[i] = width
		width += f.Width()
		g.aggs[i] = f.New(src)
	}
	g.rowWidth = width
	capacity := cfg.GroupCapacity
	if capacity <= 0 {
		capacity = 16
	}
	g.buf = NewBuffer(capacity * width)
	g.slots = swiss.NewMap[string, int32](uint32(capacity))
	return g, nil
}

// SetLogger installs a logger for growth and spill diagnostics.
func (g *GroupTable) SetLogger(l log.Logger) {
	if l != nil {
		g.logger = l
	}
}

// ID returns the table's identity, carried in spill headers and
// log lines.
func (g *GroupTable) ID() uuid.UUID { return g.id }

// Len returns the number of groups.
func (g *GroupTable) Len() int { return len(g.keys) }

// RowWidth returns the number of slot bytes per group.
func (g *GroupTable) RowWidth() int { return g.rowWidth }

// Update folds the cursor's current row into the group identified
// by key, creating and initializing the group on first sight.
func (g *GroupTable) Update(key []byte) error {
	if g.closed {
		return ErrTableClosed
	}
	slot, ok := g.slots.Get(string(key))
	if !ok {
		slot = g.newGroup(string(key))
	}
	base := int(slot) * g.rowWidth
	for i, a := range g.aggs {
		a.Aggregate(g.buf, base+g.offs[i])
	}
	return nil
}

func (g *GroupTable) newGroup(key string) int32 {
	need := (len(g.keys) + 1) * g.rowWidth
	if need > g.buf.Size() {
		g.grow(need)
	}
	slot := int32(len(g.keys))
	g.keys = append(g.keys, key)
	g.slots.Put(key, slot)
	base := int(slot) * g.rowWidth
	for i, a := range g.aggs {
		a.Init(g.buf, base+g.offs[i])
	}
	return slot
}

// grow replaces the arena wholesale and relocates every live slot
// into the new buffer; positions are preserved, only the backing
// buffer changes.
func (g *GroupTable) grow(need int) {
	size := g.buf.Size() * 2
	if size < need {
		size = need
	}
	next := NewBuffer(size)
	for s := 0; s < len(g.keys); s++ {
		base := s * g.rowWidth
		for i, a := range g.aggs {
			a.Relocate(base+g.offs[i], base+g.offs[i], g.buf, next)
		}
	}
	g.logger.Log("table", g.id.String(), "msg", "arena grown",
		"from", g.buf.Size(), "to", size, "groups", len(g.keys))
	g.buf = next
}

// Get returns the intermediate Get results for one group.
func (g *GroupTable) Get(key []byte) ([]any, bool) {
	slot, ok := g.slots.Get(string(key))
	if !ok {
		return nil, false
	}
	return g.row(slot), true
}

func (g *GroupTable) row(slot int32) []any {
	base := int(slot) * g.rowWidth
	vals := make([]any, len(g.aggs))
	for i, a := range g.aggs {
		vals[i] = a.Get(g.buf, base+g.offs[i])
	}
	return vals
}

// Each visits every group in an unspecified order; returning false
// stops the walk.
func (g *GroupTable) Each(fn func(key string, vals []any) bool) {
	for s := range g.keys {
		if !fn(g.keys[s], g.row(int32(s))) {
			return
		}
	}
}

// Keys returns the group keys in sorted order, for deterministic
// result emission.
func (g *GroupTable) Keys() []string {
	out := slices.Clone(g.keys)
	slices.Sort(out)
	return out
}

// FinalizeRow maps one group's intermediate values through each
// factory's finalizer.
func (g *GroupTable) FinalizeRow(vals []any) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = g.facs[i].Finalize(v)
	}
	return out
}

// Close closes every aggregator exactly once.
func (g *GroupTable) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	for _, a := range g.aggs {
		a.Close()
	}
	return nil
}

func (g *GroupTable) spillable() bool {
	for _, f := range g.facs {
		if !f.Spillable() {
			return false
		}
	}
	return true
}

// Spill writes the table's groups as a compressed stream of raw
// slot rows. The table is left untouched. Spill fails with
// ErrNotSpillable when any aggregation keeps off-buffer state.
func (g *GroupTable) Spill(w io.Writer) error {
	if g.closed {
		return ErrTableClosed
	}
	if !g.spillable() {
		return ErrNotSpillable
	}
	cmp := compr.Compression(g.comp)
	if cmp == nil {
		return fmt.Errorf("agg: unknown spill codec %q", g.comp)
	}

	raw := make([]byte, 0, len(g.keys)*(g.rowWidth+8))
	for s := range g.keys {
		raw = binary.LittleEndian.AppendUint32(raw, uint32(len(g.keys[s])))
		raw = append(raw, g.keys[s]...)
		raw = append(raw, g.buf.Bytes(s*g.rowWidth, g.rowWidth)...)
	}
	packed := cmp.Compress(raw, nil)

	var hdr []byte
	hdr = append(hdr, spillMagic...)
	hdr = append(hdr, spillVersion)
	hdr = append(hdr, g.id[:]...)
	hdr = append(hdr, byte(len(cmp.Name())))
	hdr = append(hdr, cmp.Name()...)
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(len(g.keys)))
	hdr = binary.LittleEndian.AppendUint64(hdr, uint64(len(raw)))
	hdr = binary.LittleEndian.AppendUint64(hdr, uint64(len(packed)))
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	if _, err := w.Write(packed); err != nil {
		return err
	}
	g.logger.Log("table", g.id.String(), "msg", "spilled",
		"groups", len(g.keys), "raw", len(raw), "compressed", len(packed))
	return nil
}

// Merge folds a spilled table produced by a GroupTable with the
// same aggregation factories into this one. Groups present on both
// sides merge slot-by-slot; new groups are created.
func (g *GroupTable) Merge(r io.Reader) error {
	if g.closed {
		return ErrTableClosed
	}
	if !g.spillable() {
		return ErrNotSpillable
	}
	var hdr [21]byte // magic + version + uuid
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return fmt.Errorf("agg: reading spill header: %w", err)
	}
	if string(hdr[:4]) != spillMagic {
		return fmt.Errorf("agg: bad spill magic %q", hdr[:4])
	}
	if hdr[4] != spillVersion {
		return fmt.Errorf("agg: unsupported spill version %d", hdr[4])
	}
	var src uuid.UUID
	copy(src[:], hdr[5:])
	if src == g.id {
		return fmt.Errorf("agg: refusing to merge table %s into itself", g.id)
	}
	var nlen [1]byte
	if _, err := io.ReadFull(r, nlen[:]); err != nil {
		return err
	}
	name := make([]byte, nlen[0])
	if _, err := io.ReadFull(r, name); err != nil {
		return err
	}
	dec := compr.Decompression(string(name))
	if dec == nil {
		return fmt.Errorf("agg: unknown spill codec %q", name)
	}
	var sizes [20]byte
	if _, err := io.ReadFull(r, sizes[:]); err != nil {
		return err
	}
	groups := binary.LittleEndian.Uint32(sizes[0:])
	rawLen := binary.LittleEndian.Uint64(sizes[4:])
	packedLen := binary.LittleEndian.Uint64(sizes[12:])

	packed := make([]byte, packedLen)
	if _, err := io.ReadFull(r, packed); err != nil {
		return err
	}
	raw := make([]byte, rawLen)
	if err := dec.Decompress(packed, raw); err != nil {
		return err
	}

	for n := uint32(0); n < groups; n++ {
		if len(raw) < 4 {
			return fmt.Errorf("agg: truncated spill stream")
		}
		klen := binary.LittleEndian.Uint32(raw)
		raw = raw[4:]
		if len(raw) < int(klen)+g.rowWidth {
			return fmt.Errorf("agg: truncated spill stream")
		}
		key := string(raw[:klen])
		raw = raw[klen:]
		row := raw[:g.rowWidth]
		raw = raw[g.rowWidth:]

		slot, ok := g.slots.Get(key)
		if !ok {
			slot = g.newGroup(key)
		}
		base := int(slot) * g.rowWidth
		for i, f := range g.facs {
			f.MergeSlot(g.buf.Bytes(base+g.offs[i], f.Width()), row[g.offs[i]:])
		}
	}
	g.logger.Log("table", g.id.String(), "msg", "merged spill",
		"source", src.String(), "groups", groups)
	return nil
}
