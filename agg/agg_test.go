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
	"math"
	"testing"
)

// testSource is a cursor over in-memory columns; nil cells are null.
type testSource struct {
	cur  int
	cols map[string][]any
}

func (s *testSource) ColumnSelector(name string) Selector {
	vals, ok := s.cols[name]
	if !ok {
		return nil
	}
	return &testColumn{src: s, vals: vals}
}

type testColumn struct {
	src  *testSource
	vals []any
}

func (c *testColumn) value() any {
	if c.src.cur < len(c.vals) {
		return c.vals[c.src.cur]
	}
	return nil
}

func (c *testColumn) IsNull() bool { return c.value() == nil }

func (c *testColumn) Float64() float64 {
	switch v := c.value().(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

func (c *testColumn) Int64() int64 {
	switch v := c.value().(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	}
	return 0
}

func (c *testColumn) Value() any { return c.value() }

// run drives a buffer aggregator over every row of src.
func run(t *testing.T, f Factory, src *testSource, rows int) (BufferAggregator, *Buffer) {
	t.Helper()
	buf := NewBuffer(f.Width())
	a := f.New(src)
	a.Init(buf, 0)
	for src.cur = 0; src.cur < rows; src.cur++ {
		a.Aggregate(buf, 0)
	}
	return a, buf
}

func TestSumFloatSkipsNulls(t *testing.T) {
	src := &testSource{cols: map[string][]any{
		"x": {5.0, nil, 3.0},
	}}
	f := NewSumFloat("s", "x", NullSQL)
	a, buf := run(t, f, src, 3)
	defer a.Close()
	if got := a.Get(buf, 0); got != 8.0 {
		t.Errorf("sum with null row: got %v, want 8.0", got)
	}
	// same rows without the null produce the identical result
	src2 := &testSource{cols: map[string][]any{
		"x": {5.0, 3.0},
	}}
	a2, buf2 := run(t, f, src2, 2)
	defer a2.Close()
	if got := a2.Get(buf2, 0); got != 8.0 {
		t.Errorf("sum without null row: got %v, want 8.0", got)
	}
}

func TestSumNullModes(t *testing.T) {
	src := &testSource{cols: map[string][]any{
		"x": {nil, nil},
	}}
	sql := NewSumFloat("s", "x", NullSQL)
	a, buf := run(t, sql, src, 2)
	defer a.Close()
	if got := a.Get(buf, 0); got != nil {
		t.Errorf("all-null group in sql mode: got %v, want nil", got)
	}
	zero := NewSumFloat("s", "x", NullZero)
	a2, buf2 := run(t, zero, src, 2)
	defer a2.Close()
	if got := a2.Get(buf2, 0); got != 0.0 {
		t.Errorf("all-null group in zero mode: got %v, want 0.0", got)
	}
}

func TestInitIdempotent(t *testing.T) {
	facs := []Factory{
		NewSumFloat("s", "x", NullSQL),
		NewMaxInt("m", "x", NullSQL),
		NewCount("c"),
		NewAnyFloat("a", "x", NullSQL),
		NewLastFloat("l", "x", "ts", NullSQL),
	}
	src := &testSource{cols: map[string][]any{
		"x":  {1.0, 2.0, 3.0},
		"ts": {int64(10), int64(20), int64(30)},
	}}
	for _, f := range facs {
		t.Run(f.Name(), func(t *testing.T) {
			buf := NewBuffer(f.Width())
			fresh := NewBuffer(f.Width())
			a := f.New(src)
			defer a.Close()
			a.Init(buf, 0)
			a.Init(fresh, 0)
			for src.cur = 0; src.cur < 3; src.cur++ {
				a.Aggregate(buf, 0)
			}
			a.Init(buf, 0) // reset
			if got, want := a.Get(buf, 0), a.Get(fresh, 0); got != want {
				t.Errorf("re-Init state %v differs from fresh state %v", got, want)
			}
		})
	}
}

func TestMaxSentinel(t *testing.T) {
	f := NewMaxFloat("m", "x", NullSQL)
	src := &testSource{cols: map[string][]any{"x": {}}}
	a, buf := run(t, f, src, 0)
	defer a.Close()
	got := a.Get(buf, 0)
	if got != math.Inf(-1) {
		t.Fatalf("empty max slot: got %v, want -Inf", got)
	}
	// the sentinel is absorbed by any real value under Combine
	if c := f.Combine(got, 5.0); c != 5.0 {
		t.Errorf("Combine(-Inf, 5.0) = %v, want 5.0", c)
	}
	if c := f.Combine(5.0, got); c != 5.0 {
		t.Errorf("Combine(5.0, -Inf) = %v, want 5.0", c)
	}
}

func TestMinIntSentinel(t *testing.T) {
	f := NewMinInt("m", "x", NullSQL)
	src := &testSource{cols: map[string][]any{"x": {}}}
	a, buf := run(t, f, src, 0)
	defer a.Close()
	if got := a.Get(buf, 0); got != int64(math.MaxInt64) {
		t.Errorf("empty min slot: got %v, want MaxInt64", got)
	}
}

func TestCombineAssociative(t *testing.T) {
	f := NewMaxInt("m", "x", NullSQL)
	vals := []any{int64(3), int64(7), int64(5)}
	left := f.Combine(f.Combine(vals[0], vals[1]), vals[2])
	right := f.Combine(vals[0], f.Combine(vals[1], vals[2]))
	if left != right || left != int64(7) {
		t.Errorf("combine groupings disagree: %v vs %v, want 7", left, right)
	}
	if got := f.Combine(nil, int64(7)); got != int64(7) {
		t.Errorf("Combine(nil, 7) = %v", got)
	}
	if got := f.Combine(int64(7), nil); got != int64(7) {
		t.Errorf("Combine(7, nil) = %v", got)
	}
}

func TestAnyFirstWriteWins(t *testing.T) {
	src := &testSource{cols: map[string][]any{
		"x": {nil, nil, 9.0, 4.0},
	}}
	f := NewAnyFloat("a", "x", NullSQL)
	a, buf := run(t, f, src, 4)
	defer a.Close()
	if got := a.Get(buf, 0); got != 9.0 {
		t.Errorf("any over [null null 9 4]: got %v, want 9.0", got)
	}
}

func TestCountIncludesNulls(t *testing.T) {
	src := &testSource{cols: map[string][]any{
		"x": {1.0, nil, nil, 2.0},
	}}
	f := NewCount("c")
	a, buf := run(t, f, src, 4)
	defer a.Close()
	if got := a.Get(buf, 0); got != int64(4) {
		t.Errorf("count: got %v, want 4", got)
	}
	// partial counts merge as an integer sum
	cf := f.CombiningFactory()
	if got := cf.Combine(int64(4), int64(3)); got != int64(7) {
		t.Errorf("combined counts: got %v, want 7", got)
	}
}

func TestCountNonNull(t *testing.T) {
	src := &testSource{cols: map[string][]any{
		"x": {1.0, nil, nil, 2.0},
	}}
	f := NewCountNonNull("c", "x", NullSQL)
	a, buf := run(t, f, src, 4)
	defer a.Close()
	if got := a.Get(buf, 0); got != int64(2) {
		t.Errorf("count(col) in sql mode = %v, want 2", got)
	}
	z := NewCountNonNull("c", "x", NullZero)
	b, buf2 := run(t, z, src, 4)
	defer b.Close()
	if got := b.Get(buf2, 0); got != int64(4) {
		t.Errorf("count(col) in zero mode = %v, want 4", got)
	}
}

func TestRelocate(t *testing.T) {
	src := &testSource{cols: map[string][]any{
		"x": {2.0, 3.0, 5.0},
	}}
	f := NewSumFloat("s", "x", NullSQL)
	buf := NewBuffer(64)
	a := f.New(src)
	defer a.Close()
	a.Init(buf, 0)
	for src.cur = 0; src.cur < 2; src.cur++ {
		a.Aggregate(buf, 0)
	}

	t.Run("same-buffer", func(t *testing.T) {
		a.Relocate(0, 32, buf, buf)
		if got := a.Get(buf, 32); got != 5.0 {
			t.Fatalf("after repositioning: got %v, want 5.0", got)
		}
		src.cur = 2
		a.Aggregate(buf, 32)
		if got := a.Get(buf, 32); got != 10.0 {
			t.Errorf("aggregate after repositioning: got %v, want 10.0", got)
		}
	})

	t.Run("cross-buffer", func(t *testing.T) {
		next := NewBuffer(64)
		a.Relocate(32, 16, buf, next)
		if got := a.Get(next, 16); got != 10.0 {
			t.Errorf("after buffer replacement: got %v, want 10.0", got)
		}
	})
}

func TestAvgIntermediateAndFinalize(t *testing.T) {
	src := &testSource{cols: map[string][]any{
		"x": {2.0, 4.0, nil, 6.0},
	}}
	f := NewAvgFloat("a", "x", NullSQL)
	a, buf := run(t, f, src, 4)
	defer a.Close()
	m, ok := a.Get(buf, 0).(Mean)
	if !ok {
		t.Fatalf("avg Get returned %T, want Mean", a.Get(buf, 0))
	}
	if m.Sum != 12.0 || m.Count != 3 {
		t.Errorf("intermediate = %+v, want {12 3}", m)
	}
	if got := f.Finalize(m); got != 4.0 {
		t.Errorf("finalized avg = %v, want 4.0", got)
	}
	// partial means merge without losing the count
	merged := f.Combine(m, Mean{Sum: 8, Count: 1})
	if got := f.Finalize(merged); got != 5.0 {
		t.Errorf("finalized merged avg = %v, want 5.0", got)
	}
	if got := f.Finalize(Mean{}); got != nil {
		t.Errorf("finalized empty mean = %v, want nil", got)
	}
}

func TestAvgIntFinalizeTruncates(t *testing.T) {
	f := NewAvgInt("a", "x", NullSQL)
	if got := f.Finalize(MeanInt{Sum: 7, Count: 2}); got != int64(3) {
		t.Errorf("integer mean of 7/2 = %v, want 3", got)
	}
}

func TestFirstLastTimestampDirected(t *testing.T) {
	// rows arrive out of timestamp order
	src := &testSource{cols: map[string][]any{
		"x":  {30.0, 10.0, 20.0},
		"ts": {int64(300), int64(100), int64(200)},
	}}
	first := NewFirstFloat("f", "x", "ts", NullSQL)
	a, buf := run(t, first, src, 3)
	defer a.Close()
	got := a.Get(buf, 0).(TimedValue)
	if got.At != 100 || got.Value != 10.0 {
		t.Errorf("first = %+v, want {100 10}", got)
	}

	last := NewLastFloat("l", "x", "ts", NullSQL)
	b, buf2 := run(t, last, src, 3)
	defer b.Close()
	got = b.Get(buf2, 0).(TimedValue)
	if got.At != 300 || got.Value != 30.0 {
		t.Errorf("last = %+v, want {300 30}", got)
	}
}

func TestLastTieTakesNewcomer(t *testing.T) {
	src := &testSource{cols: map[string][]any{
		"x":  {1.0, 2.0},
		"ts": {int64(50), int64(50)},
	}}
	f := NewLastFloat("l", "x", "ts", NullSQL)
	a, buf := run(t, f, src, 2)
	defer a.Close()
	if got := a.Get(buf, 0).(TimedValue).Value; got != 2.0 {
		t.Errorf("last on tied timestamps: got %v, want 2.0", got)
	}
	// first keeps the incumbent on a tie
	ff := NewFirstFloat("f", "x", "ts", NullSQL)
	b, buf2 := run(t, ff, src, 2)
	defer b.Close()
	if got := b.Get(buf2, 0).(TimedValue).Value; got != 1.0 {
		t.Errorf("first on tied timestamps: got %v, want 1.0", got)
	}
}

func TestFirstLastCombining(t *testing.T) {
	// the combining form reads finalized pairs from the output column
	f := NewLastFloat("l", "x", "ts", NullSQL)
	cf := f.CombiningFactory()
	src := &testSource{cols: map[string][]any{
		"l": {
			TimedValue{At: 200, Value: 2.0},
			TimedValue{At: 100, Value: 1.0},
		},
	}}
	a, buf := run(t, cf, src, 2)
	defer a.Close()
	got := a.Get(buf, 0).(TimedValue)
	if got.At != 200 || got.Value != 2.0 {
		t.Errorf("combined last = %+v, want {200 2}", got)
	}
}

func TestBitwise(t *testing.T) {
	src := &testSource{cols: map[string][]any{
		"x": {int64(0b1100), int64(0b1010)},
	}}
	cases := []struct {
		f    Factory
		want int64
	}{
		{NewBitAnd("and", "x", NullSQL), 0b1000},
		{NewBitOr("or", "x", NullSQL), 0b1110},
		{NewBitXor("xor", "x", NullSQL), 0b0110},
	}
	for _, tc := range cases {
		t.Run(tc.f.Name(), func(t *testing.T) {
			a, buf := run(t, tc.f, src, 2)
			defer a.Close()
			if got := a.Get(buf, 0); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBoolOr(t *testing.T) {
	src := &testSource{cols: map[string][]any{
		"x": {false, true, false},
	}}
	f := NewBoolOr("or", "x", NullSQL)
	a, buf := run(t, f, src, 3)
	defer a.Close()
	if got := a.Get(buf, 0); got != true {
		t.Errorf("bool or: got %v, want true", got)
	}
}

func TestMergeSlot(t *testing.T) {
	f := NewMinInt("m", "x", NullSQL)
	mk := func(vals ...int64) []byte {
		src := &testSource{cols: map[string][]any{"x": {}}}
		for _, v := range vals {
			src.cols["x"] = append(src.cols["x"], v)
		}
		a, buf := run(t, f, src, len(vals))
		defer a.Close()
		return buf.Bytes(0, f.Width())
	}
	dst := mk(9, 4)
	src := mk(7, 2)
	f.MergeSlot(dst, src)
	if got := geti64(dst); got != 2 {
		t.Errorf("merged min = %d, want 2", got)
	}
	// merging an empty slot leaves the destination alone
	f.MergeSlot(dst, mk())
	if got := geti64(dst); got != 2 {
		t.Errorf("merge with empty slot changed min to %d", got)
	}
}

func TestHeapAggregator(t *testing.T) {
	src := &testSource{cols: map[string][]any{
		"x": {5.0, nil, 3.0},
	}}
	f := NewSumFloat("s", "x", NullSQL)
	h := f.NewHeap(src)
	defer h.Close()
	for src.cur = 0; src.cur < 3; src.cur++ {
		h.Aggregate()
	}
	if got := h.Get(); got != 8.0 {
		t.Errorf("heap sum = %v, want 8.0", got)
	}
	if got := h.Float64(); got != 8.0 {
		t.Errorf("heap sum Float64 = %v", got)
	}
	// Clone resets accumulation but keeps the binding
	c := h.Clone()
	defer c.Close()
	if got := c.Get(); got != nil {
		t.Errorf("cloned heap state = %v, want nil", got)
	}
	src.cur = 0
	c.Aggregate()
	if got := c.Get(); got != 5.0 {
		t.Errorf("cloned heap after one row = %v, want 5.0", got)
	}
	// the original is unaffected by the clone's rows
	if got := h.Get(); got != 8.0 {
		t.Errorf("original heap disturbed by clone: %v", got)
	}
}

func TestHeapAvg(t *testing.T) {
	src := &testSource{cols: map[string][]any{
		"x": {int64(2), int64(4)},
	}}
	f := NewAvgInt("a", "x", NullSQL)
	h := f.NewHeap(src)
	defer h.Close()
	for src.cur = 0; src.cur < 2; src.cur++ {
		h.Aggregate()
	}
	m := h.Get().(MeanInt)
	if m.Sum != 6 || m.Count != 2 {
		t.Errorf("heap avg intermediate = %+v, want {6 2}", m)
	}
	if got := h.Int64(); got != 3 {
		t.Errorf("heap avg Int64 = %d, want 3", got)
	}
}

func TestMissingColumnAggregatesNull(t *testing.T) {
	src := &testSource{cols: map[string][]any{}}
	f := NewSumFloat("s", "nope", NullSQL)
	a, buf := run(t, f, src, 3)
	defer a.Close()
	if got := a.Get(buf, 0); got != nil {
		t.Errorf("missing column: got %v, want nil", got)
	}
}

func TestBufferBounds(t *testing.T) {
	buf := NewBuffer(16)
	defer func() {
		if recover() == nil {
			t.Error("out-of-range Bytes did not panic")
		}
	}()
	buf.Bytes(8, 16)
}

func TestBufferHandlesDistinct(t *testing.T) {
	a, b := NewBuffer(8), NewBuffer(8)
	if a.Handle() == b.Handle() {
		t.Error("two buffers share a handle")
	}
}
