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
	"math"
	"testing"
)

func hllOverInts(t *testing.T, precision, lo, hi int) (BufferAggregator, *Buffer) {
	t.Helper()
	vals := make([]any, 0, hi-lo)
	for i := lo; i < hi; i++ {
		vals = append(vals, int64(i))
	}
	src := &testSource{cols: map[string][]any{"x": vals}}
	f, err := NewApproxCountDistinct("d", "x", precision)
	if err != nil {
		t.Fatal(err)
	}
	return run(t, f, src, len(vals))
}

func TestHLLEstimate(t *testing.T) {
	for _, distinct := range []int{100, 1000, 10000} {
		t.Run(fmt.Sprint(distinct), func(t *testing.T) {
			a, buf := hllOverInts(t, 11, 0, distinct)
			defer a.Close()
			got := float64(a.Int64(buf, 0))
			relerr := math.Abs(got-float64(distinct)) / float64(distinct)
			// stderr at p=11 is about 2.3%; allow 4 sigma
			if relerr > 0.10 {
				t.Errorf("estimated %v for %d distinct values (%.1f%% off)",
					got, distinct, relerr*100)
			}
		})
	}
}

func TestHLLDuplicatesDontCount(t *testing.T) {
	src := &testSource{cols: map[string][]any{
		"x": {"a", "b", "a", nil, "b", "a"},
	}}
	f, err := NewApproxCountDistinct("d", "x", 14)
	if err != nil {
		t.Fatal(err)
	}
	a, buf := run(t, f, src, 6)
	defer a.Close()
	if got := a.Int64(buf, 0); got != 2 {
		t.Errorf("distinct of {a b a null b a} = %d, want 2", got)
	}
}

func TestHLLMergeSlot(t *testing.T) {
	f, err := NewApproxCountDistinct("d", "x", 11)
	if err != nil {
		t.Fatal(err)
	}
	a, bufA := hllOverInts(t, 11, 0, 500)
	defer a.Close()
	b, bufB := hllOverInts(t, 11, 250, 750)
	defer b.Close()
	f.MergeSlot(bufA.Bytes(0, f.Width()), bufB.Bytes(0, f.Width()))
	got := float64(a.Int64(bufA, 0))
	relerr := math.Abs(got-750) / 750
	if relerr > 0.10 {
		t.Errorf("merged estimate %v for 750 distinct (%.1f%% off)", got, relerr*100)
	}
}

func TestHLLCombineCopies(t *testing.T) {
	f, err := NewApproxCountDistinct("d", "x", 4)
	if err != nil {
		t.Fatal(err)
	}
	a, bufA := hllOverInts(t, 4, 0, 10)
	defer a.Close()
	b, bufB := hllOverInts(t, 4, 10, 20)
	defer b.Close()
	x := a.Get(bufA, 0).(*HLL)
	before := x.Estimate()
	out := f.Combine(x, b.Get(bufB, 0)).(*HLL)
	if x.Estimate() != before {
		t.Error("Combine mutated its left input")
	}
	if out.Estimate() < x.Estimate() {
		t.Error("union estimates below one input")
	}
}

func TestHLLRelocate(t *testing.T) {
	f, err := NewApproxCountDistinct("d", "x", 4)
	if err != nil {
		t.Fatal(err)
	}
	a, buf := hllOverInts(t, 4, 0, 100)
	want := a.Int64(buf, 0)
	next := NewBuffer(f.Width())
	a.Relocate(0, 0, buf, next)
	if got := a.Int64(next, 0); got != want {
		t.Errorf("estimate changed across relocate: %d -> %d", want, got)
	}
	a.Close()
}

func TestHLLPrecisionRange(t *testing.T) {
	for _, p := range []int{3, 17, -1} {
		if _, err := NewApproxCountDistinct("d", "x", p); err == nil {
			t.Errorf("precision %d accepted", p)
		}
	}
}

func TestHLLFinalize(t *testing.T) {
	f, err := NewApproxCountDistinct("d", "x", 11)
	if err != nil {
		t.Fatal(err)
	}
	a, buf := hllOverInts(t, 11, 0, 100)
	defer a.Close()
	v := f.Finalize(a.Get(buf, 0))
	if _, ok := v.(int64); !ok {
		t.Fatalf("finalized sketch is %T, want int64", v)
	}
	if got := f.Finalize(nil); got != int64(0) {
		t.Errorf("finalized nil sketch = %v, want 0", got)
	}
}

func TestCardinalityHeap(t *testing.T) {
	src := &testSource{cols: map[string][]any{
		"x": {"a", "b", "a", "c"},
	}}
	f, err := NewApproxCountDistinct("d", "x", 14)
	if err != nil {
		t.Fatal(err)
	}
	h := f.NewHeap(src)
	defer h.Close()
	for src.cur = 0; src.cur < 4; src.cur++ {
		h.Aggregate()
	}
	if got := f.Finalize(h.Get()); got != int64(3) {
		t.Errorf("heap cardinality = %v, want 3", got)
	}
}
