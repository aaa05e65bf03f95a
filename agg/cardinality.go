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
	"fmt"
	"math"

	"github.com/axiomhq/hyperloglog"
)

// cardinalityAggregator is the heap cardinality estimator: the
// sketch is an opaque library object held directly in a field, the
// canonical case for the non-buffer Aggregator shape.
type cardinalityAggregator struct {
	sel    Selector
	sketch *hyperloglog.Sketch
}

func newCardinalityAggregator(sel Selector) *cardinalityAggregator {
	return &cardinalityAggregator{
		sel:    sel,
		sketch: hyperloglog.New14(),
	}
}

func (c *cardinalityAggregator) Aggregate() {
	if c.sel.IsNull() {
		return
	}
	var buf [8]byte
	switch v := c.sel.Value().(type) {
	case string:
		c.sketch.Insert([]byte(v))
		return
	case []byte:
		c.sketch.Insert(v)
		return
	case int64:
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
	case float64:
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	case bool:
		if v {
			buf[0] = 1
		}
	case nil:
		return
	default:
		c.sketch.Insert([]byte(fmt.Sprint(v)))
		return
	}
	c.sketch.Insert(buf[:])
}

func (c *cardinalityAggregator) Get() any { return c.sketch }

// Float64 and Int64 have no meaning for a collector-valued
// aggregator; asking for one is a factory/planner bug.
func (c *cardinalityAggregator) Float64() float64 {
	panic(fmt.Errorf("%w: cardinality collector has no float projection", ErrUnsupportedGet))
}

func (c *cardinalityAggregator) Int64() int64 {
	panic(fmt.Errorf("%w: cardinality collector has no integer projection", ErrUnsupportedGet))
}

func (c *cardinalityAggregator) Clone() Aggregator {
	return newCardinalityAggregator(c.sel)
}

func (c *cardinalityAggregator) Close() { c.sketch = nil }

func (c *cardinalityAggregator) InspectShape(si ShapeInspector) {
	si.Visit("kind", "cardinality")
	si.Visit("selector", fmt.Sprintf("%T", c.sel))
}
