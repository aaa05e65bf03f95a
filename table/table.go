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

// Package table implements in-memory row-major lookup tables with
// per-key-column hash indexes, used to resolve dimension joins.
package table

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/dolthub/swiss"
)

var (
	// ErrNotCacheable is returned by ComputeCacheKey when the table
	// was built without a cache key; callers must consult
	// IsCacheable first.
	ErrNotCacheable = errors.New("table: no cache key supplied")

	// ErrNotIndexed is returned by ColumnIndex for a column that was
	// not declared as a key column.
	ErrNotIndexed = errors.New("table: column is not a key column")
)

// KeyType is the declared type of a key column; lookup values are
// coerced to it before probing the index.
type KeyType int

const (
	KeyString KeyType = iota
	KeyInt64
	KeyFloat64
	KeyBool
)

func (t KeyType) String() string {
	switch t {
	case KeyString:
		return "string"
	case KeyInt64:
		return "int64"
	case KeyFloat64:
		return "float64"
	case KeyBool:
		return "bool"
	default:
		return fmt.Sprintf("KeyType(%d)", int(t))
	}
}

// Table is a row-major table addressable by row offset, with hash
// lookup on its key columns.
type Table interface {
	// Name identifies the table in plans and diagnostics.
	Name() string
	// RowCount returns the number of rows.
	RowCount() int
	// ColumnIndex returns a lookup closing over the pre-built
	// index of a key column: it maps a key value to the offsets
	// of all rows holding it. Values that do not coerce to the
	// column's key type yield an empty result.
	ColumnIndex(col int) (func(key any) []int, error)
	// ColumnReader returns a row-offset-addressed accessor for
	// any column, indexed or not.
	ColumnReader(col int) (func(row int) any, error)
	// IsCacheable reports whether the table carries a cache key.
	IsCacheable() bool
	// ComputeCacheKey returns the table's cache key, or
	// ErrNotCacheable when none was supplied.
	ComputeCacheKey() ([]byte, error)
	// Acquire pins the table for the duration of a query; the
	// returned closer releases the pin.
	Acquire() io.Closer
	// Close tears the table down.
	Close() error
}

// Column describes one column of a RowBased table: a name, an
// extraction function, and for key columns the type its index
// coerces to.
type Column[R any] struct {
	Name    string
	Key     bool
	Type    KeyType
	Extract func(R) any
}

// Option configures a RowBased table.
type Option func(*options)

type options struct {
	cacheKey []byte
}

// WithCacheKey attaches a precomputed cache key to the table.
func WithCacheKey(key []byte) Option {
	return func(o *options) {
		o.cacheKey = append([]byte(nil), key...)
	}
}

// RowBased is a Table over a caller-supplied row slice. Indexes for
// the key columns are built once, at construction.
type RowBased[R any] struct {
	name    string
	rows    []R
	cols    []Column[R]
	indexes []index // nil for non-key columns
	key     []byte
	hasKey  bool
}

// NewRowBased builds a table over rows. Every column marked Key gets
// an index; a key column with a nil extractor is a construction
// error.
func NewRowBased[R any](name string, rows []R, cols []Column[R], opts ...Option) (*RowBased[R], error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	t := &RowBased[R]{
		name:    name,
		rows:    rows,
		cols:    cols,
		indexes: make([]index, len(cols)),
		key:     o.cacheKey,
		hasKey:  o.cacheKey != nil,
	}
	for i, c := range cols {
		if c.Extract == nil {
			return nil, fmt.Errorf("table %q: column %q has no extractor", name, c.Name)
		}
		if !c.Key {
			continue
		}
		idx := newIndex(c.Type, len(rows))
		for r := range rows {
			k, ok := coerce(c.Extract(rows[r]), c.Type)
			if !ok {
				// null keys never match an equality
				// lookup, so they are not indexed
				continue
			}
			idx.add(k, int32(r))
		}
		t.indexes[i] = idx
	}
	return t, nil
}

func (t *RowBased[R]) Name() string  { return t.name }
func (t *RowBased[R]) RowCount() int { return len(t.rows) }

func (t *RowBased[R]) ColumnIndex(col int) (func(key any) []int, error) {
	if col < 0 || col >= len(t.cols) {
		return nil, fmt.Errorf("table %q: no column %d", t.name, col)
	}
	idx := t.indexes[col]
	if idx == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotIndexed, t.cols[col].Name)
	}
	typ := t.cols[col].Type
	return func(key any) []int {
		k, ok := coerce(key, typ)
		if !ok {
			return nil
		}
		return widen(idx.lookup(k))
	}, nil
}

func (t *RowBased[R]) ColumnReader(col int) (func(row int) any, error) {
	if col < 0 || col >= len(t.cols) {
		return nil, fmt.Errorf("table %q: no column %d", t.name, col)
	}
	extract := t.cols[col].Extract
	rows := t.rows
	return func(row int) any {
		return extract(rows[row])
	}, nil
}

func (t *RowBased[R]) IsCacheable() bool { return t.hasKey }

func (t *RowBased[R]) ComputeCacheKey() ([]byte, error) {
	if !t.hasKey {
		return nil, fmt.Errorf("%w (table %q)", ErrNotCacheable, t.name)
	}
	return append([]byte(nil), t.key...), nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Acquire is a no-op for fully in-memory tables; implementations
// backed by reference-counted storage override the pinning.
func (t *RowBased[R]) Acquire() io.Closer { return nopCloser{} }

func (t *RowBased[R]) Close() error {
	t.rows = nil
	t.indexes = nil
	return nil
}

func widen(rows []int32) []int {
	if len(rows) == 0 {
		return nil
	}
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = int(r)
	}
	return out
}

// index is one key column's value -> row-offsets map; the add/lookup
// keys have already been coerced to the column's key type.
type index interface {
	add(key any, row int32)
	lookup(key any) []int32
}

func newIndex(t KeyType, capacity int) index {
	n := uint32(capacity)
	switch t {
	case KeyString:
		return &stringIndex{m: swiss.NewMap[string, []int32](n)}
	case KeyInt64:
		return &int64Index{m: swiss.NewMap[int64, []int32](n)}
	case KeyFloat64:
		return &float64Index{m: swiss.NewMap[float64, []int32](n)}
	case KeyBool:
		return &boolIndex{}
	default:
		panic(fmt.Sprintf("table: bad key type %d", int(t)))
	}
}

type stringIndex struct {
	m *swiss.Map[string, []int32]
}

func (x *stringIndex) add(key any, row int32) {
	k := key.(string)
	rows, _ := x.m.Get(k)
	x.m.Put(k, append(rows, row))
}

func (x *stringIndex) lookup(key any) []int32 {
	rows, _ := x.m.Get(key.(string))
	return rows
}

type int64Index struct {
	m *swiss.Map[int64, []int32]
}

func (x *int64Index) add(key any, row int32) {
	k := key.(int64)
	rows, _ := x.m.Get(k)
	x.m.Put(k, append(rows, row))
}

func (x *int64Index) lookup(key any) []int32 {
	rows, _ := x.m.Get(key.(int64))
	return rows
}

type float64Index struct {
	m *swiss.Map[float64, []int32]
}

func (x *float64Index) add(key any, row int32) {
	k := key.(float64)
	rows, _ := x.m.Get(k)
	x.m.Put(k, append(rows, row))
}

func (x *float64Index) lookup(key any) []int32 {
	rows, _ := x.m.Get(key.(float64))
	return rows
}

type boolIndex struct {
	truthy, falsy []int32
}

func (x *boolIndex) add(key any, row int32) {
	if key.(bool) {
		x.truthy = append(x.truthy, row)
	} else {
		x.falsy = append(x.falsy, row)
	}
}

func (x *boolIndex) lookup(key any) []int32 {
	if key.(bool) {
		return x.truthy
	}
	return x.falsy
}

// coerce converts a raw extracted or lookup value to a key column's
// type. Nil values and values of the wrong shape return ok=false,
// which excludes a row from the index or turns a lookup into a miss.
func coerce(v any, t KeyType) (any, bool) {
	if v == nil {
		return nil, false
	}
	switch t {
	case KeyString:
		switch v := v.(type) {
		case string:
			return v, true
		case int64:
			return strconv.FormatInt(v, 10), true
		case int:
			return strconv.Itoa(v), true
		case float64:
			return strconv.FormatFloat(v, 'g', -1, 64), true
		case bool:
			return strconv.FormatBool(v), true
		}
	case KeyInt64:
		switch v := v.(type) {
		case int64:
			return v, true
		case int:
			return int64(v), true
		case int32:
			return int64(v), true
		case float64:
			return int64(v), true
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, false
			}
			return n, true
		}
	case KeyFloat64:
		switch v := v.(type) {
		case float64:
			return v, true
		case float32:
			return float64(v), true
		case int64:
			return float64(v), true
		case int:
			return float64(v), true
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, false
			}
			return f, true
		}
	case KeyBool:
		switch v := v.(type) {
		case bool:
			return v, true
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, false
			}
			return b, true
		case int64:
			return v != 0, true
		case int:
			return v != 0, true
		}
	}
	return nil, false
}
