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

// Package cachekey builds deterministic byte fingerprints of query
// shapes for result caching.
//
// The key format is
//
//	[id:1] ([typeTag:1][payload])*
//
// with big-endian integer encodings. Every appended item carries a
// type tag, variable-width items are length-prefixed, and
// list-shaped items carry a 4-byte element count plus a 0xFF
// separator between elements, so two builders that appended
// different sequences never produce the same bytes even when the
// raw payloads coincide.
//
// Keys are an in-process fingerprint, not a wire format: they are
// regenerated per query and never persisted across restarts.
package cachekey

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// item type tags
const (
	tagByte byte = iota + 1
	tagBytes
	tagBool
	tagInt
	tagFloat32
	tagFloat64
	tagFloat64s
	tagString
	tagStrings
	tagCacheable
	tagCacheables
)

// separator delimits list elements; it cannot occur as a length
// byte ambiguity because every element is also length-prefixed.
const separator byte = 0xff

// nullLen is the length marker encoding a null (as opposed to
// empty) string or nested key.
const nullLen = ^uint32(0)

// Cacheable is anything that can contribute its own cache key to a
// larger one.
type Cacheable interface {
	CacheKey() []byte
}

// Builder accumulates one cache key. Builders are single-use:
// construct, append every logical field in a fixed order, then call
// Build exactly once. Optional fields must still be appended when
// empty so that consumers can decode the key positionally.
type Builder struct {
	buf   []byte
	built bool
}

// New starts a key whose first byte is the given type
// discriminator.
func New(id byte) *Builder {
	return &Builder{buf: []byte{id}}
}

func (b *Builder) tag(t byte) *Builder {
	if b.built {
		panic("cachekey: append after Build")
	}
	b.buf = append(b.buf, t)
	return b
}

func (b *Builder) u32(v uint32) {
	b.buf = binary.BigEndian.AppendUint32(b.buf, v)
}

// AppendByte appends a raw byte item.
func (b *Builder) AppendByte(v byte) *Builder {
	b.tag(tagByte)
	b.buf = append(b.buf, v)
	return b
}

// AppendBytes appends a length-prefixed byte-array item.
func (b *Builder) AppendBytes(v []byte) *Builder {
	b.tag(tagBytes)
	b.u32(uint32(len(v)))
	b.buf = append(b.buf, v...)
	return b
}

// AppendBool appends a boolean item.
func (b *Builder) AppendBool(v bool) *Builder {
	b.tag(tagBool)
	if v {
		b.buf = append(b.buf, 1)
	} else {
		b.buf = append(b.buf, 0)
	}
	return b
}

// AppendInt appends an integer item as 8 big-endian bytes.
func (b *Builder) AppendInt(v int) *Builder {
	b.tag(tagInt)
	b.buf = binary.BigEndian.AppendUint64(b.buf, uint64(v))
	return b
}

// AppendFloat appends a float item as 4 big-endian bytes.
func (b *Builder) AppendFloat(v float32) *Builder {
	b.tag(tagFloat32)
	b.u32(math.Float32bits(v))
	return b
}

// AppendDouble appends a float item as 8 big-endian bytes.
func (b *Builder) AppendDouble(v float64) *Builder {
	b.tag(tagFloat64)
	b.buf = binary.BigEndian.AppendUint64(b.buf, math.Float64bits(v))
	return b
}

// AppendDoubles appends a count-prefixed float-array item.
func (b *Builder) AppendDoubles(v []float64) *Builder {
	b.tag(tagFloat64s)
	b.u32(uint32(len(v)))
	for i, f := range v {
		if i > 0 {
			b.buf = append(b.buf, separator)
		}
		b.buf = binary.BigEndian.AppendUint64(b.buf, math.Float64bits(f))
	}
	return b
}

// AppendString appends a length-prefixed UTF-8 string item.
// The empty string is a zero-length payload, distinct from
// AppendNullString's marker.
func (b *Builder) AppendString(s string) *Builder {
	b.tag(tagString)
	b.u32(uint32(len(s)))
	b.buf = append(b.buf, s...)
	return b
}

// AppendNullString appends the null-string marker, which no
// AppendString call can produce.
func (b *Builder) AppendNullString() *Builder {
	b.tag(tagString)
	b.u32(nullLen)
	return b
}

// AppendStrings appends a count-prefixed, separator-delimited
// string-list item; ["a,b" "c"] and ["a" "b,c"] encode differently
// because each element is length-prefixed.
func (b *Builder) AppendStrings(v []string) *Builder {
	b.tag(tagStrings)
	b.u32(uint32(len(v)))
	for i, s := range v {
		if i > 0 {
			b.buf = append(b.buf, separator)
		}
		b.u32(uint32(len(s)))
		b.buf = append(b.buf, s...)
	}
	return b
}

// AppendCacheable appends a nested object's own key. A nil
// cacheable appends the null marker; a cacheable returning an
// empty key is a hard precondition failure, since an empty nested
// key would let two different shapes collide and silently corrupt
// unrelated cached results.
func (b *Builder) AppendCacheable(c Cacheable) *Builder {
	b.tag(tagCacheable)
	if c == nil {
		b.u32(nullLen)
		return b
	}
	k := c.CacheKey()
	if len(k) == 0 {
		panic(fmt.Sprintf("cachekey: %T produced the reserved empty key", c))
	}
	b.u32(uint32(len(k)))
	b.buf = append(b.buf, k...)
	return b
}

// AppendCacheables appends a count-prefixed list of nested keys
// with the same empty-key precondition as AppendCacheable.
func (b *Builder) AppendCacheables(cs []Cacheable) *Builder {
	b.tag(tagCacheables)
	b.u32(uint32(len(cs)))
	for i, c := range cs {
		if i > 0 {
			b.buf = append(b.buf, separator)
		}
		if c == nil {
			b.u32(nullLen)
			continue
		}
		k := c.CacheKey()
		if len(k) == 0 {
			panic(fmt.Sprintf("cachekey: %T produced the reserved empty key", c))
		}
		b.u32(uint32(len(k)))
		b.buf = append(b.buf, k...)
	}
	return b
}

// Build returns the completed key. The builder cannot be reused.
func (b *Builder) Build() []byte {
	if b.built {
		panic("cachekey: Build called twice")
	}
	b.built = true
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}

// Fingerprint maps a key to the 64-bit hash used for in-process
// cache maps. Like the keys themselves it is only stable within
// one process.
func Fingerprint(key []byte) uint64 {
	return xxhash.Sum64(key)
}
