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
	"math"
)

// Slot words are fixed 8-byte little-endian quantities. Aggregators
// compose their layout from these primitives so that the aggregate
// and merge paths share one encoding.

func putu64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
func getu64(b []byte) uint64    { return binary.LittleEndian.Uint64(b) }

func puti64(b []byte, v int64) { binary.LittleEndian.PutUint64(b, uint64(v)) }
func geti64(b []byte) int64    { return int64(binary.LittleEndian.Uint64(b)) }

func putf64(b []byte, v float64) { binary.LittleEndian.PutUint64(b, math.Float64bits(v)) }
func getf64(b []byte) float64    { return math.Float64frombits(binary.LittleEndian.Uint64(b)) }

// buffer-to-buffer combine primitives used when merging two
// intermediate slots (segment merge, spill merge)

func bufferAddFloat64(dst, src []byte) {
	_ = dst[:8]
	_ = src[:8]
	putf64(dst, getf64(dst)+getf64(src))
}

func bufferMinFloat64(dst, src []byte) {
	_ = dst[:8]
	_ = src[:8]
	if v := getf64(src); v < getf64(dst) {
		putf64(dst, v)
	}
}

func bufferMaxFloat64(dst, src []byte) {
	_ = dst[:8]
	_ = src[:8]
	if v := getf64(src); v > getf64(dst) {
		putf64(dst, v)
	}
}

func bufferAddInt64(dst, src []byte) {
	_ = dst[:8]
	_ = src[:8]
	putu64(dst, getu64(dst)+getu64(src))
}

func bufferMinInt64(dst, src []byte) {
	_ = dst[:8]
	_ = src[:8]
	if v := geti64(src); v < geti64(dst) {
		puti64(dst, v)
	}
}

func bufferMaxInt64(dst, src []byte) {
	_ = dst[:8]
	_ = src[:8]
	if v := geti64(src); v > geti64(dst) {
		puti64(dst, v)
	}
}

func bufferAndInt64(dst, src []byte) {
	_ = dst[:8]
	_ = src[:8]
	putu64(dst, getu64(dst)&getu64(src))
}

func bufferOrInt64(dst, src []byte) {
	_ = dst[:8]
	_ = src[:8]
	putu64(dst, getu64(dst)|getu64(src))
}

func bufferXorInt64(dst, src []byte) {
	_ = dst[:8]
	_ = src[:8]
	putu64(dst, getu64(dst)^getu64(src))
}

// bufferMaxBytes takes the byte-wise maximum of src into dst;
// this is the union operation for HLL register arrays.
func bufferMaxBytes(dst, src []byte) {
	if len(src) != len(dst) {
		panic("agg: register arrays of different widths")
	}
	for i := range dst {
		if src[i] > dst[i] {
			dst[i] = src[i]
		}
	}
}
