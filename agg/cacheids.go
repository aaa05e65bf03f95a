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

// Cache-key type discriminators, one per aggregation kind.
// These are the id byte of every factory's cachekey.Builder and
// must never be reused across kinds within one process.
const (
	ckSumFloat byte = 0x01
	ckSumInt   byte = 0x02
	ckAvgFloat byte = 0x03
	ckAvgInt   byte = 0x04
	ckCount    byte = 0x05

	ckMinFloat byte = 0x06
	ckMaxFloat byte = 0x07
	ckMinInt   byte = 0x08
	ckMaxInt   byte = 0x09

	ckAnyFloat byte = 0x0a
	ckAnyInt   byte = 0x0b

	ckFirstFloat byte = 0x0c
	ckFirstInt   byte = 0x0d
	ckLastFloat  byte = 0x0e
	ckLastInt    byte = 0x0f

	ckBoolAnd byte = 0x10
	ckBoolOr  byte = 0x11
	ckBitAnd  byte = 0x12
	ckBitOr   byte = 0x13
	ckBitXor  byte = 0x14

	ckApproxCountDistinct byte = 0x15
	ckTDigest             byte = 0x16
	ckCountNonNull        byte = 0x17
)
