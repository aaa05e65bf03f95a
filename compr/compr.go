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

// Package compr wraps the compression codecs used for spilled
// aggregation state behind a pair of narrow interfaces.
package compr

import (
	"fmt"
	"runtime"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Compressor appends the compressed form of src to dst.
type Compressor interface {
	// Name identifies the codec; Decompression(Name()) yields
	// the matching decompressor.
	Name() string
	Compress(src, dst []byte) []byte
}

// Decompressor decompresses a block produced by the same-named
// Compressor into dst, which must be exactly the decoded size.
// Implementations are safe for concurrent use.
type Decompressor interface {
	Name() string
	Decompress(src, dst []byte) error
}

type s2Codec struct{}

func (s2Codec) Name() string { return "s2" }

func (s2Codec) Compress(src, dst []byte) []byte {
	return append(dst, s2.Encode(nil, src)...)
}

func (s2Codec) Decompress(src, dst []byte) error {
	ret, err := s2.Decode(dst[:0:len(dst)], src)
	if err != nil {
		return err
	}
	if len(ret) != len(dst) {
		return fmt.Errorf("compr: expected %d decompressed bytes, got %d", len(dst), len(ret))
	}
	if len(dst) != 0 && &ret[0] != &dst[0] {
		return fmt.Errorf("compr: s2 output buffer realloc'd")
	}
	return nil
}

type zstdCodec struct {
	enc *zstd.Encoder
}

func (z zstdCodec) Name() string { return "zstd" }

func (z zstdCodec) Compress(src, dst []byte) []byte {
	return z.enc.EncodeAll(src, dst)
}

var zstdDecoder *zstd.Decoder

func init() {
	// decoder concurrency defaults to min(4, GOMAXPROCS);
	// we always want GOMAXPROCS
	z, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(runtime.GOMAXPROCS(0)))
	if err != nil {
		panic(err)
	}
	zstdDecoder = z
}

type zstdDecompressor struct{}

func (zstdDecompressor) Name() string { return "zstd" }

func (zstdDecompressor) Decompress(src, dst []byte) error {
	ret, err := zstdDecoder.DecodeAll(src, dst[:0:len(dst)])
	if err != nil {
		return err
	}
	if len(ret) != len(dst) {
		return fmt.Errorf("compr: expected %d decompressed bytes, got %d", len(dst), len(ret))
	}
	if len(dst) != 0 && &ret[0] != &dst[0] {
		return fmt.Errorf("compr: zstd output buffer realloc'd")
	}
	return nil
}

// Compression selects a compressor by name ("s2", "zstd",
// "zstd-better") or nil if the name is unknown.
func Compression(name string) Compressor {
	switch name {
	case "s2":
		return s2Codec{}
	case "zstd":
		z, _ := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		return zstdCodec{z}
	case "zstd-better":
		z, _ := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
			zstd.WithEncoderConcurrency(1))
		return zstdCodec{z}
	default:
		return nil
	}
}

// Decompression selects the decompressor matching a Compressor
// name, or nil if the name is unknown.
func Decompression(name string) Decompressor {
	switch name {
	case "s2":
		return s2Codec{}
	case "zstd", "zstd-better":
		return zstdDecompressor{}
	default:
		return nil
	}
}
