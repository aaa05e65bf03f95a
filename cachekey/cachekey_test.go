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

package cachekey

import (
	"bytes"
	"testing"
)

func TestInjectivity(t *testing.T) {
	// pairs of append sequences that flatten to the same raw bytes
	// but must produce distinct keys
	cases := []struct {
		name string
		a, b func() []byte
	}{
		{
			name: "string-boundary",
			a:    func() []byte { return New(1).AppendString("a").AppendString("bc").Build() },
			b:    func() []byte { return New(1).AppendString("ab").AppendString("c").Build() },
		},
		{
			name: "list-element-boundary",
			a:    func() []byte { return New(1).AppendStrings([]string{"a", "bc"}).Build() },
			b:    func() []byte { return New(1).AppendStrings([]string{"ab", "c"}).Build() },
		},
		{
			name: "list-vs-scalars",
			a:    func() []byte { return New(1).AppendStrings([]string{"a", "b"}).Build() },
			b:    func() []byte { return New(1).AppendString("a").AppendString("b").Build() },
		},
		{
			name: "null-vs-empty",
			a:    func() []byte { return New(1).AppendNullString().Build() },
			b:    func() []byte { return New(1).AppendString("").Build() },
		},
		{
			name: "id",
			a:    func() []byte { return New(1).AppendInt(7).Build() },
			b:    func() []byte { return New(2).AppendInt(7).Build() },
		},
		{
			name: "bool-vs-byte",
			a:    func() []byte { return New(1).AppendBool(true).Build() },
			b:    func() []byte { return New(1).AppendByte(1).Build() },
		},
		{
			name: "float-width",
			a:    func() []byte { return New(1).AppendFloat(1).Build() },
			b:    func() []byte { return New(1).AppendDouble(1).Build() },
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if bytes.Equal(tc.a(), tc.b()) {
				t.Errorf("distinct shapes produced identical key %x", tc.a())
			}
		})
	}
}

func TestDeterminism(t *testing.T) {
	mk := func() []byte {
		return New(9).
			AppendString("metric").
			AppendStrings([]string{"x", "y"}).
			AppendDouble(2.5).
			AppendInt(11).
			AppendBool(false).
			Build()
	}
	if !bytes.Equal(mk(), mk()) {
		t.Error("identical append sequences produced different keys")
	}
	if Fingerprint(mk()) != Fingerprint(mk()) {
		t.Error("fingerprints of equal keys differ")
	}
}

type fakeCacheable []byte

func (f fakeCacheable) CacheKey() []byte { return f }

func TestNestedCacheables(t *testing.T) {
	a := New(1).AppendCacheable(fakeCacheable{1, 2}).Build()
	b := New(1).AppendCacheable(fakeCacheable{1, 2, 3}).Build()
	if bytes.Equal(a, b) {
		t.Error("distinct nested keys collide")
	}
	withNil := New(1).AppendCacheable(nil).Build()
	if bytes.Equal(a, withNil) {
		t.Error("nil cacheable collides with a real one")
	}
	list := New(1).AppendCacheables([]Cacheable{fakeCacheable{1}, nil, fakeCacheable{2}}).Build()
	if len(list) == 0 {
		t.Error("cacheable list produced empty key")
	}
}

func TestEmptyNestedKeyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("empty nested key accepted")
		}
	}()
	New(1).AppendCacheable(fakeCacheable{})
}

func TestSingleUse(t *testing.T) {
	b := New(1).AppendInt(1)
	b.Build()
	t.Run("build-twice", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("second Build did not panic")
			}
		}()
		b.Build()
	})
	t.Run("append-after-build", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("append after Build did not panic")
			}
		}()
		b.AppendInt(2)
	})
}

func TestBuildCopies(t *testing.T) {
	b := New(1).AppendString("x")
	key := b.Build()
	clone := append([]byte(nil), key...)
	key[0] ^= 0xaa
	if bytes.Equal(key, clone) {
		t.Fatal("test mutated nothing")
	}
	// the builder's internal buffer must be unaffected by caller
	// mutation of the returned slice; rebuild via a fresh builder
	if !bytes.Equal(New(1).AppendString("x").Build(), clone) {
		t.Error("returned key aliases builder state")
	}
}

func TestDoublesEncodeCount(t *testing.T) {
	a := New(1).AppendDoubles([]float64{1, 2}).Build()
	b := New(1).AppendDoubles([]float64{1}).Build()
	if bytes.Equal(a, b) {
		t.Error("double lists of different length collide")
	}
}
