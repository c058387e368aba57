// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package hdiff

import (
	"testing"

	"github.com/gabstv/go-bsdiff/pkg/bsdiff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/caplin-store/compress"
)

func newTestCodec(t *testing.T) *compress.Codec {
	t.Helper()
	c, err := compress.NewCodec(compress.LevelDefault)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// TestComputeApplyRoundTrip pins the central law: apply(compute(src, tgt),
// src) == tgt, for a handful of representative src/tgt shapes.
func TestComputeApplyRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	tests := []struct {
		name string
		src  Buffer
		tgt  Buffer
	}{
		{
			name: "identical buffers",
			src:  Buffer{StateBytes: []byte("hello beacon state"), Balances: u64Bytes(32_000_000_000, 31_500_000_000)},
			tgt:  Buffer{StateBytes: []byte("hello beacon state"), Balances: u64Bytes(32_000_000_000, 31_500_000_000)},
		},
		{
			name: "small structural edit, balances change by small amounts",
			src:  Buffer{StateBytes: []byte("hello beacon state, epoch N"), Balances: u64Bytes(32_000_000_000, 31_500_000_000)},
			tgt:  Buffer{StateBytes: []byte("hello beacon state, epoch N+1"), Balances: u64Bytes(31_999_000_000, 31_500_500_000)},
		},
		{
			name: "balances list grows (new validators)",
			src:  Buffer{StateBytes: []byte("state A"), Balances: u64Bytes(32_000_000_000)},
			tgt:  Buffer{StateBytes: []byte("state A with more data appended"), Balances: u64Bytes(32_000_000_001, 31_999_999_999, 32_000_000_002)},
		},
		{
			name: "empty src",
			src:  Buffer{StateBytes: []byte{}, Balances: []byte{}},
			tgt:  Buffer{StateBytes: []byte("brand new state"), Balances: u64Bytes(1, 2, 3)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff, err := Compute(codec, tt.src, tt.tgt)
			require.NoError(t, err)

			got, err := Apply(codec, diff, tt.src)
			require.NoError(t, err)

			assert.Equal(t, tt.tgt.StateBytes, got.StateBytes)
			assert.Equal(t, tt.tgt.Balances, got.Balances)
		})
	}
}

// TestComputeRejectsBalanceShrinkage pins the explicit
// XorDeletionsNotSupported failure: the positional XOR scheme has no
// representation for a validator leaving the balances list.
func TestComputeRejectsBalanceShrinkage(t *testing.T) {
	codec := newTestCodec(t)
	src := Buffer{StateBytes: []byte("s"), Balances: u64Bytes(1, 2, 3)}
	tgt := Buffer{StateBytes: []byte("s"), Balances: u64Bytes(1, 2)}

	_, err := Compute(codec, src, tgt)
	assert.ErrorIs(t, err, ErrXorDeletionsNotSupported)
}

// TestXorDiffSizeProperty pins the size rationale: for balance lists differing by
// small amounts, the compressed XOR diff must be strictly smaller than the
// bspatch diff of the same byte regions treated as opaque state bytes.
func TestXorDiffSizeProperty(t *testing.T) {
	codec := newTestCodec(t)

	src := u64Bytes(32_000_000_000, 31_500_000_000, 32_000_000_000, 31_999_999_999, 32_000_000_001, 31_500_000_500)
	tgt := u64Bytes(32_000_000_010, 31_500_000_020, 32_000_000_005, 31_999_999_990, 32_000_000_011, 31_500_000_510)
	require.Len(t, src, 48)
	require.Len(t, tgt, 48)

	xor, err := xorDiff(src, tgt)
	require.NoError(t, err)
	compressedXor := codec.Compress(nil, xor)

	bytesDiff, err := bsdiff.Bytes(src, tgt)
	require.NoError(t, err)

	assert.Less(t, len(compressedXor), len(bytesDiff))
}

func TestApplyXorDiffRoundTrip(t *testing.T) {
	src := u64Bytes(1, 2, 3)
	tgt := u64Bytes(1, 10, 300, 40)

	delta, err := xorDiff(src, tgt)
	require.NoError(t, err)

	got, err := applyXorDiff(src, delta)
	require.NoError(t, err)
	assert.Equal(t, tgt, got)
}

func u64Bytes(vals ...uint64) []byte {
	out := make([]byte, 0, len(vals)*8)
	for _, v := range vals {
		var b [8]byte
		for i := 0; i < 8; i++ {
			b[i] = byte(v >> (8 * i))
		}
		out = append(out, b[:]...)
	}
	return out
}
