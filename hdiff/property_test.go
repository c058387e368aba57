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

	"pgregory.net/rapid"
)

// TestComputeApplyRoundTripProperty is the central round-trip law, checked
// against generated buffer pairs rather than a handful of hand-picked
// shapes: for any src/tgt with len(tgt.Balances) >= len(src.Balances),
// apply(compute(src, tgt), src) == tgt.
func TestComputeApplyRoundTripProperty(t *testing.T) {
	codec := newTestCodec(t)

	rapid.Check(t, func(rt *rapid.T) {
		srcState := rapid.SliceOfN(rapid.Byte(), 0, 256).Draw(rt, "srcState")
		srcBalanceCount := rapid.IntRange(0, 16).Draw(rt, "srcBalanceCount")
		growth := rapid.IntRange(0, 8).Draw(rt, "growth")

		srcBalances := make([]uint64, srcBalanceCount)
		for i := range srcBalances {
			srcBalances[i] = rapid.Uint64Range(0, 64_000_000_000).Draw(rt, "srcBalance")
		}

		tgtState := rapid.SliceOfN(rapid.Byte(), 0, 256).Draw(rt, "tgtState")
		tgtBalances := make([]uint64, srcBalanceCount+growth)
		for i := range tgtBalances {
			tgtBalances[i] = rapid.Uint64Range(0, 64_000_000_000).Draw(rt, "tgtBalance")
		}

		src := Buffer{StateBytes: srcState, Balances: encodeBalances(srcBalances)}
		tgt := Buffer{StateBytes: tgtState, Balances: encodeBalances(tgtBalances)}

		diff, err := Compute(codec, src, tgt)
		if err != nil {
			rt.Fatalf("compute: %v", err)
		}
		got, err := Apply(codec, diff, src)
		if err != nil {
			rt.Fatalf("apply: %v", err)
		}
		if string(got.StateBytes) != string(tgt.StateBytes) {
			rt.Fatalf("state bytes mismatch: got %x want %x", got.StateBytes, tgt.StateBytes)
		}
		if string(got.Balances) != string(tgt.Balances) {
			rt.Fatalf("balances mismatch: got %x want %x", got.Balances, tgt.Balances)
		}
	})
}

func encodeBalances(vals []uint64) []byte {
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
