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
	"errors"
	"fmt"

	"github.com/gabstv/go-bsdiff/pkg/bsdiff"
	"github.com/gabstv/go-bsdiff/pkg/bspatch"

	"github.com/erigontech/caplin-store/compress"
)

// ErrXorDeletionsNotSupported is returned by Compute when the target
// balances list is shorter than the source's: the positional XOR scheme
// has no representation for "this entry was removed".
var ErrXorDeletionsNotSupported = errors.New("hdiff: xor diff does not support balance deletions")

// Diff is the pair of a structural byte diff and a balances XOR diff
// between two state buffers. BytesDiff is the bsdiff patch as produced;
// XorDiff is zstd-compressed.
type Diff struct {
	BytesDiff []byte
	XorDiff   []byte
}

// Compute produces the Diff taking src to tgt.
func Compute(codec *compress.Codec, src, tgt Buffer) (Diff, error) {
	bd, err := bsdiff.Bytes(src.StateBytes, tgt.StateBytes)
	if err != nil {
		return Diff{}, fmt.Errorf("hdiff: bsdiff: %w", err)
	}

	xor, err := xorDiff(src.Balances, tgt.Balances)
	if err != nil {
		return Diff{}, err
	}

	return Diff{
		BytesDiff: bd,
		XorDiff:   codec.Compress(nil, xor),
	}, nil
}

// Apply reconstructs tgt from src and a previously computed Diff.
func Apply(codec *compress.Codec, diff Diff, src Buffer) (Buffer, error) {
	stateBytes, err := bspatch.Bytes(src.StateBytes, diff.BytesDiff)
	if err != nil {
		return Buffer{}, fmt.Errorf("hdiff: bspatch: %w", err)
	}

	xor, err := codec.Decompress(nil, diff.XorDiff)
	if err != nil {
		return Buffer{}, fmt.Errorf("hdiff: decompress xor diff: %w", err)
	}

	balances, err := applyXorDiff(src.Balances, xor)
	if err != nil {
		return Buffer{}, err
	}

	return Buffer{StateBytes: stateBytes, Balances: balances}, nil
}

// xorDiff computes, for each byte i of tgt, tgt[i] - src[i] (mod 256),
// treating a missing src byte as 0. Balances grow monotonically in
// practice (the validator set only grows between finalized checkpoints
// within one diff interval), so shrinkage is rejected outright rather than
// silently truncated.
func xorDiff(src, tgt []byte) ([]byte, error) {
	if len(tgt) < len(src) {
		return nil, ErrXorDeletionsNotSupported
	}
	out := make([]byte, len(tgt))
	for i := range tgt {
		var s byte
		if i < len(src) {
			s = src[i]
		}
		out[i] = tgt[i] - s
	}
	return out, nil
}

// applyXorDiff is the inverse of xorDiff: for i < len(src), wrapping-add
// the delta back onto src; trailing deltas beyond len(src) are the new
// balances appended wholesale.
func applyXorDiff(src, delta []byte) ([]byte, error) {
	out := make([]byte, len(delta))
	for i := range delta {
		var s byte
		if i < len(src) {
			s = src[i]
		}
		out[i] = s + delta[i]
	}
	return out, nil
}
