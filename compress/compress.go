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

// Package compress wraps klauspost/compress/zstd as the streaming,
// dictionary-free compressor used for stored state snapshots, block bodies,
// and balances diffs.
package compress

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Level selects a zstd encoder preset. Configurable via the
// compression_level knob.
type Level int

const (
	LevelFastest Level = iota
	LevelDefault
	LevelBetter
	LevelBest
)

func (l Level) toZstd() zstd.EncoderLevel {
	switch l {
	case LevelFastest:
		return zstd.SpeedFastest
	case LevelBetter:
		return zstd.SpeedBetterCompression
	case LevelBest:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

// Codec is a reusable encoder/decoder pair. zstd encoders/decoders are safe
// for concurrent use once constructed, so one Codec is shared across the
// whole store.
type Codec struct {
	level Level
	encMu sync.Mutex
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

func NewCodec(level Level) (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level.toZstd()))
	if err != nil {
		return nil, fmt.Errorf("compress: new encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("compress: new decoder: %w", err)
	}
	return &Codec{level: level, enc: enc, dec: dec}, nil
}

// Compress appends the compressed form of src to dst and returns the
// extended slice, mirroring zstd.Encoder.EncodeAll's append-style API.
func (c *Codec) Compress(dst, src []byte) []byte {
	c.encMu.Lock()
	defer c.encMu.Unlock()
	return c.enc.EncodeAll(src, dst)
}

// Decompress appends the decompressed form of src to dst.
func (c *Codec) Decompress(dst, src []byte) ([]byte, error) {
	out, err := c.dec.DecodeAll(src, dst)
	if err != nil {
		return nil, fmt.Errorf("compress: decode: %w", err)
	}
	return out, nil
}

// EstimateCompressedSize gives a cheap size estimate (half the input plus
// 64 bytes); it does not run the compressor, and input that compresses
// worse than 2:1 exceeds it.
func EstimateCompressedSize(rawLen int) int {
	return rawLen/2 + 64
}

// EstimateDecompressedSize gives a cheap size estimate for the inverse
// case (four times the input plus 64 bytes); data compressed better than
// 4:1 exceeds it.
func EstimateDecompressedSize(compressedLen int) int {
	return compressedLen*4 + 64
}

func (c *Codec) Close() error {
	err := c.enc.Close()
	c.dec.Close()
	return err
}
