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

package compress

import "github.com/golang/snappy"

// FastCodec wraps snappy. The store uses it for execution payloads in the
// hot DB; hot blocks and blob sidecars are stored uncompressed. Codec's
// zstd is reserved for the cold tier and the balances diff, where ratio
// matters more than per-call latency.
type FastCodec struct{}

func NewFastCodec() *FastCodec { return &FastCodec{} }

func (c *FastCodec) Compress(dst, src []byte) []byte {
	return snappy.Encode(dst, src)
}

func (c *FastCodec) Decompress(dst, src []byte) ([]byte, error) {
	return snappy.Decode(dst, src)
}
