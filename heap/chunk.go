// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package heap

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

// compressThreshold is the auxiliary-payload size, in bytes, above
// which a datum's opaque bytes are stored zstd-compressed instead of
// verbatim. Small payloads are stored raw because the zstd frame
// overhead outweighs any saving and because it keeps the common case
// (small payloads: numbers, short strings) free of encoder work.
const compressThreshold = 256

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder

	decoderOnce sync.Once
	decoder     *zstd.Decoder
)

func sharedEncoder() *zstd.Encoder {
	encoderOnce.Do(func() {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			panic(err)
		}
		encoder = enc
	})
	return encoder
}

func sharedDecoder() *zstd.Decoder {
	decoderOnce.Do(func() {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			panic(err)
		}
		decoder = dec
	})
	return decoder
}

// chunk is the storage backing a datum's auxiliary payload. Payloads
// at or below compressThreshold are kept verbatim; larger ones are
// compressed on arrival since a spell's data (e.g. a long string
// constant) is written once and potentially read many times over the
// life of the heap.
type chunk struct {
	raw        []byte
	compressed []byte // nil unless the payload was compressed
	origLen    int
	decoded    []byte // cache of the first bytes() decode; nil until then
}

func newChunk(payload []byte, a *arena) chunk {
	if len(payload) <= compressThreshold {
		raw := a.get(len(payload))
		copy(raw, payload)
		return chunk{raw: raw}
	}
	c := sharedEncoder().EncodeAll(payload, nil)
	if len(c) >= len(payload) {
		// Incompressible; storing it verbatim avoids paying the
		// decode cost on every read for no space savings.
		raw := a.get(len(payload))
		copy(raw, payload)
		return chunk{raw: raw}
	}
	stored := a.get(len(c))
	copy(stored, c)
	return chunk{compressed: stored, origLen: len(payload)}
}

// release returns the chunk's backing storage to a for reuse by a
// future newChunk call. Called only once a datum has been swept by
// CollectGarbage, since the chunk is otherwise still reachable via
// Handle.Auxiliary.
func (c chunk) release(a *arena) {
	if c.compressed != nil {
		a.put(c.compressed)
		return
	}
	a.put(c.raw)
}

// bytes returns the chunk's decoded payload, decompressing it on the
// first call and caching the result in decoded for every subsequent
// call, the way ion/zion keeps a column's decompressed form around
// once a reader has paid to produce it. The cache needs no
// synchronization: a heap, and everything it owns, belongs to a
// single goroutine for its lifetime.
func (c *chunk) bytes() []byte {
	if c.compressed == nil {
		return c.raw
	}
	if c.decoded == nil {
		out, err := sharedDecoder().DecodeAll(c.compressed, make([]byte, 0, c.origLen))
		if err != nil {
			panic("grimoire/heap: corrupt compressed auxiliary payload: " + err.Error())
		}
		c.decoded = out
	}
	return c.decoded
}
