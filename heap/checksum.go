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
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// Checksum hashes the surviving data in allocation order: each
// datum's enchantment, the indices (within the surviving sequence) of
// its pointers, and its auxiliary bytes. Two heaps that have gone
// through different allocation/collection histories but ended up with
// the same live graph produce the same checksum, and a collection
// that frees nothing leaves it unchanged, which is what
// TestChecksumStableAcrossNoOpCollection relies on.
func (h *Heap) Checksum() [32]byte {
	sum, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}

	index := make(map[*datum]int, len(h.data))
	for i, d := range h.data {
		index[d] = i
	}

	var scratch [8]byte
	for _, d := range h.data {
		binary.LittleEndian.PutUint32(scratch[:4], uint32(d.enchantment))
		sum.Write(scratch[:4])

		binary.LittleEndian.PutUint32(scratch[:4], uint32(len(d.pointers)))
		sum.Write(scratch[:4])
		for _, p := range d.pointers {
			binary.LittleEndian.PutUint64(scratch[:8], uint64(index[p]))
			sum.Write(scratch[:8])
		}

		aux := d.auxiliary()
		binary.LittleEndian.PutUint64(scratch[:8], uint64(len(aux)))
		sum.Write(scratch[:8])
		sum.Write(aux)
	}

	var out [32]byte
	copy(out[:], sum.Sum(nil))
	return out
}
