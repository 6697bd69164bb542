// Package checksum implements the Fletcher-64-style integrity check used to
// validate every checksummed APFS object block, per SPEC_FULL.md §4.2.
// Grounded on internal/parsers/objects/object_checksum_verifier.go, kept
// with its chunking structure (process 32-bit words in 1024-word chunks,
// reducing both running sums modulo 2^32-1 after each chunk — this is what
// keeps the sums from overflowing across a 4096-byte block).
package checksum

import "encoding/binary"

// Size is the number of bytes occupied by a stored checksum.
const Size = 8

// Compute returns the Fletcher-64-style checksum of data, which must have a
// length that's a multiple of 4 (APFS blocks always are: block size is a
// power of two no smaller than 4096). The caller is responsible for zeroing
// the first Size bytes (the checksum field itself) before calling Compute.
func Compute(data []byte) [Size]byte {
	const maxUint32 = uint64(0xFFFFFFFF)
	const chunkWords = 1024 // 1024 32-bit words == 4096 bytes per chunk

	var sum1, sum2 uint64
	for offset := 0; offset < len(data); offset += chunkWords * 4 {
		end := offset + chunkWords*4
		if end > len(data) {
			end = len(data)
		}
		for i := offset; i+4 <= end; i += 4 {
			word := binary.LittleEndian.Uint32(data[i : i+4])
			sum1 += uint64(word)
			sum2 += sum1
		}
		sum1 %= maxUint32
		sum2 %= maxUint32
	}

	var out [Size]byte
	binary.LittleEndian.PutUint64(out[:], (sum2<<32)|sum1)
	return out
}

// Valid reports whether block (a full object block including its 8-byte
// checksum prefix at offset 0) carries a correct checksum. It never mutates
// block.
func Valid(block []byte) bool {
	if len(block) < Size || len(block)%4 != 0 {
		return false
	}
	scratch := make([]byte, len(block))
	copy(scratch, block)
	for i := 0; i < Size; i++ {
		scratch[i] = 0
	}
	got := Compute(scratch)
	for i := 0; i < Size; i++ {
		if got[i] != block[i] {
			return false
		}
	}
	return true
}
