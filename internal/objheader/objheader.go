// Package objheader decodes the obj_phys_t prefix (SPEC_FULL.md §3.1) that
// begins every checksummed APFS block, and provides the "read a block,
// validate its checksum" helper shared by the checkpoint locator and both
// B+ tree walkers.
package objheader

import (
	"encoding/binary"
	"fmt"

	"github.com/nilsson-labs/apfs-recover/apfs/types"
	"github.com/nilsson-labs/apfs-recover/internal/apfserr"
	"github.com/nilsson-labs/apfs-recover/internal/checksum"
)

// HeaderSize is the width of obj_phys_t: checksum(8) + oid(8) + xid(8) +
// type(4) + subtype(4).
const HeaderSize = 32

// Decode parses the obj_phys_t prefix of block. block must be at least
// HeaderSize bytes.
func Decode(block []byte) (types.ObjPhysT, error) {
	var h types.ObjPhysT
	if len(block) < HeaderSize {
		return h, fmt.Errorf("%w: block too small for object header: %d bytes", apfserr.Corruption, len(block))
	}
	copy(h.OChecksum[:], block[0:8])
	h.OOid = types.OidT(binary.LittleEndian.Uint64(block[8:16]))
	h.OXid = types.XidT(binary.LittleEndian.Uint64(block[16:24]))
	h.OType = binary.LittleEndian.Uint32(block[24:28])
	h.OSubtype = binary.LittleEndian.Uint32(block[28:32])
	return h, nil
}

// BlockReader is the subset of blockio.Device's contract the decoders in
// this module need; accepting the interface (rather than the concrete
// type) lets tests substitute in-memory fixtures.
type BlockReader interface {
	ReadBlock(addr uint64) ([]byte, error)
}

// ReadValidated reads one block at addr, decodes its object header, and
// verifies its checksum. A checksum failure is reported as apfserr.Corruption
// and is always fatal to the caller. Callers that tolerate a checksum
// failure (checkpoint-ring scanning, the block-0 warning, the search scan)
// call checksum.Valid directly instead of this helper.
func ReadValidated(r BlockReader, addr uint64) ([]byte, types.ObjPhysT, error) {
	block, err := r.ReadBlock(addr)
	if err != nil {
		return nil, types.ObjPhysT{}, err
	}
	hdr, err := Decode(block)
	if err != nil {
		return nil, types.ObjPhysT{}, err
	}
	if !checksum.Valid(block) {
		return nil, types.ObjPhysT{}, fmt.Errorf("%w: checksum mismatch at block %#x (oid=%#x xid=%d)", apfserr.Corruption, addr, hdr.OOid, hdr.OXid)
	}
	return block, hdr, nil
}
