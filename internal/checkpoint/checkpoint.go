// Package checkpoint implements the checkpoint locator from SPEC_FULL.md
// §4.3: reads block 0, scans the checkpoint-descriptor ring, selects the
// highest-XID well-formed container superblock, materialises its
// checkpoint-mapping blocks, and validates the ephemeral objects they name.
//
// Grounded on internal/parsers/container/container_superblock_reader.go for
// the nx_superblock_t byte layout, reused verbatim against apfs/types
// instead of the broken internal/types duplicate.
package checkpoint

import (
	"encoding/binary"
	"fmt"

	"github.com/nilsson-labs/apfs-recover/apfs/types"
	"github.com/nilsson-labs/apfs-recover/internal/apfserr"
	"github.com/nilsson-labs/apfs-recover/internal/checksum"
	"github.com/nilsson-labs/apfs-recover/internal/diag"
	"github.com/nilsson-labs/apfs-recover/internal/objheader"
	"github.com/nilsson-labs/apfs-recover/internal/objtype"
)

// Checkpoint is a materialised, validated checkpoint: its selected
// superblock plus the descriptor-ring addresses that make up the checkpoint.
// The ephemeral objects are validated during Locate but not kept.
type Checkpoint struct {
	Superblock types.NxSuperblockT
	Blocks     []uint64 // the descriptor-ring addresses that make up this checkpoint, in order
}

// DecodeNxSuperblock parses block's nx_superblock_t fields. block must be at
// least 1392 bytes, enough for every field through nx_newest_mounted_version;
// nx_mkb_locker is read only when the block holds it.
func DecodeNxSuperblock(block []byte) (types.NxSuperblockT, error) {
	var sb types.NxSuperblockT
	if len(block) < 1392 {
		return sb, fmt.Errorf("%w: block too small for container superblock: %d bytes", apfserr.Corruption, len(block))
	}

	copy(sb.NxO.OChecksum[:], block[0:8])
	sb.NxO.OOid = types.OidT(binary.LittleEndian.Uint64(block[8:16]))
	sb.NxO.OXid = types.XidT(binary.LittleEndian.Uint64(block[16:24]))
	sb.NxO.OType = binary.LittleEndian.Uint32(block[24:28])
	sb.NxO.OSubtype = binary.LittleEndian.Uint32(block[28:32])

	sb.NxMagic = binary.LittleEndian.Uint32(block[32:36])
	sb.NxBlockSize = binary.LittleEndian.Uint32(block[36:40])
	sb.NxBlockCount = binary.LittleEndian.Uint64(block[40:48])
	sb.NxFeatures = binary.LittleEndian.Uint64(block[48:56])
	sb.NxReadonlyCompatibleFeatures = binary.LittleEndian.Uint64(block[56:64])
	sb.NxIncompatibleFeatures = binary.LittleEndian.Uint64(block[64:72])
	copy(sb.NxUuid[:], block[72:88])
	sb.NxNextOid = types.OidT(binary.LittleEndian.Uint64(block[88:96]))
	sb.NxNextXid = types.XidT(binary.LittleEndian.Uint64(block[96:104]))

	sb.NxXpDescBlocks = binary.LittleEndian.Uint32(block[104:108])
	sb.NxXpDataBlocks = binary.LittleEndian.Uint32(block[108:112])
	sb.NxXpDescBase = types.Paddr(binary.LittleEndian.Uint64(block[112:120]))
	sb.NxXpDataBase = types.Paddr(binary.LittleEndian.Uint64(block[120:128]))
	sb.NxXpDescNext = binary.LittleEndian.Uint32(block[128:132])
	sb.NxXpDataNext = binary.LittleEndian.Uint32(block[132:136])
	sb.NxXpDescIndex = binary.LittleEndian.Uint32(block[136:140])
	sb.NxXpDescLen = binary.LittleEndian.Uint32(block[140:144])
	sb.NxXpDataIndex = binary.LittleEndian.Uint32(block[144:148])
	sb.NxXpDataLen = binary.LittleEndian.Uint32(block[148:152])

	sb.NxSpacemanOid = types.OidT(binary.LittleEndian.Uint64(block[152:160]))
	sb.NxOmapOid = types.OidT(binary.LittleEndian.Uint64(block[160:168]))
	sb.NxReaperOid = types.OidT(binary.LittleEndian.Uint64(block[168:176]))

	sb.NxTestType = binary.LittleEndian.Uint32(block[176:180])
	sb.NxMaxFileSystems = binary.LittleEndian.Uint32(block[180:184])

	off := 184
	for i := 0; i < types.NxMaxFileSystems; i++ {
		sb.NxFsOid[i] = types.OidT(binary.LittleEndian.Uint64(block[off : off+8]))
		off += 8
	}
	for i := 0; i < types.NxNumCounters; i++ {
		sb.NxCounters[i] = binary.LittleEndian.Uint64(block[off : off+8])
		off += 8
	}

	sb.NxBlockedOutPrange.PrStartPaddr = types.Paddr(binary.LittleEndian.Uint64(block[off : off+8]))
	sb.NxBlockedOutPrange.PrBlockCount = binary.LittleEndian.Uint64(block[off+8 : off+16])
	off += 16

	sb.NxEvictMappingTreeOid = types.OidT(binary.LittleEndian.Uint64(block[off : off+8]))
	off += 8
	sb.NxFlags = binary.LittleEndian.Uint64(block[off : off+8])
	off += 8
	sb.NxEfiJumpstart = types.Paddr(binary.LittleEndian.Uint64(block[off : off+8]))
	off += 8

	copy(sb.NxFusionUuid[:], block[off:off+16])
	off += 16

	sb.NxKeylocker.PrStartPaddr = types.Paddr(binary.LittleEndian.Uint64(block[off : off+8]))
	sb.NxKeylocker.PrBlockCount = binary.LittleEndian.Uint64(block[off+8 : off+16])
	off += 16

	for i := 0; i < types.NxEphInfoCount; i++ {
		sb.NxEphemeralInfo[i] = binary.LittleEndian.Uint64(block[off : off+8])
		off += 8
	}

	sb.NxTestOid = types.OidT(binary.LittleEndian.Uint64(block[off : off+8]))
	off += 8
	sb.NxFusionMtOid = types.OidT(binary.LittleEndian.Uint64(block[off : off+8]))
	off += 8
	sb.NxFusionWbcOid = types.OidT(binary.LittleEndian.Uint64(block[off : off+8]))
	off += 8

	sb.NxFusionWbc.PrStartPaddr = types.Paddr(binary.LittleEndian.Uint64(block[off : off+8]))
	sb.NxFusionWbc.PrBlockCount = binary.LittleEndian.Uint64(block[off+8 : off+16])
	off += 16

	sb.NxNewestMountedVersion = binary.LittleEndian.Uint64(block[off : off+8])
	off += 8

	if off+16 <= len(block) {
		sb.NxMkbLocker.PrStartPaddr = types.Paddr(binary.LittleEndian.Uint64(block[off : off+8]))
		sb.NxMkbLocker.PrBlockCount = binary.LittleEndian.Uint64(block[off+8 : off+16])
	}

	return sb, nil
}

// decodeCheckpointMap parses a checkpoint-mapping block's cpm_flags,
// cpm_count, and array of checkpoint_mapping_t entries.
func decodeCheckpointMap(block []byte) (flags, count uint32, mappings []types.CheckpointMappingT, err error) {
	const headerSize = objheader.HeaderSize + 8 // obj header + flags(4) + count(4)
	if len(block) < headerSize {
		return 0, 0, nil, fmt.Errorf("%w: checkpoint map block too small", apfserr.Corruption)
	}
	flags = binary.LittleEndian.Uint32(block[objheader.HeaderSize : objheader.HeaderSize+4])
	count = binary.LittleEndian.Uint32(block[objheader.HeaderSize+4 : objheader.HeaderSize+8])

	const entrySize = 40 // type(4)+subtype(4)+size(4)+pad(4)+fs_oid(8)+oid(8)+paddr(8)
	mappings = make([]types.CheckpointMappingT, 0, count)
	for i := uint32(0); i < count; i++ {
		off := headerSize + int(i)*entrySize
		if off+entrySize > len(block) {
			return flags, count, mappings, fmt.Errorf("%w: checkpoint map entry %d out of range", apfserr.Corruption, i)
		}
		m := types.CheckpointMappingT{
			CpmType:    binary.LittleEndian.Uint32(block[off : off+4]),
			CpmSubtype: binary.LittleEndian.Uint32(block[off+4 : off+8]),
			CpmSize:    binary.LittleEndian.Uint32(block[off+8 : off+12]),
			CpmPad:     binary.LittleEndian.Uint32(block[off+12 : off+16]),
			CpmFsOid:   types.OidT(binary.LittleEndian.Uint64(block[off+16 : off+24])),
			CpmOid:     types.OidT(binary.LittleEndian.Uint64(block[off+24 : off+32])),
			CpmPaddr:   types.Paddr(binary.LittleEndian.Uint64(block[off+32 : off+40])),
		}
		mappings = append(mappings, m)
	}
	return flags, count, mappings, nil
}

// Locate implements spec.md §4.3's algorithm in full, including the
// ephemeral-corruption fallback resolved in SPEC_FULL.md §4: if the selected
// checkpoint's ephemeral objects fail validation, retry with the
// next-highest-XID candidate strictly below the failed one, down to the
// oldest candidate found in the ring.
func Locate(r objheader.BlockReader, maxXid types.XidT, log *diag.Logger) (*Checkpoint, error) {
	block0, err := r.ReadBlock(0)
	if err != nil {
		return nil, err
	}
	sb0, err := DecodeNxSuperblock(block0)
	if err != nil {
		return nil, err
	}
	if sb0.NxMagic != types.NxMagic {
		return nil, fmt.Errorf("%w: block 0 is not a container superblock (bad magic)", apfserr.Corruption)
	}
	if !checksum.Valid(block0) {
		log.Infof("warning: block 0 superblock failed checksum validation; continuing anyway")
	}

	if sb0.NxXpDescBlocks&0x80000000 != 0 {
		return nil, fmt.Errorf("%w: non-contiguous checkpoint descriptor area is not supported", apfserr.Unsupported)
	}
	descBlocks := sb0.NxXpDescBlocks &^ 0x80000000
	descBase := uint64(sb0.NxXpDescBase)

	type candidate struct {
		sb  types.NxSuperblockT
		idx uint32
	}
	var candidates []candidate
	for i := uint32(0); i < descBlocks; i++ {
		blk, err := r.ReadBlock(descBase + uint64(i))
		if err != nil {
			return nil, err
		}
		if !checksum.Valid(blk) {
			continue
		}
		sb, err := DecodeNxSuperblock(blk)
		if err != nil {
			continue
		}
		if sb.NxMagic != types.NxMagic {
			continue
		}
		if sb.NxO.OXid > maxXid {
			continue
		}
		candidates = append(candidates, candidate{sb: sb, idx: i})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no valid container superblock found in descriptor ring", apfserr.Corruption)
	}

	// Sort candidates by XID descending so the fallback loop can walk
	// strictly-older checkpoints in order.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].sb.NxO.OXid > candidates[j-1].sb.NxO.OXid; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}

	for attempt, cand := range candidates {
		blocks := ringSlice(descBase, descBlocks, cand.sb.NxXpDescIndex, cand.sb.NxXpDescLen)

		epCount, err := validateEphemerals(r, blocks)
		if err != nil {
			if attempt == 0 {
				log.Infof("checkpoint at xid %d failed ephemeral validation (%v); falling back to next-older checkpoint", cand.sb.NxO.OXid, err)
			}
			continue
		}
		log.Debugf("selected checkpoint xid=%d index=%d len=%d ephemeral_objects=%d", cand.sb.NxO.OXid, cand.sb.NxXpDescIndex, cand.sb.NxXpDescLen, epCount)
		return &Checkpoint{Superblock: cand.sb, Blocks: blocks}, nil
	}

	return nil, fmt.Errorf("%w: every candidate checkpoint in the descriptor ring failed ephemeral validation; no fallback checkpoint available", apfserr.Unsupported)
}

// ringSlice returns the absolute block addresses of a checkpoint's
// descriptor-ring entries, wrapping through the ring's modulus.
func ringSlice(descBase uint64, ringLen, index, length uint32) []uint64 {
	blocks := make([]uint64, length)
	for i := uint32(0); i < length; i++ {
		blocks[i] = descBase + uint64((index+i)%ringLen)
	}
	return blocks
}

// validateEphemerals reads every checkpoint-mapping block among blocks,
// sums their cpm_count, and validates the checksum of every ephemeral
// object they name.
func validateEphemerals(r objheader.BlockReader, blocks []uint64) (int, error) {
	total := 0
	for _, addr := range blocks {
		blk, err := r.ReadBlock(addr)
		if err != nil {
			return total, err
		}
		hdr, err := objheader.Decode(blk)
		if err != nil {
			return total, err
		}
		if !objtype.IsCheckpointMapPhys(hdr.OType) {
			continue
		}
		if !checksum.Valid(blk) {
			return total, fmt.Errorf("%w: checkpoint-mapping block at %#x failed checksum", apfserr.Corruption, addr)
		}
		_, count, mappings, err := decodeCheckpointMap(blk)
		if err != nil {
			return total, err
		}
		total += int(count)
		for _, m := range mappings {
			epBlock, _, err := objheader.ReadValidated(r, uint64(m.CpmPaddr))
			if err != nil {
				return total, fmt.Errorf("%w: ephemeral object oid=%#x at %#x: %v", apfserr.Corruption, m.CpmOid, m.CpmPaddr, err)
			}
			_ = epBlock
		}
	}
	return total, nil
}
