// Package volume decodes a volume superblock (apfs_superblock_t) and
// resolves its object map and root file-system tree, so callers above it
// never touch raw block bytes or omap plumbing directly.
//
// Field offsets are grounded on
// internal/parsers/volumes/volume_superblock_reader.go, trimmed to the
// fields SPEC_FULL.md's recover/search paths actually consume.
package volume

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/nilsson-labs/apfs-recover/apfs/types"
	"github.com/nilsson-labs/apfs-recover/internal/apfserr"
	"github.com/nilsson-labs/apfs-recover/internal/btreeio"
	"github.com/nilsson-labs/apfs-recover/internal/objheader"
	"github.com/nilsson-labs/apfs-recover/internal/omap"
)

// Volume is a decoded volume superblock together with its resolved object
// map and root file-system tree, ready for pathresolve/fstree/extent to
// walk.
type Volume struct {
	Superblock types.ApfsSuperblockT
	OmapRoot   *btreeio.Node
	FsRoot     *btreeio.Node
}

// Open decodes a volume superblock from block and resolves the volume's
// own object map (apfs_omap_oid, a physical object identifier) and root
// file-system tree (apfs_root_tree_oid, a virtual object identifier
// resolved through that object map), capped at maxXid.
func Open(r objheader.BlockReader, block []byte, maxXid types.XidT) (*Volume, error) {
	sb, err := decodeSuperblock(block)
	if err != nil {
		return nil, err
	}

	omapBlock, _, err := objheader.ReadValidated(r, uint64(sb.ApfsOmapOid))
	if err != nil {
		return nil, fmt.Errorf("reading volume object map: %w", err)
	}
	// apfs_omap_oid names an omap_phys_t; its om_tree_oid (bytes 48..56) is
	// the physical address of the mapping tree's root node.
	treeBlock, _, err := objheader.ReadValidated(r, binary.LittleEndian.Uint64(omapBlock[48:56]))
	if err != nil {
		return nil, fmt.Errorf("reading volume object map tree: %w", err)
	}
	omapRoot, err := btreeio.Decode(treeBlock)
	if err != nil {
		return nil, err
	}

	ov, ok, err := omap.Lookup(r, omapRoot, sb.ApfsRootTreeOid, maxXid)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: volume object map has no entry for root tree oid %#x", apfserr.NotFound, sb.ApfsRootTreeOid)
	}
	fsBlock, _, err := objheader.ReadValidated(r, uint64(ov.Paddr))
	if err != nil {
		return nil, fmt.Errorf("reading root file-system tree: %w", err)
	}
	fsRoot, err := btreeio.Decode(fsBlock)
	if err != nil {
		return nil, err
	}

	return &Volume{Superblock: sb, OmapRoot: omapRoot, FsRoot: fsRoot}, nil
}

// Name returns the volume's NUL-terminated name field as a string.
func (v *Volume) Name() string {
	raw := v.Superblock.ApfsVolname[:]
	for i, b := range raw {
		if b == 0 {
			return string(raw[:i])
		}
	}
	return string(raw)
}

// UUID returns the volume's apfs_vol_uuid as a formatted UUID, for
// diagnostic output (recover progress narration, error messages)
// rather than parsing it back into anything structural.
func (v *Volume) UUID() uuid.UUID {
	return uuid.UUID(v.Superblock.ApfsVolUuid)
}

func decodeSuperblock(data []byte) (types.ApfsSuperblockT, error) {
	var sb types.ApfsSuperblockT
	const minSize = 1024
	if len(data) < minSize {
		return sb, fmt.Errorf("%w: volume superblock too small: %d bytes", apfserr.Corruption, len(data))
	}

	copy(sb.ApfsO.OChecksum[:], data[0:8])
	sb.ApfsO.OOid = types.OidT(binary.LittleEndian.Uint64(data[8:16]))
	sb.ApfsO.OXid = types.XidT(binary.LittleEndian.Uint64(data[16:24]))
	sb.ApfsO.OType = binary.LittleEndian.Uint32(data[24:28])
	sb.ApfsO.OSubtype = binary.LittleEndian.Uint32(data[28:32])

	off := 32
	sb.ApfsMagic = binary.LittleEndian.Uint32(data[off : off+4])
	if sb.ApfsMagic != types.ApfsMagic {
		return sb, fmt.Errorf("%w: volume superblock bad magic: %#x", apfserr.Corruption, sb.ApfsMagic)
	}
	off += 4

	sb.ApfsFsIndex = binary.LittleEndian.Uint32(data[off : off+4])
	off += 4
	sb.ApfsFeatures = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsReadonlyCompatibleFeatures = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsIncompatibleFeatures = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsUnmountTime = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsFsReserveBlockCount = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsFsQuotaBlockCount = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsFsAllocCount = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8

	// apfs_meta_crypto (wrapped_meta_crypto_state_t) is 20 bytes; its
	// wrapped-key material isn't needed to walk an unencrypted tree.
	off += 20

	sb.ApfsRootTreeType = binary.LittleEndian.Uint32(data[off : off+4])
	off += 4
	sb.ApfsExtentreftreeType = binary.LittleEndian.Uint32(data[off : off+4])
	off += 4
	sb.ApfsSnapMetatreeType = binary.LittleEndian.Uint32(data[off : off+4])
	off += 4

	sb.ApfsOmapOid = types.OidT(binary.LittleEndian.Uint64(data[off : off+8]))
	off += 8
	sb.ApfsRootTreeOid = types.OidT(binary.LittleEndian.Uint64(data[off : off+8]))
	off += 8
	sb.ApfsExtentrefTreeOid = types.OidT(binary.LittleEndian.Uint64(data[off : off+8]))
	off += 8
	sb.ApfsSnapMetaTreeOid = types.OidT(binary.LittleEndian.Uint64(data[off : off+8]))
	off += 8

	sb.ApfsRevertToXid = types.XidT(binary.LittleEndian.Uint64(data[off : off+8]))
	off += 8
	sb.ApfsRevertToSblockOid = types.OidT(binary.LittleEndian.Uint64(data[off : off+8]))
	off += 8

	sb.ApfsNextObjId = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsNumFiles = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsNumDirectories = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsNumSymlinks = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsNumOtherFsobjects = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsNumSnapshots = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsTotalBlocksAlloced = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsTotalBlocksFreed = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8

	copy(sb.ApfsVolUuid[:], data[off:off+16])
	off += 16

	sb.ApfsLastModTime = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsFsFlags = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8

	// apfs_formatted_by plus apfs_modified_by[APFS_MAX_HIST] are
	// apfs_modified_by_t records (48 bytes each: id[32]+timestamp(8)+
	// last_xid(8)); skipped to keep ApfsVolname, read by Name() below,
	// aligned correctly.
	off += 48 * (1 + int(types.ApfsMaxHist))

	if off+types.ApfsVolnameLen <= len(data) {
		copy(sb.ApfsVolname[:], data[off:off+types.ApfsVolnameLen])
		off += types.ApfsVolnameLen
	}
	if off+4 <= len(data) {
		sb.ApfsNextDocId = binary.LittleEndian.Uint32(data[off : off+4])
		off += 4
	}
	if off+2 <= len(data) {
		sb.ApfsRole = binary.LittleEndian.Uint16(data[off : off+2])
	}

	return sb, nil
}
