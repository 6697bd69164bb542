// Package btreeio decodes btree_node_phys_t (SPEC_FULL.md §3.5) and
// provides the shared TOC-offset arithmetic both B+ tree walkers need:
// fixed-size kvoff_t entries for object-map trees, variable-size kvloc_t
// entries for file-system trees, keys measured forward from key_start, and
// values measured *backward* from val_end.
//
// Grounded on internal/parsers/btrees/btree_node_reader.go for the header
// layout. The header decode there is correct and is followed closely; the
// offset arithmetic for key/value slots is written fresh here because the
// teacher's btree_binary_searcher.go computes value offsets as forward
// offsets from the start of btn_data, which contradicts the backward-from-
// val_end addressing documented in spec.md §3.5 and used throughout
// original_source/apfs/func/btree.h ("val_end - toc_entry->v").
package btreeio

import (
	"encoding/binary"
	"fmt"

	"github.com/nilsson-labs/apfs-recover/apfs/types"
	"github.com/nilsson-labs/apfs-recover/internal/apfserr"
)

// HeaderSize is the width of btree_node_phys_t's fixed header: the 32-byte
// obj_phys_t header plus flags(2) + level(2) + nkeys(4) + four nloc_t(4*4).
const HeaderSize = 56

// InfoSize is sizeof(btree_info_t): btree_info_fixed_t (16) + longest_key(4)
// + longest_val(4) + key_count(8) + node_count(8).
const InfoSize = 40

// Node is a decoded B-tree node together with the raw block it was read
// from; all offset arithmetic below operates on that raw block, matching
// the source's pointer arithmetic from the start of the node.
type Node struct {
	Raw   []byte
	Oid   types.OidT
	Xid   types.XidT
	Type  uint32
	Flags uint16
	Level uint16
	NKeys uint32

	TableSpace    types.NlocT
	FreeSpace     types.NlocT
	KeyFreeList   types.NlocT
	ValFreeList   types.NlocT
}

// Decode parses a raw block's btree_node_phys_t header. The caller is
// responsible for checksum validation (objheader.ReadValidated or
// checksum.Valid) before calling Decode.
func Decode(block []byte) (*Node, error) {
	if len(block) < HeaderSize {
		return nil, fmt.Errorf("%w: block too small for btree node header: %d bytes", apfserr.Corruption, len(block))
	}
	n := &Node{Raw: block}
	n.Oid = types.OidT(binary.LittleEndian.Uint64(block[8:16]))
	n.Xid = types.XidT(binary.LittleEndian.Uint64(block[16:24]))
	n.Type = binary.LittleEndian.Uint32(block[24:28])
	n.Flags = binary.LittleEndian.Uint16(block[32:34])
	n.Level = binary.LittleEndian.Uint16(block[34:36])
	n.NKeys = binary.LittleEndian.Uint32(block[36:40])
	n.TableSpace = types.NlocT{Off: binary.LittleEndian.Uint16(block[40:42]), Len: binary.LittleEndian.Uint16(block[42:44])}
	n.FreeSpace = types.NlocT{Off: binary.LittleEndian.Uint16(block[44:46]), Len: binary.LittleEndian.Uint16(block[46:48])}
	n.KeyFreeList = types.NlocT{Off: binary.LittleEndian.Uint16(block[48:50]), Len: binary.LittleEndian.Uint16(block[50:52])}
	n.ValFreeList = types.NlocT{Off: binary.LittleEndian.Uint16(block[52:54]), Len: binary.LittleEndian.Uint16(block[54:56])}
	return n, nil
}

// IsRoot reports whether this node carries a trailing btree_info_t footer.
func (n *Node) IsRoot() bool { return n.Flags&types.BtnodeRoot != 0 }

// IsLeaf reports whether this node has the LEAF flag set.
func (n *Node) IsLeaf() bool { return n.Flags&types.BtnodeLeaf != 0 }

// HasFixedKVSize reports whether the TOC uses kvoff_t entries (object-map
// trees) rather than kvloc_t entries (file-system trees).
func (n *Node) HasFixedKVSize() bool { return n.Flags&types.BtnodeFixedKvSize != 0 }

// tocStart is the absolute offset, within Raw, of the first TOC entry.
func (n *Node) tocStart() int { return HeaderSize + int(n.TableSpace.Off) }

// keyStart is the absolute offset, within Raw, that key offsets are
// measured forward from.
func (n *Node) keyStart() int { return n.tocStart() + int(n.TableSpace.Len) }

// valEnd is the absolute offset, within Raw, that value offsets are
// measured backward from: the end of the block, minus a btree_info_t
// footer on root nodes only.
func (n *Node) valEnd() int {
	end := len(n.Raw)
	if n.IsRoot() {
		end -= InfoSize
	}
	return end
}

// FixedEntry reads the i'th kvoff_t TOC entry (key_off, value_off), each a
// 2-byte forward/backward offset respectively.
func (n *Node) FixedEntry(i uint32) (keyOff, valOff uint16, err error) {
	off := n.tocStart() + int(i)*4
	if off+4 > len(n.Raw) {
		return 0, 0, fmt.Errorf("%w: fixed TOC entry %d out of range", apfserr.Corruption, i)
	}
	return binary.LittleEndian.Uint16(n.Raw[off : off+2]), binary.LittleEndian.Uint16(n.Raw[off+2 : off+4]), nil
}

// VarEntry reads the i'th kvloc_t TOC entry: (key_off, key_len, value_off,
// value_len), each 2 bytes.
func (n *Node) VarEntry(i uint32) (key, val types.NlocT, err error) {
	off := n.tocStart() + int(i)*8
	if off+8 > len(n.Raw) {
		return types.NlocT{}, types.NlocT{}, fmt.Errorf("%w: variable TOC entry %d out of range", apfserr.Corruption, i)
	}
	key = types.NlocT{Off: binary.LittleEndian.Uint16(n.Raw[off : off+2]), Len: binary.LittleEndian.Uint16(n.Raw[off+2 : off+4])}
	val = types.NlocT{Off: binary.LittleEndian.Uint16(n.Raw[off+4 : off+6]), Len: binary.LittleEndian.Uint16(n.Raw[off+6 : off+8])}
	return key, val, nil
}

// KeyBytes returns the length bytes of key data starting at
// key_start + off.
func (n *Node) KeyBytes(off uint16, length int) ([]byte, error) {
	start := n.keyStart() + int(off)
	if start < 0 || start+length > len(n.Raw) {
		return nil, fmt.Errorf("%w: key slice out of range (off=%d len=%d)", apfserr.Corruption, off, length)
	}
	return n.Raw[start : start+length], nil
}

// ValueBytes returns the length bytes of value data starting at
// val_end - off (values grow backward from val_end, so the slot itself
// reads forward from that computed start).
func (n *Node) ValueBytes(off uint16, length int) ([]byte, error) {
	start := n.valEnd() - int(off)
	if start < 0 || start+length > len(n.Raw) {
		return nil, fmt.Errorf("%w: value slice out of range (off=%d len=%d)", apfserr.Corruption, off, length)
	}
	return n.Raw[start : start+length], nil
}
