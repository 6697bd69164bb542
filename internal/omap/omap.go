// Package omap implements the physical-OID object-map B+ tree walk from
// SPEC_FULL.md §4.4 (get_btree_phys_omap_val in
// original_source/apfs/func/btree.h): given a root node and (oid, max_xid),
// returns the physical address and flags of the live value.
package omap

import (
	"encoding/binary"
	"fmt"

	"github.com/nilsson-labs/apfs-recover/apfs/types"
	"github.com/nilsson-labs/apfs-recover/internal/apfserr"
	"github.com/nilsson-labs/apfs-recover/internal/btreeio"
	"github.com/nilsson-labs/apfs-recover/internal/objheader"
)

// keySize is sizeof(omap_key_t): ok_oid(8) + ok_xid(8).
const keySize = 16

// leafValSize is sizeof(omap_val_t): ov_flags(4) + ov_size(4) + ov_paddr(8).
const leafValSize = 16

// internalValSize is sizeof(paddr_t): an internal node of an object-map
// tree stores only the child's physical block address in its value slot,
// not a full omap_val_t.
const internalValSize = 8

// Value is the decoded leaf value of an object-map entry.
type Value struct {
	Flags uint32
	Size  uint32
	Paddr types.Paddr
}

// Lookup descends root (and any children it points at) looking for the
// live mapping of oid at or before max_xid, per spec.md §4.4's selection
// rule: the last key satisfying key.oid < oid, or key.oid == oid && key.xid
// <= max_xid. It returns (value, true, nil) on a hit, (Value{}, false, nil)
// when no entry qualifies, and a non-nil error only for I/O or corruption.
func Lookup(r objheader.BlockReader, root *btreeio.Node, oid types.OidT, maxXid types.XidT) (Value, bool, error) {
	if !root.HasFixedKVSize() {
		return Value{}, false, fmt.Errorf("%w: object-map tree node missing FIXED_KV_SIZE flag", apfserr.Corruption)
	}

	node := root
	for {
		idx, ok, err := selectEntry(node, oid, maxXid)
		if err != nil {
			return Value{}, false, err
		}
		if !ok {
			return Value{}, false, nil
		}

		keyOff, valOff, err := node.FixedEntry(uint32(idx))
		if err != nil {
			return Value{}, false, err
		}
		keyBytes, err := node.KeyBytes(keyOff, keySize)
		if err != nil {
			return Value{}, false, err
		}
		entryOid := types.OidT(binary.LittleEndian.Uint64(keyBytes[0:8]))

		if node.IsLeaf() {
			if entryOid != oid {
				return Value{}, false, nil
			}
			valBytes, err := node.ValueBytes(valOff, leafValSize)
			if err != nil {
				return Value{}, false, err
			}
			v := Value{
				Flags: binary.LittleEndian.Uint32(valBytes[0:4]),
				Size:  binary.LittleEndian.Uint32(valBytes[4:8]),
				Paddr: types.Paddr(binary.LittleEndian.Uint64(valBytes[8:16])),
			}
			return v, true, nil
		}

		// Internal node: the value slot holds the child's physical address.
		valBytes, err := node.ValueBytes(valOff, internalValSize)
		if err != nil {
			return Value{}, false, err
		}
		childAddr := binary.LittleEndian.Uint64(valBytes)

		block, _, err := objheader.ReadValidated(r, childAddr)
		if err != nil {
			return Value{}, false, err
		}
		child, err := btreeio.Decode(block)
		if err != nil {
			return Value{}, false, err
		}
		if !child.HasFixedKVSize() {
			return Value{}, false, fmt.Errorf("%w: object-map child node missing FIXED_KV_SIZE flag", apfserr.Corruption)
		}
		node = child
	}
}

// selectEntry performs the linear TOC scan described in spec.md §4.4: the
// last entry index satisfying key.oid < oid, or key.oid == oid && key.xid
// <= maxXid. Returns ok=false if no entry qualifies (the target would sort
// before slot 0).
func selectEntry(node *btreeio.Node, oid types.OidT, maxXid types.XidT) (int, bool, error) {
	idx := -1
	for i := uint32(0); i < node.NKeys; i++ {
		keyOff, _, err := node.FixedEntry(i)
		if err != nil {
			return 0, false, err
		}
		keyBytes, err := node.KeyBytes(keyOff, keySize)
		if err != nil {
			return 0, false, err
		}
		entryOid := types.OidT(binary.LittleEndian.Uint64(keyBytes[0:8]))
		entryXid := types.XidT(binary.LittleEndian.Uint64(keyBytes[8:16]))

		if entryOid > oid || (entryOid == oid && entryXid > maxXid) {
			break
		}
		idx = int(i)
	}
	if idx < 0 {
		return 0, false, nil
	}
	return idx, true, nil
}
