// Package fstree implements the virtual-OID file-system B+ tree walk from
// SPEC_FULL.md §4.5 (get_fs_records in original_source/apfs/func/btree.h):
// given a volume's object map and file-system root tree, returns every
// record whose key carries the requested virtual OID, in key order.
//
// The tree contains no sibling pointers, so after locating the first
// matching leaf entry the walker replays the descent path recorded during
// that search (desc_path) to visit each subsequent leaf entry in turn,
// re-descending from the root each time. This is slower than a sibling-
// linked walk but matches the on-disk format, which has no such links.
package fstree

import (
	"encoding/binary"
	"fmt"

	"github.com/nilsson-labs/apfs-recover/apfs/types"
	"github.com/nilsson-labs/apfs-recover/internal/apfserr"
	"github.com/nilsson-labs/apfs-recover/internal/btreeio"
	"github.com/nilsson-labs/apfs-recover/internal/objheader"
	"github.com/nilsson-labs/apfs-recover/internal/omap"
)

// Record is one key/value pair from a file-system tree leaf, grouped
// together the way original_source's j_rec_t does. Tagging it by type
// (Inode, DirRec, ...) is done by the record view helpers in view.go.
type Record struct {
	Key []byte
	Val []byte
}

// ObjIdOf extracts the object identifier from a file-system record key's
// leading j_key_t.obj_id_and_type field.
func ObjIdOf(key []byte) types.OidT {
	v := binary.LittleEndian.Uint64(key[0:8])
	return types.OidT(v & types.ObjIdMask)
}

// ObjTypeOf extracts the record type tag from a file-system record key's
// leading j_key_t.obj_id_and_type field.
func ObjTypeOf(key []byte) types.JObjTypes {
	v := binary.LittleEndian.Uint64(key[0:8])
	return types.JObjTypes((v & types.ObjTypeMask) >> types.ObjTypeShift)
}

// GetRecords returns every record in fsRoot whose object ID is oid, visible
// at or before maxXid. omapRoot resolves the virtual OIDs of the tree's own
// internal nodes (which are themselves objects tracked by the volume's
// object map) to physical block addresses.
func GetRecords(r objheader.BlockReader, omapRoot, fsRoot *btreeio.Node, oid types.OidT, maxXid types.XidT) ([]Record, error) {
	level := int(fsRoot.Level)
	descPath := make([]int, level+1)

	if err := descendToFirst(r, omapRoot, fsRoot, oid, maxXid, descPath); err != nil {
		return nil, err
	}

	var records []Record
walk:
	for {
		node := fsRoot
		for i := 0; i <= level; i++ {
			if node.HasFixedKVSize() {
				return nil, fmt.Errorf("%w: file-system tree node carries FIXED_KV_SIZE", apfserr.Corruption)
			}

			if descPath[i] >= int(node.NKeys) {
				if node.IsRoot() {
					return records, nil
				}
				descPath[i-1]++
				for j := i; j <= level; j++ {
					descPath[j] = 0
				}
				continue walk
			}

			key, val, err := node.VarEntry(uint32(descPath[i]))
			if err != nil {
				return nil, err
			}

			if node.IsLeaf() {
				keyBytes, err := node.KeyBytes(key.Off, int(key.Len))
				if err != nil {
					return nil, err
				}
				if ObjIdOf(keyBytes) != oid {
					return records, nil
				}
				valBytes, err := node.ValueBytes(val.Off, int(val.Len))
				if err != nil {
					return nil, err
				}
				rec := Record{Key: append([]byte(nil), keyBytes...), Val: append([]byte(nil), valBytes...)}
				records = append(records, rec)
				descPath[i]++
				continue walk
			}

			child, err := descendChild(r, omapRoot, node, val, maxXid)
			if err != nil {
				return nil, err
			}
			node = child
		}
	}
}

// descendToFirst performs phase one of get_fs_records: find the leftmost
// leaf entry with the requested OID, recording the index chosen at each
// level into descPath. If no entry with the requested OID exists, descPath
// is left with an out-of-range terminal index rather than an error in the
// "every entry on this leaf sorts before oid" case, matching
// original_source's fallthrough into phase two, where that out-of-range
// index naturally yields zero records instead of needing special-casing.
func descendToFirst(r objheader.BlockReader, omapRoot, fsRoot *btreeio.Node, oid types.OidT, maxXid types.XidT, descPath []int) error {
	node := fsRoot
	i := 0
	for {
		if node.HasFixedKVSize() {
			return fmt.Errorf("%w: file-system tree node carries FIXED_KV_SIZE", apfserr.Corruption)
		}
		nkeys := int(node.NKeys)

		d := 0
		for ; d < nkeys; d++ {
			key, _, err := node.VarEntry(uint32(d))
			if err != nil {
				return err
			}
			keyBytes, err := node.KeyBytes(key.Off, int(key.Len))
			if err != nil {
				return err
			}
			recordOid := ObjIdOf(keyBytes)

			if recordOid == oid {
				if node.IsLeaf() {
					break
				}
				if d != 0 {
					d--
				}
				break
			}
			if recordOid > oid {
				if node.IsLeaf() {
					return fmt.Errorf("%w: no file-system record with oid %#x", apfserr.NotFound, oid)
				}
				d--
				break
			}
		}
		if d < 0 {
			return fmt.Errorf("%w: no file-system record with oid %#x", apfserr.NotFound, oid)
		}
		descPath[i] = d

		if node.IsLeaf() {
			return nil
		}

		if d >= nkeys {
			d = nkeys - 1
			descPath[i] = d
		}

		_, val, err := node.VarEntry(uint32(d))
		if err != nil {
			return err
		}
		child, err := descendChild(r, omapRoot, node, val, maxXid)
		if err != nil {
			return err
		}
		node = child
		i++
	}
}

// descendChild resolves a non-leaf entry's value (a virtual OID of the
// child node) through the volume object map and reads the child block.
func descendChild(r objheader.BlockReader, omapRoot, node *btreeio.Node, val types.NlocT, maxXid types.XidT) (*btreeio.Node, error) {
	valBytes, err := node.ValueBytes(val.Off, 8)
	if err != nil {
		return nil, err
	}
	childVirtOid := types.OidT(binary.LittleEndian.Uint64(valBytes))

	ov, ok, err := omap.Lookup(r, omapRoot, childVirtOid, maxXid)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: object map has no entry for virtual oid %#x", apfserr.NotFound, childVirtOid)
	}

	block, _, err := objheader.ReadValidated(r, uint64(ov.Paddr))
	if err != nil {
		return nil, err
	}
	return btreeio.Decode(block)
}
