// Package objtype implements the object type classifier from
// SPEC_FULL.md §2.3: predicates over the 32-bit object type word stored in
// every obj_phys_t header, built on the type/flag constants in
// apfs/types/objects.go.
package objtype

import "github.com/nilsson-labs/apfs-recover/apfs/types"

// Kind extracts the low 16 bits of a type word: the object type tag, with
// storage-class and other flag bits masked off.
func Kind(typeWord uint32) uint32 {
	return typeWord & types.ObjectTypeMask
}

// StorageClass extracts the storage-class bits (physical/virtual/ephemeral)
// from a type word.
func StorageClass(typeWord uint32) uint32 {
	return typeWord & types.ObjStorageTypeMask
}

// IsPhysical reports whether typeWord marks a physical object.
func IsPhysical(typeWord uint32) bool {
	return typeWord&types.ObjPhysical != 0
}

// IsVirtual reports whether typeWord marks a virtual object (storage class
// bits are zero for virtual objects, so this is the absence of every other
// storage-class flag).
func IsVirtual(typeWord uint32) bool {
	return StorageClass(typeWord) == types.ObjVirtual && typeWord&types.ObjEphemeral == 0
}

// IsEphemeral reports whether typeWord marks an ephemeral object.
func IsEphemeral(typeWord uint32) bool {
	return typeWord&types.ObjEphemeral != 0
}

// IsNoHeader reports whether the object is stored without an obj_phys_t
// header.
func IsNoHeader(typeWord uint32) bool {
	return typeWord&types.ObjNoheader != 0
}

// IsEncrypted reports whether the object is encrypted.
func IsEncrypted(typeWord uint32) bool {
	return typeWord&types.ObjEncrypted != 0
}

// IsNxSuperblock reports whether typeWord identifies a container superblock.
func IsNxSuperblock(typeWord uint32) bool {
	return Kind(typeWord) == types.ObjectTypeNxSuperblock
}

// IsBtreeNodePhys reports whether typeWord identifies a root or non-root
// B-tree node (both OBJECT_TYPE_BTREE and OBJECT_TYPE_BTREE_NODE are backed
// by btree_node_phys_t on disk).
func IsBtreeNodePhys(typeWord uint32) bool {
	k := Kind(typeWord)
	return k == types.ObjectTypeBtree || k == types.ObjectTypeBtreeNode
}

// IsCheckpointMapPhys reports whether typeWord identifies a
// checkpoint-mapping block.
func IsCheckpointMapPhys(typeWord uint32) bool {
	return Kind(typeWord) == types.ObjectTypeCheckpointMap
}

// IsOmap reports whether typeWord identifies an object map.
func IsOmap(typeWord uint32) bool {
	return Kind(typeWord) == types.ObjectTypeOmap
}

// IsFsTree reports whether subtype identifies a B-tree node's subtype as a
// file-system tree (used together with IsBtreeNodePhys to classify a block
// during the search tool's linear scan).
func IsFsTree(subtype uint32) bool {
	return Kind(subtype) == types.ObjectTypeFstree
}
