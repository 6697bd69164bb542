package types

// B-Trees (pages 122-134)
// The B-trees used in Apple File System are implemented using the
// btree_node_phys_t structure to represent a node. The same structure is
// used for all nodes in a tree.
//
// This file was absent from the package as copied (a near-identical copy
// existed in internal/types/btree.go, but that package never defined
// ObjPhysT/OidT itself and so never compiled); restored here so apfs/types
// is self-contained, since it already owns the real ObjPhysT/OidT.

// BtreeNodePhysT is a B-tree node.
// Reference: page 123
type BtreeNodePhysT struct {
	BtnO           ObjPhysT
	BtnFlags       uint16
	BtnLevel       uint16
	BtnNkeys       uint32
	BtnTableSpace  NlocT
	BtnFreeSpace   NlocT
	BtnKeyFreeList NlocT
	BtnValFreeList NlocT
	BtnData        []byte
}

// BtreeInfoFixedT contains static information about a B-tree.
// Reference: page 125
type BtreeInfoFixedT struct {
	BtFlags    uint32
	BtNodeSize uint32
	BtKeySize  uint32
	BtValSize  uint32
}

// BtreeInfoT contains information about a B-tree.
// Reference: page 126
type BtreeInfoT struct {
	BtFixed      BtreeInfoFixedT
	BtLongestKey uint32
	BtLongestVal uint32
	BtKeyCount   uint64
	BtNodeCount  uint64
}

// BtnIndexNodeValT is the value used by hashed B-trees for nonleaf nodes.
// Reference: page 127
type BtnIndexNodeValT struct {
	BinvChildOid  OidT
	BinvChildHash [BtreeNodeHashSizeMax]byte
}

// BtreeNodeHashSizeMax is the maximum length of a hash that can be stored
// in this structure (same as APFS_HASH_MAX_SIZE).
// Reference: page 128
const BtreeNodeHashSizeMax = 64

// NlocT is a location within a B-tree node. The offset is implicitly
// positive or negative, counted from different origins, depending on the
// field that holds it.
// Reference: page 128
type NlocT struct {
	Off uint16
	Len uint16
}

// BtoffInvalid marks an nloc_t with no offset (e.g. the last entry in a
// free list).
// Reference: page 128
const BtoffInvalid uint16 = 0xffff

// KvlocT is the location, within a B-tree node, of a variable-size key and
// value.
// Reference: page 128
type KvlocT struct {
	K NlocT
	V NlocT
}

// KvoffT is the location, within a B-tree node, of a fixed-size key and
// value.
// Reference: page 129
type KvoffT struct {
	K uint16
	V uint16
}

// B-Tree Flags (pages 129-131)
const (
	BtreeUint64Keys       uint32 = 0x00000001
	BtreeSequentialInsert uint32 = 0x00000002
	BtreeAllowGhosts      uint32 = 0x00000004
	BtreeEphemeral        uint32 = 0x00000008
	BtreePhysical         uint32 = 0x00000010
	BtreeNonpersistent    uint32 = 0x00000020
	BtreeKvNonaligned     uint32 = 0x00000040
	BtreeHashed           uint32 = 0x00000080
	BtreeNoheader         uint32 = 0x00000100
)

// B-Tree Table of Contents Constants (page 131)
const (
	BtreeTocEntryIncrement uint32 = 8
	BtreeTocEntryMaxUnused  uint32 = 2 * BtreeTocEntryIncrement
)

// B-Tree Node Flags (pages 132-133)
const (
	BtnodeRoot           uint16 = 0x0001
	BtnodeLeaf           uint16 = 0x0002
	BtnodeFixedKvSize    uint16 = 0x0004
	BtnodeHashed         uint16 = 0x0008
	BtnodeNoheader       uint16 = 0x0010
	BtnodeCheckKoffInval uint16 = 0x8000
)

// B-Tree Node Constants (page 133)
const (
	BtreeNodeSizeDefault   uint32 = 4096
	BtreeNodeMinEntryCount uint32 = 4
)
