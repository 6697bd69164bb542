package objtype

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nilsson-labs/apfs-recover/apfs/types"
)

func TestStorageClassPredicates(t *testing.T) {
	assert.True(t, IsPhysical(types.ObjPhysical|types.ObjectTypeOmap))
	assert.True(t, IsEphemeral(types.ObjEphemeral|types.ObjectTypeCheckpointMap))
	assert.True(t, IsVirtual(types.ObjectTypeFstree))
	assert.False(t, IsVirtual(types.ObjPhysical|types.ObjectTypeFstree))
	assert.False(t, IsVirtual(types.ObjEphemeral|types.ObjectTypeFstree))
}

func TestFlagPredicates(t *testing.T) {
	assert.True(t, IsNoHeader(types.ObjNoheader))
	assert.False(t, IsNoHeader(0))
	assert.True(t, IsEncrypted(types.ObjEncrypted))
	assert.False(t, IsEncrypted(0))
}

func TestKindPredicates(t *testing.T) {
	assert.True(t, IsNxSuperblock(types.ObjectTypeNxSuperblock))
	assert.True(t, IsBtreeNodePhys(types.ObjectTypeBtree))
	assert.True(t, IsBtreeNodePhys(types.ObjectTypeBtreeNode))
	assert.False(t, IsBtreeNodePhys(types.ObjectTypeOmap))
	assert.True(t, IsCheckpointMapPhys(types.ObjectTypeCheckpointMap))
	assert.True(t, IsOmap(types.ObjectTypeOmap))
	assert.True(t, IsFsTree(types.ObjectTypeFstree))
}

func TestKindMasksOffStorageAndFlagBits(t *testing.T) {
	typeWord := types.ObjPhysical | types.ObjectTypeBtree
	assert.Equal(t, types.ObjectTypeBtree, Kind(typeWord))
	assert.True(t, IsBtreeNodePhys(typeWord))
	assert.True(t, IsPhysical(typeWord))
}
