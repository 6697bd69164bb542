package pathresolve

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilsson-labs/apfs-recover/apfs/types"
	"github.com/nilsson-labs/apfs-recover/internal/apfserr"
	"github.com/nilsson-labs/apfs-recover/internal/btreeio"
)

type dirRecEntry struct {
	parentOid uint64
	name      string
	fileId    uint64
}

func buildDirRecKey(parentOid uint64, name string) []byte {
	key := make([]byte, 8)
	v := (parentOid & types.ObjIdMask) | (uint64(types.ApfsTypeDirRec) << types.ObjTypeShift)
	binary.LittleEndian.PutUint64(key, v)

	nameBytes := append([]byte(name), 0)
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(nameBytes)))
	key = append(key, lenBuf...)
	key = append(key, nameBytes...)
	return key
}

func buildDirRecVal(fileId uint64) []byte {
	val := make([]byte, 18)
	binary.LittleEndian.PutUint64(val[0:8], fileId)
	return val
}

// buildDirTree assembles a single-level root leaf of DIR_REC entries,
// grouped in ascending parent-oid order — the grouping fstree.GetRecords'
// linear scan relies on.
func buildDirTree(entries []dirRecEntry) []byte {
	const blockSize = 4096
	block := make([]byte, blockSize)
	n := len(entries)
	binary.LittleEndian.PutUint32(block[36:40], uint32(n))
	binary.LittleEndian.PutUint16(block[40:42], 0)
	tocLen := uint16(n * 8)
	binary.LittleEndian.PutUint16(block[42:44], tocLen)
	binary.LittleEndian.PutUint16(block[32:34], types.BtnodeLeaf|types.BtnodeRoot)

	tocStart := btreeio.HeaderSize
	keyStart := tocStart + int(tocLen)
	valEnd := blockSize - btreeio.InfoSize

	keyCursor, valCursor := 0, 0
	for i, e := range entries {
		key := buildDirRecKey(e.parentOid, e.name)
		keyOff := uint16(keyCursor)
		copy(block[keyStart+keyCursor:], key)
		keyCursor += len(key)

		val := buildDirRecVal(e.fileId)
		valCursor += len(val)
		valOff := uint16(valCursor)
		copy(block[valEnd-valCursor:], val)

		tocAt := tocStart + i*8
		binary.LittleEndian.PutUint16(block[tocAt:tocAt+2], keyOff)
		binary.LittleEndian.PutUint16(block[tocAt+2:tocAt+4], uint16(len(key)))
		binary.LittleEndian.PutUint16(block[tocAt+4:tocAt+6], valOff)
		binary.LittleEndian.PutUint16(block[tocAt+6:tocAt+8], uint16(len(val)))
	}
	return block
}

func TestResolveEmptyPathReturnsRoot(t *testing.T) {
	block := buildDirTree(nil)
	root, err := btreeio.Decode(block)
	require.NoError(t, err)

	oid, err := Resolve(nil, nil, root, "/", types.XidT(1))
	require.NoError(t, err)
	assert.Equal(t, RootDirectoryOid, oid)
}

func TestResolveWalksMultipleComponents(t *testing.T) {
	block := buildDirTree([]dirRecEntry{
		{parentOid: uint64(RootDirectoryOid), name: "dir1", fileId: 10},
		{parentOid: 10, name: "file1", fileId: 20},
	})
	root, err := btreeio.Decode(block)
	require.NoError(t, err)

	oid, err := Resolve(nil, nil, root, "/dir1/file1", types.XidT(1))
	require.NoError(t, err)
	assert.EqualValues(t, 20, oid)
}

func TestResolveMissingComponentReturnsNotFound(t *testing.T) {
	block := buildDirTree([]dirRecEntry{
		{parentOid: uint64(RootDirectoryOid), name: "dir1", fileId: 10},
	})
	root, err := btreeio.Decode(block)
	require.NoError(t, err)

	_, err = Resolve(nil, nil, root, "/nonexistent", types.XidT(1))
	assert.ErrorIs(t, err, apfserr.NotFound)
}
