package omap

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilsson-labs/apfs-recover/apfs/types"
	"github.com/nilsson-labs/apfs-recover/internal/btreeio"
)

type omapEntry struct {
	oid, xid           uint64
	flags, size, paddr uint64
}

// buildFixedLeaf assembles a single fixed-KV-size leaf node (no object-map
// child descent needed) with entries sorted ascending by (oid, xid), the
// order selectEntry's linear scan assumes.
func buildFixedLeaf(entries []omapEntry) []byte {
	const blockSize = 4096
	block := make([]byte, blockSize)

	n := len(entries)
	binary.LittleEndian.PutUint32(block[36:40], uint32(n))
	binary.LittleEndian.PutUint16(block[40:42], 0)
	tocLen := uint16(n * 4)
	binary.LittleEndian.PutUint16(block[42:44], tocLen)

	flags := types.BtnodeLeaf | types.BtnodeFixedKvSize
	binary.LittleEndian.PutUint16(block[32:34], flags)

	tocStart := btreeio.HeaderSize
	keyStart := tocStart + int(tocLen)
	valEnd := blockSize

	for i, e := range entries {
		keyOff := uint16(i * keySize)
		keyAt := keyStart + int(keyOff)
		binary.LittleEndian.PutUint64(block[keyAt:keyAt+8], e.oid)
		binary.LittleEndian.PutUint64(block[keyAt+8:keyAt+16], e.xid)

		valOff := uint16((i + 1) * leafValSize)
		valAt := valEnd - int(valOff)
		binary.LittleEndian.PutUint32(block[valAt:valAt+4], uint32(e.flags))
		binary.LittleEndian.PutUint32(block[valAt+4:valAt+8], uint32(e.size))
		binary.LittleEndian.PutUint64(block[valAt+8:valAt+16], e.paddr)

		tocAt := tocStart + i*4
		binary.LittleEndian.PutUint16(block[tocAt:tocAt+2], keyOff)
		binary.LittleEndian.PutUint16(block[tocAt+2:tocAt+4], valOff)
	}

	return block
}

func TestLookupExactHit(t *testing.T) {
	block := buildFixedLeaf([]omapEntry{
		{oid: 10, xid: 1, flags: 0, size: 0x1000, paddr: 0x2000},
		{oid: 20, xid: 5, flags: 0, size: 0x1000, paddr: 0x3000},
	})
	node, err := btreeio.Decode(block)
	require.NoError(t, err)

	v, ok, err := Lookup(nil, node, types.OidT(20), types.XidT(5))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.Paddr(0x3000), v.Paddr)
	assert.EqualValues(t, 0x1000, v.Size)
}

func TestLookupPicksHighestXidAtOrBelowMax(t *testing.T) {
	block := buildFixedLeaf([]omapEntry{
		{oid: 10, xid: 1, paddr: 0xAAA},
		{oid: 10, xid: 3, paddr: 0xBBB},
		{oid: 10, xid: 9, paddr: 0xCCC},
	})
	node, err := btreeio.Decode(block)
	require.NoError(t, err)

	v, ok, err := Lookup(nil, node, types.OidT(10), types.XidT(5))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.Paddr(0xBBB), v.Paddr)
}

func TestLookupMissReturnsFalseNotError(t *testing.T) {
	block := buildFixedLeaf([]omapEntry{
		{oid: 10, xid: 1, paddr: 1},
	})
	node, err := btreeio.Decode(block)
	require.NoError(t, err)

	_, ok, err := Lookup(nil, node, types.OidT(999), types.XidT(1))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookupBelowLowestEntryMisses(t *testing.T) {
	block := buildFixedLeaf([]omapEntry{
		{oid: 10, xid: 1, paddr: 1},
	})
	node, err := btreeio.Decode(block)
	require.NoError(t, err)

	_, ok, err := Lookup(nil, node, types.OidT(1), types.XidT(1))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookupRejectsNonFixedKVTree(t *testing.T) {
	block := make([]byte, 4096)
	binary.LittleEndian.PutUint16(block[32:34], types.BtnodeLeaf)
	binary.LittleEndian.PutUint16(block[42:44], 0)
	node, err := btreeio.Decode(block)
	require.NoError(t, err)

	_, _, err = Lookup(nil, node, types.OidT(1), types.XidT(1))
	assert.Error(t, err)
}
