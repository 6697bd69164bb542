package extent

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilsson-labs/apfs-recover/apfs/types"
	"github.com/nilsson-labs/apfs-recover/internal/btreeio"
	"github.com/nilsson-labs/apfs-recover/internal/fstree"
)

func TestSizePrefersDstreamOverUncompressedSize(t *testing.T) {
	inode := types.JInodeValT{UncompressedSize: 100}
	payload := make([]byte, 40)
	binary.LittleEndian.PutUint64(payload[0:8], 9000)

	blob := make([]byte, 4+4+len(payload))
	binary.LittleEndian.PutUint16(blob[0:2], 1)
	binary.LittleEndian.PutUint16(blob[2:4], uint16(len(payload)))
	blob[4] = types.InoExtTypeDstream
	binary.LittleEndian.PutUint16(blob[6:8], uint16(len(payload)))
	copy(blob[8:], payload)

	fields, err := fstree.DecodeXFields(blob)
	require.NoError(t, err)

	assert.EqualValues(t, 9000, Size(inode, fields))
}

func TestSizeFallsBackToUncompressedSize(t *testing.T) {
	inode := types.JInodeValT{UncompressedSize: 4096}
	assert.EqualValues(t, 4096, Size(inode, nil))
}

type fileExtentEntry struct {
	oid          uint64
	logicalAddr  uint64
	length       uint64
	physBlockNum uint64
}

func keyForExtent(oid, logicalAddr uint64) []byte {
	b := make([]byte, 16)
	v := (oid & types.ObjIdMask) | (uint64(types.ApfsTypeFileExtent) << types.ObjTypeShift)
	binary.LittleEndian.PutUint64(b[0:8], v)
	binary.LittleEndian.PutUint64(b[8:16], logicalAddr)
	return b
}

// buildExtentRoot assembles a single-level root leaf of FILE_EXTENT records
// for one object id, in ascending logical-address order.
func buildExtentRoot(entries []fileExtentEntry) []byte {
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
		key := keyForExtent(e.oid, e.logicalAddr)
		keyOff := uint16(keyCursor)
		copy(block[keyStart+keyCursor:], key)
		keyCursor += len(key)

		val := make([]byte, 24)
		binary.LittleEndian.PutUint64(val[0:8], e.length)
		binary.LittleEndian.PutUint64(val[8:16], e.physBlockNum)
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

func TestSpansTruncatesFinalSpanToFileSize(t *testing.T) {
	block := buildExtentRoot([]fileExtentEntry{
		{oid: 7, logicalAddr: 0, length: 4096, physBlockNum: 10},
		{oid: 7, logicalAddr: 4096, length: 4096, physBlockNum: 11},
	})
	root, err := btreeio.Decode(block)
	require.NoError(t, err)

	spans, err := Spans(nil, nil, root, types.OidT(7), 6000, types.XidT(1))
	require.NoError(t, err)
	require.Len(t, spans, 2)
	assert.EqualValues(t, 4096, spans[0].Length)
	assert.EqualValues(t, 10, spans[0].PhysBlockNum)
	assert.EqualValues(t, 1904, spans[1].Length)
	assert.EqualValues(t, 11, spans[1].PhysBlockNum)
}

func TestSpansErrorsWhenNoExtentsFoundForNonemptyFile(t *testing.T) {
	block := buildExtentRoot(nil)
	root, err := btreeio.Decode(block)
	require.NoError(t, err)

	_, err = Spans(nil, nil, root, types.OidT(7), 100, types.XidT(1))
	assert.Error(t, err)
}

func TestSpansEmptyFileReturnsNoSpansNoError(t *testing.T) {
	block := buildExtentRoot(nil)
	root, err := btreeio.Decode(block)
	require.NoError(t, err)

	spans, err := Spans(nil, nil, root, types.OidT(7), 0, types.XidT(1))
	require.NoError(t, err)
	assert.Empty(t, spans)
}
