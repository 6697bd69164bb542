package container

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilsson-labs/apfs-recover/apfs/types"
	"github.com/nilsson-labs/apfs-recover/internal/apfserr"
	"github.com/nilsson-labs/apfs-recover/internal/blockio"
	"github.com/nilsson-labs/apfs-recover/internal/btreeio"
	"github.com/nilsson-labs/apfs-recover/internal/checkpoint"
	"github.com/nilsson-labs/apfs-recover/internal/checksum"
)

// buildOmapLeaf assembles a single fixed-KV-size leaf mapping one virtual
// oid to a physical address, the minimal shape Container.Volume needs from
// the container object map.
func buildOmapLeaf(oid uint64, xid uint64, paddr uint64) []byte {
	const blockSize = 4096
	block := make([]byte, blockSize)
	binary.LittleEndian.PutUint32(block[36:40], 1) // nkeys
	binary.LittleEndian.PutUint16(block[42:44], 4) // toc len, one kvoff_t entry
	binary.LittleEndian.PutUint16(block[32:34], types.BtnodeLeaf|types.BtnodeFixedKvSize)

	tocStart := btreeio.HeaderSize
	keyStart := tocStart + 4
	binary.LittleEndian.PutUint64(block[keyStart:keyStart+8], oid)
	binary.LittleEndian.PutUint64(block[keyStart+8:keyStart+16], xid)

	valEnd := blockSize
	valOff := uint16(16)
	valAt := valEnd - int(valOff)
	binary.LittleEndian.PutUint32(block[valAt:valAt+4], 0)     // flags
	binary.LittleEndian.PutUint32(block[valAt+4:valAt+8], 4096) // size
	binary.LittleEndian.PutUint64(block[valAt+8:valAt+16], paddr)

	binary.LittleEndian.PutUint16(block[tocStart:tocStart+2], 0)
	binary.LittleEndian.PutUint16(block[tocStart+2:tocStart+4], valOff)
	return block
}

func buildVolumeSuperblockAt(oid uint64) []byte {
	block := make([]byte, 4096)
	binary.LittleEndian.PutUint64(block[8:16], oid)
	binary.LittleEndian.PutUint32(block[24:28], types.ObjectTypeFs)
	for i := 0; i < checksum.Size; i++ {
		block[i] = 0
	}
	sum := checksum.Compute(block)
	copy(block[:checksum.Size], sum[:])
	return block
}

func newTestContainer(t *testing.T, volumeOid uint64, volumeAddr uint64) *Container {
	t.Helper()
	const blockSize = 4096
	total := int(volumeAddr) + 1
	raw := make([]byte, total*blockSize)

	omapLeaf := buildOmapLeaf(volumeOid, 1, volumeAddr)
	copy(raw[0:blockSize], omapLeaf)

	volBlock := buildVolumeSuperblockAt(volumeOid)
	copy(raw[int(volumeAddr)*blockSize:], volBlock)

	dev := blockio.NewDevice(bytes.NewReader(raw), blockSize)

	omapNode, err := btreeio.Decode(omapLeaf)
	require.NoError(t, err)

	var sb types.NxSuperblockT
	sb.NxO.OXid = types.XidT(1)
	sb.NxFsOid[0] = types.OidT(volumeOid)

	return &Container{
		dev:      dev,
		cp:       &checkpoint.Checkpoint{Superblock: sb},
		omapRoot: omapNode,
	}
}

func TestVolumeOidsSkipsZeroSlots(t *testing.T) {
	c := newTestContainer(t, 42, 1)
	oids := c.VolumeOids()
	require.Len(t, oids, 1)
	assert.EqualValues(t, 42, oids[0])
}

func TestVolumeResolvesSuperblockThroughObjectMap(t *testing.T) {
	c := newTestContainer(t, 42, 1)
	block, virtOid, err := c.Volume(0)
	require.NoError(t, err)
	assert.EqualValues(t, 42, virtOid)
	assert.Len(t, block, 4096)
}

func TestVolumeIndexOutOfRange(t *testing.T) {
	c := newTestContainer(t, 42, 1)
	_, _, err := c.Volume(5)
	assert.ErrorIs(t, err, apfserr.NotFound)
}

func TestMaxXidReflectsSelectedCheckpoint(t *testing.T) {
	c := newTestContainer(t, 42, 1)
	assert.EqualValues(t, 1, c.MaxXid())
}

func TestUUIDReflectsNxUuidBytes(t *testing.T) {
	c := newTestContainer(t, 42, 1)
	copy(c.cp.Superblock.NxUuid[:], []byte{
		0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff, 0x00, 0x11,
		0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99,
	})
	assert.Equal(t, "aabbccdd-eeff-0011-2233-445566778899", c.UUID().String())
}
