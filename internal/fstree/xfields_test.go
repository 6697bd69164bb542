package fstree

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilsson-labs/apfs-recover/apfs/types"
)

// buildXFieldsBlob assembles a two-phase xfields blob: a fixed-size
// descriptor table followed by a separate, 8-byte-aligned payload region,
// mirroring the layout DecodeXFields expects (not the teacher's interleaved
// one).
func buildXFieldsBlob(entries []struct {
	xType, xFlags uint8
	payload       []byte
}) []byte {
	numExts := len(entries)
	descStart := xfHeaderSize
	descSize := numExts * xfEntrySize

	var payload []byte
	offsets := make([]int, numExts)
	for i, e := range entries {
		offsets[i] = len(payload)
		payload = append(payload, e.payload...)
		if pad := paddedLen(len(e.payload)) - len(e.payload); pad > 0 {
			payload = append(payload, make([]byte, pad)...)
		}
	}

	blob := make([]byte, descStart+descSize+len(payload))
	binary.LittleEndian.PutUint16(blob[0:2], uint16(numExts))
	binary.LittleEndian.PutUint16(blob[2:4], uint16(len(payload)))

	for i, e := range entries {
		off := descStart + i*xfEntrySize
		blob[off] = e.xType
		blob[off+1] = e.xFlags
		binary.LittleEndian.PutUint16(blob[off+2:off+4], uint16(len(e.payload)))
	}
	copy(blob[descStart+descSize:], payload)
	return blob
}

func TestDecodeXFieldsRoundTrip(t *testing.T) {
	blob := buildXFieldsBlob([]struct {
		xType, xFlags uint8
		payload       []byte
	}{
		{xType: 1, xFlags: 0, payload: []byte("abc")},
		{xType: 2, xFlags: 1, payload: []byte("a longer payload string")},
	})

	fields, err := DecodeXFields(blob)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, uint8(1), fields[0].Type)
	assert.Equal(t, []byte("abc"), fields[0].Data)
	assert.Equal(t, uint8(2), fields[1].Type)
	assert.Equal(t, []byte("a longer payload string"), fields[1].Data)
}

func TestDecodeXFieldsRejectsOverrunDescriptors(t *testing.T) {
	blob := make([]byte, xfHeaderSize+xfEntrySize)
	binary.LittleEndian.PutUint16(blob[0:2], 5) // claims 5 entries, room for 1
	_, err := DecodeXFields(blob)
	assert.Error(t, err)
}

func TestDecodeXFieldsRejectsPayloadOverrun(t *testing.T) {
	blob := buildXFieldsBlob([]struct {
		xType, xFlags uint8
		payload       []byte
	}{{xType: 1, xFlags: 0, payload: []byte("x")}})
	// Truncate the payload region out from under the declared used_data.
	truncated := blob[:len(blob)-4]
	_, err := DecodeXFields(truncated)
	assert.Error(t, err)
}

func TestInoDstreamFound(t *testing.T) {
	payload := make([]byte, 40)
	binary.LittleEndian.PutUint64(payload[0:8], 1024)
	binary.LittleEndian.PutUint64(payload[8:16], 4096)

	blob := buildXFieldsBlob([]struct {
		xType, xFlags uint8
		payload       []byte
	}{{xType: types.InoExtTypeDstream, xFlags: 0, payload: payload}})

	fields, err := DecodeXFields(blob)
	require.NoError(t, err)

	ds, ok := InoDstream(fields)
	require.True(t, ok)
	assert.EqualValues(t, 1024, ds.Size)
	assert.EqualValues(t, 4096, ds.AllocedSize)
}

func TestInoDstreamAbsent(t *testing.T) {
	_, ok := InoDstream(nil)
	assert.False(t, ok)
}
