package fstree

import (
	"encoding/binary"
	"fmt"

	"github.com/nilsson-labs/apfs-recover/apfs/types"
	"github.com/nilsson-labs/apfs-recover/internal/apfserr"
)

// jDrecHashMask is 0xfffffc00, not the 0xfffff400 documented in
// apfs/types/file_system_objects.go's JDrecHashMask. original_source's own
// struct/j.h carries a comment noting Apple's published reference got this
// mask wrong; this package follows original_source rather than the
// (preserved, unmodified) reference constant.
const jDrecHashMask uint32 = 0xfffffc00

// Inode decodes a leaf record's value as a j_inode_val_t, given the record
// was tagged ApfsTypeInode by ObjTypeOf.
func Inode(rec Record) (types.JInodeValT, []XField, error) {
	const fixedSize = 92
	if len(rec.Val) < fixedSize {
		return types.JInodeValT{}, nil, fmt.Errorf("%w: inode value too small: %d bytes", apfserr.Corruption, len(rec.Val))
	}
	v := types.JInodeValT{
		ParentId:               binary.LittleEndian.Uint64(rec.Val[0:8]),
		PrivateId:               binary.LittleEndian.Uint64(rec.Val[8:16]),
		CreateTime:              binary.LittleEndian.Uint64(rec.Val[16:24]),
		ModTime:                 binary.LittleEndian.Uint64(rec.Val[24:32]),
		ChangeTime:              binary.LittleEndian.Uint64(rec.Val[32:40]),
		AccessTime:              binary.LittleEndian.Uint64(rec.Val[40:48]),
		InternalFlags:           binary.LittleEndian.Uint64(rec.Val[48:56]),
		NchildrenOrNlink:        int32(binary.LittleEndian.Uint32(rec.Val[56:60])),
		DefaultProtectionClass:  types.CpKeyClassT(binary.LittleEndian.Uint32(rec.Val[60:64])),
		WriteGenerationCounter:  binary.LittleEndian.Uint32(rec.Val[64:68]),
		BsdFlags:                binary.LittleEndian.Uint32(rec.Val[68:72]),
		Owner:                   types.UidT(binary.LittleEndian.Uint32(rec.Val[72:76])),
		Group:                   types.GidT(binary.LittleEndian.Uint32(rec.Val[76:80])),
		Mode:                    types.ModeT(binary.LittleEndian.Uint16(rec.Val[80:82])),
		Pad1:                    binary.LittleEndian.Uint16(rec.Val[82:84]),
		UncompressedSize:        binary.LittleEndian.Uint64(rec.Val[84:92]),
		XFields:                 rec.Val[fixedSize:],
	}
	var fields []XField
	if len(v.XFields) > 0 {
		f, err := DecodeXFields(v.XFields)
		if err != nil {
			return v, nil, err
		}
		fields = f
	}
	return v, fields, nil
}

// DirRecName decodes a leaf record's key as a j_drec_hashed_key_t, returning
// the directory entry's name (without its trailing NUL).
func DirRecName(rec Record) (string, error) {
	const fixedSize = 12 // j_key_t(8) + name_len_and_hash(4)
	if len(rec.Key) < fixedSize {
		return "", fmt.Errorf("%w: dir record key too small: %d bytes", apfserr.Corruption, len(rec.Key))
	}
	nameLenAndHash := binary.LittleEndian.Uint32(rec.Key[8:12])
	nameLen := int(nameLenAndHash & types.JDrecLenMask)
	if nameLen == 0 {
		return "", nil
	}
	end := fixedSize + nameLen
	if end > len(rec.Key) {
		return "", fmt.Errorf("%w: dir record name overruns key", apfserr.Corruption)
	}
	name := rec.Key[fixedSize:end]
	// Name is NUL-terminated; the stored length includes that terminator.
	if n := len(name); n > 0 && name[n-1] == 0 {
		name = name[:n-1]
	}
	return string(name), nil
}

// DirRec decodes a leaf record's value as a j_drec_val_t.
func DirRec(rec Record) (types.JDrecValT, []XField, error) {
	const fixedSize = 18 // file_id(8) + date_added(8) + flags(2)
	if len(rec.Val) < fixedSize {
		return types.JDrecValT{}, nil, fmt.Errorf("%w: dir record value too small: %d bytes", apfserr.Corruption, len(rec.Val))
	}
	v := types.JDrecValT{
		FileId:    binary.LittleEndian.Uint64(rec.Val[0:8]),
		DateAdded: binary.LittleEndian.Uint64(rec.Val[8:16]),
		Flags:     binary.LittleEndian.Uint16(rec.Val[16:18]),
		XFields:   rec.Val[fixedSize:],
	}
	var fields []XField
	if len(v.XFields) > 0 {
		f, err := DecodeXFields(v.XFields)
		if err != nil {
			return v, nil, err
		}
		fields = f
	}
	return v, fields, nil
}

// Xattr decodes a leaf record's value as a j_xattr_val_t.
func Xattr(rec Record) (types.JXattrValT, error) {
	const fixedSize = 4 // flags(2) + xdata_len(2)
	if len(rec.Val) < fixedSize {
		return types.JXattrValT{}, fmt.Errorf("%w: xattr value too small: %d bytes", apfserr.Corruption, len(rec.Val))
	}
	xdataLen := binary.LittleEndian.Uint16(rec.Val[2:4])
	end := fixedSize + int(xdataLen)
	if end > len(rec.Val) {
		return types.JXattrValT{}, fmt.Errorf("%w: xattr data overruns value", apfserr.Corruption)
	}
	return types.JXattrValT{
		Flags:    binary.LittleEndian.Uint16(rec.Val[0:2]),
		XdataLen: xdataLen,
		Xdata:    rec.Val[fixedSize:end],
	}, nil
}

// XattrEmbedded is the XATTR_DATA_EMBEDDED flag (spec.md §3.6 / page 82).
const XattrEmbedded uint16 = 0x0002

// XattrDataStream is the XATTR_DATA_STREAM flag.
const XattrDataStream uint16 = 0x0001

// DstreamIdRefcnt decodes a leaf record's value as a j_dstream_id_val_t.
func DstreamIdRefcnt(rec Record) (uint32, error) {
	if len(rec.Val) < 4 {
		return 0, fmt.Errorf("%w: dstream id value too small: %d bytes", apfserr.Corruption, len(rec.Val))
	}
	return binary.LittleEndian.Uint32(rec.Val[0:4]), nil
}

// FileExtent decodes a leaf record's key and value as a file extent.
func FileExtent(rec Record) (logicalAddr uint64, length uint64, physBlockNum uint64, err error) {
	if len(rec.Key) < 16 {
		return 0, 0, 0, fmt.Errorf("%w: file extent key too small: %d bytes", apfserr.Corruption, len(rec.Key))
	}
	if len(rec.Val) < 24 {
		return 0, 0, 0, fmt.Errorf("%w: file extent value too small: %d bytes", apfserr.Corruption, len(rec.Val))
	}
	logicalAddr = binary.LittleEndian.Uint64(rec.Key[8:16])
	lenAndFlags := binary.LittleEndian.Uint64(rec.Val[0:8])
	length = lenAndFlags & types.JFileExtentLenMask
	physBlockNum = binary.LittleEndian.Uint64(rec.Val[8:16])
	return logicalAddr, length, physBlockNum, nil
}
