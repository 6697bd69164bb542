// Package extent resolves a file's size and its ordered FILE_EXTENT records
// into a sequence of (physical block, byte count) spans suitable for
// streaming the file's contents back out, per SPEC_FULL.md §4.7.
package extent

import (
	"fmt"

	"github.com/nilsson-labs/apfs-recover/apfs/types"
	"github.com/nilsson-labs/apfs-recover/internal/apfserr"
	"github.com/nilsson-labs/apfs-recover/internal/btreeio"
	"github.com/nilsson-labs/apfs-recover/internal/fstree"
	"github.com/nilsson-labs/apfs-recover/internal/objheader"
)

// Span is one contiguous run of blocks backing a file, already truncated to
// the bytes that are actually part of the file's content.
type Span struct {
	PhysBlockNum uint64
	Length       uint64 // bytes to read from this span, <= blockSize * blocks-in-extent
}

// Size resolves a file's logical size, preferring the DSTREAM extended
// field (the authoritative record of bytes actually written) and falling
// back to the inode's uncompressed_size when no dstream is present.
func Size(inode types.JInodeValT, xfields []fstree.XField) uint64 {
	if ds, ok := fstree.InoDstream(xfields); ok {
		return ds.Size
	}
	return inode.UncompressedSize
}

// Spans returns every FILE_EXTENT record belonging to privateId (an
// inode's j_inode_val_t.private_id, which is also the dstream's object ID),
// in logical order, truncated so the final span stops at fileSize bytes.
func Spans(r objheader.BlockReader, omapRoot, fsRoot *btreeio.Node, privateId types.OidT, fileSize uint64, maxXid types.XidT) ([]Span, error) {
	records, err := fstree.GetRecords(r, omapRoot, fsRoot, privateId, maxXid)
	if err != nil {
		return nil, err
	}

	var spans []Span
	var consumed uint64
	for _, rec := range records {
		if fstree.ObjTypeOf(rec.Key) != types.ApfsTypeFileExtent {
			continue
		}
		_, length, physBlockNum, err := fstree.FileExtent(rec)
		if err != nil {
			return nil, err
		}
		if consumed >= fileSize {
			break
		}
		remaining := fileSize - consumed
		if length > remaining {
			length = remaining
		}
		if length == 0 {
			continue
		}
		spans = append(spans, Span{PhysBlockNum: physBlockNum, Length: length})
		consumed += length
	}
	if len(spans) == 0 && fileSize > 0 {
		return nil, fmt.Errorf("%w: no file extent records found for data stream %#x", apfserr.NotFound, privateId)
	}
	return spans, nil
}
