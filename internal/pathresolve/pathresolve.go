// Package pathresolve resolves an absolute POSIX path to an inode's virtual
// OID by walking directory entries starting from the volume root directory
// (OID 0x2), per SPEC_FULL.md §4.6.
package pathresolve

import (
	"fmt"
	"strings"

	"github.com/nilsson-labs/apfs-recover/apfs/types"
	"github.com/nilsson-labs/apfs-recover/internal/apfserr"
	"github.com/nilsson-labs/apfs-recover/internal/btreeio"
	"github.com/nilsson-labs/apfs-recover/internal/fstree"
	"github.com/nilsson-labs/apfs-recover/internal/objheader"
)

// RootDirectoryOid is the virtual OID of a volume's root directory.
const RootDirectoryOid types.OidT = 0x2

// Resolve walks path's components, starting at RootDirectoryOid, reading
// DIR_REC records at each level with fstree.GetRecords and matching names
// byte-for-byte. It returns the virtual OID of the final component's target
// inode. An empty or "/"-only path resolves to RootDirectoryOid.
func Resolve(r objheader.BlockReader, omapRoot, fsRoot *btreeio.Node, path string, maxXid types.XidT) (types.OidT, error) {
	oid := RootDirectoryOid
	for _, comp := range strings.Split(path, "/") {
		if comp == "" {
			continue
		}
		records, err := fstree.GetRecords(r, omapRoot, fsRoot, oid, maxXid)
		if err != nil {
			return 0, err
		}

		found := false
		for _, rec := range records {
			if fstree.ObjTypeOf(rec.Key) != types.ApfsTypeDirRec {
				continue
			}
			name, err := fstree.DirRecName(rec)
			if err != nil {
				return 0, err
			}
			if name != comp {
				continue
			}
			drec, _, err := fstree.DirRec(rec)
			if err != nil {
				return 0, err
			}
			oid = types.OidT(drec.FileId)
			found = true
			break
		}
		if !found {
			return 0, fmt.Errorf("%w: Could not find a dentry named %q in directory %#x", apfserr.NotFound, comp, oid)
		}
	}
	return oid, nil
}
