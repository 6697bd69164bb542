package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nilsson-labs/apfs-recover/apfs/types"
	"github.com/nilsson-labs/apfs-recover/internal/apfserr"
	"github.com/nilsson-labs/apfs-recover/internal/config"
	"github.com/nilsson-labs/apfs-recover/internal/container"
	"github.com/nilsson-labs/apfs-recover/internal/diag"
	"github.com/nilsson-labs/apfs-recover/internal/extent"
	"github.com/nilsson-labs/apfs-recover/internal/fstree"
	"github.com/nilsson-labs/apfs-recover/internal/pathresolve"
	"github.com/nilsson-labs/apfs-recover/internal/volume"
)

var recoverMaxXid uint64

var recoverCmd = &cobra.Command{
	Use:   "recover <container-path> <volume-index> <path>",
	Short: "Extract one file's bytes by path, writing them to stdout",
	Long: `recover opens a container image, selects the checkpoint, resolves
volume-index's root file-system tree, walks path's directory entries down
to the target inode, and streams that file's content to stdout.

Diagnostics go to stderr so stdout stays a clean byte stream, e.g.:

  apfs-recover recover backup.dmg 0 /Users/jdoe/id_rsa > id_rsa`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		volumeIndex, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid volume index %q: %w", args[1], err)
		}
		return runRecover(args[0], volumeIndex, args[2])
	},
}

func init() {
	recoverCmd.Flags().Uint64Var(&recoverMaxXid, "max-xid", 0, "cap the selected checkpoint's transaction id (0 = most recent valid)")
	rootCmd.AddCommand(recoverCmd)
}

func runRecover(containerPath string, volumeIndex int, path string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := diag.New(os.Stderr)
	log.SetVerbose(GetVerbose() || cfg.Verbose)
	log.SetQuiet(GetQuiet() || cfg.Quiet)

	log.Infof("opening %s", containerPath)
	maxXid := types.XidT(recoverMaxXid)
	if recoverMaxXid == 0 {
		maxXid = types.XidT(^uint64(0))
	}
	c, err := container.Open(containerPath, maxXid, log)
	if err != nil {
		return err
	}
	defer c.Close()
	log.Infof("container uuid %s", c.UUID())

	log.Infof("resolving volume %d", volumeIndex)
	volBlock, _, err := c.Volume(volumeIndex)
	if err != nil {
		return err
	}
	vol, err := volume.Open(c, volBlock, c.MaxXid())
	if err != nil {
		return err
	}
	log.Infof("volume %q (uuid %s)", vol.Name(), vol.UUID())

	log.Infof("resolving path %q", path)
	oid, err := pathresolve.Resolve(c, vol.OmapRoot, vol.FsRoot, path, c.MaxXid())
	if err != nil {
		return err
	}

	records, err := fstree.GetRecords(c, vol.OmapRoot, vol.FsRoot, oid, c.MaxXid())
	if err != nil {
		return err
	}
	inode, xfields, err := findInode(records)
	if err != nil {
		return err
	}

	size := extent.Size(inode, xfields)
	spans, err := extent.Spans(c, vol.OmapRoot, vol.FsRoot, types.OidT(inode.PrivateId), size, c.MaxXid())
	if err != nil {
		return err
	}

	log.Infof("streaming %d bytes across %d extents", size, len(spans))
	return streamSpans(c, spans, os.Stdout)
}

// findInode picks the INODE record out of a fs-tree record set; a regular
// file's records also include its DSTREAM_ID and any XATTR entries.
func findInode(records []fstree.Record) (types.JInodeValT, []fstree.XField, error) {
	for _, rec := range records {
		if fstree.ObjTypeOf(rec.Key) == types.ApfsTypeInode {
			return fstree.Inode(rec)
		}
	}
	return types.JInodeValT{}, nil, fmt.Errorf("%w: no inode record found", apfserr.NotFound)
}

func streamSpans(c *container.Container, spans []extent.Span, w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, span := range spans {
		remaining := span.Length
		block := span.PhysBlockNum
		for remaining > 0 {
			buf, err := c.ReadBlock(block)
			if err != nil {
				return err
			}
			n := uint64(len(buf))
			if n > remaining {
				n = remaining
			}
			if _, err := bw.Write(buf[:n]); err != nil {
				return fmt.Errorf("%w: writing output: %v", apfserr.IO, err)
			}
			remaining -= n
			block++
		}
	}
	return bw.Flush()
}
