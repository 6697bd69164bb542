// Package container provides the Container handle: the explicit, passed-
// everywhere replacement for the source tool's mutable process globals
// (open file descriptor, discovered block size, selected checkpoint),
// per SPEC_FULL.md component 9.
package container

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nilsson-labs/apfs-recover/apfs/types"
	"github.com/nilsson-labs/apfs-recover/internal/apfserr"
	"github.com/nilsson-labs/apfs-recover/internal/blockio"
	"github.com/nilsson-labs/apfs-recover/internal/btreeio"
	"github.com/nilsson-labs/apfs-recover/internal/checkpoint"
	"github.com/nilsson-labs/apfs-recover/internal/diag"
	"github.com/nilsson-labs/apfs-recover/internal/objheader"
	"github.com/nilsson-labs/apfs-recover/internal/omap"
)

// Container owns the open device, the selected checkpoint, and the
// container-level object map. io.ReaderAt-backed reads are safe for
// concurrent callers, but selection state (the chosen checkpoint) is not,
// so all reads are serialized behind mu.
type Container struct {
	mu sync.Mutex

	dev *blockio.Device
	cp  *checkpoint.Checkpoint
	log *diag.Logger

	omapRoot *btreeio.Node
}

// Open opens path, discovers the checkpoint (capped at maxXid), and loads
// the container's object map root node.
func Open(path string, maxXid types.XidT, log *diag.Logger) (*Container, error) {
	dev, err := blockio.Open(path)
	if err != nil {
		return nil, err
	}

	c := &Container{dev: dev, log: log}

	// Block size is unknown until the superblock is read, so the checkpoint
	// locator reads whole blocks at the default size; once a checkpoint is
	// selected, its nx_block_size replaces that default.
	dev.SetBlockSize(types.BtreeNodeSizeDefault)

	cp, err := checkpoint.Locate(dev, maxXid, log)
	if err != nil {
		dev.Close()
		return nil, err
	}
	if cp.Superblock.NxBlockSize != types.BtreeNodeSizeDefault {
		dev.SetBlockSize(cp.Superblock.NxBlockSize)
	}
	c.cp = cp

	omapBlock, _, err := objheader.ReadValidated(dev, uint64(cp.Superblock.NxOmapOid))
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("reading container object map: %w", err)
	}
	// nx_omap_oid names an omap_phys_t; its om_tree_oid (bytes 48..56) is
	// the physical address of the mapping tree's root node.
	treeOid := binary.LittleEndian.Uint64(omapBlock[48:56])
	treeBlock, _, err := objheader.ReadValidated(dev, treeOid)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("reading container object map tree: %w", err)
	}
	omapNode, err := btreeio.Decode(treeBlock)
	if err != nil {
		dev.Close()
		return nil, err
	}
	c.omapRoot = omapNode

	return c, nil
}

// Close releases the underlying device.
func (c *Container) Close() error {
	return c.dev.Close()
}

// Superblock returns the selected checkpoint's container superblock.
func (c *Container) Superblock() types.NxSuperblockT {
	return c.cp.Superblock
}

// MaxXid returns the transaction ID the selected checkpoint was chosen
// under, the ceiling every subsequent omap/fs-tree lookup must respect so
// reads stay consistent with that checkpoint.
func (c *Container) MaxXid() types.XidT {
	return c.cp.Superblock.NxO.OXid
}

// ReadBlock reads one logical block, serialized against other Container
// readers since the checkpoint-selection state (not the underlying
// io.ReaderAt) is what isn't safe for concurrent use.
func (c *Container) ReadBlock(addr uint64) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dev.ReadBlock(addr)
}

// VolumeOids returns the container's non-zero volume superblock virtual
// OIDs, in slot order.
func (c *Container) VolumeOids() []types.OidT {
	var oids []types.OidT
	for _, oid := range c.cp.Superblock.NxFsOid {
		if oid != 0 {
			oids = append(oids, oid)
		}
	}
	return oids
}

// Volume resolves the index'th non-zero volume OID (see VolumeOids) to its
// physical block through the container object map, reads its superblock,
// and checks that it carries the volume-superblock object type before
// returning it. Only the requested volume is read and checked; its APSB
// magic is checked later by volume.Open.
func (c *Container) Volume(index int) ([]byte, types.OidT, error) {
	oids := c.VolumeOids()
	if index < 0 || index >= len(oids) {
		return nil, 0, fmt.Errorf("%w: volume index %d out of range (container has %d volumes)", apfserr.NotFound, index, len(oids))
	}
	virtOid := oids[index]

	ov, ok, err := omap.Lookup(c, c.omapRoot, virtOid, c.MaxXid())
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, fmt.Errorf("%w: container object map has no entry for volume oid %#x", apfserr.NotFound, virtOid)
	}

	block, hdr, err := objheader.ReadValidated(c, uint64(ov.Paddr))
	if err != nil {
		return nil, 0, fmt.Errorf("reading volume %d superblock: %w", index, err)
	}
	if hdr.OType&types.ObjectTypeMask != types.ObjectTypeFs {
		return nil, 0, fmt.Errorf("%w: volume %d object at %#x is not an APSB (type %#x)", apfserr.Corruption, index, ov.Paddr, hdr.OType)
	}

	return block, virtOid, nil
}

// UUID returns the container's nx_uuid as a formatted UUID, for diagnostic
// output identifying which container a recover run is operating on.
func (c *Container) UUID() uuid.UUID {
	return uuid.UUID(c.cp.Superblock.NxUuid)
}

// ContainerOmapRoot returns the decoded root node of the container object
// map, used to resolve volume-superblock virtual OIDs.
func (c *Container) ContainerOmapRoot() *btreeio.Node {
	return c.omapRoot
}
