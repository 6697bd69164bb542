package types

// GPT (GUID Partition Table) header and partition entry offsets, needed to
// locate an APFS container embedded in a raw disk image or .dmg rather
// than occupying the whole file.
// Reference: UEFI Specification Part 1, Chapter 5.
const (
	GPTHeaderOffset       = 512  // LBA 1: primary GPT header location (byte offset)
	GPTEntrySize          = 128  // size of each GPT partition entry (bytes)
	GPTEntriesStartOffset = 2048 // LBA 4: standard partition entries location (byte offset)

	APFSMagicOffset = 32    // offset of NXSB magic within nx_superblock_t
	GPTAPFSOffset   = 20480 // standard APFS offset after GPT (LBA 40 x 512 bytes)
)

// ApfsGptPartitionUUID is the GPT partition type UUID Apple assigns to an
// APFS container partition (7C3457EF-0000-11AA-AA11-00306543ECAC), stored
// little-endian the way a raw GPT entry holds it.
var ApfsGptPartitionUUID = [16]byte{
	0xEF, 0x57, 0x34, 0x7C, 0x00, 0x00, 0xAA, 0x11,
	0xAA, 0x11, 0x00, 0x30, 0x65, 0x43, 0xEC, 0xAC,
}
