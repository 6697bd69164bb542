package types

// Encryption (pages 135-149)
// Apple File System supports encryption in the data structures used for containers, volumes, and files.
//
// This file was absent from the package as copied: JInodeValT.DefaultProtectionClass
// and NxSuperblockT/ApfsSuperblockT's wrapped-key fields referenced these types
// without the package defining them anywhere. Restored from the reference
// documentation (matching internal/types/encryption.go's now-superseded copy)
// so the package is self-contained.

// JCryptoKeyT is the key half of a per-file encryption state record.
// Reference: page 137
type JCryptoKeyT struct {
	// The record's header. The object identifier in the header is the
	// file-system object's identifier. The type in the header is always
	// APFS_TYPE_CRYPTO_STATE.
	Hdr JKeyT
}

// JCryptoValT is the value half of a per-file encryption state record.
// Reference: page 137
type JCryptoValT struct {
	// Refcnt is the reference count. The record can be deleted when it
	// reaches zero.
	Refcnt uint32

	// State is the wrapped per-file key.
	State WrappedCryptoStateT
}

// WrappedCryptoStateT is a wrapped key used for per-file encryption.
// Reference: page 138
type WrappedCryptoStateT struct {
	MajorVersion    uint16
	MinorVersion    uint16
	Cpflags         CryptoFlagsT
	PersistentClass CpKeyClassT
	KeyOsVersion    CpKeyOsVersionT
	KeyRevision     CpKeyRevisionT
	KeyLen          uint16
	PersistentKey   [CpMaxWrappedkeysize]byte
}

// CpMaxWrappedkeysize is the size, in bytes, of the largest possible key.
// Reference: page 139
const CpMaxWrappedkeysize uint16 = 128

// WrappedMetaCryptoStateT describes how the volume encryption key (VEK) is
// used to encrypt a file.
// Reference: page 140
type WrappedMetaCryptoStateT struct {
	MajorVersion    uint16
	MinorVersion    uint16
	Cpflags         CryptoFlagsT
	PersistentClass CpKeyClassT
	KeyOsVersion    CpKeyOsVersionT
	KeyRevision     CpKeyRevisionT
	Unused          uint16
}

// CpKeyClassT is a protection class.
// Reference: page 141
type CpKeyClassT uint32

// CpKeyOsVersionT is an OS version and build number.
// Reference: page 141
type CpKeyOsVersionT uint32

// CpKeyRevisionT is a version number for an encryption key.
// Reference: page 142
type CpKeyRevisionT uint16

// CryptoFlagsT contains flags used by an encryption state.
// Reference: page 142
type CryptoFlagsT uint32

// Protection Classes (pages 142-143)
const (
	ProtectionClassDirNone CpKeyClassT = 0
	ProtectionClassA       CpKeyClassT = 1
	ProtectionClassB       CpKeyClassT = 2
	ProtectionClassC       CpKeyClassT = 3
	ProtectionClassD       CpKeyClassT = 4
	ProtectionClassF       CpKeyClassT = 6
	ProtectionClassM       CpKeyClassT = 14
)

// CpEffectiveClassmask is the bit mask used to access the protection class.
// Reference: page 143
const CpEffectiveClassmask CpKeyClassT = 0x0000001f

// CryptoSwId is the identifier of a placeholder encryption state used when
// software encryption is in use.
// Reference: page 144
const CryptoSwId uint64 = 4

// CryptoReserved5 is reserved.
// Reference: page 144
const CryptoReserved5 uint64 = 5
