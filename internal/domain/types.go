package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"time"
)

// Authority tags the namespace a principal lives in.
type Authority string

// String returns the string form of the authority.
func (a Authority) String() string { return string(a) }

// Authorities in use today. The set is open; the store treats the tag as an
// opaque discriminator.
const (
	AuthorityEmail Authority = "email"
	AuthorityPhone Authority = "phone"
	AuthoritySelf  Authority = "self"
)

// Epoch is the start (unix seconds) of a key-rotation window. Two parties
// agree on key material by agreeing on an epoch, never by exchanging it.
type Epoch int64

// Unix returns the epoch start as a time.Time.
func (e Epoch) Unix() time.Time { return time.Unix(int64(e), 0).UTC() }

// KeyKind distinguishes the two kinds of per-epoch key material.
type KeyKind int

const (
	KeySignature KeyKind = iota
	KeyEncryption
)

// String returns a short name for the key kind.
func (k KeyKind) String() string {
	if k == KeySignature {
		return "signature"
	}
	return "encryption"
}

// ContentHash is a fixed-length SHA-256 digest used as an equality and join
// key for principals, ciphertext payloads and object bodies.
type ContentHash [32]byte

// HashContent digests b into a ContentHash.
func HashContent(b []byte) ContentHash { return sha256.Sum256(b) }

// Short returns the truncated form of the hash, used as a cheap index
// pre-filter. A short-hash match must always be confirmed against the full
// hash before being trusted.
func (h ContentHash) Short() int64 {
	return int64(binary.BigEndian.Uint64(h[:8]))
}

// Slice returns the hash as a byte slice for storage and comparison.
func (h ContentHash) Slice() []byte { return h[:] }

// Identity is a principal known to the local node. Identities are created
// unclaimed on first contact, or owned at bootstrap, and are never hard
// deleted; only their flags change.
type Identity struct {
	ID                 int64
	Authority          Authority
	Principal          string
	PrincipalHash      ContentHash
	PrincipalShortHash int64

	Owned       bool
	Claimed     bool
	Blocked     bool
	Whitelisted bool

	// NextSequenceNumber is the counter embedded into each locally
	// originated message addressed to this identity, incremented once per
	// message.
	NextSequenceNumber int64

	ReceivedProfileVersion int64
	SentProfileVersion     int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewIdentity builds an unsaved Identity for the given principal, filling in
// the hash columns.
func NewIdentity(authority Authority, principal string) Identity {
	h := HashContent([]byte(string(authority) + ":" + principal))
	return Identity{
		Authority:          authority,
		Principal:          principal,
		PrincipalHash:      h,
		PrincipalShortHash: h.Short(),
	}
}

// Device is a pseudonymous per-endpoint handle owned by exactly one
// identity. MaxSequenceNumber is the highest sequence number observed from
// it, the reference point for gap detection. Sequence numbers are
// zero-based, so a device nothing has been observed from sits at -1; a
// zero mark would make a hole at sequence 0 undetectable.
type Device struct {
	ID                int64
	Name              string
	IdentityID        int64
	MaxSequenceNumber int64
}

// NewDevice builds an unsaved Device with no observations yet.
func NewDevice(name string, identityID int64) Device {
	return Device{Name: name, IdentityID: identityID, MaxSequenceNumber: -1}
}

// UserKey is raw per-identity, per-epoch key material as handed to us by the
// external identity provider. Immutable once inserted.
type UserKey struct {
	ID         int64
	IdentityID int64
	Epoch      Epoch
	Key        []byte
}

// OutgoingSecret is a derived symmetric key for messages we send to another
// identity, valid for one (signature epoch, encryption epoch) pair.
type OutgoingSecret struct {
	ID              int64
	MyIdentityID    int64
	OtherIdentityID int64
	SignatureEpoch  Epoch
	EncryptionEpoch Epoch
	Key             []byte
	EncryptedKey    []byte
	Signature       []byte
}

// IncomingSecret is the mirror for messages received from a particular
// device of another identity. Signature is the exact signature bytes that
// validated the secret; a lookup only hits when the caller presents the same
// bytes.
type IncomingSecret struct {
	ID              int64
	MyIdentityID    int64
	OtherIdentityID int64
	DeviceID        int64
	SignatureEpoch  Epoch
	EncryptionEpoch Epoch
	Key             []byte
	EncryptedKey    []byte
	Signature       []byte
}
