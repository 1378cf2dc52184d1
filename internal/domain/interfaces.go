package domain

import (
	"context"
	"time"
)

// IdentityStore persists identities and their trust flags.
type IdentityStore interface {
	Insert(ctx context.Context, id *Identity) error
	ByID(ctx context.Context, id int64) (Identity, bool, error)
	ByPrincipal(ctx context.Context, authority Authority, principal string) (Identity, bool, error)
	Owned(ctx context.Context) ([]Identity, error)
	SetClaimed(ctx context.Context, id int64, claimed bool) error
	SetBlocked(ctx context.Context, id int64, blocked bool) error
	SetWhitelisted(ctx context.Context, id int64, whitelisted bool) error
	BumpSentProfileVersion(ctx context.Context, id int64) (int64, error)
	SetReceivedProfileVersion(ctx context.Context, id int64, version int64) error
}

// DeviceStore persists per-endpoint handles and their observed sequence
// high-water marks.
type DeviceStore interface {
	Insert(ctx context.Context, d *Device) error
	ByID(ctx context.Context, id int64) (Device, bool, error)
	ByName(ctx context.Context, identityID int64, name string) (Device, bool, error)
	ForIdentity(ctx context.Context, identityID int64) ([]Device, error)
	SetMaxSequenceNumber(ctx context.Context, id int64, max int64) error
}

// UserKeyStore persists raw per-identity, per-epoch key material. Lookups
// that miss return a NeedsKeyError naming the missing generation; inserts
// assume the caller already checked absence, so a duplicate surfaces as a
// constraint failure.
type UserKeyStore interface {
	InsertSignatureKey(ctx context.Context, identityID int64, epoch Epoch, key []byte) error
	InsertEncryptionKey(ctx context.Context, identityID int64, epoch Epoch, key []byte) error
	SignatureKey(ctx context.Context, identityID int64, epoch Epoch) ([]byte, error)
	EncryptionKey(ctx context.Context, identityID int64, epoch Epoch) ([]byte, error)
}

// SecretStore is the channel-secret cache. A miss is (zero, false, nil);
// the caller derives via the external scheme and memoizes with the insert.
// Incoming lookups hit only when the presented signature matches the stored
// bytes exactly.
type SecretStore interface {
	OutgoingSecret(ctx context.Context, myID, otherID int64, sigEpoch, encEpoch Epoch) (OutgoingSecret, bool, error)
	InsertOutgoingSecret(ctx context.Context, s *OutgoingSecret) error
	IncomingSecret(ctx context.Context, myID, otherID, deviceID int64, sigEpoch, encEpoch Epoch, signature []byte) (IncomingSecret, bool, error)
	InsertIncomingSecret(ctx context.Context, s *IncomingSecret) error
}

// SequenceStore tracks outbound counters, per-recipient transmission records
// and per-device gap bookkeeping.
type SequenceStore interface {
	// IncrementSequenceNumber returns the identity's counter and bumps it by
	// one, atomically.
	IncrementSequenceNumber(ctx context.Context, identityID int64) (int64, error)
	StoreSequenceNumbers(ctx context.Context, encodedID int64, assigned map[int64]int64) error
	SequenceNumbers(ctx context.Context, encodedID int64) ([]SequenceRecord, error)
	AddMissing(ctx context.Context, deviceID int64, seqs []int64) error
	Missing(ctx context.Context, deviceID int64) ([]int64, error)
	ReceivedSequenceNumber(ctx context.Context, deviceID, seq int64) error
}

// EncodedMessageStore is the durable ciphertext queue.
type EncodedMessageStore interface {
	Insert(ctx context.Context, m *EncodedMessage) error
	ByID(ctx context.Context, id int64) (EncodedMessage, bool, error)
	// UpdateMetadata rewrites every column except the payload.
	UpdateMetadata(ctx context.Context, m *EncodedMessage) error
	LookupByHash(ctx context.Context, h ContentHash) (int64, bool, error)
	UnsentOutboundIDs(ctx context.Context) ([]int64, error)
	NonDecodedInboundIDs(ctx context.Context) ([]int64, error)
	OpenPendingUpload(ctx context.Context, encodedID int64) error
	ClosePendingUpload(ctx context.Context, encodedID int64) error
	DeleteProcessedOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ObjectStore is the durable plaintext queue. Pipeline metadata and encode
// metadata update independently so the two stages never clobber each other.
type ObjectStore interface {
	Insert(ctx context.Context, o *Object) error
	ByID(ctx context.Context, id int64) (Object, bool, error)
	LookupByHash(ctx context.Context, h ContentHash) (int64, bool, error)
	UpdatePipelineMetadata(ctx context.Context, id, parentID int64, renderable, processed bool) error
	UpdateEncodeMetadata(ctx context.Context, id, encodedID int64, h ContentHash) error
	ObjectsToEncode(ctx context.Context) ([]int64, error)
	LatestRenderableForFeed(ctx context.Context, feedID int64) (Object, bool, error)
}

// FeedStore persists feeds and their membership. Multi-row operations are
// co-transacted by the caller via the store's transaction bracket.
type FeedStore interface {
	Insert(ctx context.Context, f *Feed) error
	ByID(ctx context.Context, id int64) (Feed, bool, error)
	ByCapability(ctx context.Context, typ FeedType, token Capability) (Feed, bool, error)
	AddMember(ctx context.Context, feedID, identityID int64) error
	Members(ctx context.Context, feedID int64) ([]int64, error)
	SetAccepted(ctx context.Context, feedID int64, accepted bool) error
	SetLatestRenderable(ctx context.Context, feedID, objectID int64, at time.Time) error
	SetNumUnread(ctx context.Context, feedID, n int64) error
	Delete(ctx context.Context, feedID int64) error
}

// TxRunner is the explicit transaction bracket every component shares.
// Begin opens the unit, Succeed marks it for commit, End closes it (commit
// only if Succeed was called). InTx wraps the three for the common case.
type TxRunner interface {
	Begin(ctx context.Context) error
	Succeed() error
	End() error
	InTx(ctx context.Context, fn func() error) error
}

// Scheme is the boundary to the external identity-based encryption provider.
// Public material is derivable from (principal, epoch); private material is
// handed to us by the provider in answer to NeedsKey signals. The math
// behind these operations lives outside this module.
type Scheme interface {
	ExtractSignatureKey(ctx context.Context, principal string, epoch Epoch) ([]byte, error)
	ExtractEncryptionKey(ctx context.Context, principal string, epoch Epoch) ([]byte, error)
	Encrypt(principal string, epoch Epoch, plaintext []byte) ([]byte, error)
	Decrypt(key, ciphertext []byte) ([]byte, error)
	Sign(key, message []byte) ([]byte, error)
	Verify(principal string, epoch Epoch, message, signature []byte) error
}

// CapabilityResolver derives and resolves the tokens that address feeds.
type CapabilityResolver interface {
	ComputeFixedCapability(ids []Identity) Capability
	GetOrCreateFixedFeed(ctx context.Context, ids []Identity) (Feed, error)
	CreateExpandingFeed(ctx context.Context, name string, ids []Identity) (Feed, error)
}

// TransportData is the single contract the external encode/decode engine
// consumes. It combines the stores, the key clock and the scheme behind one
// façade, plus an explicit transaction bracket so the engine can atomically
// scope one full encode-or-decode operation.
type TransportData interface {
	Scheme() Scheme
	EpochFor(id Identity, at time.Time) Epoch
	LocalIdentity() Identity
	LocalDevice() Device

	SignatureKey(ctx context.Context, id Identity, epoch Epoch) ([]byte, error)
	EncryptionKey(ctx context.Context, id Identity, epoch Epoch) ([]byte, error)
	InsertSignatureKey(ctx context.Context, id Identity, epoch Epoch, key []byte) error
	InsertEncryptionKey(ctx context.Context, id Identity, epoch Epoch, key []byte) error

	OutgoingSecret(ctx context.Context, to Identity, sigEpoch, encEpoch Epoch) (OutgoingSecret, bool, error)
	InsertOutgoingSecret(ctx context.Context, s *OutgoingSecret) error
	IncomingSecret(ctx context.Context, from Identity, deviceID int64, sigEpoch, encEpoch Epoch, signature []byte) (IncomingSecret, bool, error)
	InsertIncomingSecret(ctx context.Context, s *IncomingSecret) error

	IncrementSequenceNumber(ctx context.Context, id Identity) (int64, error)
	StoreSequenceNumbers(ctx context.Context, encodedID int64, assigned map[int64]int64) error
	ReceivedSequenceNumber(ctx context.Context, deviceID, seq int64) error
	ObserveSequenceNumber(ctx context.Context, deviceID, seq int64) error

	HaveHash(ctx context.Context, h ContentHash) (bool, error)
	IsBlacklisted(ctx context.Context, id Identity) (bool, error)
	IsMe(ctx context.Context, id Identity) (bool, error)

	BumpSentProfileVersion(ctx context.Context, id Identity) (int64, error)
	SetReceivedProfileVersion(ctx context.Context, id Identity, version int64) error

	AddClaimedIdentity(ctx context.Context, authority Authority, principal string) (Identity, error)
	AddUnclaimedIdentity(ctx context.Context, authority Authority, principal string) (Identity, error)
	AddDevice(ctx context.Context, identityID int64, name string) (Device, error)

	InsertEncodedMessage(ctx context.Context, m *EncodedMessage) error
	UpdateEncodedMetadata(ctx context.Context, m *EncodedMessage) error

	Begin(ctx context.Context) error
	Succeed() error
	End() error

	Close() error
}
