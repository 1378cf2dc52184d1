package provider

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"courier/internal/domain"
	"courier/internal/keyclock"
)

// Service implements domain.TransportData over the store layer, the key
// clock and an external scheme. Construct with New, then call Initialize
// exactly once before any other method.
type Service struct {
	scheme domain.Scheme
	clock  *keyclock.Clock
	log    *zap.Logger
	closer io.Closer

	tx         domain.TxRunner
	identities domain.IdentityStore
	devices    domain.DeviceStore
	userKeys   domain.UserKeyStore
	secrets    domain.SecretStore
	sequences  domain.SequenceStore
	encoded    domain.EncodedMessageStore

	initialized   bool
	localIdentity domain.Identity
	localDevice   domain.Device
}

var _ domain.TransportData = (*Service)(nil)

// Deps bundles everything the façade is built from. All fields are
// required except Log.
type Deps struct {
	Scheme domain.Scheme
	Clock  *keyclock.Clock
	Log    *zap.Logger
	Closer io.Closer

	Tx         domain.TxRunner
	Identities domain.IdentityStore
	Devices    domain.DeviceStore
	UserKeys   domain.UserKeyStore
	Secrets    domain.SecretStore
	Sequences  domain.SequenceStore
	Encoded    domain.EncodedMessageStore
}

// New wires a Service from its dependencies.
func New(d Deps) *Service {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		scheme:     d.Scheme,
		clock:      d.Clock,
		log:        log,
		closer:     d.Closer,
		tx:         d.Tx,
		identities: d.Identities,
		devices:    d.Devices,
		userKeys:   d.UserKeys,
		secrets:    d.Secrets,
		sequences:  d.Sequences,
		encoded:    d.Encoded,
	}
}

// Initialize resolves the local identity and device handles. The owned
// identity must already exist; the device named deviceName is created under
// it on first run. Calling Initialize twice is an error, and every other
// method is undefined until it has succeeded.
func (s *Service) Initialize(ctx context.Context, deviceName string) error {
	if s.initialized {
		return fmt.Errorf("initialize transport data: already initialized")
	}
	if deviceName == "" {
		return fmt.Errorf("initialize transport data: empty device name")
	}

	owned, err := s.identities.Owned(ctx)
	if err != nil {
		return fmt.Errorf("initialize transport data: %w", err)
	}
	if len(owned) == 0 {
		return domain.ErrNoOwnedIdentity
	}
	s.localIdentity = owned[0]

	dev, ok, err := s.devices.ByName(ctx, s.localIdentity.ID, deviceName)
	if err != nil {
		return fmt.Errorf("initialize transport data: %w", err)
	}
	if !ok {
		dev = domain.NewDevice(deviceName, s.localIdentity.ID)
		if err := s.devices.Insert(ctx, &dev); err != nil {
			return fmt.Errorf("initialize transport data: %w", err)
		}
		s.log.Info("registered local device",
			zap.String("device", deviceName),
			zap.String("principal", s.localIdentity.Principal))
	}
	s.localDevice = dev

	s.initialized = true
	return nil
}

// Scheme returns the external scheme boundary.
func (s *Service) Scheme() domain.Scheme { return s.scheme }

// EpochFor returns the identity's rotation epoch containing at.
func (s *Service) EpochFor(id domain.Identity, at time.Time) domain.Epoch {
	return s.clock.FrameFor(id.PrincipalHash, at)
}

// LocalIdentity returns the owned identity resolved by Initialize.
func (s *Service) LocalIdentity() domain.Identity { return s.localIdentity }

// LocalDevice returns the endpoint handle resolved by Initialize.
func (s *Service) LocalDevice() domain.Device { return s.localDevice }

// SignatureKey fetches id's raw signature key for epoch. A miss is a
// NeedsKeyError naming the missing generation.
func (s *Service) SignatureKey(ctx context.Context, id domain.Identity, epoch domain.Epoch) ([]byte, error) {
	return s.userKeys.SignatureKey(ctx, id.ID, epoch)
}

// EncryptionKey fetches id's raw encryption key for epoch.
func (s *Service) EncryptionKey(ctx context.Context, id domain.Identity, epoch domain.Epoch) ([]byte, error) {
	return s.userKeys.EncryptionKey(ctx, id.ID, epoch)
}

// InsertSignatureKey stores key material obtained from the external
// provider in answer to a NeedsKey signal.
func (s *Service) InsertSignatureKey(ctx context.Context, id domain.Identity, epoch domain.Epoch, key []byte) error {
	return s.userKeys.InsertSignatureKey(ctx, id.ID, epoch, key)
}

// InsertEncryptionKey stores encryption key material for id at epoch.
func (s *Service) InsertEncryptionKey(ctx context.Context, id domain.Identity, epoch domain.Epoch, key []byte) error {
	return s.userKeys.InsertEncryptionKey(ctx, id.ID, epoch, key)
}

// OutgoingSecret looks up the cached channel secret from the local identity
// to the given recipient for the epoch pair.
func (s *Service) OutgoingSecret(ctx context.Context, to domain.Identity, sigEpoch, encEpoch domain.Epoch) (domain.OutgoingSecret, bool, error) {
	return s.secrets.OutgoingSecret(ctx, s.localIdentity.ID, to.ID, sigEpoch, encEpoch)
}

// InsertOutgoingSecret memoizes a freshly derived outgoing channel secret.
// The local identity is filled in if the caller left it zero.
func (s *Service) InsertOutgoingSecret(ctx context.Context, sec *domain.OutgoingSecret) error {
	if sec.MyIdentityID == 0 {
		sec.MyIdentityID = s.localIdentity.ID
	}
	return s.secrets.InsertOutgoingSecret(ctx, sec)
}

// IncomingSecret looks up the cached channel secret from a particular
// device of the sender, keyed by the exact signature bytes that validated
// it.
func (s *Service) IncomingSecret(ctx context.Context, from domain.Identity, deviceID int64, sigEpoch, encEpoch domain.Epoch, signature []byte) (domain.IncomingSecret, bool, error) {
	return s.secrets.IncomingSecret(ctx, s.localIdentity.ID, from.ID, deviceID, sigEpoch, encEpoch, signature)
}

// InsertIncomingSecret memoizes a validated incoming channel secret.
func (s *Service) InsertIncomingSecret(ctx context.Context, sec *domain.IncomingSecret) error {
	if sec.MyIdentityID == 0 {
		sec.MyIdentityID = s.localIdentity.ID
	}
	return s.secrets.InsertIncomingSecret(ctx, sec)
}

// IncrementSequenceNumber returns id's current outbound counter and bumps
// it, atomically.
func (s *Service) IncrementSequenceNumber(ctx context.Context, id domain.Identity) (int64, error) {
	return s.sequences.IncrementSequenceNumber(ctx, id.ID)
}

// StoreSequenceNumbers records which counter value went to which recipient
// for the given encoded message.
func (s *Service) StoreSequenceNumbers(ctx context.Context, encodedID int64, assigned map[int64]int64) error {
	return s.sequences.StoreSequenceNumbers(ctx, encodedID, assigned)
}

// ReceivedSequenceNumber clears seq from the device's missing set, if
// present.
func (s *Service) ReceivedSequenceNumber(ctx context.Context, deviceID, seq int64) error {
	return s.sequences.ReceivedSequenceNumber(ctx, deviceID, seq)
}

// ObserveSequenceNumber updates gap bookkeeping for a sequence number seen
// from the device. A number above the device's high-water mark records the
// skipped numbers as missing and advances the mark; a number at or below it
// clears a previously recorded gap.
func (s *Service) ObserveSequenceNumber(ctx context.Context, deviceID, seq int64) error {
	dev, ok, err := s.devices.ByID(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("observe sequence number: %w", err)
	}
	if !ok {
		return fmt.Errorf("observe sequence number: no device %d", deviceID)
	}

	if seq <= dev.MaxSequenceNumber {
		return s.sequences.ReceivedSequenceNumber(ctx, deviceID, seq)
	}

	var skipped []int64
	for n := dev.MaxSequenceNumber + 1; n < seq; n++ {
		skipped = append(skipped, n)
	}
	if len(skipped) > 0 {
		if err := s.sequences.AddMissing(ctx, deviceID, skipped); err != nil {
			return fmt.Errorf("observe sequence number: %w", err)
		}
		s.log.Debug("sequence gap recorded",
			zap.Int64("device", deviceID),
			zap.Int64("observed", seq),
			zap.Int64s("missing", skipped))
	}
	return s.devices.SetMaxSequenceNumber(ctx, deviceID, seq)
}

// HaveHash reports whether a ciphertext with the given content hash is
// already stored locally.
func (s *Service) HaveHash(ctx context.Context, h domain.ContentHash) (bool, error) {
	_, ok, err := s.encoded.LookupByHash(ctx, h)
	return ok, err
}

// IsBlacklisted reports whether the identity is blocked locally. An unknown
// identity is not blocked.
func (s *Service) IsBlacklisted(ctx context.Context, id domain.Identity) (bool, error) {
	got, ok, err := s.identities.ByPrincipal(ctx, id.Authority, id.Principal)
	if err != nil || !ok {
		return false, err
	}
	return got.Blocked, nil
}

// IsMe reports whether the identity is one the local node owns.
func (s *Service) IsMe(ctx context.Context, id domain.Identity) (bool, error) {
	got, ok, err := s.identities.ByPrincipal(ctx, id.Authority, id.Principal)
	if err != nil || !ok {
		return false, err
	}
	return got.Owned, nil
}

// BumpSentProfileVersion increments and returns the version stamped onto
// the next profile update sent to id.
func (s *Service) BumpSentProfileVersion(ctx context.Context, id domain.Identity) (int64, error) {
	return s.identities.BumpSentProfileVersion(ctx, id.ID)
}

// SetReceivedProfileVersion records the newest profile version received
// from id, so stale updates can be dropped.
func (s *Service) SetReceivedProfileVersion(ctx context.Context, id domain.Identity, version int64) error {
	return s.identities.SetReceivedProfileVersion(ctx, id.ID, version)
}

// AddClaimedIdentity returns the identity for the principal, creating it if
// unknown and marking it claimed either way.
func (s *Service) AddClaimedIdentity(ctx context.Context, authority domain.Authority, principal string) (domain.Identity, error) {
	return s.addIdentity(ctx, authority, principal, true)
}

// AddUnclaimedIdentity returns the identity for the principal, creating an
// unclaimed row if unknown. An already claimed identity stays claimed.
func (s *Service) AddUnclaimedIdentity(ctx context.Context, authority domain.Authority, principal string) (domain.Identity, error) {
	return s.addIdentity(ctx, authority, principal, false)
}

func (s *Service) addIdentity(ctx context.Context, authority domain.Authority, principal string, claimed bool) (domain.Identity, error) {
	got, ok, err := s.identities.ByPrincipal(ctx, authority, principal)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("add identity: %w", err)
	}
	if ok {
		if claimed && !got.Claimed {
			if err := s.identities.SetClaimed(ctx, got.ID, true); err != nil {
				return domain.Identity{}, fmt.Errorf("add identity: %w", err)
			}
			got.Claimed = true
		}
		return got, nil
	}

	id := domain.NewIdentity(authority, principal)
	id.Claimed = claimed
	if err := s.identities.Insert(ctx, &id); err != nil {
		return domain.Identity{}, fmt.Errorf("add identity: %w", err)
	}
	s.log.Debug("identity created",
		zap.String("authority", authority.String()),
		zap.String("principal", principal),
		zap.Bool("claimed", claimed))
	return id, nil
}

// AddDevice returns the named device under the identity, creating it if
// unknown. An empty name gets a generated one, for peers that never
// disclose a stable handle.
func (s *Service) AddDevice(ctx context.Context, identityID int64, name string) (domain.Device, error) {
	if name == "" {
		name = uuid.NewString()
	}
	dev, ok, err := s.devices.ByName(ctx, identityID, name)
	if err != nil {
		return domain.Device{}, fmt.Errorf("add device: %w", err)
	}
	if ok {
		return dev, nil
	}
	dev = domain.NewDevice(name, identityID)
	if err := s.devices.Insert(ctx, &dev); err != nil {
		return domain.Device{}, fmt.Errorf("add device: %w", err)
	}
	return dev, nil
}

// InsertEncodedMessage durably stores a ciphertext, deduplicated by content
// hash upstream via HaveHash.
func (s *Service) InsertEncodedMessage(ctx context.Context, m *domain.EncodedMessage) error {
	return s.encoded.Insert(ctx, m)
}

// UpdateEncodedMetadata rewrites an encoded message's bookkeeping columns,
// leaving the payload untouched.
func (s *Service) UpdateEncodedMetadata(ctx context.Context, m *domain.EncodedMessage) error {
	return s.encoded.UpdateMetadata(ctx, m)
}

// Begin opens the shared transaction bracket.
func (s *Service) Begin(ctx context.Context) error { return s.tx.Begin(ctx) }

// Succeed marks the open bracket for commit.
func (s *Service) Succeed() error { return s.tx.Succeed() }

// End closes the bracket, committing only after Succeed.
func (s *Service) End() error { return s.tx.End() }

// Close releases the underlying database.
func (s *Service) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
