package store

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"

	"courier/internal/domain"
)

// SecretStore is the channel-secret cache. Deriving a channel secret through
// the external scheme is expensive; once validated, the result can be
// trusted for the remainder of its epoch pair, so the cache converts an
// O(messages) crypto cost into O(distinct epoch pairs).
type SecretStore struct {
	s *Store
}

// NewSecretStore returns a SecretStore over s.
func NewSecretStore(s *Store) *SecretStore { return &SecretStore{s: s} }

// OutgoingSecret returns the cached secret for sending to otherID under the
// given epoch pair. A miss is (zero, false, nil); the caller derives and
// memoizes with InsertOutgoingSecret.
func (ss *SecretStore) OutgoingSecret(ctx context.Context, myID, otherID int64, sigEpoch, encEpoch domain.Epoch) (domain.OutgoingSecret, bool, error) {
	row, err := ss.s.queryRow(ctx, `
		SELECT id, my_identity_id, other_identity_id,
		       outgoing_signature_when, outgoing_encryption_when,
		       outgoing_encrypted_key, outgoing_key, outgoing_signature
		FROM outgoing_secrets
		WHERE my_identity_id = ? AND other_identity_id = ?
		  AND outgoing_signature_when = ? AND outgoing_encryption_when = ?`,
		myID, otherID, int64(sigEpoch), int64(encEpoch),
	)
	if err != nil {
		return domain.OutgoingSecret{}, false, err
	}
	var out domain.OutgoingSecret
	err = row.Scan(
		&out.ID, &out.MyIdentityID, &out.OtherIdentityID,
		&out.SignatureEpoch, &out.EncryptionEpoch,
		&out.EncryptedKey, &out.Key, &out.Signature,
	)
	if err == sql.ErrNoRows {
		return domain.OutgoingSecret{}, false, nil
	}
	if err != nil {
		return domain.OutgoingSecret{}, false, fmt.Errorf("lookup outgoing secret: %w", err)
	}
	return out, true, nil
}

// InsertOutgoingSecret memoizes a freshly derived outgoing secret.
func (ss *SecretStore) InsertOutgoingSecret(ctx context.Context, sec *domain.OutgoingSecret) error {
	res, err := ss.s.exec(ctx, `
		INSERT INTO outgoing_secrets (
			my_identity_id, other_identity_id,
			outgoing_signature_when, outgoing_encryption_when,
			outgoing_encrypted_key, outgoing_key, outgoing_signature
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sec.MyIdentityID, sec.OtherIdentityID,
		int64(sec.SignatureEpoch), int64(sec.EncryptionEpoch),
		sec.EncryptedKey, sec.Key, sec.Signature,
	)
	if err != nil {
		return fmt.Errorf("insert outgoing secret: %w", err)
	}
	sec.ID, err = res.LastInsertId()
	return err
}

// IncomingSecret returns the cached secret for messages from (otherID,
// deviceID) under the given epoch pair, but only when signature matches the
// stored bytes exactly. Any mismatch is treated as a miss so the caller
// re-validates; a cached key is never accepted under a different signature.
func (ss *SecretStore) IncomingSecret(ctx context.Context, myID, otherID, deviceID int64, sigEpoch, encEpoch domain.Epoch, signature []byte) (domain.IncomingSecret, bool, error) {
	row, err := ss.s.queryRow(ctx, `
		SELECT id, my_identity_id, other_identity_id, incoming_device_id,
		       incoming_signature_when, incoming_encryption_when,
		       incoming_encrypted_key, incoming_key, incoming_signature
		FROM incoming_secrets
		WHERE my_identity_id = ? AND other_identity_id = ? AND incoming_device_id = ?
		  AND incoming_signature_when = ? AND incoming_encryption_when = ?`,
		myID, otherID, deviceID, int64(sigEpoch), int64(encEpoch),
	)
	if err != nil {
		return domain.IncomingSecret{}, false, err
	}
	var out domain.IncomingSecret
	err = row.Scan(
		&out.ID, &out.MyIdentityID, &out.OtherIdentityID, &out.DeviceID,
		&out.SignatureEpoch, &out.EncryptionEpoch,
		&out.EncryptedKey, &out.Key, &out.Signature,
	)
	if err == sql.ErrNoRows {
		return domain.IncomingSecret{}, false, nil
	}
	if err != nil {
		return domain.IncomingSecret{}, false, fmt.Errorf("lookup incoming secret: %w", err)
	}
	if !bytes.Equal(out.Signature, signature) {
		return domain.IncomingSecret{}, false, nil
	}
	return out, true, nil
}

// InsertIncomingSecret memoizes a freshly validated incoming secret.
func (ss *SecretStore) InsertIncomingSecret(ctx context.Context, sec *domain.IncomingSecret) error {
	res, err := ss.s.exec(ctx, `
		INSERT INTO incoming_secrets (
			my_identity_id, other_identity_id, incoming_device_id,
			incoming_signature_when, incoming_encryption_when,
			incoming_encrypted_key, incoming_key, incoming_signature
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sec.MyIdentityID, sec.OtherIdentityID, sec.DeviceID,
		int64(sec.SignatureEpoch), int64(sec.EncryptionEpoch),
		sec.EncryptedKey, sec.Key, sec.Signature,
	)
	if err != nil {
		return fmt.Errorf("insert incoming secret: %w", err)
	}
	sec.ID, err = res.LastInsertId()
	return err
}

// Compile-time assertion that SecretStore implements domain.SecretStore.
var _ domain.SecretStore = (*SecretStore)(nil)
