package store

import (
	"context"
	"database/sql"
	"fmt"

	"courier/internal/domain"
)

// UserKeyStore persists raw per-identity, per-epoch key material handed over
// by the external identity provider. Keys are immutable once inserted.
//
// Lookup misses are not faults: they return a NeedsKeyError naming exactly
// which generation the caller must fetch. Inserts assume the caller already
// checked absence; a duplicate surfaces as the driver's constraint error.
type UserKeyStore struct {
	s *Store
}

// NewUserKeyStore returns a UserKeyStore over s.
func NewUserKeyStore(s *Store) *UserKeyStore { return &UserKeyStore{s: s} }

func (us *UserKeyStore) insert(ctx context.Context, table string, identityID int64, epoch domain.Epoch, key []byte) error {
	_, err := us.s.exec(ctx,
		`INSERT INTO `+table+` (identity_id, "when", user_key) VALUES (?, ?, ?)`,
		identityID, int64(epoch), key,
	)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

func (us *UserKeyStore) lookup(ctx context.Context, table string, kind domain.KeyKind, identityID int64, epoch domain.Epoch) ([]byte, error) {
	row, err := us.s.queryRow(ctx,
		`SELECT user_key FROM `+table+` WHERE identity_id = ? AND "when" = ?`,
		identityID, int64(epoch),
	)
	if err != nil {
		return nil, err
	}
	var key []byte
	err = row.Scan(&key)
	if err == sql.ErrNoRows {
		return nil, &domain.NeedsKeyError{Kind: kind, Epoch: epoch}
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", table, err)
	}
	return key, nil
}

// InsertSignatureKey stores signature key material for one epoch.
func (us *UserKeyStore) InsertSignatureKey(ctx context.Context, identityID int64, epoch domain.Epoch, key []byte) error {
	return us.insert(ctx, "signature_user_keys", identityID, epoch, key)
}

// InsertEncryptionKey stores encryption key material for one epoch.
func (us *UserKeyStore) InsertEncryptionKey(ctx context.Context, identityID int64, epoch domain.Epoch, key []byte) error {
	return us.insert(ctx, "encryption_user_keys", identityID, epoch, key)
}

// SignatureKey returns the signature key for (identity, epoch), or a
// NeedsKeyError if that generation has not been fetched yet.
func (us *UserKeyStore) SignatureKey(ctx context.Context, identityID int64, epoch domain.Epoch) ([]byte, error) {
	return us.lookup(ctx, "signature_user_keys", domain.KeySignature, identityID, epoch)
}

// EncryptionKey returns the encryption key for (identity, epoch), or a
// NeedsKeyError if that generation has not been fetched yet.
func (us *UserKeyStore) EncryptionKey(ctx context.Context, identityID int64, epoch domain.Epoch) ([]byte, error) {
	return us.lookup(ctx, "encryption_user_keys", domain.KeyEncryption, identityID, epoch)
}

// Compile-time assertion that UserKeyStore implements domain.UserKeyStore.
var _ domain.UserKeyStore = (*UserKeyStore)(nil)
