package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"courier/internal/domain"
)

// IdentityStore persists identities. Rows are never hard-deleted; trust and
// lifecycle changes only flip flags.
type IdentityStore struct {
	s *Store
}

// NewIdentityStore returns an IdentityStore over s.
func NewIdentityStore(s *Store) *IdentityStore { return &IdentityStore{s: s} }

const identityColumns = `id, type, principal, principal_hash, principal_short_hash,
	owned, claimed, blocked, whitelisted, next_sequence_number,
	received_profile_version, sent_profile_version, created_at, updated_at`

func scanIdentity(row interface{ Scan(...any) error }) (domain.Identity, error) {
	var (
		id               domain.Identity
		hash             []byte
		created, updated int64
	)
	err := row.Scan(
		&id.ID, &id.Authority, &id.Principal, &hash, &id.PrincipalShortHash,
		&id.Owned, &id.Claimed, &id.Blocked, &id.Whitelisted, &id.NextSequenceNumber,
		&id.ReceivedProfileVersion, &id.SentProfileVersion, &created, &updated,
	)
	if err != nil {
		return domain.Identity{}, err
	}
	copy(id.PrincipalHash[:], hash)
	id.CreatedAt = time.Unix(created, 0).UTC()
	id.UpdatedAt = time.Unix(updated, 0).UTC()
	return id, nil
}

// Insert stores a new identity and fills in its assigned id and timestamps.
func (is *IdentityStore) Insert(ctx context.Context, id *domain.Identity) error {
	now := time.Now().UTC()
	res, err := is.s.exec(ctx, `
		INSERT INTO identities (
			type, principal, principal_hash, principal_short_hash,
			owned, claimed, blocked, whitelisted, next_sequence_number,
			received_profile_version, sent_profile_version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.Authority, id.Principal, id.PrincipalHash.Slice(), id.PrincipalShortHash,
		id.Owned, id.Claimed, id.Blocked, id.Whitelisted, id.NextSequenceNumber,
		id.ReceivedProfileVersion, id.SentProfileVersion, now.Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	id.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}
	id.CreatedAt, id.UpdatedAt = now, now
	return nil
}

// ByID looks an identity up by row id.
func (is *IdentityStore) ByID(ctx context.Context, id int64) (domain.Identity, bool, error) {
	row, err := is.s.queryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = ?`, id)
	if err != nil {
		return domain.Identity{}, false, err
	}
	out, err := scanIdentity(row)
	if err == sql.ErrNoRows {
		return domain.Identity{}, false, nil
	}
	if err != nil {
		return domain.Identity{}, false, fmt.Errorf("get identity: %w", err)
	}
	return out, true, nil
}

// ByPrincipal resolves a principal through the short-hash pre-filter, then
// confirms with exact principal equality.
func (is *IdentityStore) ByPrincipal(ctx context.Context, authority domain.Authority, principal string) (domain.Identity, bool, error) {
	probe := domain.NewIdentity(authority, principal)
	rows, err := is.s.query(ctx, `
		SELECT `+identityColumns+` FROM identities
		WHERE type = ? AND principal_short_hash = ?`,
		authority, probe.PrincipalShortHash,
	)
	if err != nil {
		return domain.Identity{}, false, err
	}
	defer rows.Close()

	for rows.Next() {
		out, err := scanIdentity(rows)
		if err != nil {
			return domain.Identity{}, false, err
		}
		if out.Principal == principal {
			return out, true, nil
		}
	}
	return domain.Identity{}, false, rows.Err()
}

// Owned lists every identity owned by this node.
func (is *IdentityStore) Owned(ctx context.Context) ([]domain.Identity, error) {
	rows, err := is.s.query(ctx, `SELECT `+identityColumns+` FROM identities WHERE owned = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Identity
	for rows.Next() {
		id, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (is *IdentityStore) setFlag(ctx context.Context, id int64, column string, v bool) error {
	_, err := is.s.exec(ctx,
		`UPDATE identities SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		v, time.Now().UTC().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", column, err)
	}
	return nil
}

// SetClaimed flips the claimed flag.
func (is *IdentityStore) SetClaimed(ctx context.Context, id int64, claimed bool) error {
	return is.setFlag(ctx, id, "claimed", claimed)
}

// SetBlocked flips the blocked flag.
func (is *IdentityStore) SetBlocked(ctx context.Context, id int64, blocked bool) error {
	return is.setFlag(ctx, id, "blocked", blocked)
}

// SetWhitelisted flips the whitelisted flag.
func (is *IdentityStore) SetWhitelisted(ctx context.Context, id int64, whitelisted bool) error {
	return is.setFlag(ctx, id, "whitelisted", whitelisted)
}

// BumpSentProfileVersion increments the sent profile counter and returns the
// new value.
func (is *IdentityStore) BumpSentProfileVersion(ctx context.Context, id int64) (int64, error) {
	if _, err := is.s.exec(ctx, `
		UPDATE identities
		SET sent_profile_version = sent_profile_version + 1, updated_at = ?
		WHERE id = ?`,
		time.Now().UTC().Unix(), id,
	); err != nil {
		return 0, fmt.Errorf("bump sent profile version: %w", err)
	}
	row, err := is.s.queryRow(ctx, `SELECT sent_profile_version FROM identities WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	var v int64
	if err := row.Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

// SetReceivedProfileVersion records the peer's announced profile version.
func (is *IdentityStore) SetReceivedProfileVersion(ctx context.Context, id int64, version int64) error {
	_, err := is.s.exec(ctx, `
		UPDATE identities SET received_profile_version = ?, updated_at = ? WHERE id = ?`,
		version, time.Now().UTC().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("set received profile version: %w", err)
	}
	return nil
}

// Compile-time assertion that IdentityStore implements domain.IdentityStore.
var _ domain.IdentityStore = (*IdentityStore)(nil)
