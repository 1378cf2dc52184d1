package store

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"time"

	"courier/internal/domain"
)

// FeedStore persists feeds and their membership. Creating or deleting a feed
// together with its members is co-transacted by the caller through the
// store's Begin/Succeed/End bracket; a partial failure never leaves an
// orphaned feed.
type FeedStore struct {
	s *Store
}

// NewFeedStore returns a FeedStore over s.
func NewFeedStore(s *Store) *FeedStore { return &FeedStore{s: s} }

const feedColumns = `id, type, capability, short_capability,
	latest_renderable_obj_id, latest_renderable_obj_time, num_unread, name, accepted`

func scanFeed(row interface{ Scan(...any) error }) (domain.Feed, error) {
	var (
		f          domain.Feed
		capability []byte
		latestID   sql.NullInt64
		latestAt   sql.NullInt64
	)
	err := row.Scan(&f.ID, &f.Type, &capability, &f.ShortCapability,
		&latestID, &latestAt, &f.NumUnread, &f.Name, &f.Accepted)
	if err != nil {
		return domain.Feed{}, err
	}
	copy(f.Capability[:], capability)
	f.LatestRenderableID = latestID.Int64
	if latestAt.Valid {
		f.LatestRenderableAt = time.Unix(latestAt.Int64, 0).UTC()
	}
	return f, nil
}

// Insert stores a new feed and fills in its assigned id.
func (fs *FeedStore) Insert(ctx context.Context, f *domain.Feed) error {
	res, err := fs.s.exec(ctx, `
		INSERT INTO feeds (type, capability, short_capability, num_unread, name, accepted)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.Type, f.Capability.Slice(), f.ShortCapability, f.NumUnread, f.Name, f.Accepted,
	)
	if err != nil {
		return fmt.Errorf("insert feed: %w", err)
	}
	f.ID, err = res.LastInsertId()
	return err
}

// ByID looks a feed up by row id.
func (fs *FeedStore) ByID(ctx context.Context, id int64) (domain.Feed, bool, error) {
	row, err := fs.s.queryRow(ctx, `SELECT `+feedColumns+` FROM feeds WHERE id = ?`, id)
	if err != nil {
		return domain.Feed{}, false, err
	}
	f, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return domain.Feed{}, false, nil
	}
	if err != nil {
		return domain.Feed{}, false, fmt.Errorf("get feed: %w", err)
	}
	return f, true, nil
}

// ByCapability resolves a capability to a feed. The short capability is only
// a pre-filter; a candidate is accepted on full-token equality.
func (fs *FeedStore) ByCapability(ctx context.Context, typ domain.FeedType, token domain.Capability) (domain.Feed, bool, error) {
	rows, err := fs.s.query(ctx, `
		SELECT `+feedColumns+` FROM feeds
		WHERE type = ? AND short_capability = ?`,
		typ, token.Short(),
	)
	if err != nil {
		return domain.Feed{}, false, err
	}
	defer rows.Close()

	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return domain.Feed{}, false, err
		}
		if bytes.Equal(f.Capability.Slice(), token.Slice()) {
			return f, true, nil
		}
	}
	return domain.Feed{}, false, rows.Err()
}

// AddMember joins an identity into a feed. Unique per (feed, identity).
func (fs *FeedStore) AddMember(ctx context.Context, feedID, identityID int64) error {
	_, err := fs.s.exec(ctx,
		`INSERT INTO feed_members (feed_id, identity_id) VALUES (?, ?)`,
		feedID, identityID,
	)
	if err != nil {
		return fmt.Errorf("add feed member: %w", err)
	}
	return nil
}

// Members lists the identity ids in a feed.
func (fs *FeedStore) Members(ctx context.Context, feedID int64) ([]int64, error) {
	return fs.s.queryIDs(ctx,
		`SELECT identity_id FROM feed_members WHERE feed_id = ? ORDER BY identity_id`,
		feedID,
	)
}

// SetAccepted flips the feed's accepted flag.
func (fs *FeedStore) SetAccepted(ctx context.Context, feedID int64, accepted bool) error {
	_, err := fs.s.exec(ctx, `UPDATE feeds SET accepted = ? WHERE id = ?`, accepted, feedID)
	if err != nil {
		return fmt.Errorf("set accepted: %w", err)
	}
	return nil
}

// SetLatestRenderable refreshes the denormalized latest-renderable pointer.
func (fs *FeedStore) SetLatestRenderable(ctx context.Context, feedID, objectID int64, at time.Time) error {
	_, err := fs.s.exec(ctx, `
		UPDATE feeds SET latest_renderable_obj_id = ?, latest_renderable_obj_time = ?
		WHERE id = ?`,
		nullID(objectID), at.UTC().Unix(), feedID,
	)
	if err != nil {
		return fmt.Errorf("set latest renderable: %w", err)
	}
	return nil
}

// SetNumUnread updates the feed's unread counter.
func (fs *FeedStore) SetNumUnread(ctx context.Context, feedID, n int64) error {
	_, err := fs.s.exec(ctx, `UPDATE feeds SET num_unread = ? WHERE id = ?`, n, feedID)
	if err != nil {
		return fmt.Errorf("set num unread: %w", err)
	}
	return nil
}

// Delete removes a feed and its membership rows. Callers wrap this in the
// transaction bracket so the two deletes land together.
func (fs *FeedStore) Delete(ctx context.Context, feedID int64) error {
	if _, err := fs.s.exec(ctx, `DELETE FROM feed_members WHERE feed_id = ?`, feedID); err != nil {
		return fmt.Errorf("delete feed members: %w", err)
	}
	if _, err := fs.s.exec(ctx, `DELETE FROM feeds WHERE id = ?`, feedID); err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}
	return nil
}

// Compile-time assertion that FeedStore implements domain.FeedStore.
var _ domain.FeedStore = (*FeedStore)(nil)
