package store

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"time"

	"courier/internal/domain"
)

// ObjectStore is the durable plaintext queue. An object's pipeline placement
// (parent, renderable, processed) and its encode linkage (encoded id,
// hashes) are updated by different stages, so the two column groups mutate
// independently and never clobber each other on the same row.
type ObjectStore struct {
	s *Store
}

// NewObjectStore returns an ObjectStore over s.
func NewObjectStore(s *Store) *ObjectStore { return &ObjectStore{s: s} }

const objectColumns = `id, feed_id, identity_id, device_id, parent_id, app_id,
	timestamp, universal_hash, short_universal_hash, type, json, raw,
	last_modified_timestamp, encoded_id, deleted, renderable, processed`

func scanObject(row interface{ Scan(...any) error }) (domain.Object, error) {
	var (
		o                                  domain.Object
		feed, ident, dev, parent, app, enc sql.NullInt64
		hash                               []byte
		shortHash                          sql.NullInt64
		ts, modified                       int64
	)
	err := row.Scan(
		&o.ID, &feed, &ident, &dev, &parent, &app,
		&ts, &hash, &shortHash, &o.Type, &o.JSON, &o.Raw,
		&modified, &enc, &o.Deleted, &o.Renderable, &o.Processed,
	)
	if err != nil {
		return domain.Object{}, err
	}
	o.FeedID, o.IdentityID, o.DeviceID = feed.Int64, ident.Int64, dev.Int64
	o.ParentID, o.AppID, o.EncodedID = parent.Int64, app.Int64, enc.Int64
	copy(o.UniversalHash[:], hash)
	o.ShortUniversalHash = shortHash.Int64
	o.Timestamp = time.Unix(ts, 0).UTC()
	o.LastModified = time.Unix(modified, 0).UTC()
	return o, nil
}

// Insert stores a new object and fills in its assigned id.
func (os *ObjectStore) Insert(ctx context.Context, o *domain.Object) error {
	var hash any
	var shortHash any
	if o.UniversalHash != (domain.ContentHash{}) {
		hash = o.UniversalHash.Slice()
		shortHash = o.ShortUniversalHash
	}
	res, err := os.s.exec(ctx, `
		INSERT INTO objects (
			feed_id, identity_id, device_id, parent_id, app_id,
			timestamp, universal_hash, short_universal_hash, type, json, raw,
			last_modified_timestamp, encoded_id, deleted, renderable, processed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullID(o.FeedID), nullID(o.IdentityID), nullID(o.DeviceID),
		nullID(o.ParentID), nullID(o.AppID),
		o.Timestamp.UTC().Unix(), hash, shortHash, o.Type, o.JSON, o.Raw,
		o.LastModified.UTC().Unix(), nullID(o.EncodedID),
		o.Deleted, o.Renderable, o.Processed,
	)
	if err != nil {
		return fmt.Errorf("insert object: %w", err)
	}
	o.ID, err = res.LastInsertId()
	return err
}

// ByID looks an object up by row id.
func (os *ObjectStore) ByID(ctx context.Context, id int64) (domain.Object, bool, error) {
	row, err := os.s.queryRow(ctx, `SELECT `+objectColumns+` FROM objects WHERE id = ?`, id)
	if err != nil {
		return domain.Object{}, false, err
	}
	o, err := scanObject(row)
	if err == sql.ErrNoRows {
		return domain.Object{}, false, nil
	}
	if err != nil {
		return domain.Object{}, false, fmt.Errorf("get object: %w", err)
	}
	return o, true, nil
}

// LookupByHash resolves an object's universal hash to a row id, short-hash
// pre-filter first.
func (os *ObjectStore) LookupByHash(ctx context.Context, h domain.ContentHash) (int64, bool, error) {
	rows, err := os.s.query(ctx,
		`SELECT id, universal_hash FROM objects WHERE short_universal_hash = ?`,
		h.Short(),
	)
	if err != nil {
		return 0, false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			full []byte
		)
		if err := rows.Scan(&id, &full); err != nil {
			return 0, false, err
		}
		if bytes.Equal(full, h.Slice()) {
			return id, true, nil
		}
	}
	return 0, false, rows.Err()
}

// UpdatePipelineMetadata advances the placement stage: parent linkage,
// renderability and processed state. Encode columns are left alone.
func (os *ObjectStore) UpdatePipelineMetadata(ctx context.Context, id, parentID int64, renderable, processed bool) error {
	_, err := os.s.exec(ctx, `
		UPDATE objects
		SET parent_id = ?, renderable = ?, processed = ?, last_modified_timestamp = ?
		WHERE id = ?`,
		nullID(parentID), renderable, processed, time.Now().UTC().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("update pipeline metadata: %w", err)
	}
	return nil
}

// UpdateEncodeMetadata links an object to its ciphertext and records the
// universal hash. Pipeline columns are left alone.
func (os *ObjectStore) UpdateEncodeMetadata(ctx context.Context, id, encodedID int64, h domain.ContentHash) error {
	_, err := os.s.exec(ctx, `
		UPDATE objects
		SET encoded_id = ?, universal_hash = ?, short_universal_hash = ?
		WHERE id = ?`,
		nullID(encodedID), h.Slice(), h.Short(), id,
	)
	if err != nil {
		return fmt.Errorf("update encode metadata: %w", err)
	}
	return nil
}

// ObjectsToEncode returns ids with no encoded linkage yet, in id order: the
// encoder's work queue.
func (os *ObjectStore) ObjectsToEncode(ctx context.Context) ([]int64, error) {
	return os.s.queryIDs(ctx,
		`SELECT id FROM objects WHERE encoded_id IS NULL ORDER BY id`)
}

// LatestRenderableForFeed returns the most recent renderable, non-deleted
// object in a feed by last-modified time, used to refresh the feed's
// denormalized latest-renderable pointer.
func (os *ObjectStore) LatestRenderableForFeed(ctx context.Context, feedID int64) (domain.Object, bool, error) {
	row, err := os.s.queryRow(ctx, `
		SELECT `+objectColumns+` FROM objects
		WHERE feed_id = ? AND renderable = 1 AND deleted = 0
		ORDER BY last_modified_timestamp DESC, id DESC
		LIMIT 1`,
		feedID,
	)
	if err != nil {
		return domain.Object{}, false, err
	}
	o, err := scanObject(row)
	if err == sql.ErrNoRows {
		return domain.Object{}, false, nil
	}
	if err != nil {
		return domain.Object{}, false, fmt.Errorf("latest renderable: %w", err)
	}
	return o, true, nil
}

// Compile-time assertion that ObjectStore implements domain.ObjectStore.
var _ domain.ObjectStore = (*ObjectStore)(nil)
