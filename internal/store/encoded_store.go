package store

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"time"

	"courier/internal/domain"
)

// EncodedMessageStore is the durable ciphertext queue, inbound and outbound.
type EncodedMessageStore struct {
	s *Store
}

// NewEncodedMessageStore returns an EncodedMessageStore over s.
func NewEncodedMessageStore(s *Store) *EncodedMessageStore { return &EncodedMessageStore{s: s} }

// Insert stores a new encoded message and fills in its assigned id.
func (es *EncodedMessageStore) Insert(ctx context.Context, m *domain.EncodedMessage) error {
	var processedAt any
	if !m.ProcessedAt.IsZero() {
		processedAt = m.ProcessedAt.UTC().Unix()
	}
	res, err := es.s.exec(ctx, `
		INSERT INTO encoded_messages (
			sender, device_id, encoded, short_hash, hash,
			outbound, processed, processed_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nullID(m.SenderID), nullID(m.DeviceID), m.Payload, m.ShortHash, m.Hash.Slice(),
		m.Outbound, m.Processed, processedAt,
	)
	if err != nil {
		return fmt.Errorf("insert encoded message: %w", err)
	}
	m.ID, err = res.LastInsertId()
	return err
}

// ByID looks an encoded message up by row id, payload included.
func (es *EncodedMessageStore) ByID(ctx context.Context, id int64) (domain.EncodedMessage, bool, error) {
	row, err := es.s.queryRow(ctx, `
		SELECT id, sender, device_id, encoded, short_hash, hash,
		       outbound, processed, processed_time
		FROM encoded_messages WHERE id = ?`, id)
	if err != nil {
		return domain.EncodedMessage{}, false, err
	}
	var (
		m           domain.EncodedMessage
		sender, dev sql.NullInt64
		hash        []byte
		processedAt sql.NullInt64
	)
	err = row.Scan(&m.ID, &sender, &dev, &m.Payload, &m.ShortHash, &hash,
		&m.Outbound, &m.Processed, &processedAt)
	if err == sql.ErrNoRows {
		return domain.EncodedMessage{}, false, nil
	}
	if err != nil {
		return domain.EncodedMessage{}, false, fmt.Errorf("get encoded message: %w", err)
	}
	m.SenderID, m.DeviceID = sender.Int64, dev.Int64
	copy(m.Hash[:], hash)
	if processedAt.Valid {
		m.ProcessedAt = time.Unix(processedAt.Int64, 0).UTC()
	}
	return m, true, nil
}

// UpdateMetadata rewrites direction, sender, hashes and processed state
// without touching the payload, so the decode pipeline can attach a verified
// sender without rewriting a possibly large blob.
func (es *EncodedMessageStore) UpdateMetadata(ctx context.Context, m *domain.EncodedMessage) error {
	var processedAt any
	if !m.ProcessedAt.IsZero() {
		processedAt = m.ProcessedAt.UTC().Unix()
	}
	_, err := es.s.exec(ctx, `
		UPDATE encoded_messages
		SET sender = ?, device_id = ?, short_hash = ?, hash = ?,
		    outbound = ?, processed = ?, processed_time = ?
		WHERE id = ?`,
		nullID(m.SenderID), nullID(m.DeviceID), m.ShortHash, m.Hash.Slice(),
		m.Outbound, m.Processed, processedAt, m.ID,
	)
	if err != nil {
		return fmt.Errorf("update encoded metadata: %w", err)
	}
	return nil
}

// LookupByHash resolves a payload hash to a row id: short-hash pre-filter,
// then exact-hash confirmation. This is the idempotence check for "already
// seen this exact ciphertext".
func (es *EncodedMessageStore) LookupByHash(ctx context.Context, h domain.ContentHash) (int64, bool, error) {
	rows, err := es.s.query(ctx, `
		SELECT id, hash FROM encoded_messages WHERE short_hash = ?`,
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

// UnsentOutboundIDs returns unprocessed outbound ids with no open
// upload-pending marker, in id order. This is the transport's FIFO claim
// queue; an item mid-upload is never re-offered.
func (es *EncodedMessageStore) UnsentOutboundIDs(ctx context.Context) ([]int64, error) {
	return es.s.queryIDs(ctx, `
		SELECT m.id FROM encoded_messages m
		WHERE m.outbound = 1 AND m.processed = 0
		  AND NOT EXISTS (SELECT 1 FROM pending_uploads p WHERE p.encoded_id = m.id)
		ORDER BY m.id`)
}

// NonDecodedInboundIDs returns unprocessed inbound ids in id order: the
// decoder's work queue.
func (es *EncodedMessageStore) NonDecodedInboundIDs(ctx context.Context) ([]int64, error) {
	return es.s.queryIDs(ctx, `
		SELECT id FROM encoded_messages
		WHERE outbound = 0 AND processed = 0
		ORDER BY id`)
}

// OpenPendingUpload marks an encoded message as claimed for upload.
func (es *EncodedMessageStore) OpenPendingUpload(ctx context.Context, encodedID int64) error {
	_, err := es.s.exec(ctx, `
		INSERT INTO pending_uploads (encoded_id) VALUES (?)
		ON CONFLICT(encoded_id) DO NOTHING`,
		encodedID,
	)
	if err != nil {
		return fmt.Errorf("open pending upload: %w", err)
	}
	return nil
}

// ClosePendingUpload releases the upload claim, re-exposing the message to
// the FIFO queue if it is still unprocessed.
func (es *EncodedMessageStore) ClosePendingUpload(ctx context.Context, encodedID int64) error {
	_, err := es.s.exec(ctx,
		`DELETE FROM pending_uploads WHERE encoded_id = ?`, encodedID)
	if err != nil {
		return fmt.Errorf("close pending upload: %w", err)
	}
	return nil
}

// DeleteProcessedOlderThan removes processed rows whose processed time falls
// before cutoff, returning the number deleted. Unprocessed rows are never
// touched.
func (es *EncodedMessageStore) DeleteProcessedOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := es.s.exec(ctx, `
		DELETE FROM encoded_messages
		WHERE processed = 1 AND processed_time IS NOT NULL AND processed_time < ?`,
		cutoff.UTC().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete processed messages: %w", err)
	}
	return res.RowsAffected()
}

// Compile-time assertion that EncodedMessageStore implements its contract.
var _ domain.EncodedMessageStore = (*EncodedMessageStore)(nil)
