package store

import (
	"context"
	"database/sql"
	"fmt"

	"courier/internal/domain"
)

// SequenceStore tracks outbound counters, per-recipient transmission records
// and per-device gap bookkeeping. Gap detection itself is caller-driven: the
// store only records and clears.
type SequenceStore struct {
	s *Store
}

// NewSequenceStore returns a SequenceStore over s.
func NewSequenceStore(s *Store) *SequenceStore { return &SequenceStore{s: s} }

// IncrementSequenceNumber atomically returns the identity's counter and
// bumps it by one. Called exactly once per locally originated message
// addressed to that identity; the returned value goes on the wire.
func (qs *SequenceStore) IncrementSequenceNumber(ctx context.Context, identityID int64) (int64, error) {
	row, err := qs.s.queryRow(ctx, `
		UPDATE identities
		SET next_sequence_number = next_sequence_number + 1
		WHERE id = ?
		RETURNING next_sequence_number - 1`,
		identityID,
	)
	if err != nil {
		return 0, err
	}
	var seq int64
	if err := row.Scan(&seq); err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("increment sequence number: identity %d not found", identityID)
		}
		return 0, fmt.Errorf("increment sequence number: %w", err)
	}
	return seq, nil
}

// StoreSequenceNumbers persists the transmission record for one encoded
// message: the sequence number assigned to each recipient of the fan-out.
// This is an audit and retransmit log, not the counter itself.
func (qs *SequenceStore) StoreSequenceNumbers(ctx context.Context, encodedID int64, assigned map[int64]int64) error {
	for recipient, seq := range assigned {
		if _, err := qs.s.exec(ctx, `
			INSERT INTO sequence_numbers (encoded_id, recipient, sequence_number)
			VALUES (?, ?, ?)`,
			encodedID, recipient, seq,
		); err != nil {
			return fmt.Errorf("store sequence number: %w", err)
		}
	}
	return nil
}

// SequenceNumbers returns the transmission records for one encoded message.
func (qs *SequenceStore) SequenceNumbers(ctx context.Context, encodedID int64) ([]domain.SequenceRecord, error) {
	rows, err := qs.s.query(ctx, `
		SELECT id, encoded_id, recipient, sequence_number
		FROM sequence_numbers WHERE encoded_id = ? ORDER BY id`,
		encodedID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SequenceRecord
	for rows.Next() {
		var r domain.SequenceRecord
		if err := rows.Scan(&r.ID, &r.EncodedID, &r.RecipientID, &r.SequenceNumber); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AddMissing records detected holes in a device's numbering. Numbers already
// recorded are skipped, preserving the no-duplicate invariant.
func (qs *SequenceStore) AddMissing(ctx context.Context, deviceID int64, seqs []int64) error {
	for _, seq := range seqs {
		if _, err := qs.s.exec(ctx, `
			INSERT INTO missing_messages (device_id, sequence_number)
			VALUES (?, ?)
			ON CONFLICT(device_id, sequence_number) DO NOTHING`,
			deviceID, seq,
		); err != nil {
			return fmt.Errorf("add missing message: %w", err)
		}
	}
	return nil
}

// Missing lists the outstanding holes for a device in ascending order.
func (qs *SequenceStore) Missing(ctx context.Context, deviceID int64) ([]int64, error) {
	return qs.s.queryIDs(ctx, `
		SELECT sequence_number FROM missing_messages
		WHERE device_id = ? ORDER BY sequence_number`,
		deviceID,
	)
}

// ReceivedSequenceNumber clears the hole for (device, seq) once that number
// has actually arrived. Clearing a number that was never missing is a no-op.
func (qs *SequenceStore) ReceivedSequenceNumber(ctx context.Context, deviceID, seq int64) error {
	_, err := qs.s.exec(ctx, `
		DELETE FROM missing_messages
		WHERE device_id = ? AND sequence_number = ?`,
		deviceID, seq,
	)
	if err != nil {
		return fmt.Errorf("clear missing message: %w", err)
	}
	return nil
}

// Compile-time assertion that SequenceStore implements domain.SequenceStore.
var _ domain.SequenceStore = (*SequenceStore)(nil)
