package store

import (
	"context"
	"database/sql"
	"fmt"

	"courier/internal/domain"
)

// DeviceStore persists per-endpoint handles. A device is created on the
// first message referencing it and belongs to exactly one identity.
type DeviceStore struct {
	s *Store
}

// NewDeviceStore returns a DeviceStore over s.
func NewDeviceStore(s *Store) *DeviceStore { return &DeviceStore{s: s} }

// Insert stores a new device and fills in its assigned id.
func (ds *DeviceStore) Insert(ctx context.Context, d *domain.Device) error {
	res, err := ds.s.exec(ctx, `
		INSERT INTO devices (device_name, identity_id, max_sequence_number)
		VALUES (?, ?, ?)`,
		d.Name, d.IdentityID, d.MaxSequenceNumber,
	)
	if err != nil {
		return fmt.Errorf("insert device: %w", err)
	}
	d.ID, err = res.LastInsertId()
	return err
}

// ByID looks a device up by row id.
func (ds *DeviceStore) ByID(ctx context.Context, id int64) (domain.Device, bool, error) {
	row, err := ds.s.queryRow(ctx, `
		SELECT id, device_name, identity_id, max_sequence_number
		FROM devices WHERE id = ?`, id)
	if err != nil {
		return domain.Device{}, false, err
	}
	var d domain.Device
	err = row.Scan(&d.ID, &d.Name, &d.IdentityID, &d.MaxSequenceNumber)
	if err == sql.ErrNoRows {
		return domain.Device{}, false, nil
	}
	if err != nil {
		return domain.Device{}, false, fmt.Errorf("get device: %w", err)
	}
	return d, true, nil
}

// ByName looks a device up by its owner and pseudonymous name.
func (ds *DeviceStore) ByName(ctx context.Context, identityID int64, name string) (domain.Device, bool, error) {
	row, err := ds.s.queryRow(ctx, `
		SELECT id, device_name, identity_id, max_sequence_number
		FROM devices WHERE identity_id = ? AND device_name = ?`,
		identityID, name)
	if err != nil {
		return domain.Device{}, false, err
	}
	var d domain.Device
	err = row.Scan(&d.ID, &d.Name, &d.IdentityID, &d.MaxSequenceNumber)
	if err == sql.ErrNoRows {
		return domain.Device{}, false, nil
	}
	if err != nil {
		return domain.Device{}, false, fmt.Errorf("get device by name: %w", err)
	}
	return d, true, nil
}

// ForIdentity lists every device owned by an identity.
func (ds *DeviceStore) ForIdentity(ctx context.Context, identityID int64) ([]domain.Device, error) {
	rows, err := ds.s.query(ctx, `
		SELECT id, device_name, identity_id, max_sequence_number
		FROM devices WHERE identity_id = ? ORDER BY id`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Device
	for rows.Next() {
		var d domain.Device
		if err := rows.Scan(&d.ID, &d.Name, &d.IdentityID, &d.MaxSequenceNumber); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SetMaxSequenceNumber records the highest sequence number observed from the
// device.
func (ds *DeviceStore) SetMaxSequenceNumber(ctx context.Context, id int64, max int64) error {
	_, err := ds.s.exec(ctx,
		`UPDATE devices SET max_sequence_number = ? WHERE id = ?`, max, id)
	if err != nil {
		return fmt.Errorf("set max sequence number: %w", err)
	}
	return nil
}

// Compile-time assertion that DeviceStore implements domain.DeviceStore.
var _ domain.DeviceStore = (*DeviceStore)(nil)
