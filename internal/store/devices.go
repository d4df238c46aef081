package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DeviceEvent is one removable-media observation.
type DeviceEvent struct {
	ID          int64  `db:"id" json:"id"`
	DeviceID    string `db:"device_id" json:"device_id"`
	DeviceClass string `db:"device_class" json:"device_class,omitempty"`
	Name        string `db:"name" json:"name,omitempty"`
	VendorID    string `db:"vendor_id" json:"vendor_id,omitempty"`
	ProductID   string `db:"product_id" json:"product_id,omitempty"`
	Serial      string `db:"serial" json:"serial,omitempty"`
	MountPoint  string `db:"mount_point" json:"mount_point,omitempty"`
	ConnectedAt string `db:"connected_at" json:"connected_at,omitempty"`
	Event       string `db:"event" json:"event"`
	RiskLevel   string `db:"risk_level" json:"risk_level,omitempty"`
}

type deviceRow struct {
	ID          int64          `db:"id"`
	DeviceID    sql.NullString `db:"device_id"`
	DeviceClass sql.NullString `db:"device_class"`
	Name        sql.NullString `db:"name"`
	VendorID    sql.NullString `db:"vendor_id"`
	ProductID   sql.NullString `db:"product_id"`
	Serial      sql.NullString `db:"serial"`
	MountPoint  sql.NullString `db:"mount_point"`
	ConnectedAt sql.NullString `db:"connected_at"`
	Event       sql.NullString `db:"event"`
	RiskLevel   sql.NullString `db:"risk_level"`
}

// InsertDeviceEvent records one device connect, disconnect, or scan.
func (s *Store) InsertDeviceEvent(ctx context.Context, event DeviceEvent) error {
	if event.ConnectedAt == "" {
		event.ConnectedAt = time.Now().UTC().Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO device_log (device_id, device_class, name, vendor_id, product_id,
			serial, mount_point, connected_at, event, risk_level)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullString(event.DeviceID), nullString(event.DeviceClass), nullString(event.Name),
		nullString(event.VendorID), nullString(event.ProductID), nullString(event.Serial),
		nullString(event.MountPoint), event.ConnectedAt, event.Event,
		nullString(event.RiskLevel))
	if err != nil {
		return fmt.Errorf("insert device event: %w", err)
	}

	return nil
}

// RecentDeviceEvents returns the newest device observations.
func (s *Store) RecentDeviceEvents(ctx context.Context, limit int) ([]DeviceEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []deviceRow

	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM device_log ORDER BY connected_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query device events: %w", err)
	}

	out := make([]DeviceEvent, len(rows))
	for i, r := range rows {
		out[i] = DeviceEvent{
			ID:          r.ID,
			DeviceID:    r.DeviceID.String,
			DeviceClass: r.DeviceClass.String,
			Name:        r.Name.String,
			VendorID:    r.VendorID.String,
			ProductID:   r.ProductID.String,
			Serial:      r.Serial.String,
			MountPoint:  r.MountPoint.String,
			ConnectedAt: r.ConnectedAt.String,
			Event:       r.Event.String,
			RiskLevel:   r.RiskLevel.String,
		}
	}

	return out, nil
}
