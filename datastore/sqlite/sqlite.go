package sqlite

import (
	"context"
	"fmt"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/jmoiron/sqlx"

	"github.com/lovi-cloud/draco/datastore"
	"github.com/lovi-cloud/draco/types"
)

// SQLite is
type SQLite struct {
	db *sqlx.DB
}

// New is
func New(ctx context.Context, dsn string) (datastore.Datastore, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite connection: %w", err)
	}

	err = createTable(db)
	if err != nil {
		return nil, err
	}

	return &SQLite{
		db: db,
	}, nil
}

// RecordLeaseEvent appends one lease event to the journal.
func (s *SQLite) RecordLeaseEvent(ctx context.Context, record datastore.LeaseEventRecord) error {
	query := `INSERT INTO lease_event(uuid, mac_address, ip_address, dpid, port, action, created_at) VALUES(?, ?, ?, ?, ?, ?, ?)`
	stmt, err := s.db.Preparex(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	_, err = stmt.ExecContext(ctx,
		record.UUID, record.MACAddress, record.IPAddress,
		record.DPID, record.Port, record.Action, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record lease event: %w", err)
	}
	return nil
}

// ListLeaseEvents returns the journaled events for mac, oldest first.
func (s *SQLite) ListLeaseEvents(ctx context.Context, mac types.HardwareAddr) ([]datastore.LeaseEventRecord, error) {
	query := `SELECT id, uuid, mac_address, ip_address, dpid, port, action, created_at FROM lease_event WHERE mac_address = ? ORDER BY id`
	stmt, err := s.db.Preparex(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	var records []datastore.LeaseEventRecord
	err = stmt.SelectContext(ctx, &records, mac)
	if err != nil {
		return nil, fmt.Errorf("failed to list lease events: %w", err)
	}
	return records, nil
}

// Close closes the database connections.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func createTable(db *sqlx.DB) error {
	for _, table := range tables {
		_, err := db.Exec(table)
		if err != nil {
			return fmt.Errorf("failed to create journal tables: %w", err)
		}
	}
	return nil
}
