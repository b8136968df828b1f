// Package store provides storage backends for ccs-pops.
//
// This file implements an SQLite-backed store for sessions, visits, and
// receipts.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/BeatBard/ccs-pops/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN. The DSN is a
// file path to the SQLite database file; the directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("SQLite store initialized", "dsn", dsn)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveSession(sess models.Session) error {
	plan, visited, data, err := encodeSessionJSON(sess)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO sessions
		(phone, id, dsr_name, current_state, previous_state, target_date,
		 plan_snapshot, current_outlet, outlets_visited, response_data,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET
		 id=excluded.id, dsr_name=excluded.dsr_name,
		 current_state=excluded.current_state,
		 previous_state=excluded.previous_state,
		 target_date=excluded.target_date,
		 plan_snapshot=excluded.plan_snapshot,
		 current_outlet=excluded.current_outlet,
		 outlets_visited=excluded.outlets_visited,
		 response_data=excluded.response_data,
		 updated_at=excluded.updated_at`,
		sess.Phone, sess.ID, sess.DSRName, string(sess.CurrentState),
		string(sess.PreviousState), sess.TargetDate, plan, sess.CurrentOutlet,
		visited, data, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore failed to save session", "error", err, "phone", sess.Phone)
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(phone string) (*models.Session, error) {
	var sess models.Session
	var row sessionRow
	err := s.db.QueryRow(`SELECT phone, id, dsr_name, current_state,
		previous_state, target_date, plan_snapshot, current_outlet,
		outlets_visited, response_data, created_at, updated_at
		FROM sessions WHERE phone = ?`, phone).Scan(
		&sess.Phone, &sess.ID, &sess.DSRName, &sess.CurrentState,
		&sess.PreviousState, &sess.TargetDate, &row.planSnapshot,
		&sess.CurrentOutlet, &row.outletsVisited, &row.responseData,
		&sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore failed to get session", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if err := decodeSessionJSON(&sess, row); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *SQLiteStore) DeleteSession(phone string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE phone = ?`, phone); err != nil {
		slog.Error("SQLiteStore failed to delete session", "error", err, "phone", phone)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSessions() ([]models.Session, error) {
	rows, err := s.db.Query(`SELECT phone, id, dsr_name, current_state,
		previous_state, target_date, plan_snapshot, current_outlet,
		outlets_visited, response_data, created_at, updated_at
		FROM sessions ORDER BY phone`)
	if err != nil {
		slog.Error("SQLiteStore failed to list sessions", "error", err)
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()
	var out []models.Session
	for rows.Next() {
		var sess models.Session
		var row sessionRow
		if err := rows.Scan(&sess.Phone, &sess.ID, &sess.DSRName,
			&sess.CurrentState, &sess.PreviousState, &sess.TargetDate,
			&row.planSnapshot, &sess.CurrentOutlet, &row.outletsVisited,
			&row.responseData, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if err := decodeSessionJSON(&sess, row); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddVisit(v models.VisitRecord) error {
	_, err := s.db.Exec(`INSERT INTO visits
		(id, dsr_name, outlet_id, visit_date, visit_time, sales_litres, productive)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dsr_name, visit_date, outlet_id) DO UPDATE SET
		 id=excluded.id, visit_time=excluded.visit_time,
		 sales_litres=excluded.sales_litres, productive=excluded.productive`,
		v.ID, v.DSRName, v.OutletID, v.Date, v.VisitTime, v.SalesLitres, v.Productive)
	if err != nil {
		slog.Error("SQLiteStore failed to add visit", "error", err, "outletID", v.OutletID)
		return fmt.Errorf("failed to add visit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetVisits(dsrName, date string) ([]models.VisitRecord, error) {
	rows, err := s.db.Query(`SELECT id, dsr_name, outlet_id, visit_date,
		visit_time, sales_litres, productive
		FROM visits WHERE dsr_name = ? AND visit_date = ? ORDER BY visit_time`,
		dsrName, date)
	if err != nil {
		slog.Error("SQLiteStore failed to get visits", "error", err, "dsr", dsrName)
		return nil, fmt.Errorf("failed to get visits: %w", err)
	}
	defer rows.Close()
	var out []models.VisitRecord
	for rows.Next() {
		var v models.VisitRecord
		if err := rows.Scan(&v.ID, &v.DSRName, &v.OutletID, &v.Date,
			&v.VisitTime, &v.SalesLitres, &v.Productive); err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddReceipt(r models.Receipt) error {
	_, err := s.db.Exec(`INSERT INTO receipts (recipient, status, time) VALUES (?, ?, ?)`,
		r.To, string(r.Status), r.Time)
	if err != nil {
		slog.Error("SQLiteStore failed to add receipt", "error", err)
		return fmt.Errorf("failed to add receipt: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetReceipts() ([]models.Receipt, error) {
	rows, err := s.db.Query(`SELECT recipient, status, time FROM receipts ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore failed to get receipts", "error", err)
		return nil, fmt.Errorf("failed to get receipts: %w", err)
	}
	defer rows.Close()
	var out []models.Receipt
	for rows.Next() {
		var r models.Receipt
		if err := rows.Scan(&r.To, &r.Status, &r.Time); err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
