// Package store provides storage backends for ccs-pops.
//
// This file implements a PostgreSQL-backed store for sessions, visits, and
// receipts.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BeatBard/ccs-pops/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database.
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool.
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused.
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Postgres store initialized")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveSession(sess models.Session) error {
	plan, visited, data, err := encodeSessionJSON(sess)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO sessions
		(phone, id, dsr_name, current_state, previous_state, target_date,
		 plan_snapshot, current_outlet, outlets_visited, response_data,
		 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (phone) DO UPDATE SET
		 id=EXCLUDED.id, dsr_name=EXCLUDED.dsr_name,
		 current_state=EXCLUDED.current_state,
		 previous_state=EXCLUDED.previous_state,
		 target_date=EXCLUDED.target_date,
		 plan_snapshot=EXCLUDED.plan_snapshot,
		 current_outlet=EXCLUDED.current_outlet,
		 outlets_visited=EXCLUDED.outlets_visited,
		 response_data=EXCLUDED.response_data,
		 updated_at=EXCLUDED.updated_at`,
		sess.Phone, sess.ID, sess.DSRName, string(sess.CurrentState),
		string(sess.PreviousState), sess.TargetDate, plan, sess.CurrentOutlet,
		visited, data, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore failed to save session", "error", err, "phone", sess.Phone)
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(phone string) (*models.Session, error) {
	var sess models.Session
	var row sessionRow
	err := s.db.QueryRow(`SELECT phone, id, dsr_name, current_state,
		previous_state, target_date, plan_snapshot, current_outlet,
		outlets_visited, response_data, created_at, updated_at
		FROM sessions WHERE phone = $1`, phone).Scan(
		&sess.Phone, &sess.ID, &sess.DSRName, &sess.CurrentState,
		&sess.PreviousState, &sess.TargetDate, &row.planSnapshot,
		&sess.CurrentOutlet, &row.outletsVisited, &row.responseData,
		&sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore failed to get session", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if err := decodeSessionJSON(&sess, row); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *PostgresStore) DeleteSession(phone string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE phone = $1`, phone); err != nil {
		slog.Error("PostgresStore failed to delete session", "error", err, "phone", phone)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSessions() ([]models.Session, error) {
	rows, err := s.db.Query(`SELECT phone, id, dsr_name, current_state,
		previous_state, target_date, plan_snapshot, current_outlet,
		outlets_visited, response_data, created_at, updated_at
		FROM sessions ORDER BY phone`)
	if err != nil {
		slog.Error("PostgresStore failed to list sessions", "error", err)
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

func (s *PostgresStore) AddVisit(v models.VisitRecord) error {
	_, err := s.db.Exec(`INSERT INTO visits
		(id, dsr_name, outlet_id, visit_date, visit_time, sales_litres, productive)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (dsr_name, visit_date, outlet_id) DO UPDATE SET
		 id=EXCLUDED.id, visit_time=EXCLUDED.visit_time,
		 sales_litres=EXCLUDED.sales_litres, productive=EXCLUDED.productive`,
		v.ID, v.DSRName, v.OutletID, v.Date, v.VisitTime, v.SalesLitres, v.Productive)
	if err != nil {
		slog.Error("PostgresStore failed to add visit", "error", err, "outletID", v.OutletID)
		return fmt.Errorf("failed to add visit: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetVisits(dsrName, date string) ([]models.VisitRecord, error) {
	rows, err := s.db.Query(`SELECT id, dsr_name, outlet_id, visit_date,
		visit_time, sales_litres, productive
		FROM visits WHERE dsr_name = $1 AND visit_date = $2 ORDER BY visit_time`,
		dsrName, date)
	if err != nil {
		slog.Error("PostgresStore failed to get visits", "error", err, "dsr", dsrName)
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

func (s *PostgresStore) AddReceipt(r models.Receipt) error {
	_, err := s.db.Exec(`INSERT INTO receipts (recipient, status, time) VALUES ($1, $2, $3)`,
		r.To, string(r.Status), r.Time)
	if err != nil {
		slog.Error("PostgresStore failed to add receipt", "error", err)
		return fmt.Errorf("failed to add receipt: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetReceipts() ([]models.Receipt, error) {
	rows, err := s.db.Query(`SELECT recipient, status, time FROM receipts ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore failed to get receipts", "error", err)
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

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
