// Package store provides storage backends for ccs-pops.
//
// It offers an in-memory store for tests and development, plus SQLite and
// PostgreSQL stores for durable sessions, visit records, and receipts.
package store

import (
	"sort"
	"strings"
	"sync"

	"github.com/BeatBard/ccs-pops/internal/models"
)

// Store is the persistence interface for sessions, visit tracking, and
// delivery receipts. Writes are atomic per key; no cross-key transactions
// are required.
type Store interface {
	SaveSession(s models.Session) error
	GetSession(phone string) (*models.Session, error)
	DeleteSession(phone string) error
	ListSessions() ([]models.Session, error)

	// AddVisit upserts on (dsr, date, outlet): at most one visit record
	// exists per outlet per day, and the latest write wins.
	AddVisit(v models.VisitRecord) error
	GetVisits(dsrName, date string) ([]models.VisitRecord, error)

	AddReceipt(r models.Receipt) error
	GetReceipts() ([]models.Receipt, error)

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". Postgres DSNs use
// the URL scheme or key=value form; anything else is treated as a file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a map-backed Store safe for concurrent use. It backs tests
// and single-node development runs.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
	visits   []models.VisitRecord
	receipts []models.Receipt
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]models.Session)}
}

func (s *InMemoryStore) SaveSession(sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Phone] = sess
	return nil
}

func (s *InMemoryStore) GetSession(phone string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[phone]
	if !ok {
		return nil, nil
	}
	sess.Canonicalize()
	return &sess, nil
}

func (s *InMemoryStore) DeleteSession(phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, phone)
	return nil
}

func (s *InMemoryStore) ListSessions() ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phone < out[j].Phone })
	return out, nil
}

// AddVisit records a visit, replacing any earlier record for the same
// DSR, date, and outlet. Re-recording an outlet is a correction, not a
// second visit.
func (s *InMemoryStore) AddVisit(v models.VisitRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.visits {
		if existing.DSRName == v.DSRName && existing.Date == v.Date && existing.OutletID == v.OutletID {
			s.visits[i] = v
			return nil
		}
	}
	s.visits = append(s.visits, v)
	return nil
}

func (s *InMemoryStore) GetVisits(dsrName, date string) ([]models.VisitRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.VisitRecord
	for _, v := range s.visits {
		if v.DSRName == dsrName && v.Date == date {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *InMemoryStore) AddReceipt(r models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	return nil
}

func (s *InMemoryStore) GetReceipts() ([]models.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Receipt, len(s.receipts))
	copy(out, s.receipts)
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
