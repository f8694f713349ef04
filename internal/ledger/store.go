// Package ledger records every provisioning run in a local sqlite database so
// operators can see what was cloned, when, and from which source.
package ledger

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/ggonzalez94/clonekit/internal/model"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"

	SourceCache      = "cache"
	SourceAggregator = "aggregator"
)

// RunRecord is one provisioning run.
type RunRecord struct {
	RunID              string                  `json:"run_id"`
	Trader             string                  `json:"trader"`
	Source             string                  `json:"source"`
	Status             Status                  `json:"status"`
	Candidates         int                     `json:"candidates"`
	Verified           int                     `json:"verified"`
	Rejected           int                     `json:"rejected"`
	LookupTables       int                     `json:"lookup_tables"`
	LookupTablesFailed int                     `json:"lookup_tables_failed"`
	Error              string                  `json:"error,omitempty"`
	StartedAt          string                  `json:"started_at"`
	FinishedAt         string                  `json:"finished_at"`
	Summary            *model.ProvisionSummary `json:"summary,omitempty"`
}

func NewRunID() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "run-unknown"
	}
	return fmt.Sprintf("run_%s", hex.EncodeToString(b))
}

type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			trader TEXT NOT NULL,
			source TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init ledger schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Save(run RunRecord) error {
	if strings.TrimSpace(run.RunID) == "" {
		return fmt.Errorf("save run: missing run id")
	}
	unlock, err := s.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	startedUnix, _ := parseRFC3339Unix(run.StartedAt)
	finishedUnix, _ := parseRFC3339Unix(run.FinishedAt)
	if startedUnix == 0 {
		startedUnix = time.Now().UTC().Unix()
	}
	if finishedUnix == 0 {
		finishedUnix = startedUnix
	}

	_, err = s.db.Exec(`
		INSERT INTO runs (run_id, trader, source, status, started_at, finished_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			trader=excluded.trader,
			source=excluded.source,
			status=excluded.status,
			finished_at=excluded.finished_at,
			payload=excluded.payload
	`, run.RunID, run.Trader, run.Source, string(run.Status), startedUnix, finishedUnix, payload)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (s *Store) Get(runID string) (RunRecord, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM runs WHERE run_id = ?", runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return RunRecord{}, fmt.Errorf("read run: %w", err)
	}
	var run RunRecord
	if err := json.Unmarshal(payload, &run); err != nil {
		return RunRecord{}, fmt.Errorf("decode run payload: %w", err)
	}
	return run, nil
}

// List returns the most recent runs first.
func (s *Store) List(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query("SELECT payload FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]RunRecord, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		var run RunRecord
		if err := json.Unmarshal(payload, &run); err != nil {
			return nil, fmt.Errorf("decode run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

// Prune deletes runs that started more than maxAge ago and returns how many
// were removed.
func (s *Store) Prune(maxAge time.Duration) (int64, error) {
	if s == nil || s.db == nil || maxAge <= 0 {
		return 0, nil
	}
	unlock, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer unlock()

	cutoff := time.Now().UTC().Add(-maxAge).Unix()
	res, err := s.db.Exec("DELETE FROM runs WHERE started_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) acquire() (func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	locked, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("lock ledger: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("lock ledger: timeout acquiring lock")
	}
	return func() { _ = s.lock.Unlock() }, nil
}

func parseRFC3339Unix(v string) (int64, bool) {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return 0, false
	}
	return t.UTC().Unix(), true
}
