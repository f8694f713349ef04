// Package swapcache persists the result of an aggregator round trip so later
// runs can provision the validator without contacting the aggregator again.
package swapcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/ggonzalez94/clonekit/internal/accounts"
	"github.com/ggonzalez94/clonekit/internal/codec"
	clierr "github.com/ggonzalez94/clonekit/internal/errors"
	"github.com/ggonzalez94/clonekit/internal/model"
)

// ErrMalformed marks a cache document that exists but cannot be used.
var ErrMalformed = errors.New("malformed swap cache")

const lockTimeout = 5 * time.Second

// Entry is one cached aggregator round trip and the accounts it resolved to.
type Entry struct {
	Quote        model.Quote
	Plan         model.InstructionPlan
	Accounts     *accounts.Set
	LookupTables []model.LookupTable
	Trader       string
	CreatedAt    time.Time
}

// Age reports how old the entry is, or zero when the creation time is unknown.
func (e Entry) Age(now time.Time) time.Duration {
	if e.CreatedAt.IsZero() {
		return 0
	}
	return now.Sub(e.CreatedAt)
}

type document struct {
	Quote        map[string]any         `json:"quote"`
	SwapData     *model.InstructionPlan `json:"swapData"`
	Accounts     []string               `json:"accounts"`
	LookupTables []model.LookupTable    `json:"lookupTables,omitempty"`
	CreatedAt    string                 `json:"createdAt,omitempty"`
	Trader       string                 `json:"trader,omitempty"`
}

type Store struct {
	path string
	lock *flock.Flock
}

// New returns a store for the document at path. The lock file sits next to it.
func New(path string) *Store {
	return &Store{path: path, lock: flock.New(path + ".lock")}
}

func (s *Store) Path() string { return s.path }

func (s *Store) Write(entry Entry) error {
	if entry.Quote == nil {
		return fmt.Errorf("write swap cache: missing quote")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	doc := document{
		Quote:        codec.EncodeValue(map[string]any(entry.Quote)).(map[string]any),
		SwapData:     &entry.Plan,
		Accounts:     entry.Accounts.Strings(),
		LookupTables: entry.LookupTables,
		CreatedAt:    entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		Trader:       entry.Trader,
	}
	buf, err := codec.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode swap cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create swap cache directory: %w", err)
	}
	unlock, err := s.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create swap cache temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(append(buf, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write swap cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write swap cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace swap cache: %w", err)
	}
	return nil
}

// Read loads the cached entry. ok is false when no document exists; an error
// wrapping ErrMalformed is returned when one exists but cannot be decoded.
func (s *Store) Read() (Entry, bool, error) {
	buf, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("read swap cache: %w", err)
	}

	var doc document
	if err := codec.Unmarshal(buf, &doc); err != nil {
		return Entry{}, false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch {
	case doc.Quote == nil:
		return Entry{}, false, fmt.Errorf("%w: missing quote", ErrMalformed)
	case doc.SwapData == nil:
		return Entry{}, false, fmt.Errorf("%w: missing swapData", ErrMalformed)
	case doc.Accounts == nil:
		return Entry{}, false, fmt.Errorf("%w: missing accounts", ErrMalformed)
	}
	set, err := accounts.ParseStrings(doc.Accounts)
	if err != nil {
		return Entry{}, false, fmt.Errorf("%w: accounts: %v", ErrMalformed, err)
	}

	entry := Entry{
		Quote:        model.Quote(codec.DecodeValue(doc.Quote).(map[string]any)),
		Plan:         *doc.SwapData,
		Accounts:     set,
		LookupTables: doc.LookupTables,
		Trader:       doc.Trader,
	}
	if doc.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339Nano, doc.CreatedAt); err == nil {
			entry.CreatedAt = ts
		}
	}
	return entry, true, nil
}

// Require is Read for commands that cannot proceed without a cache.
func (s *Store) Require() (Entry, error) {
	entry, ok, err := s.Read()
	if err != nil {
		return Entry{}, clierr.Wrap(clierr.CodeCacheMissing, "swap cache is unusable; re-run `clonekit provision --refresh`", err)
	}
	if !ok {
		return Entry{}, clierr.New(clierr.CodeCacheMissing, fmt.Sprintf("no swap cache at %s; run `clonekit provision` first", s.path))
	}
	return entry, nil
}

// Clear removes the cached document and reports whether one existed.
func (s *Store) Clear() (bool, error) {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	unlock, err := s.acquire()
	if err != nil {
		return false, err
	}
	defer unlock()
	if err := os.Remove(s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("remove swap cache: %w", err)
	}
	return true, nil
}

func (s *Store) acquire() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("create swap cache directory: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("lock swap cache: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("lock swap cache: timeout acquiring lock")
	}
	return func() { _ = s.lock.Unlock() }, nil
}
