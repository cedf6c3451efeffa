// Package journal is the operational/persisted-state store: the
// namespaced key-value table that holds the boat's app-UUID, unit
// preference, fence definitions, and a bounded debug journal of recent
// commit patches. It is directly adapted from the teacher's
// internal/opstate.Store (same schema shape, same upsert-via-
// ON-CONFLICT), generalized from a single flat namespace/key/value
// table into one that also owns a capped ring of recent patches for
// operator debugging, since this system's "SQLite patch journal" is
// named as an out-of-scope persistence concern whose shape (a journal
// table, not a KV row) the core still gets to define the contract for.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/compendiumnav/boatrelay/internal/state"
)

// Store is a namespaced key-value store plus a capped patch journal,
// backed by SQLite. All public methods are safe for concurrent use
// (SQLite serializes writes); the *sql.DB is supplied by the caller so
// tests can open modernc.org/sqlite's pure-Go driver instead of
// mattn/go-sqlite3, matching the teacher's watchlist test convention.
type Store struct {
	db *sql.DB
}

// MaxJournalEntries caps the recent-patch ring; oldest rows are
// trimmed on every AppendPatch call.
const MaxJournalEntries = 500

// Open opens (or creates) a SQLite database at dbPath using the
// production mattn/go-sqlite3 driver and returns a migrated Store.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}
	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an already-open *sql.DB (of any SQLite driver) and
// runs migrations. Use this from tests with modernc.org/sqlite.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS operational_state (
		namespace  TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (namespace, key)
	);
	CREATE TABLE IF NOT EXISTS patch_journal (
		seq        INTEGER PRIMARY KEY,
		patch      TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`)
	return err
}

// Get returns the stored value for a namespace/key pair, or an empty
// string and nil error if the key does not exist.
func (s *Store) Get(namespace, key string) (string, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM operational_state WHERE namespace = ? AND key = ?`,
		namespace, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("journal: get %s/%s: %w", namespace, key, err)
	}
	return value, nil
}

// Set upserts a namespace/key/value triple, refreshing updated_at.
func (s *Store) Set(namespace, key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO operational_state (namespace, key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (namespace, key) DO UPDATE
		 SET value = excluded.value, updated_at = excluded.updated_at`,
		namespace, key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("journal: set %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Delete removes a namespace/key entry. No error if the key is absent.
func (s *Store) Delete(namespace, key string) error {
	_, err := s.db.Exec(`DELETE FROM operational_state WHERE namespace = ? AND key = ?`, namespace, key)
	if err != nil {
		return fmt.Errorf("journal: delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

// List returns all key/value pairs for a namespace, as a non-nil
// (possibly empty) map.
func (s *Store) List(namespace string) (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM operational_state WHERE namespace = ? ORDER BY key`, namespace)
	if err != nil {
		return nil, fmt.Errorf("journal: list %s: %w", namespace, err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("journal: scan %s: %w", namespace, err)
		}
		result[k] = v
	}
	return result, rows.Err()
}

// Namespaces this store's callers use for operational state, kept
// here so every producer/consumer agrees on the key names.
const (
	NamespaceBoat   = "boat"
	KeyAppUUID      = "app_uuid"
	KeyPrivateKey   = "private_key_pem"
	KeyPublicKey    = "public_key_pem"
	KeyUnitPrefs    = "unit_preferences"
	NamespaceFences = "fences"
	KeyFenceList    = "fences_json"
)

// SaveUnitPreferences persists a units.Preferences-shaped JSON
// document under the boat namespace, matching §6's "user unit
// preferences as a JSON object conforming to §4.2" file contract —
// here stored as a journal row instead of a loose file, since the
// journal already owns every other small persisted document this
// process keeps across restarts.
func (s *Store) SaveUnitPreferences(prefs any) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("journal: marshal unit preferences: %w", err)
	}
	return s.Set(NamespaceBoat, KeyUnitPrefs, string(data))
}

// LoadUnitPreferences decodes a previously saved unit-preference
// document into out (a pointer). Returns found=false if nothing has
// been saved yet.
func (s *Store) LoadUnitPreferences(out any) (found bool, err error) {
	raw, err := s.Get(NamespaceBoat, KeyUnitPrefs)
	if err != nil {
		return false, err
	}
	if raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("journal: unmarshal unit preferences: %w", err)
	}
	return true, nil
}

// SaveFences persists the anchor fence list as JSON under the fences
// namespace; serve reads it back through LoadFences at startup. No
// client command writes the fence list.
func (s *Store) SaveFences(fences []state.Fence) error {
	data, err := json.Marshal(fences)
	if err != nil {
		return fmt.Errorf("journal: marshal fences: %w", err)
	}
	return s.Set(NamespaceFences, KeyFenceList, string(data))
}

// LoadFences decodes the previously saved fence list, or returns an
// empty (non-nil) slice if none has been saved yet.
func (s *Store) LoadFences() ([]state.Fence, error) {
	raw, err := s.Get(NamespaceFences, KeyFenceList)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return []state.Fence{}, nil
	}
	var fences []state.Fence
	if err := json.Unmarshal([]byte(raw), &fences); err != nil {
		return nil, fmt.Errorf("journal: unmarshal fences: %w", err)
	}
	return fences, nil
}

// AppendPatch records one committed patch in the debug journal,
// trimming the ring to MaxJournalEntries oldest-dropped. The journal
// contract this fulfils is "replay patches in timestamp order" per
// the design note on the demo driver's filtered-patches SQLite
// mechanism — this store doesn't replay anything itself, it just
// guarantees the ordering invariant a future replay tool would need.
func (s *Store) AppendPatch(seq uint64, patch state.Patch) error {
	data, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("journal: marshal patch: %w", err)
	}
	if _, err := s.db.Exec(
		`INSERT INTO patch_journal (seq, patch, created_at) VALUES (?, ?, ?)`,
		seq, string(data), time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("journal: append patch: %w", err)
	}

	if _, err := s.db.Exec(`
		DELETE FROM patch_journal WHERE seq NOT IN (
			SELECT seq FROM patch_journal ORDER BY seq DESC LIMIT ?
		)`, MaxJournalEntries); err != nil {
		return fmt.Errorf("journal: trim patch journal: %w", err)
	}
	return nil
}

// JournalEntry is one row of the recent-patch debug journal.
type JournalEntry struct {
	Seq       uint64    `json:"seq"`
	Patch     state.Patch `json:"patch"`
	CreatedAt time.Time `json:"createdAt"`
}

// RecentPatches returns up to limit of the most recently appended
// patches, oldest first, for the status dashboard.
func (s *Store) RecentPatches(limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT seq, patch, created_at FROM patch_journal ORDER BY seq DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("journal: recent patches: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var seq uint64
		var raw, createdAt string
		if err := rows.Scan(&seq, &raw, &createdAt); err != nil {
			return nil, fmt.Errorf("journal: scan patch journal: %w", err)
		}
		var patch state.Patch
		if err := json.Unmarshal([]byte(raw), &patch); err != nil {
			return nil, fmt.Errorf("journal: unmarshal patch: %w", err)
		}
		ts, _ := time.Parse(time.RFC3339, createdAt)
		entries = append(entries, JournalEntry{Seq: seq, Patch: patch, CreatedAt: ts})
	}
	// Reverse to oldest-first, matching "replay patches in timestamp order".
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, rows.Err()
}
