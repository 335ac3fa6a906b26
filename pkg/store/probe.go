package store

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// State classifies the persisted store for the operations layer.
//
// The probe never mutates: checking a missing file is done with os.Stat
// before any connection is opened, so probing can never create the
// database as a side effect.
type State int

const (
	// StateNoStore means no database file exists at all.
	StateNoStore State = iota

	// StateUninitialized means the file exists but holds no master
	// record (and no credentials). Init is still legal.
	StateUninitialized

	// StateReady means the structural self-check passed and exactly one
	// master record exists. All operations are legal.
	StateReady

	// StateCorrupted is terminal: the self-check failed, table presence
	// is inconsistent, credentials exist without a master record, or
	// more than one master record exists. Nothing mutates from here.
	StateCorrupted
)

// String returns a human-readable state name.
func (st State) String() string {
	switch st {
	case StateNoStore:
		return "no store"
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateCorrupted:
		return "corrupted"
	default:
		return "unknown"
	}
}

// Probe inspects the persisted state and classifies it. The structural
// self-check (PRAGMA quick_check) runs before any table is trusted; a
// file that SQLite cannot read at all classifies as corrupted. An error
// is returned only for environmental failures such as permission
// problems, never for corruption.
func (s *Store) Probe() (State, error) {
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return StateNoStore, nil
		}
		return StateNoStore, fmt.Errorf("store: failed to stat database: %w", err)
	}

	db, err := s.conn()
	if err != nil {
		return StateNoStore, err
	}

	var check string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&check); err != nil {
		// Not a readable SQLite file.
		return StateCorrupted, nil
	}
	if check != "ok" {
		return StateCorrupted, nil
	}

	hasMaster, err := s.tableExists(db, "master")
	if err != nil {
		return StateNoStore, err
	}
	hasCreds, err := s.tableExists(db, "credentials")
	if err != nil {
		return StateNoStore, err
	}

	switch {
	case !hasMaster && !hasCreds:
		return StateUninitialized, nil
	case hasMaster != hasCreds:
		// One table without the other: the schema is created in a
		// single transaction, so a half-present schema was mangled
		// by something external.
		return StateCorrupted, nil
	}

	var masters int
	if err := db.QueryRow("SELECT COUNT(*) FROM master").Scan(&masters); err != nil {
		return StateCorrupted, nil
	}
	var creds int
	if err := db.QueryRow("SELECT COUNT(*) FROM credentials").Scan(&creds); err != nil {
		return StateCorrupted, nil
	}

	switch {
	case masters > 1:
		return StateCorrupted, nil
	case masters == 1:
		return StateReady, nil
	case creds > 0:
		// Ciphertexts with no master record to decrypt them.
		return StateCorrupted, nil
	default:
		return StateUninitialized, nil
	}
}

func (s *Store) tableExists(db *sql.DB, name string) (bool, error) {
	var found string
	err := db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		name,
	).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: failed to inspect schema: %w", err)
	}
	return true, nil
}
