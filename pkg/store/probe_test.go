package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

func probeState(t *testing.T, s *Store) State {
	t.Helper()
	state, err := s.Probe()
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	return state
}

func TestProbeNoStore(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "vault.db"))
	defer s.Close()

	if got := probeState(t, s); got != StateNoStore {
		t.Errorf("expected StateNoStore, got %v", got)
	}

	// Probing must not create the file.
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Error("probe created the database file")
	}
}

func TestProbeUninitialized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	// An empty file is a valid empty SQLite database with no tables.
	if err := os.WriteFile(path, nil, 0600); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}

	s := Open(path)
	defer s.Close()
	if got := probeState(t, s); got != StateUninitialized {
		t.Errorf("expected StateUninitialized, got %v", got)
	}
}

func TestProbeEmptyMasterTable(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "vault.db"))
	defer s.Close()

	err := s.WithTx(func(tx *sql.Tx) error { return s.CreateSchema(tx) })
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	// Tables exist but no master row and no credentials: init is legal.
	if got := probeState(t, s); got != StateUninitialized {
		t.Errorf("expected StateUninitialized, got %v", got)
	}
}

func TestProbeReady(t *testing.T) {
	s := newTestStore(t)
	if got := probeState(t, s); got != StateReady {
		t.Errorf("expected StateReady, got %v", got)
	}
}

func TestProbeGarbageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	if err := os.WriteFile(path, []byte("this is not a database at all"), 0600); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}

	s := Open(path)
	defer s.Close()
	if got := probeState(t, s); got != StateCorrupted {
		t.Errorf("expected StateCorrupted, got %v", got)
	}
}

func TestProbeDuplicateMaster(t *testing.T) {
	s := newTestStore(t)

	err := s.WithTx(func(tx *sql.Tx) error {
		return s.InsertMaster(tx, Master{PasswordHash: "second", Salt: []byte("salt")})
	})
	if err != nil {
		t.Fatalf("failed to insert second master: %v", err)
	}

	if got := probeState(t, s); got != StateCorrupted {
		t.Errorf("expected StateCorrupted, got %v", got)
	}
}

func TestProbeCredentialsWithoutMaster(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "vault.db"))
	defer s.Close()

	err := s.WithTx(func(tx *sql.Tx) error {
		if err := s.CreateSchema(tx); err != nil {
			return err
		}
		return s.InsertCredential(tx, Credential{Service: "s", Username: "u", Envelope: []byte{1}})
	})
	if err != nil {
		t.Fatalf("failed to set up store: %v", err)
	}

	// Ciphertexts with no master record to decrypt them.
	if got := probeState(t, s); got != StateCorrupted {
		t.Errorf("expected StateCorrupted, got %v", got)
	}
}

func TestProbeInconsistentTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	_, err = db.Exec("CREATE TABLE master (id INTEGER PRIMARY KEY, password_hash TEXT, salt BLOB)")
	if err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	db.Close()

	s := Open(path)
	defer s.Close()
	if got := probeState(t, s); got != StateCorrupted {
		t.Errorf("expected StateCorrupted, got %v", got)
	}
}
