// Package store provides durable, transactional persistence for vaultctl
// on top of a single SQLite database file.
//
// The store keeps two tables: master (exactly one row holding the key
// fingerprint and KDF salt) and credentials (one row per service/username
// pair with the encrypted password envelope). All mutations run inside a
// transaction via WithTx so a failure at any point rolls back completely
// and callers never observe a partially-applied change.
package store

import (
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Sentinel errors returned by store operations.
var (
	// ErrDuplicate indicates a credential with the same (service, username)
	// already exists.
	ErrDuplicate = errors.New("store: credential already exists")

	// ErrNotFound indicates no credential matched the given key.
	ErrNotFound = errors.New("store: credential not found")

	// ErrNoMaster indicates the master table holds no row.
	ErrNoMaster = errors.New("store: master record not found")

	// ErrInvalidSort indicates a sort field or direction outside the
	// fixed allow-list.
	ErrInvalidSort = errors.New("store: invalid sort field or direction")

	// ErrInsufficientDisk indicates not enough free disk space for a
	// mutating operation.
	ErrInsufficientDisk = errors.New("store: insufficient disk space")
)

// MinDiskSpaceBytes is the minimum free space required before mutating
// operations are allowed to proceed.
const MinDiskSpaceBytes = 10 * 1024 * 1024

// Master is the single master record: the hex fingerprint of the derived
// key and the KDF salt. The derived key itself is never persisted.
type Master struct {
	PasswordHash string
	Salt         []byte
}

// Credential is one stored credential. Envelope is the opaque encrypted
// password blob; plaintext passwords never reach the store.
type Credential struct {
	Service  string
	Username string
	Envelope []byte
}

// Entry is a (service, username) pair as returned by ListNames. It never
// carries password material.
type Entry struct {
	Service  string
	Username string
}

// Store is a handle to one vault database file. It is constructed once
// and passed explicitly to the operations layer; there is no process-wide
// singleton. The connection is opened lazily so that probing a missing
// file does not create it.
type Store struct {
	path string
	db   *sql.DB
}

// Open returns a handle for the database at path. The file is not touched
// until the first operation that needs a connection.
func Open(path string) *Store {
	return &Store{path: path}
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying connection if one was opened.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// conn returns the lazily-opened database connection.
func (s *Store) conn() (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}
	// A single connection keeps transaction semantics simple and matches
	// the single-process ownership model.
	db.SetMaxOpenConns(1)
	s.db = db
	return db, nil
}

// WithTx executes fn inside a transaction. On any error from fn the
// transaction is rolled back before the error propagates; otherwise it is
// committed. Callers never observe a partially-applied mutation.
func (s *Store) WithTx(fn func(tx *sql.Tx) error) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("store: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: failed to commit transaction: %w", err)
	}
	return nil
}

// CreateSchema creates the master and credentials tables. SQLite DDL is
// transactional, so schema creation can share the transaction that
// inserts the first master row.
func (s *Store) CreateSchema(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS master (
			id INTEGER PRIMARY KEY,
			password_hash TEXT NOT NULL,
			salt BLOB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("store: failed to create master table: %w", err)
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS credentials (
			id INTEGER PRIMARY KEY,
			service TEXT NOT NULL,
			username TEXT NOT NULL,
			ciphertext TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(service, username)
		)
	`)
	if err != nil {
		return fmt.Errorf("store: failed to create credentials table: %w", err)
	}
	return nil
}

// InsertMaster inserts the master record. The integrity probe treats more
// than one row as corruption, so this must only run during init.
func (s *Store) InsertMaster(tx *sql.Tx, m Master) error {
	_, err := tx.Exec(
		"INSERT INTO master(password_hash, salt) VALUES(?, ?)",
		m.PasswordHash, m.Salt,
	)
	if err != nil {
		return fmt.Errorf("store: failed to insert master record: %w", err)
	}
	return nil
}

// UpdateMaster replaces the fingerprint and salt of the single master row.
func (s *Store) UpdateMaster(tx *sql.Tx, m Master) error {
	res, err := tx.Exec(
		"UPDATE master SET password_hash = ?, salt = ?",
		m.PasswordHash, m.Salt,
	)
	if err != nil {
		return fmt.Errorf("store: failed to update master record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: failed to update master record: %w", err)
	}
	if n == 0 {
		return ErrNoMaster
	}
	return nil
}

// GetMaster reads the master record.
func (s *Store) GetMaster() (Master, error) {
	db, err := s.conn()
	if err != nil {
		return Master{}, err
	}
	var m Master
	err = db.QueryRow("SELECT password_hash, salt FROM master").Scan(&m.PasswordHash, &m.Salt)
	if err == sql.ErrNoRows {
		return Master{}, ErrNoMaster
	}
	if err != nil {
		return Master{}, fmt.Errorf("store: failed to read master record: %w", err)
	}
	return m, nil
}

// InsertCredential inserts one credential. Returns ErrDuplicate when the
// (service, username) pair already exists, detected via the structured
// SQLite error code rather than by matching error text.
func (s *Store) InsertCredential(tx *sql.Tx, c Credential) error {
	_, err := tx.Exec(
		"INSERT INTO credentials(service, username, ciphertext) VALUES(?, ?, ?)",
		c.Service, c.Username, encodeEnvelope(c.Envelope),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s/%s", ErrDuplicate, c.Service, c.Username)
	}
	if err != nil {
		return fmt.Errorf("store: failed to insert credential: %w", err)
	}
	return nil
}

// UpdateCredentialEnvelope replaces the stored envelope for one credential.
func (s *Store) UpdateCredentialEnvelope(tx *sql.Tx, service, username string, envelope []byte) error {
	res, err := tx.Exec(
		"UPDATE credentials SET ciphertext = ?, updated_at = CURRENT_TIMESTAMP WHERE service = ? AND username = ?",
		encodeEnvelope(envelope), service, username,
	)
	if err != nil {
		return fmt.Errorf("store: failed to update credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: failed to update credential: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, service, username)
	}
	return nil
}

// GetCredential reads one credential by its (service, username) key.
func (s *Store) GetCredential(service, username string) (Credential, error) {
	db, err := s.conn()
	if err != nil {
		return Credential{}, err
	}
	var encoded string
	err = db.QueryRow(
		"SELECT ciphertext FROM credentials WHERE service = ? AND username = ?",
		service, username,
	).Scan(&encoded)
	if err == sql.ErrNoRows {
		return Credential{}, fmt.Errorf("%w: %s/%s", ErrNotFound, service, username)
	}
	if err != nil {
		return Credential{}, fmt.Errorf("store: failed to read credential: %w", err)
	}
	envelope, err := decodeEnvelope(encoded)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Service: service, Username: username, Envelope: envelope}, nil
}

// DeleteCredential deletes one credential and returns the number of rows
// removed. Zero deletions is not a store error; the caller decides how to
// surface it.
func (s *Store) DeleteCredential(tx *sql.Tx, service, username string) (int64, error) {
	res, err := tx.Exec(
		"DELETE FROM credentials WHERE service = ? AND username = ?",
		service, username,
	)
	if err != nil {
		return 0, fmt.Errorf("store: failed to delete credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: failed to delete credential: %w", err)
	}
	return n, nil
}

// DeleteAllCredentials removes every credential row. Used by import and
// rotation, always inside the caller's transaction.
func (s *Store) DeleteAllCredentials(tx *sql.Tx) error {
	if _, err := tx.Exec("DELETE FROM credentials"); err != nil {
		return fmt.Errorf("store: failed to delete credentials: %w", err)
	}
	return nil
}

// AllCredentials returns every credential ordered by (service, username).
func (s *Store) AllCredentials() ([]Credential, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query("SELECT service, username, ciphertext FROM credentials ORDER BY service, username")
	if err != nil {
		return nil, fmt.Errorf("store: failed to list credentials: %w", err)
	}
	defer rows.Close()

	var creds []Credential
	for rows.Next() {
		var c Credential
		var encoded string
		if err := rows.Scan(&c.Service, &c.Username, &encoded); err != nil {
			return nil, fmt.Errorf("store: failed to scan credential: %w", err)
		}
		c.Envelope, err = decodeEnvelope(encoded)
		if err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: failed to list credentials: %w", err)
	}
	return creds, nil
}

// Sort allow-list. User input is validated against these fixed maps and
// only the mapped SQL fragments ever reach the query string.
var (
	sortColumns = map[string]string{
		"service":  "service",
		"username": "username",
	}
	sortDirections = map[string]string{
		"asc":  "ASC",
		"desc": "DESC",
	}
)

// ListNames returns the (service, username) pairs ordered by the given
// field and direction. Both must come from the fixed allow-list; anything
// else fails with ErrInvalidSort before the query is assembled.
func (s *Store) ListNames(field, direction string) ([]Entry, error) {
	col, ok := sortColumns[field]
	if !ok {
		return nil, fmt.Errorf("%w: field %q", ErrInvalidSort, field)
	}
	dir, ok := sortDirections[direction]
	if !ok {
		return nil, fmt.Errorf("%w: direction %q", ErrInvalidSort, direction)
	}

	// Secondary sort on the other column keeps the order deterministic.
	secondary := "username"
	if col == "username" {
		secondary = "service"
	}

	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		"SELECT service, username FROM credentials ORDER BY %s %s, %s %s",
		col, dir, secondary, dir,
	)
	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("store: failed to list credentials: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Service, &e.Username); err != nil {
			return nil, fmt.Errorf("store: failed to scan credential: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: failed to list credentials: %w", err)
	}
	return entries, nil
}

// CountCredentials returns the number of stored credentials.
func (s *Store) CountCredentials() (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM credentials").Scan(&n); err != nil {
		return 0, fmt.Errorf("store: failed to count credentials: %w", err)
	}
	return n, nil
}

// encodeEnvelope encodes an opaque envelope for the TEXT ciphertext column.
func encodeEnvelope(envelope []byte) string {
	return base64.StdEncoding.EncodeToString(envelope)
}

func decodeEnvelope(encoded string) ([]byte, error) {
	envelope, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("store: malformed ciphertext encoding: %w", err)
	}
	return envelope, nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint violation,
// using the extended SQLite result code so other constraint failures are
// not misclassified.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
