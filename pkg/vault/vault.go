// Package vault orchestrates key derivation, envelope encryption, the
// integrity probe and the transactional store into the public vault
// operations: init, add, get, delete, list, export, import, rotate and
// status.
//
// Every operation is synchronous and either fully succeeds or leaves the
// persisted store byte-for-byte unchanged. Derived keys live only for the
// duration of one operation and are wiped before it returns.
package vault

import (
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/hifurukawa/vaultctl/pkg/audit"
	"github.com/hifurukawa/vaultctl/pkg/crypto"
	"github.com/hifurukawa/vaultctl/pkg/store"
)

// DirMode restricts the vault directory to the owning user.
const DirMode = 0700

// FileMode restricts the database file to the owning user.
const FileMode = 0600

// Vault exposes the credential vault operations over one explicit store
// handle. There is no hidden global state: the handle is constructed by
// the caller and passed in once.
type Vault struct {
	store *store.Store
	audit *audit.Logger

	// rotateCheckpoint, when non-nil, runs after each credential update
	// inside the rotation transaction. A returned error aborts and rolls
	// back the whole rotation.
	rotateCheckpoint func(updated int) error
}

// New returns a Vault over the given store handle. The audit logger may
// be a disabled one but must not be nil.
func New(st *store.Store, logger *audit.Logger) *Vault {
	return &Vault{store: st, audit: logger}
}

// Status reports the probed store state and the credential count. It is
// read-only and needs no master password; the count is zero unless the
// store is ready.
type Status struct {
	State   store.State
	Records int
}

// Init creates a new vault: generate a salt, derive the key, store its
// fingerprint and create the schema, all inside one transaction. Legal
// only when no store exists yet or the store holds no master record.
func (v *Vault) Init(master string) error {
	if master == "" {
		return fmt.Errorf("%w: master password must not be empty", ErrValidation)
	}

	state, err := v.probe()
	if err != nil {
		return err
	}
	switch state {
	case store.StateReady:
		return ErrAlreadyInit
	case store.StateCorrupted:
		return ErrCorrupted
	}

	if err := os.MkdirAll(filepath.Dir(v.store.Path()), DirMode); err != nil {
		return fmt.Errorf("%w: failed to create vault directory: %v", ErrStorage, err)
	}
	if err := v.store.CheckDiskSpace(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	salt := make([]byte, crypto.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("%w: failed to generate salt: %v", ErrStorage, err)
	}
	key := crypto.DeriveKey([]byte(master), salt)
	defer crypto.Wipe(key)

	rec := store.Master{
		PasswordHash: crypto.Fingerprint(key),
		Salt:         salt,
	}
	err = v.store.WithTx(func(tx *sql.Tx) error {
		if err := v.store.CreateSchema(tx); err != nil {
			return err
		}
		return v.store.InsertMaster(tx, rec)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if err := os.Chmod(v.store.Path(), FileMode); err != nil {
		return fmt.Errorf("%w: failed to set database permissions: %v", ErrStorage, err)
	}

	_ = v.audit.LogSuccess(audit.OpInit, "")
	return nil
}

// Add encrypts a password under the current key and stores it for the
// (service, username) pair.
func (v *Vault) Add(service, username, password, master string) error {
	if err := v.requireReady(); err != nil {
		return err
	}
	service, err := normalizeName("service", service)
	if err != nil {
		return err
	}
	username, err = normalizeName("username", username)
	if err != nil {
		return err
	}
	if err := validatePassword(password); err != nil {
		return err
	}

	key, err := v.authenticate(master)
	if err != nil {
		_ = v.audit.LogError(audit.OpAdd, pair(service, username))
		return err
	}
	defer crypto.Wipe(key)

	envelope, err := crypto.Seal(password, key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	err = v.store.WithTx(func(tx *sql.Tx) error {
		return v.store.InsertCredential(tx, store.Credential{
			Service:  service,
			Username: username,
			Envelope: envelope,
		})
	})
	if errors.Is(err, store.ErrDuplicate) {
		return fmt.Errorf("%w: %s", ErrDuplicate, pair(service, username))
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	_ = v.audit.LogSuccess(audit.OpAdd, pair(service, username))
	return nil
}

// Get decrypts and returns the stored password for the pair.
func (v *Vault) Get(service, username, master string) (string, error) {
	if err := v.requireReady(); err != nil {
		return "", err
	}
	service, err := normalizeName("service", service)
	if err != nil {
		return "", err
	}
	username, err = normalizeName("username", username)
	if err != nil {
		return "", err
	}

	key, err := v.authenticate(master)
	if err != nil {
		_ = v.audit.LogError(audit.OpGet, pair(service, username))
		return "", err
	}
	defer crypto.Wipe(key)

	cred, err := v.store.GetCredential(service, username)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, pair(service, username))
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}

	password, err := crypto.Open(cred.Envelope, key)
	if err != nil {
		// The master verified but the envelope did not: tampered data.
		return "", ErrAuthFailed
	}

	_ = v.audit.LogSuccess(audit.OpGet, pair(service, username))
	return password, nil
}

// Delete removes the credential for the pair.
func (v *Vault) Delete(service, username, master string) error {
	if err := v.requireReady(); err != nil {
		return err
	}
	service, err := normalizeName("service", service)
	if err != nil {
		return err
	}
	username, err = normalizeName("username", username)
	if err != nil {
		return err
	}

	key, err := v.authenticate(master)
	if err != nil {
		_ = v.audit.LogError(audit.OpDelete, pair(service, username))
		return err
	}
	defer crypto.Wipe(key)

	var deleted int64
	err = v.store.WithTx(func(tx *sql.Tx) error {
		deleted, err = v.store.DeleteCredential(tx, service, username)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if deleted == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, pair(service, username))
	}

	_ = v.audit.LogSuccess(audit.OpDelete, pair(service, username))
	return nil
}

// List returns the stored (service, username) pairs ordered by the given
// field and direction. Service and username are not secret, so listing
// never requires the master password and never touches a password.
func (v *Vault) List(sortField, direction string) ([]store.Entry, error) {
	if err := v.requireReady(); err != nil {
		return nil, err
	}
	entries, err := v.store.ListNames(sortField, direction)
	if errors.Is(err, store.ErrInvalidSort) {
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	_ = v.audit.LogSuccess(audit.OpList, "")
	return entries, nil
}

// Status probes the store and counts records. Read-only.
func (v *Vault) Status() (Status, error) {
	state, err := v.probe()
	if err != nil {
		return Status{}, err
	}
	st := Status{State: state}
	if state == store.StateReady {
		n, err := v.store.CountCredentials()
		if err != nil {
			return Status{}, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		st.Records = n
	}
	return st, nil
}

// probe classifies the store, translating environmental failures into
// the storage error kind.
func (v *Vault) probe() (store.State, error) {
	state, err := v.store.Probe()
	if err != nil {
		return state, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return state, nil
}

// requireReady blocks every operation except init unless the store is
// ready. A corrupted store fails terminally and nothing mutates.
func (v *Vault) requireReady() error {
	state, err := v.probe()
	if err != nil {
		return err
	}
	switch state {
	case store.StateReady:
		return nil
	case store.StateCorrupted:
		return ErrCorrupted
	default:
		return ErrNotReady
	}
}

// authenticate derives the candidate key and verifies it against the
// stored fingerprint. The returned key must be wiped by the caller. The
// error is uniform: a missing master record and a wrong password are
// indistinguishable from the outside.
func (v *Vault) authenticate(master string) ([]byte, error) {
	m, err := v.store.GetMaster()
	if errors.Is(err, store.ErrNoMaster) {
		return nil, ErrAuthFailed
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	key := crypto.DeriveKey([]byte(master), m.Salt)
	if !crypto.VerifyFingerprint(key, m.PasswordHash) {
		crypto.Wipe(key)
		return nil, ErrAuthFailed
	}
	return key, nil
}

// normalizeName NFC-normalizes a service or username and validates it:
// non-empty, no control characters, no comma (the interchange format has
// no quoting, so commas cannot round-trip).
func normalizeName(kind, value string) (string, error) {
	value = norm.NFC.String(value)
	if value == "" {
		return "", fmt.Errorf("%w: %s must not be empty", ErrValidation, kind)
	}
	for _, r := range value {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: %s contains a control character", ErrValidation, kind)
		}
		if r == ',' {
			return "", fmt.Errorf("%w: %s must not contain a comma", ErrValidation, kind)
		}
	}
	return value, nil
}

// validatePassword rejects passwords the interchange format cannot carry.
func validatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("%w: password must not be empty", ErrValidation)
	}
	for _, r := range password {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: password contains a control character", ErrValidation)
		}
		if r == ',' {
			return fmt.Errorf("%w: password must not contain a comma", ErrValidation)
		}
	}
	return nil
}

func pair(service, username string) string {
	return service + "/" + username
}
