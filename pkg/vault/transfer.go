package vault

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hifurukawa/vaultctl/pkg/audit"
	"github.com/hifurukawa/vaultctl/pkg/crypto"
	"github.com/hifurukawa/vaultctl/pkg/csvcodec"
	"github.com/hifurukawa/vaultctl/pkg/store"
)

// ConflictDecision is the operator's choice when an export target
// already exists.
type ConflictDecision int

const (
	// ConflictCancel aborts the export; nothing is written.
	ConflictCancel ConflictDecision = iota

	// ConflictOverwrite replaces the existing file.
	ConflictOverwrite

	// ConflictRename writes to an automatically chosen alternative path
	// next to the requested one.
	ConflictRename
)

// ConflictFunc is consulted before any write when the export target
// exists. A nil ConflictFunc cancels.
type ConflictFunc func(path string) (ConflictDecision, error)

// ConfirmFunc is consulted before import replaces a non-empty store.
// It receives the number of records about to be destroyed. A nil
// ConfirmFunc declines.
type ConfirmFunc func(existing int) (bool, error)

// Export decrypts every credential, serializes the set into the
// interchange format and writes it to path. The file is written to a
// temporary name in the target directory and atomically renamed into
// place, so a crash mid-write never leaves a partial target file.
//
// If the target already exists, onConflict chooses overwrite, an
// auto-renamed alternative, or cancel before any write occurs. Returns
// the path actually written and the record count.
func (v *Vault) Export(path, master string, onConflict ConflictFunc) (string, int, error) {
	if err := v.requireReady(); err != nil {
		return "", 0, err
	}

	key, err := v.authenticate(master)
	if err != nil {
		_ = v.audit.LogError(audit.OpExport, "")
		return "", 0, err
	}
	defer crypto.Wipe(key)

	creds, err := v.store.AllCredentials()
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	records := make([]csvcodec.Record, 0, len(creds))
	for _, c := range creds {
		password, err := crypto.Open(c.Envelope, key)
		if err != nil {
			return "", 0, fmt.Errorf("%w: credential %s cannot be decrypted",
				ErrCorrupted, pair(c.Service, c.Username))
		}
		records = append(records, csvcodec.Record{
			Service:  c.Service,
			Username: c.Username,
			Password: password,
		})
	}

	data, err := csvcodec.Build(records)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	target := path
	if _, err := os.Stat(path); err == nil {
		decision := ConflictCancel
		if onConflict != nil {
			decision, err = onConflict(path)
			if err != nil {
				return "", 0, fmt.Errorf("%w: %v", ErrUsage, err)
			}
		}
		switch decision {
		case ConflictOverwrite:
		case ConflictRename:
			target, err = alternativePath(path)
			if err != nil {
				return "", 0, fmt.Errorf("%w: %v", ErrStorage, err)
			}
		default:
			return "", 0, ErrCancelled
		}
	} else if !os.IsNotExist(err) {
		return "", 0, fmt.Errorf("%w: failed to stat %s: %v", ErrStorage, path, err)
	}

	if err := writeFileAtomic(target, data); err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	_ = v.audit.LogSuccess(audit.OpExport, target)
	return target, len(records), nil
}

// Import parses and fully validates an interchange file, then replaces
// the entire credential set with its records, re-encrypted under the
// current key, inside one transaction. A failure on any record rolls
// back the whole import; the prior data is never partially replaced.
//
// When the store already holds records, confirm must approve the
// destructive replacement before anything is deleted.
func (v *Vault) Import(path, master string, confirm ConfirmFunc) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: cannot read %s: %v", ErrUsage, path, err)
	}
	parsed, err := csvcodec.Parse(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	// Re-validate through the same rules as add, before any mutation.
	records := make([]csvcodec.Record, 0, len(parsed))
	seen := make(map[string]struct{}, len(parsed))
	for i, r := range parsed {
		service, err := normalizeName("service", r.Service)
		if err != nil {
			return 0, fmt.Errorf("%w (line %d)", err, i+2)
		}
		username, err := normalizeName("username", r.Username)
		if err != nil {
			return 0, fmt.Errorf("%w (line %d)", err, i+2)
		}
		if err := validatePassword(r.Password); err != nil {
			return 0, fmt.Errorf("%w (line %d)", err, i+2)
		}
		k := service + "\x00" + username
		if _, dup := seen[k]; dup {
			return 0, fmt.Errorf("%w: duplicate pair %s (line %d)",
				ErrValidation, pair(service, username), i+2)
		}
		seen[k] = struct{}{}
		records = append(records, csvcodec.Record{Service: service, Username: username, Password: r.Password})
	}

	if err := v.requireReady(); err != nil {
		return 0, err
	}
	key, err := v.authenticate(master)
	if err != nil {
		_ = v.audit.LogError(audit.OpImport, path)
		return 0, err
	}
	defer crypto.Wipe(key)

	existing, err := v.store.CountCredentials()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if existing > 0 {
		ok := false
		if confirm != nil {
			ok, err = confirm(existing)
			if err != nil {
				return 0, fmt.Errorf("%w: %v", ErrUsage, err)
			}
		}
		if !ok {
			return 0, ErrCancelled
		}
	}

	if err := v.store.CheckDiskSpace(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	err = v.store.WithTx(func(tx *sql.Tx) error {
		if err := v.store.DeleteAllCredentials(tx); err != nil {
			return err
		}
		for _, r := range records {
			envelope, err := crypto.Seal(r.Password, key)
			if err != nil {
				return err
			}
			if err := v.store.InsertCredential(tx, store.Credential{
				Service:  r.Service,
				Username: r.Username,
				Envelope: envelope,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	_ = v.audit.LogSuccess(audit.OpImport, fmt.Sprintf("%s (%d records)", path, len(records)))
	return len(records), nil
}

// alternativePath picks the first free "name-N.ext" variant next to path.
func alternativePath(path string) (string, error) {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; i < 1000; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", candidate, err)
		}
	}
	return "", errors.New("no free alternative path found")
}

// writeFileAtomic writes data to a temporary file in the target
// directory, syncs it, and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".vaultctl-export-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(FileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename into place: %w", err)
	}
	return nil
}
