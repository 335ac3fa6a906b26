package vault

import (
	"crypto/rand"
	"database/sql"
	"fmt"

	"github.com/hifurukawa/vaultctl/pkg/audit"
	"github.com/hifurukawa/vaultctl/pkg/crypto"
	"github.com/hifurukawa/vaultctl/pkg/store"
)

// RotateMaster replaces the master password: every credential is
// decrypted under the old key, a new salt and key are generated, and the
// master record plus every re-encrypted credential are updated inside
// one transaction. A failure at any point, including partway through the
// record set, rolls back completely: the old master record and all old
// ciphertexts stay intact.
//
// Rotating to the identical password short-circuits as a no-op before
// any write; salt, fingerprint and ciphertexts are left byte-identical.
func (v *Vault) RotateMaster(oldMaster, newMaster string) error {
	if err := v.requireReady(); err != nil {
		return err
	}
	if newMaster == "" {
		return fmt.Errorf("%w: new master password must not be empty", ErrValidation)
	}

	oldKey, err := v.authenticate(oldMaster)
	if err != nil {
		_ = v.audit.LogError(audit.OpRotate, "")
		return err
	}
	defer crypto.Wipe(oldKey)

	if oldMaster == newMaster {
		_ = v.audit.LogSuccess(audit.OpRotate, "no-op")
		return nil
	}

	// Decrypt everything before the first write so a bad ciphertext is
	// discovered while the store is still untouched.
	creds, err := v.store.AllCredentials()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	passwords := make([]string, len(creds))
	for i, c := range creds {
		passwords[i], err = crypto.Open(c.Envelope, oldKey)
		if err != nil {
			return fmt.Errorf("%w: credential %s cannot be decrypted",
				ErrCorrupted, pair(c.Service, c.Username))
		}
	}

	newSalt := make([]byte, crypto.SaltLength)
	if _, err := rand.Read(newSalt); err != nil {
		return fmt.Errorf("%w: failed to generate salt: %v", ErrStorage, err)
	}
	newKey := crypto.DeriveKey([]byte(newMaster), newSalt)
	defer crypto.Wipe(newKey)

	if err := v.store.CheckDiskSpace(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	err = v.store.WithTx(func(tx *sql.Tx) error {
		if err := v.store.UpdateMaster(tx, store.Master{
			PasswordHash: crypto.Fingerprint(newKey),
			Salt:         newSalt,
		}); err != nil {
			return err
		}
		for i, c := range creds {
			envelope, err := crypto.Seal(passwords[i], newKey)
			if err != nil {
				return err
			}
			if err := v.store.UpdateCredentialEnvelope(tx, c.Service, c.Username, envelope); err != nil {
				return err
			}
			if v.rotateCheckpoint != nil {
				if err := v.rotateCheckpoint(i + 1); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	_ = v.audit.LogSuccess(audit.OpRotate, fmt.Sprintf("%d records re-encrypted", len(creds)))
	return nil
}
