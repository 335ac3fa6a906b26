package vault

import "errors"

// Sentinel errors forming the operation error taxonomy. The CLI shell
// maps these to exit codes with errors.Is; operations wrap them with
// fmt.Errorf("%w: ...") to add context.
//
// No error carries a decrypted password, a master password, or a derived
// key. Authentication failures are deliberately uniform: the message
// never reveals whether the master password was wrong or the store was
// initialized under a different one.
var (
	// ErrUsage indicates a malformed invocation. Nothing was mutated.
	ErrUsage = errors.New("vault: invalid usage")

	// ErrNotReady indicates the store is missing or uninitialized.
	ErrNotReady = errors.New("vault: store is not initialized")

	// ErrAlreadyInit indicates init was attempted on a ready store.
	ErrAlreadyInit = errors.New("vault: store is already initialized")

	// ErrAuthFailed indicates master password or tag verification failed.
	ErrAuthFailed = errors.New("vault: authentication failed")

	// ErrDuplicate indicates the (service, username) pair already exists.
	ErrDuplicate = errors.New("vault: credential already exists")

	// ErrNotFound indicates no credential matched the given pair.
	ErrNotFound = errors.New("vault: credential not found")

	// ErrValidation indicates a format or control-character violation.
	ErrValidation = errors.New("vault: validation failed")

	// ErrStorage indicates an I/O or transactional failure. The failed
	// transaction was rolled back before this error surfaced.
	ErrStorage = errors.New("vault: storage failure")

	// ErrCorrupted is terminal: the store failed its integrity check
	// and no operation will mutate it.
	ErrCorrupted = errors.New("vault: store is corrupted")

	// ErrCancelled indicates the operator declined a confirmation; the
	// store is untouched.
	ErrCancelled = errors.New("vault: operation cancelled")
)
