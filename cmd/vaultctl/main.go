// Package main provides the vaultctl CLI application.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/hifurukawa/vaultctl/pkg/vault"
)

// Exit codes, one per error kind, so scripts can distinguish failures
// without parsing messages.
const (
	exitOK         = 0
	exitGeneric    = 1
	exitUsage      = 2
	exitNotReady   = 3
	exitAuthFailed = 4
	exitDuplicate  = 5
	exitNotFound   = 6
	exitValidation = 7
	exitStorage    = 8
	exitCorrupted  = 9
	exitCancelled  = 10
)

func main() {
	err := rootCmd.Execute()
	// Close here rather than in a PostRun hook: cobra skips PostRun when
	// RunE fails, and os.Exit skips defers.
	if st != nil {
		st.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitOK)
}

// exitCode maps the vault error taxonomy to process exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, vault.ErrUsage):
		return exitUsage
	case errors.Is(err, vault.ErrNotReady), errors.Is(err, vault.ErrAlreadyInit):
		return exitNotReady
	case errors.Is(err, vault.ErrAuthFailed):
		return exitAuthFailed
	case errors.Is(err, vault.ErrDuplicate):
		return exitDuplicate
	case errors.Is(err, vault.ErrNotFound):
		return exitNotFound
	case errors.Is(err, vault.ErrValidation):
		return exitValidation
	case errors.Is(err, vault.ErrStorage):
		return exitStorage
	case errors.Is(err, vault.ErrCorrupted):
		return exitCorrupted
	case errors.Is(err, vault.ErrCancelled):
		return exitCancelled
	default:
		return exitGeneric
	}
}
