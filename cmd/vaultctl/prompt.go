package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/hifurukawa/vaultctl/pkg/vault"
)

// readSecret obtains a secret from the operator without echoing it to
// the terminal. When stdin is not a terminal (pipes, tests) it falls
// back to reading one line.
func readSecret(label string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", label)
	if term.IsTerminal(int(syscall.Stdin)) {
		b, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readMasterPassword prompts once for the master password.
func readMasterPassword() (string, error) {
	return readSecret("Master password")
}

// readNewPassword prompts twice and requires both entries to match, so a
// typo cannot lock the vault under an unintended password.
func readNewPassword(label string) (string, error) {
	first, err := readSecret(label)
	if err != nil {
		return "", err
	}
	second, err := readSecret(label + " (again)")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("%w: passwords do not match", vault.ErrUsage)
	}
	return first, nil
}

// confirm asks a yes/no question on the terminal, defaulting to no.
func confirm(question string) (bool, error) {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", question)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// chooseConflict asks what to do about an existing export target.
func chooseConflict(path string) (vault.ConflictDecision, error) {
	fmt.Fprintf(os.Stderr, "%s already exists. [o]verwrite, [r]ename, [c]ancel: ", path)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return vault.ConflictCancel, fmt.Errorf("failed to read choice: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "o", "overwrite":
		return vault.ConflictOverwrite, nil
	case "r", "rename":
		return vault.ConflictRename, nil
	default:
		return vault.ConflictCancel, nil
	}
}
