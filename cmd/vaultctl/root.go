package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hifurukawa/vaultctl/internal/config"
	"github.com/hifurukawa/vaultctl/pkg/audit"
	"github.com/hifurukawa/vaultctl/pkg/store"
	"github.com/hifurukawa/vaultctl/pkg/vault"
)

var (
	flagVaultDir string

	st  *store.Store
	vlt *vault.Vault
)

var rootCmd = &cobra.Command{
	Use:   "vaultctl",
	Short: "vaultctl is a local, master-password-protected credential vault",
	Long: `A local credential vault that stores (service, username, password)
triples encrypted at rest in a single SQLite file. The encryption key is
derived from your master password and never stored.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	// PersistentPreRunE wires the store handle and operations layer for
	// every subcommand. Nothing touches the disk until an operation runs.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("%w: %v", vault.ErrUsage, err)
		}
		if flagVaultDir != "" {
			cfg.VaultDir = flagVaultDir
		}
		st = store.Open(cfg.DBPath())
		vlt = vault.New(st, audit.NewLogger(cfg.AuditPath()))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagVaultDir, "dir", "",
		"Vault directory (default: $VAULTCTL_DIR or ~/.vaultctl)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(delCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(rotateCmd)
}
