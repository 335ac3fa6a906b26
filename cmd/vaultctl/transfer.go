package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hifurukawa/vaultctl/pkg/vault"
)

// Export and import command flags.
var (
	exportForce bool
	importForce bool
)

func init() {
	exportCmd.Flags().BoolVar(&exportForce, "force", false,
		"Overwrite an existing target file without asking")
	importCmd.Flags().BoolVar(&importForce, "force", false,
		"Replace existing records without asking")
}

var exportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Export all credentials to a CSV file",
	Long: `Export every credential as plaintext CSV.

The file contains decrypted passwords; handle it accordingly. The write
is atomic: the data goes to a temporary file that is renamed into place,
so a crash never leaves a partial export.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		master, err := readMasterPassword()
		if err != nil {
			return err
		}
		onConflict := chooseConflict
		if exportForce {
			onConflict = func(string) (vault.ConflictDecision, error) {
				return vault.ConflictOverwrite, nil
			}
		}
		path, n, err := vlt.Export(args[0], master, onConflict)
		if err != nil {
			return err
		}
		fmt.Printf("Exported %d records to %s.\n", n, path)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Import credentials from a CSV file, replacing all records",
	Long: `Import a CSV file produced by export.

The file is fully validated before anything happens. Importing REPLACES
the entire credential set; when the vault is not empty you are asked to
confirm the destructive replacement first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		master, err := readMasterPassword()
		if err != nil {
			return err
		}
		confirmReplace := func(existing int) (bool, error) {
			return confirm(fmt.Sprintf(
				"This replaces all %d existing records. Continue?", existing))
		}
		if importForce {
			confirmReplace = func(int) (bool, error) { return true, nil }
		}
		n, err := vlt.Import(args[0], master, confirmReplace)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d records.\n", n)
		return nil
	},
}

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Rotate the master password",
	Long: `Rotate the master password.

Every stored credential is re-encrypted under a key derived from the new
password. The rotation is all-or-nothing: a failure at any point leaves
the vault usable with the old password.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		oldMaster, err := readSecret("Current master password")
		if err != nil {
			return err
		}
		newMaster, err := readNewPassword("New master password")
		if err != nil {
			return err
		}
		if err := vlt.RotateMaster(oldMaster, newMaster); err != nil {
			return err
		}
		fmt.Println("Master password rotated.")
		return nil
	},
}
