package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// List command flags.
var (
	listSort  string
	listOrder string
)

func init() {
	listCmd.Flags().StringVar(&listSort, "sort", "service", "Sort field: service, username")
	listCmd.Flags().StringVar(&listOrder, "order", "asc", "Sort direction: asc, desc")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new vault",
	Long: `Initialize a new vault protected by a master password.

The master password is stretched into an encryption key; only a
fingerprint of that key is stored. There is no recovery if the master
password is lost.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		master, err := readNewPassword("Master password")
		if err != nil {
			return err
		}
		if err := vlt.Init(master); err != nil {
			return err
		}
		fmt.Println("Vault initialized.")
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add <service> <username>",
	Short: "Store a password for a service/username pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readSecret("Password to store")
		if err != nil {
			return err
		}
		master, err := readMasterPassword()
		if err != nil {
			return err
		}
		if err := vlt.Add(args[0], args[1], password, master); err != nil {
			return err
		}
		fmt.Printf("Stored credential for %s/%s.\n", args[0], args[1])
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <service> <username>",
	Short: "Retrieve the password for a service/username pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		master, err := readMasterPassword()
		if err != nil {
			return err
		}
		password, err := vlt.Get(args[0], args[1], master)
		if err != nil {
			return err
		}
		fmt.Println(password)
		return nil
	},
}

var delCmd = &cobra.Command{
	Use:   "del <service> <username>",
	Short: "Delete the credential for a service/username pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		master, err := readMasterPassword()
		if err != nil {
			return err
		}
		if err := vlt.Delete(args[0], args[1], master); err != nil {
			return err
		}
		fmt.Printf("Deleted credential for %s/%s.\n", args[0], args[1])
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored service/username pairs",
	Long: `List the stored (service, username) pairs.

Listing never requires the master password and never prints passwords;
service and username are not secret.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := vlt.List(listSort, listOrder)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "SERVICE\tUSERNAME")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\n", e.Service, e.Username)
		}
		return w.Flush()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vault state and record count",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := vlt.Status()
		if err != nil {
			return err
		}
		fmt.Printf("State:   %s\n", status.State)
		fmt.Printf("Records: %d\n", status.Records)
		return nil
	},
}
