package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/finsync/gatekeeper/internal/config"
	"github.com/finsync/gatekeeper/passcode"
	bboltstorage "github.com/finsync/gatekeeper/storage/bbolt"
)

var pinOwner string

// openVault opens the agent's store for direct administration. The agent
// must not be running; bbolt holds an exclusive file lock.
func openVault() (*passcode.Vault, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	store, err := bboltstorage.NewStoreFromFile(filepath.Join(cfg.DataDir, "gatekeeper.db"), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("opening secure store: %w", err)
	}
	return passcode.New(store), store.Close, nil
}

var pinCmd = &cobra.Command{
	Use:   "pin",
	Short: "Administer the stored PIN directly",
}

var pinSetCmd = &cobra.Command{
	Use:   "set <pin>",
	Short: "Set the PIN",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pin := passcode.NormalizePIN(args[0])
		if err := passcode.ValidatePIN(pin); err != nil {
			return err
		}

		vault, closeStore, err := openVault()
		if err != nil {
			return err
		}
		defer closeStore()

		var opts []passcode.SetOption
		if pinOwner != "" {
			opts = append(opts, passcode.BoundTo(pinOwner))
		}
		if err := vault.SetPasscode(cmd.Context(), pin, opts...); err != nil {
			return err
		}
		fmt.Println("PIN set")
		return nil
	},
}

var pinVerifyCmd = &cobra.Command{
	Use:   "verify <pin>",
	Short: "Verify a candidate PIN",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vault, closeStore, err := openVault()
		if err != nil {
			return err
		}
		defer closeStore()

		res, err := vault.VerifyPasscode(cmd.Context(), passcode.NormalizePIN(args[0]))
		if err != nil {
			return err
		}
		if res.Success {
			fmt.Println("OK")
			return nil
		}
		if res.RemainingCooldown > 0 {
			return fmt.Errorf("locked out, retry in %s", res.RemainingCooldown.Round(time.Second))
		}
		return fmt.Errorf("wrong PIN")
	},
}

var pinClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored PIN",
	RunE: func(cmd *cobra.Command, args []string) error {
		vault, closeStore, err := openVault()
		if err != nil {
			return err
		}
		defer closeStore()

		if err := vault.ClearPasscode(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("PIN cleared")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pinCmd)
	pinCmd.AddCommand(pinSetCmd, pinVerifyCmd, pinClearCmd)
	pinCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory for persistent data (overrides GATEKEEPER_DATA_DIR)")
	pinSetCmd.Flags().StringVar(&pinOwner, "owner", "", "User identifier to bind the PIN to")
}
