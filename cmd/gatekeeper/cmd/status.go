package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/finsync/gatekeeper/internal/config"
	"github.com/finsync/gatekeeper/passcode"
	"github.com/finsync/gatekeeper/storage"
	bboltstorage "github.com/finsync/gatekeeper/storage/bbolt"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the stored vault state",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		store, err := bboltstorage.NewStoreFromFile(filepath.Join(cfg.DataDir, "gatekeeper.db"), nil)
		if err != nil {
			return fmt.Errorf("opening secure store: %w", err)
		}
		defer store.Close()

		vault := passcode.New(store)
		ctx := cmd.Context()

		set, err := vault.IsSet(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("pin set:    %v\n", set)
		if set {
			length, err := vault.Length(ctx)
			if err != nil {
				return err
			}
			owner, err := vault.Owner(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("pin length: %d\n", length)
			if owner != "" {
				fmt.Printf("pin owner:  %s\n", owner)
			}
		}

		if id, err := store.Get("device.id"); err == nil {
			fmt.Printf("device id:  %s\n", id)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory for persistent data (overrides GATEKEEPER_DATA_DIR)")
}
