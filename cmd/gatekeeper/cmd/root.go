package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gatekeeper",
	Short: "Gatekeeper is a device PIN vault and app-lock agent",
	Long: `Gatekeeper manages a locally stored transaction PIN (salted iterative
hashing with a failure-count lockout) and the session gate deciding which
screen a host UI may show. The agent serves a loopback control API for the
UI shell; the pin and status commands administer the store directly.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
