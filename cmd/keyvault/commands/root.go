package commands

import (
	"github.com/spf13/cobra"

	"keyvault/internal/app"
)

var (
	configPath string
	storePath  string
	passphrase string
	logLevel   string

	cfg  app.Config
	wire *app.Wire
)

func Execute() error {
	root := &cobra.Command{
		Use:           "keyvault",
		Short:         "Encrypted key-material and session-state store",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = app.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if storePath != "" {
				cfg.StorePath = storePath
			}
			if passphrase != "" {
				cfg.Passphrase = passphrase
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if wire != nil {
				wire.Close()
			}
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (YAML)")
	root.PersistentFlags().StringVar(&storePath, "store", "", "store database path (default ~/.keyvault/keys.db)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the account")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		initCmd(),
		statusCmd(),
		sessionsCmd(),
		devicesCmd(),
		requestsCmd(),
		auditCmd(),
		backupCmd(),
		policyCmd(),
		wipeCmd(),
	)
	return root.Execute()
}

// ensureWire opens the store on first use and caches the graph for the rest
// of the invocation.
func ensureWire() (*app.Wire, error) {
	if wire != nil {
		return wire, nil
	}
	w, err := app.NewWire(cfg)
	if err != nil {
		return nil, err
	}
	wire = w
	return wire, nil
}
