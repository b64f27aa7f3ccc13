package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	if err := RootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	listen     string
	logLevel   string
}

// RootCommand creates and returns the root command. With no subcommand it
// runs the tray app.
func RootCommand() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:           "consult-recorder",
		Short:         "Record and analyze medical consultations",
		Version:       Version + " (" + Commit + ")",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTray(cmd, flags)
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to config file (default: platform config dir)")
	rootCmd.PersistentFlags().StringVar(&flags.listen, "listen", "", "HTTP listen address, overrides server.listen")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(
		trayCommand(flags),
		serveCommand(flags),
		analyzeCommand(flags),
		devicesCommand(flags),
		historyCommand(flags),
	)

	return rootCmd
}
