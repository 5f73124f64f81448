// Package cmd wires the standalone agent's command-line surface: a
// cobra root dispatching to one file per subcommand, covering the
// single-tenant set this repo supports: chat, run, doctor, migrate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X github.com/localclaw/claw/cmd.Version=v1.0.0".
var Version = "dev"

var (
	cfgFile      string
	workspaceDir string
	dataDir      string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "claw",
	Short: "claw — local-first, security-oriented AI assistant",
	Long: "claw drives a large-language-model provider in a tool-calling loop, executes " +
		"sandboxed tools against the local machine under a configurable autonomy policy, " +
		"and runs scheduled routines in the background.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json or $CLAW_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&workspaceDir, "workspace", "", "workspace directory tools are sandboxed to (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory for the memory/routines databases and identity files (default: ~/.claw)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(migrateCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("claw %s\n", Version)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("CLAW_CONFIG"); v != "" {
		return v
	}
	return "config.json"
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
