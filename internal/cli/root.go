// Package cli implements the ebbtide command line: the serve daemon plus
// client subcommands that drive a running daemon over its HTTP API.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ebbtide-net/ebbtide/internal/daemon"
)

const version = "0.3.1"

var rootCmd = &cobra.Command{
	Use:   "ebbtide",
	Short: "A focus timer that follows you across devices",
	Long: `Ebbtide runs a Pomodoro-style focus/relax timer whose state lives in a
shared per-user document store. Every device and tab observing the daemon
mirrors the same logical timer; analytics (a two-day interval history and a
best-hours-of-day histogram) are derived from play/pause transitions.`,
}

func init() {
	rootCmd.PersistentFlags().String("config", daemon.DefaultPath(), "Path to the config file")
	rootCmd.PersistentFlags().String("addr", "", "Daemon address for client commands (default from config)")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ebbtide version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "ebbtide %s\n", version)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the --config flag and loads the file.
func loadConfig(cmd *cobra.Command) (daemon.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return daemon.Load(path)
}

// apiBase resolves the daemon base URL for client commands.
func apiBase(cmd *cobra.Command) (string, error) {
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		return "http://" + addr, nil
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	return "http://" + cfg.Addr(), nil
}
