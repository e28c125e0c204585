package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sunnyswag/RTCStartupDemo/internal/logging"
	"github.com/sunnyswag/RTCStartupDemo/internal/ui"
	"github.com/sunnyswag/RTCStartupDemo/internal/version"
)

var (
	flagConfigFile string
	flagLogLevel   string
	flagLogFormat  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rtcdemo",
	Short: "One-to-one WebRTC calls negotiated through a room rendezvous server",
	Long: `rtcdemo joins a named room on a rendezvous server, discovers the other
members and negotiates a direct WebRTC call with one of them. The same binary
runs the rendezvous server.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}

// initLogging installs the process logger; fallback applies when neither
// --log-level nor LOG_LEVEL is set.
func initLogging(fallback slog.Level) *slog.Logger {
	return logging.Init(logging.Options{
		Level:    flagLogLevel,
		Format:   flagLogFormat,
		Fallback: fallback,
	})
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "YAML config file (env RTCDEMO_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "text or json")
}
