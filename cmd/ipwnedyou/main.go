package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shii9/ipwnedyou/internal/config"
	"github.com/shii9/ipwnedyou/internal/utils"
)

const (
	version = "1.0.0"
	banner  = `═══════════════════════════════════════════════════════
    I PWNED YOU - OSINT THREAT DETECTION PLATFORM
═══════════════════════════════════════════════════════
`
)

var (
	cfgFile string
	cfg     *config.Config
	log     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ipwnedyou",
	Short: "Offline-friendly OSINT platform for domains, IPs and images",
	Long: `I Pwned You collects open-source intelligence about a domain, an IPv4
address or an uploaded image and writes a plain-text report for each scan.
Run "serve" for the HTTP API or "scan" for one-off scans from the shell.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return errors.Wrap(err, "error loading config")
		}
		log, err = utils.NewLogger(cfg.LogLevel, cfg.LogFile)
		if err != nil {
			return errors.Wrap(err, "error initializing logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(banner)
		fmt.Printf("Version:      %s\n", version)
		fmt.Printf("Go Version:   %s\n", runtime.Version())
		fmt.Printf("OS/Arch:      %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration to path (default ./ipwnedyou.yaml)",
	Args:  cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "ipwnedyou.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Printf("[+] Default configuration written to %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./ipwnedyou.yaml or ~/.ipwnedyou/ipwnedyou.yaml)")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(versionCmd, configCmd, serveCmd, scanCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
