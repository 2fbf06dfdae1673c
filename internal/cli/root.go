// Package cli implements the researchchat commands.
package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"researchchat/internal/api/memory"
	"researchchat/internal/config"
	"researchchat/internal/domain"
	"researchchat/internal/logging"
	"researchchat/internal/service"
	"researchchat/internal/tui"
)

var (
	cfgPath    string
	offline    bool
	verbose    bool
	formatFlag string

	cfg       *config.AppConfig
	logger    *zap.Logger
	assistant *service.Assistant
)

// RootCmd is the top-level command. Without a subcommand it starts the
// interactive chat.
var RootCmd = &cobra.Command{
	Use:           "researchchat",
	Short:         "Chat with your research library",
	Long:          "Pick documents, papers and repositories from your library, index them and ask questions about them.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		if formatFlag != "text" && formatFlag != "json" {
			return fmt.Errorf("unknown format %q (want text or json)", formatFlag)
		}

		var err error
		if cfgPath == "" {
			cfg, _, err = config.LoadDefault()
		} else {
			cfg, err = config.Load(cfgPath)
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// The interactive UI owns the terminal, so it never logs to the console.
		interactive := cmd == cmd.Root()
		level := cfg.Logging.Level
		if verbose && !interactive {
			level = "debug"
		}
		logger, err = logging.New(logging.Options{
			Level:   level,
			File:    cfg.Logging.File,
			Console: !interactive && (verbose || cfg.Logging.Console),
		})
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		var backend domain.Backend
		if offline {
			backend = memory.NewWithLibrary(memory.DemoLibrary())
			logger.Info("running against the offline demo backend")
		} else {
			backend = service.NewBackend(cfg, logger)
		}
		assistant = service.NewAssistant(backend, cfg, logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		p := tea.NewProgram(tui.New(assistant), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		_, err := p.Run()
		return err
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Config file (default: ./config.yaml or ~/.config/researchchat/config.yaml)")
	RootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Use the built-in demo backend instead of the server")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "text", "Output format: text or json")
}
