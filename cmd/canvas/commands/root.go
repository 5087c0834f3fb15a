package commands

import (
	"context"
	"os"

	"github.com/dkeye/Canvas/internal/config"
	"github.com/dkeye/Canvas/internal/domain"
	"github.com/dkeye/Canvas/internal/printer"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	relayURL   string
	authorFlag string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "canvas",
	Short: "Canvas - shared whiteboard participant",
	Long: `Canvas joins a shared whiteboard relay as a participant.

Strokes typed on stdin are broadcast to everyone else on the relay, recognized
words show up as labels, and a directory of images can be streamed as a screen
share.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			cfg, err = config.LoadFile(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return printer.Error("invalid configuration", err.Error(), "check the file passed with --config")
		}
		zerolog.SetGlobalLevel(cfg.Level())
		if relayURL == "" {
			relayURL = cfg.Client.RelayURL
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// ExecuteContext runs the root command until ctx ends.
func ExecuteContext(ctx context.Context) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.ExecuteContext(ctx)
}

func SetVersion(v string) {
	rootCmd.Version = v
}

// author returns --author or a fresh id.
func author() (domain.AuthorID, error) {
	if authorFlag == "" {
		return domain.NewAuthorID(), nil
	}
	id, err := domain.ParseAuthorID(authorFlag)
	if err != nil {
		return "", printer.Error("invalid author id", err.Error(), "use at most 64 characters")
	}
	return id, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default config/config.<CONFIG_ENV>.yaml)")
	rootCmd.PersistentFlags().StringVarP(&relayURL, "relay", "r", "", "relay websocket url (default from config)")
	rootCmd.PersistentFlags().StringVarP(&authorFlag, "author", "a", "", "author id (generated if omitted)")
}
