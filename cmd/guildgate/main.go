package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/guildgate/guildgate/pkg/config"
	"github.com/guildgate/guildgate/pkg/store"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "guildgate",
		Short:   "Guildgate — admission control for guild-scoped AI requests",
		Version: version,
	}

	root.AddCommand(
		newClassifyCmd(),
		newAutosearchCmd(),
		newBudgetCmd(),
		newCacheCmd(),
		newLimitsCmd(),
		newStatsCmd(),
		newAuditCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, tolerating a missing file by falling
// back to defaults so CLI inspection works on a fresh checkout.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newLogger() zerolog.Logger {
	env, err := config.LoadEnv()
	if err != nil {
		env.LogLevel = "info"
	}
	lvl, err := zerolog.ParseLevel(env.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}

func openStore(cfg *config.Config) (*store.Store, error) {
	return store.Open(cfg.StorePath, store.Options{Logger: newLogger()})
}
