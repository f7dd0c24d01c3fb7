package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/guildgate/guildgate/pkg/cache"
)

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the result cache configuration",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show configured cache bounds",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			fmt.Printf("max entries: %d\n", cfg.Cache.MaxEntries)
			fmt.Printf("default TTL: %dh\n", cfg.Cache.TTLHours)
			fmt.Println("The cache is in-process; hit counters live in the running gateway.")
			return nil
		},
	}

	var (
		guildID  string
		provider string
		extras   []string
	)
	keyCmd := &cobra.Command{
		Use:   "key <query>",
		Short: "Compute the deterministic cache key for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			extra := make(map[string]string, len(extras))
			for _, arg := range extras {
				k, v, ok := strings.Cut(arg, "=")
				if !ok {
					return fmt.Errorf("invalid --extra %q, want key=value", arg)
				}
				extra[k] = v
			}
			fmt.Println(cache.Key(guildID, provider, strings.Join(args, " "), extra))
			return nil
		},
	}
	keyCmd.Flags().StringVar(&guildID, "guild", "", "guild ID")
	keyCmd.Flags().StringVar(&provider, "provider", "search", "provider namespace")
	keyCmd.Flags().StringArrayVar(&extras, "extra", nil, "extra key=value dimensions (repeatable)")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "guildgate.yaml", "path to config file")
	cmd.AddCommand(statsCmd, keyCmd)
	return cmd
}
