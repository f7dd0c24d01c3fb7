package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/guildgate/guildgate/pkg/models"
)

func newLimitsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "limits",
		Short: "Inspect and set per-guild rate limits",
	}

	var guildID string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective rate limits for a guild",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			var rl models.RateLimitSettings
			st.View(guildID, func(rec *models.GuildRecord) {
				rl = rec.RateLimits
			})

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "LIMIT\tEFFECTIVE\tSOURCE")
			row := func(name string, def int, override *int) {
				if override != nil {
					fmt.Fprintf(w, "%s\t%d\tguild\n", name, *override)
					return
				}
				fmt.Fprintf(w, "%s\t%d\tdefault\n", name, def)
			}
			row("cooldown_sec", cfg.RateLimits.CooldownSec, rl.CooldownSec)
			row("per_user_per_min", cfg.RateLimits.PerUserPerMin, rl.PerUserPerMin)
			row("per_channel_per_min", cfg.RateLimits.PerChannelPerMin, rl.PerChannelPerMin)
			row("tools_per_user_per_min", cfg.RateLimits.ToolsPerUserPerMin, rl.ToolsPerUserPerMin)
			row("tools_per_guild_per_min", cfg.RateLimits.ToolsPerGuildPerMin, rl.ToolsPerGuildPerMin)
			if rl.PerUserDailyTokens != nil {
				fmt.Fprintf(w, "per_user_daily_tokens\t%d\tguild\n", *rl.PerUserDailyTokens)
			} else {
				fmt.Fprintf(w, "per_user_daily_tokens\t%d\tdefault\n", cfg.RateLimits.PerUserDailyTokens)
			}

			cooldowns := make(map[string]int, len(cfg.RateLimits.ToolCooldowns))
			for tool, secs := range cfg.RateLimits.ToolCooldowns {
				cooldowns[tool] = secs
			}
			for tool, secs := range rl.ToolCooldowns {
				cooldowns[tool] = secs
			}
			tools := make([]string, 0, len(cooldowns))
			for tool := range cooldowns {
				tools = append(tools, tool)
			}
			sort.Strings(tools)
			for _, tool := range tools {
				src := "default"
				if _, ok := rl.ToolCooldowns[tool]; ok {
					src = "guild"
				}
				fmt.Fprintf(w, "tool_cooldown[%s]\t%d\t%s\n", tool, cooldowns[tool], src)
			}
			return w.Flush()
		},
	}
	showCmd.Flags().StringVar(&guildID, "guild", "", "guild ID")
	_ = showCmd.MarkFlagRequired("guild")

	var (
		setGuild      string
		cooldown      int
		perUser       int
		perChannel    int
		toolsPerUser  int
		toolsPerGuild int
		dailyTokens   int64
		toolCooldowns []string
	)
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Set per-guild rate-limit overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			err = st.Update(setGuild, func(rec *models.GuildRecord) error {
				rl := &rec.RateLimits
				if cmd.Flags().Changed("cooldown") {
					rl.CooldownSec = &cooldown
				}
				if cmd.Flags().Changed("per-user") {
					rl.PerUserPerMin = &perUser
				}
				if cmd.Flags().Changed("per-channel") {
					rl.PerChannelPerMin = &perChannel
				}
				if cmd.Flags().Changed("tools-per-user") {
					rl.ToolsPerUserPerMin = &toolsPerUser
				}
				if cmd.Flags().Changed("tools-per-guild") {
					rl.ToolsPerGuildPerMin = &toolsPerGuild
				}
				if cmd.Flags().Changed("daily-tokens") {
					rl.PerUserDailyTokens = &dailyTokens
				}
				for _, arg := range toolCooldowns {
					tool, val, ok := strings.Cut(arg, "=")
					if !ok {
						return fmt.Errorf("invalid --tool-cooldown %q, want tool=seconds", arg)
					}
					if !models.IsKnownTool(tool) {
						return fmt.Errorf("unknown tool %q (known: %s)", tool, strings.Join(models.KnownTools, ", "))
					}
					secs, err := strconv.Atoi(val)
					if err != nil || secs < 0 {
						return fmt.Errorf("invalid cooldown seconds in %q", arg)
					}
					if rl.ToolCooldowns == nil {
						rl.ToolCooldowns = make(map[string]int)
					}
					rl.ToolCooldowns[tool] = secs
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Println("Rate-limit overrides updated.")
			return nil
		},
	}
	setCmd.Flags().StringVar(&setGuild, "guild", "", "guild ID")
	_ = setCmd.MarkFlagRequired("guild")
	setCmd.Flags().IntVar(&cooldown, "cooldown", 0, "per-user cooldown seconds for chat")
	setCmd.Flags().IntVar(&perUser, "per-user", 0, "chat requests per user per minute")
	setCmd.Flags().IntVar(&perChannel, "per-channel", 0, "chat requests per channel per minute")
	setCmd.Flags().IntVar(&toolsPerUser, "tools-per-user", 0, "tool calls per user per minute")
	setCmd.Flags().IntVar(&toolsPerGuild, "tools-per-guild", 0, "tool calls per guild per minute")
	setCmd.Flags().Int64Var(&dailyTokens, "daily-tokens", 0, "per-user daily token cap (0 disables)")
	setCmd.Flags().StringArrayVar(&toolCooldowns, "tool-cooldown", nil, "per-tool cooldown as tool=seconds (repeatable)")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "guildgate.yaml", "path to config file")
	cmd.AddCommand(showCmd, setCmd)
	return cmd
}
