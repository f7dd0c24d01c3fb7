package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/guildgate/guildgate/pkg/audit"
)

func newAuditCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the gate decision audit log",
	}

	var (
		guildID string
		limit   int
	)
	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "Show recent gate decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			log, err := audit.New(cfg.Audit.DBPath, cfg.Audit.RetentionDays)
			if err != nil {
				return err
			}
			defer func() { _ = log.Close() }()

			entries, err := log.Recent(context.Background(), guildID, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No audit entries found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tUSER\tTOOL\tMODE\tALLOWED\tMS\tREASON")
			for _, e := range entries {
				mode := e.Mode
				if mode == "" {
					mode = "-"
				}
				reason := e.Reason
				if reason == "" {
					reason = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%d\t%s\n",
					e.CreatedAt.Format("2006-01-02T15:04:05"), e.UserID, e.Tool, mode, e.Allowed, e.LatencyMs, reason)
			}
			return w.Flush()
		},
	}
	recentCmd.Flags().StringVar(&guildID, "guild", "", "guild ID")
	_ = recentCmd.MarkFlagRequired("guild")
	recentCmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to show")

	var toolsGuild string
	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "Show per-tool decision aggregates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			log, err := audit.New(cfg.Audit.DBPath, cfg.Audit.RetentionDays)
			if err != nil {
				return err
			}
			defer func() { _ = log.Close() }()

			rows, err := log.ToolSummary(context.Background(), toolsGuild)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Println("No audit entries found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TOOL\tCOUNT\tALLOWED\tOK\tAVG MS")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.1f\n",
					r.Tool, r.Count, r.Allowed, r.Succeeded, r.AvgLatencyMs)
			}
			return w.Flush()
		},
	}
	toolsCmd.Flags().StringVar(&toolsGuild, "guild", "", "guild ID")
	_ = toolsCmd.MarkFlagRequired("guild")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "guildgate.yaml", "path to config file")
	cmd.AddCommand(recentCmd, toolsCmd)
	return cmd
}
