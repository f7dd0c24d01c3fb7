package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/guildgate/guildgate/pkg/models"
)

func newStatsCmd() *cobra.Command {
	var (
		configPath string
		guildID    string
		topN       int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show guild usage statistics",
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

			// Guild overview when no guild is selected.
			if guildID == "" {
				ids := st.GuildIDs()
				if len(ids) == 0 {
					fmt.Println("No guilds recorded yet.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "GUILD\tCHATS\tTOOLS\tTOKENS\tCOST USD")
				for _, id := range ids {
					st.View(id, func(rec *models.GuildRecord) {
						fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.4f\n",
							id, rec.Usage.ChatCount, rec.Usage.ToolsTotal, rec.Usage.Tokens.Total, rec.Usage.CostUSD)
					})
				}
				return w.Flush()
			}

			var u models.GuildUsage
			st.View(guildID, func(rec *models.GuildRecord) {
				u = rec.Usage
			})

			lastUsed := "-"
			if u.LastUsed > 0 {
				lastUsed = time.Unix(u.LastUsed, 0).UTC().Format("2006-01-02T15:04:05Z")
			}
			fmt.Printf("Guild %s\n", guildID)
			fmt.Printf("  chats: %d (last used %s)\n", u.ChatCount, lastUsed)
			fmt.Printf("  tokens: %d prompt / %d completion / %d total\n",
				u.Tokens.Prompt, u.Tokens.Completion, u.Tokens.Total)
			fmt.Printf("  cost: $%.4f\n", u.CostUSD)
			fmt.Printf("  tools: %d calls\n", u.ToolsTotal)
			fmt.Printf("  autosearch: %d classified\n", u.Autosearch.Classified)
			if len(u.Autosearch.Executed) > 0 {
				modes := make([]string, 0, len(u.Autosearch.Executed))
				for m := range u.Autosearch.Executed {
					modes = append(modes, m)
				}
				sort.Strings(modes)
				for _, m := range modes {
					fmt.Printf("    %s: %d executed\n", m, u.Autosearch.Executed[m])
				}
			}

			if len(u.Tools) > 0 {
				fmt.Println()
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TOOL\tCOUNT\tOK\tERR\tAVG MS\tLAST MS")
				names := make([]string, 0, len(u.Tools))
				for name := range u.Tools {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					t := u.Tools[name]
					avg := 0.0
					if t.Latency.Count > 0 {
						avg = float64(t.Latency.TotalMs) / float64(t.Latency.Count)
					}
					fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.1f\t%d\n",
						name, t.Count, t.SuccessCount, t.ErrorCount, avg, t.Latency.LastMs)
				}
				if err := w.Flush(); err != nil {
					return err
				}
			}

			if len(u.PerUser) > 0 {
				type userRow struct {
					id    string
					usage *models.UserUsage
				}
				rows := make([]userRow, 0, len(u.PerUser))
				for id, uu := range u.PerUser {
					rows = append(rows, userRow{id, uu})
				}
				sort.Slice(rows, func(i, j int) bool {
					if rows[i].usage.Total != rows[j].usage.Total {
						return rows[i].usage.Total > rows[j].usage.Total
					}
					return rows[i].id < rows[j].id
				})
				if len(rows) > topN {
					rows = rows[:topN]
				}

				fmt.Println()
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "USER\tREQUESTS\tTOKENS\tTOKENS TODAY")
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%d\t%d\t%d\n",
						r.id, r.usage.Total, r.usage.TokensTotal, r.usage.TokensDayTotal)
				}
				return w.Flush()
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "guildgate.yaml", "path to config file")
	cmd.Flags().StringVar(&guildID, "guild", "", "guild ID (omit for an overview of all guilds)")
	cmd.Flags().IntVar(&topN, "top", 5, "number of top users to list")
	return cmd
}
