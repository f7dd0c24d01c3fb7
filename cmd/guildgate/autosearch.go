package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/guildgate/guildgate/pkg/governor"
	"github.com/guildgate/guildgate/pkg/models"
)

func newAutosearchCmd() *cobra.Command {
	var (
		configPath string
		guildID    string
		channelID  string
		userID     string
		execute    bool
	)

	cmd := &cobra.Command{
		Use:   "autosearch <query>",
		Short: "Run a query through admission, classification, and the configured provider",
		Args:  cobra.MinimumNArgs(1),
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

			gov, err := governor.NewFromConfig(cfg, st, newLogger())
			if err != nil {
				return err
			}
			defer func() { _ = gov.Close() }()

			sub := models.Subject{GuildID: guildID, ChannelID: channelID, UserID: userID}
			out, err := gov.Autosearch(context.Background(), sub, strings.Join(args, " "), execute)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "guildgate.yaml", "path to config file")
	cmd.Flags().StringVar(&guildID, "guild", "cli", "guild ID")
	cmd.Flags().StringVar(&channelID, "channel", "cli", "channel ID")
	cmd.Flags().StringVar(&userID, "user", "cli", "user ID")
	cmd.Flags().BoolVar(&execute, "execute", false, "execute the classified mode instead of printing the plan")
	return cmd
}
