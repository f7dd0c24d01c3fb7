package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/guildgate/guildgate/pkg/classify"
)

func newClassifyCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "classify <query>",
		Short: "Classify a query into an auto-search mode",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := classify.Classify(strings.Join(args, " "))

			if asJSON {
				out, err := json.MarshalIndent(res, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}

			fmt.Printf("mode: %s\n", res.Mode)
			switch res.Mode {
			case classify.ModeScrape:
				fmt.Printf("url: %s\n", res.Params.URL)
			case classify.ModeScrapeMulti:
				fmt.Printf("urls: %s\n", strings.Join(res.Params.URLs, ", "))
			case classify.ModeCrawl:
				fmt.Printf("url: %s\ndepth: %d\nlimit: %d\n", res.Params.URL, res.Params.MaxDepth, res.Params.Limit)
			case classify.ModeDeepResearch:
				fmt.Printf("query: %s\n", res.Params.Query)
			default:
				fmt.Printf("query: %s\nlimit: %d\n", res.Params.Query, res.Params.Limit)
			}
			for _, f := range res.Followups {
				fmt.Printf("followup: %s\n", f)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}
