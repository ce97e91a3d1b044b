package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var standupCmd = &cobra.Command{
	Use:   "standup",
	Short: "Run the daily standup for the planning agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := openApp(ctx, appOptions{needBackend: true})
		if err != nil {
			return err
		}
		defer a.close()
		a.logEvents()

		out, err := a.orch.RunDailyStandup(ctx)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}
