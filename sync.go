package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newSyncCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Probe missing durations and compare the video directory with the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, err := a.openRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			report, err := a.newLibrary(repo).Refresh(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				enc.SetEscapeHTML(false)
				return enc.Encode(report)
			}

			fmt.Printf("valid:  %d\n", len(report.Valid))
			fmt.Printf("ghosts: %d\n", len(report.Ghosts))
			for id := range report.Ghosts {
				fmt.Printf("  - %s\n", id)
			}
			fmt.Printf("new:    %d\n", len(report.New))
			for _, f := range report.New {
				fmt.Printf("  + %s (%s)\n", f.File, f.Added.Format("2006-01-02"))
			}
			fmt.Printf("total:  %s\n", report.TotalDuration)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
