package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/listing-scraper/internal/entity"
)

var (
	scrapeTerms      *string
	scrapeLocalities *string
)

func init() {
	scrapeTerms = scrapeCmd.Flags().String("terms", "", "Comma-separated search terms.")
	scrapeLocalities = scrapeCmd.Flags().String("localities", "", "Comma-separated localities.")
	_ = scrapeCmd.MarkFlagRequired("terms")
	_ = scrapeCmd.MarkFlagRequired("localities")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape --terms <a,b> --localities <x,y>",
	Short: "Searches every term in every locality, one session at a time, and prints a summary.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		tasks, err := a.manager.Submit(ctx, *scrapeTerms, *scrapeLocalities)
		if err != nil {
			return err
		}

		var (
			statuses []*entity.SessionStatus
			runErr   error
		)
		for i := range tasks {
			s := spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
			s.Suffix = fmt.Sprintf(" search %d/%d", i+1, len(tasks))
			s.Start()
			status, err := a.manager.ProcessNext(ctx)
			s.Stop()

			if status != nil {
				statuses = append(statuses, status)
			}
			if err != nil {
				runErr = err
				break
			}
			if status == nil {
				break
			}
		}

		printSummary(cmd, statuses)

		if runErr != nil {
			return runErr
		}
		failed := 0
		for _, status := range statuses {
			if status.Status != entity.StatusCompleted {
				failed++
			}
		}
		if failed > 0 {
			log.Warn("some searches did not complete", zap.Int("failed", failed), zap.Int("total", len(statuses)))
			return fmt.Errorf("%d of %d searches did not complete", failed, len(statuses))
		}
		return nil
	},
}

func printSummary(cmd *cobra.Command, statuses []*entity.SessionStatus) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Term", "Locality", "Status", "Pages", "Visited", "Written", "Duplicates", "Invalid", "File"})
	for _, s := range statuses {
		t.AppendRow(table.Row{
			s.Term,
			s.Locality,
			s.Status,
			s.Stats.ListingPages,
			s.Stats.LinksVisited,
			s.Stats.RecordsWritten,
			s.Stats.Duplicates,
			s.Stats.Invalid,
			s.OutputFile,
		})
		if s.Error != "" {
			t.AppendRow(table.Row{"", "", "error: " + s.Error})
		}
	}
	t.Render()
}
