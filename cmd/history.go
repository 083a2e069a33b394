package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/maastricht-university/edmo-engagement/store"
)

var historyOpts struct {
	subject string
	course  string
	limit   int
}

var historyCmd = &cobra.Command{
	Use:   "history --subject ID [--course ID]",
	Short: "Show stored engagement ticks and live state for a student",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := context.Background()
		st, closer, err := store.Open(ctx, conf.Store)
		if err != nil {
			return err
		}
		defer closer.Close()
		return printHistory(ctx, os.Stdout, st, historyOpts.subject, historyOpts.course, historyOpts.limit)
	},
}

func init() {
	f := historyCmd.Flags()
	f.StringVarP(&historyOpts.subject, "subject", "s", "", "subject (student) ID")
	f.StringVarP(&historyOpts.course, "course", "c", "", "course ID; prints the live engagement state")
	f.IntVarP(&historyOpts.limit, "limit", "n", 20, "most recent ticks to show; 0 for all")
	_ = historyCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(historyCmd)
}

func printHistory(ctx context.Context, w io.Writer, r store.Reader, subject, course string, limit int) error {
	ticks, err := r.Ticks(ctx, subject, limit)
	if err != nil {
		return err
	}
	for _, t := range ticks {
		fmt.Fprintf(w, "%s\t%s\tfocus=%.3f\tfrustration=%.3f\n", t.Timestamp.Format(time.RFC3339), t.CourseID, t.FocusScore, t.FrustrationScore)
	}
	if course == "" {
		return nil
	}
	live, ok, err := r.LiveState(ctx, subject, course)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(w, "live %s/%s: none\n", subject, course)
		return nil
	}
	fmt.Fprintf(w, "live %s/%s: focus=%.3f frustration=%.3f monitoring=%t updated=%s\n",
		subject, course, live.LatestFocusScore, live.FrustrationLevel, live.IsMonitoring, live.LastUpdated.Format(time.RFC3339))
	return nil
}
