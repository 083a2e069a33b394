package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maastricht-university/edmo-engagement/config"
	"github.com/maastricht-university/edmo-engagement/engagement"
	"github.com/maastricht-university/edmo-engagement/signals"
	"github.com/maastricht-university/edmo-engagement/store"
)

var monitorOpts struct {
	subjects []string
	course   string
	duration time.Duration
	period   time.Duration
}

var monitorCmd = &cobra.Command{
	Use:   "monitor --subject ID [--subject ID...]",
	Short: "Sample engagement signals for one or more students",
	Long: `Start a monitoring session per subject. Each session samples the signal
sources every period, stores a scored tick and, when a course is given,
keeps the enrollment's live engagement state current. Sessions end after
the duration budget or on SIGINT/SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	f := monitorCmd.Flags()
	f.StringSliceVarP(&monitorOpts.subjects, "subject", "s", nil, "subject (student) ID, repeatable")
	f.StringVarP(&monitorOpts.course, "course", "c", "", "course ID for the live engagement state")
	f.DurationVar(&monitorOpts.duration, "duration", 0, "session budget (default monitor.duration)")
	f.DurationVar(&monitorOpts.period, "period", 0, "sampling period (default monitor.period)")
	_ = monitorCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(monitorCmd)
}

func monitorConfig(c config.Monitor, outputs string) engagement.Config {
	mc := engagement.Config{
		Period:        config.DurSeconds(c.Period),
		Duration:      config.DurSeconds(c.Duration),
		SourceTimeout: time.Duration(c.SourceTimeout) * time.Millisecond,
	}
	if c.Archive {
		mc.ArchiveDir = outputs
	}
	if monitorOpts.duration > 0 {
		mc.Duration = monitorOpts.duration
	}
	if monitorOpts.period > 0 {
		mc.Period = monitorOpts.period
	}
	return mc
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closer, err := store.Open(ctx, conf.Store)
	if err != nil {
		return err
	}
	defer closer.Close()

	pub, err := publisher(ctx)
	if err != nil {
		return err
	}
	mc := monitorConfig(conf.Monitor, conf.Paths.Outputs)
	if pub != nil && mc.ArchiveDir != "" {
		mc.Archived = publishArchive(pub)
	}

	seed := conf.Monitor.Seed
	sources := func(string) []signals.Source {
		if seed == 0 {
			return signals.SyntheticSet(0)
		}
		seed++
		return signals.SyntheticSet(seed)
	}
	m := engagement.NewMonitor(mc, st, sources, logrus.StandardLogger())

	for _, id := range monitorOpts.subjects {
		if err := m.Start(id, monitorOpts.course); err != nil {
			m.Close()
			return fmt.Errorf("start %q: %w", id, err)
		}
	}

	var g errgroup.Group
	for _, id := range monitorOpts.subjects {
		g.Go(func() error {
			m.Wait(id)
			return nil
		})
	}
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logrus.Info("interrupted; stopping sessions")
		m.Close()
	}

	for _, id := range monitorOpts.subjects {
		ticks := m.All(id)
		last, ok := m.Latest(id)
		if !ok {
			fmt.Fprintf(os.Stdout, "%s\tticks=0\n", id)
			continue
		}
		fmt.Fprintf(os.Stdout, "%s\tticks=%d\tfocus=%.3f\tfrustration=%.3f", id, len(ticks), last.FocusScore, last.FrustrationScore)
		if monitorOpts.course != "" {
			if live, found, err := st.LiveState(context.Background(), id, monitorOpts.course); err == nil && found {
				fmt.Fprintf(os.Stdout, "\tmonitoring=%t", live.IsMonitoring)
			}
		}
		fmt.Fprintln(os.Stdout)
	}
	return nil
}

type uploader interface {
	Upload(ctx context.Context, kind, local string) (string, error)
}

// publishArchive uploads each finished session archive under
// sessions/<subject>. Failures are logged; the local archive stays.
func publishArchive(u uploader) func(subject, path string) {
	return func(subject, path string) {
		// Archives are written after the signal context may be done.
		key, err := u.Upload(context.Background(), "sessions/"+subject, path)
		if err != nil {
			logrus.WithError(err).WithField("subject", subject).Warn("archive publish failed")
			return
		}
		logrus.WithFields(logrus.Fields{"subject": subject, "key": key}).Info("session archive published")
	}
}
