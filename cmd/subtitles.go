package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maastricht-university/edmo-engagement/clients"
	"github.com/maastricht-university/edmo-engagement/media"
	"github.com/maastricht-university/edmo-engagement/subtitles"
)

var subtitleOpts struct {
	out    string
	format string
	jobs   int
}

var subtitlesCmd = &cobra.Command{
	Use:   "subtitles VIDEO...",
	Short: "Generate caption tracks for lecture videos",
	Long: `Extract each video's audio, transcribe it with the configured recognizer
and write a WebVTT (or SRT) track to the output directory. Videos whose
speech cannot be recognized get a placeholder track.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubtitles,
}

func init() {
	f := subtitlesCmd.Flags()
	f.StringVarP(&subtitleOpts.out, "out", "o", "", "output directory (default paths.outputs)")
	f.StringVar(&subtitleOpts.format, "format", "", "vtt or srt (default subtitles.format)")
	f.IntVarP(&subtitleOpts.jobs, "jobs", "j", 2, "videos processed concurrently")
	rootCmd.AddCommand(subtitlesCmd)
}

func subtitlePipeline() *subtitles.Pipeline {
	log := logrus.StandardLogger()
	format := subtitles.Format(conf.Subtitles.Format)
	if subtitleOpts.format != "" {
		format = subtitles.Format(subtitleOpts.format)
	}
	return &subtitles.Pipeline{
		Models: &subtitles.ModelCache{
			Dir:     conf.Paths.Models,
			BaseURL: conf.Services.Models.URL,
			HTTP:    clients.NewHTTP().WithTimeout(0),
			Log:     log,
		},
		Model:         conf.Subtitles.Model,
		Audio:         media.NewTranscoder(conf.Media, conf.Audio, log),
		NewRecognizer: subtitles.VoskServer(conf.Services.ASR.URL),
		SampleRate:    conf.Audio.SampleRate,
		ChunkFrames:   conf.Subtitles.ChunkFrames,
		MaxDuration:   conf.Subtitles.MaxDuration,
		MaxWords:      conf.Subtitles.MaxWords,
		Format:        format,
		Log:           log,
	}
}

// distinctBases rejects batches where two videos share a base name: their
// outputs would land on the same file.
func distinctBases(videos []string) error {
	seen := make(map[string]string, len(videos))
	for _, v := range videos {
		base := strings.TrimSuffix(filepath.Base(v), filepath.Ext(v))
		if prev, ok := seen[base]; ok {
			return fmt.Errorf("%s and %s would write the same output %q; process them separately or rename one", prev, v, base)
		}
		seen[base] = v
	}
	return nil
}

func runSubtitles(cmd *cobra.Command, videos []string) error {
	if err := distinctBases(videos); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outDir := subtitleOpts.out
	if outDir == "" {
		outDir = conf.Paths.Outputs
	}
	pub, err := publisher(ctx)
	if err != nil {
		return err
	}
	p := subtitlePipeline()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(subtitleOpts.jobs, 1))
	results := make([]subtitles.Result, len(videos))
	errs := make([]error, len(videos))
	for i, video := range videos {
		g.Go(func() error {
			res, err := p.Generate(gctx, video, outDir)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = res
			if pub != nil {
				if _, err := pub.Upload(gctx, "subtitles", res.Path); err != nil {
					logrus.WithError(err).WithField("track", res.Name).Warn("publish failed")
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, video := range videos {
		if errs[i] != nil {
			fmt.Fprintf(os.Stdout, "%s\tfailed: %v\n", video, errs[i])
			continue
		}
		fmt.Fprintf(os.Stdout, "%s\t%s\tcues=%d\tplaceholder=%t\n", video, results[i].Path, results[i].Cues, results[i].Placeholder)
	}
	return errors.Join(errs...)
}
