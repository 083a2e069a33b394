package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maastricht-university/edmo-engagement/config"
	"github.com/maastricht-university/edmo-engagement/dubbing"
	"github.com/maastricht-university/edmo-engagement/media"
)

var dubOpts struct {
	out        string
	lang       string
	textFile   string
	transcript bool
	listVoices bool
	jobs       int
}

var dubCmd = &cobra.Command{
	Use:   "dub VIDEO...",
	Short: "Replace lecture audio with synthesized narration",
	Long: `Synthesize narration for each video with the first speech provider that
succeeds (dubbing.providers order) and mux it over the original video as
<name>_dubbed.mp4. Narration comes from --text-file, from a caption track
in the output directory (--transcript) or from the default lecture text.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if dubOpts.listVoices {
			return nil
		}
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	RunE: runDub,
}

func init() {
	f := dubCmd.Flags()
	f.StringVarP(&dubOpts.out, "out", "o", "", "output directory (default paths.outputs)")
	f.StringVarP(&dubOpts.lang, "lang", "l", "en", "target language")
	f.StringVar(&dubOpts.textFile, "text-file", "", "narration text or caption file used for every video")
	f.BoolVar(&dubOpts.transcript, "transcript", false, "narrate from <video>.vtt/.srt/.txt in the output directory when present")
	f.BoolVar(&dubOpts.listVoices, "list-voices", false, "print the voices of every configured provider and exit")
	f.IntVarP(&dubOpts.jobs, "jobs", "j", 1, "videos processed concurrently")
	rootCmd.AddCommand(dubCmd)
}

func narrationSource(outDir string) dubbing.TextSource {
	switch {
	case dubOpts.textFile != "":
		return dubbing.TranscriptText{Path: dubOpts.textFile}
	case dubOpts.transcript:
		return dubbing.TranscriptText{Dir: outDir, Fallback: dubbing.TemplateText{}}
	default:
		return dubbing.TemplateText{}
	}
}

func runDub(cmd *cobra.Command, videos []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logrus.StandardLogger()
	runner := media.ExecRunner{Timeout: config.DurSeconds(conf.Media.Timeout)}
	chain, err := dubbing.NewChain(ctx, conf.Dubbing, conf.Services.TTS.URL, runner, log)
	if err != nil {
		return err
	}

	if dubOpts.listVoices {
		for _, vc := range chain.Voices(ctx) {
			fmt.Fprintf(os.Stdout, "%s\t%s\t%s\t%s\n", vc.Provider, vc.Name, vc.Language, vc.Gender)
		}
		return nil
	}

	if err := distinctBases(videos); err != nil {
		return err
	}
	outDir := dubOpts.out
	if outDir == "" {
		outDir = conf.Paths.Outputs
	}
	pub, err := publisher(ctx)
	if err != nil {
		return err
	}
	p := &dubbing.Pipeline{
		Text:  narrationSource(outDir),
		Chain: chain,
		Mux:   media.NewTranscoder(conf.Media, conf.Audio, log),
		Log:   log,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(dubOpts.jobs, 1))
	results := make([]dubbing.Result, len(videos))
	errs := make([]error, len(videos))
	for i, video := range videos {
		g.Go(func() error {
			res, err := p.Dub(gctx, dubbing.Job{SourceVideo: video, OutputDir: outDir, TargetLanguage: dubOpts.lang})
			results[i], errs[i] = res, err
			if err == nil && pub != nil {
				if _, err := pub.Upload(gctx, "dubbed", res.Output); err != nil {
					log.WithError(err).WithField("output", res.Name).Warn("publish failed")
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, video := range videos {
		for _, a := range results[i].Attempts {
			fmt.Fprintf(os.Stdout, "%s\tskipped %s\n", video, a)
		}
		if errs[i] != nil {
			fmt.Fprintf(os.Stdout, "%s\tfailed: %v\n", video, errs[i])
			continue
		}
		fmt.Fprintf(os.Stdout, "%s\t%s\tprovider=%s\n", video, results[i].Output, results[i].Provider)
	}
	return errors.Join(errs...)
}
