// Package cmd is the edmo command line: engagement monitoring and the
// subtitle and dubbing batch pipelines.
package cmd

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/maastricht-university/edmo-engagement/config"
	"github.com/maastricht-university/edmo-engagement/logging"
	"github.com/maastricht-university/edmo-engagement/publish"
)

var (
	v    = viper.New()
	conf *config.Root
)

var rootCmd = &cobra.Command{
	Use:   "edmo",
	Short: "Student engagement monitoring and lecture media pipelines",
	Long: `edmo samples engagement signals for students and records focus and
frustration scores, and processes lecture videos: automatic subtitles
through a speech recognizer and narrated dubs through a chain of speech
providers.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		conf = c
		logging.Init(conf.Pipeline.LogLvl, conf.Pipeline.LogFormat)
		logrus.WithFields(logrus.Fields{"env": config.Env(), "version": conf.Pipeline.Version}).Debug("configuration loaded")
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	f := rootCmd.PersistentFlags()
	f.String("config", "", "config file (default config/<CONFIG_ENV>/config.yaml)")
	f.String("log-level", "", "trace, debug, info, warn or error")
	f.String("log-format", "", "text or json")
	f.String("store-driver", "", "memory, postgres or dynamodb")
	f.String("store-dsn", "", "postgres connection string")
	f.String("store-table", "", "dynamodb table name")
	f.String("publish-bucket", "", "upload artifacts to this S3 bucket")
	f.String("outputs", "", "output directory")

	v.SetEnvPrefix("EDMO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, name := range []string{"config", "log-level", "log-format", "store-driver", "store-dsn", "store-table", "publish-bucket", "outputs"} {
		_ = v.BindPFlag(strings.ReplaceAll(name, "-", "_"), f.Lookup(name))
	}
	_ = v.BindEnv("gemini_api_key", "EDMO_GEMINI_API_KEY", "GEMINI_API_KEY")
}

func loadConfig() (*config.Root, error) {
	var (
		c   *config.Root
		err error
	)
	if path := v.GetString("config"); path != "" {
		c, err = config.LoadFrom(path)
	} else {
		c, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	c.Override(v)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// publisher returns nil when no bucket is configured.
func publisher(ctx context.Context) (*publish.S3, error) {
	return publish.NewS3(ctx, conf.Publish, logrus.StandardLogger())
}
