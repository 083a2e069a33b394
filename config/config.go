package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Service struct {
	URL string `yaml:"url"`
}
type Services struct {
	ASR    Service `yaml:"asr"`
	TTS    Service `yaml:"tts"`
	Models Service `yaml:"models"`
}
type Audio struct {
	SampleRate int    `yaml:"sample_rate" validate:"gt=0"`
	Channels   int    `yaml:"channels" validate:"gt=0"`
	Format     string `yaml:"format"`
	Codec      string `yaml:"codec"`
}
type Media struct {
	FFmpeg  string `yaml:"ffmpeg"`
	FFprobe string `yaml:"ffprobe"`
	// Timeout bounds every external process call, in seconds.
	Timeout int `yaml:"timeout" validate:"gte=0"`
}
type Monitor struct {
	Period        int   `yaml:"period" validate:"gt=0"`
	Duration      int   `yaml:"duration" validate:"gt=0"`
	SourceTimeout int   `yaml:"source_timeout_ms" validate:"gte=0"`
	Seed          int64 `yaml:"seed"`
	Archive       bool  `yaml:"archive"`
}
type Subtitles struct {
	Model       string  `yaml:"model" validate:"required"`
	MaxDuration float64 `yaml:"max_duration" validate:"gt=0"`
	MaxWords    int     `yaml:"max_words" validate:"gt=0"`
	ChunkFrames int     `yaml:"chunk_frames" validate:"gt=0"`
	Format      string  `yaml:"format" validate:"oneof=vtt srt"`
}
type Dubbing struct {
	Providers   []string `yaml:"providers" validate:"min=1,dive,oneof=gemini remote espeak"`
	GeminiModel string   `yaml:"gemini_model"`
	GeminiKey   string   `yaml:"gemini_api_key"`
	Espeak      string   `yaml:"espeak"`
	// Voices maps provider -> language -> voice name.
	Voices       map[string]map[string]string `yaml:"voices"`
	RequestsPerM int                          `yaml:"requests_per_minute" validate:"gte=0"`
}
type Store struct {
	Driver string `yaml:"driver" validate:"oneof=memory postgres dynamodb"`
	DSN    string `yaml:"dsn" validate:"required_if=Driver postgres"`
	Table  string `yaml:"table" validate:"required_if=Driver dynamodb"`
}
type Publish struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}
type Root struct {
	Pipeline struct {
		Name      string `yaml:"name"`
		Version   string `yaml:"version"`
		LogLvl    string `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
		LogFormat string `yaml:"log_format" validate:"omitempty,oneof=text json"`
	} `yaml:"pipeline"`
	Audio     Audio     `yaml:"audio"`
	Media     Media     `yaml:"media"`
	Services  Services  `yaml:"services"`
	Monitor   Monitor   `yaml:"monitor"`
	Subtitles Subtitles `yaml:"subtitles"`
	Dubbing   Dubbing   `yaml:"dubbing"`
	Store     Store     `yaml:"store"`
	Publish   Publish   `yaml:"publish"`
	Paths     struct {
		Data    string `yaml:"data"`
		Models  string `yaml:"models" validate:"required"`
		Outputs string `yaml:"outputs" validate:"required"`
	} `yaml:"paths"`
}

// Env returns the active configuration environment (CONFIG_ENV, default "dev").
func Env() string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return env
}

// Load locates config/<env>/config.yaml (or the shared fallback), decodes it
// and fills defaults. A config/.env.<env> file is loaded into the process
// environment first when present.
func Load() (*Root, error) {
	env := Env()
	if err := loadDotEnv(env); err != nil {
		return nil, err
	}
	var guess []string = []string{
		filepath.Join("config", env, "config.yaml"),
		filepath.Join("src", "shared", "config.yaml"),
	}
	var lastErr error
	for _, p := range guess {
		cfg, err := LoadFrom(p)
		if err == nil {
			return cfg, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no usable config in %s: %w", strings.Join(guess, ", "), lastErr)
}

// LoadFrom decodes a single YAML file and fills defaults. It does not validate.
func LoadFrom(path string) (*Root, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Root
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func loadDotEnv(env string) error {
	p := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(p); err == nil {
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("godotenv(%s): %w", p, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", p, err)
	}
	return nil
}

// Default returns a Root populated only with defaults.
func Default() *Root {
	var cfg Root
	cfg.applyDefaults()
	return &cfg
}

func (c *Root) applyDefaults() {
	if c.Pipeline.Name == "" {
		c.Pipeline.Name = "edmo-engagement"
	}
	if c.Pipeline.LogLvl == "" {
		c.Pipeline.LogLvl = "info"
	}
	if c.Pipeline.LogFormat == "" {
		c.Pipeline.LogFormat = "text"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 1
	}
	if c.Audio.Codec == "" {
		c.Audio.Codec = "aac"
	}
	if c.Media.FFmpeg == "" {
		c.Media.FFmpeg = "ffmpeg"
	}
	if c.Media.FFprobe == "" {
		c.Media.FFprobe = "ffprobe"
	}
	if c.Media.Timeout == 0 {
		c.Media.Timeout = 600
	}
	if c.Monitor.Period == 0 {
		c.Monitor.Period = 2
	}
	if c.Monitor.Duration == 0 {
		c.Monitor.Duration = 300
	}
	if c.Subtitles.Model == "" {
		c.Subtitles.Model = "vosk-model-small-en-us-0.15"
	}
	if c.Subtitles.MaxDuration == 0 {
		c.Subtitles.MaxDuration = 5.0
	}
	if c.Subtitles.MaxWords == 0 {
		c.Subtitles.MaxWords = 12
	}
	if c.Subtitles.ChunkFrames == 0 {
		c.Subtitles.ChunkFrames = 4000
	}
	if c.Subtitles.Format == "" {
		c.Subtitles.Format = "vtt"
	}
	if len(c.Dubbing.Providers) == 0 {
		c.Dubbing.Providers = []string{"gemini", "remote", "espeak"}
	}
	if c.Dubbing.Espeak == "" {
		c.Dubbing.Espeak = "espeak"
	}
	if c.Dubbing.GeminiModel == "" {
		c.Dubbing.GeminiModel = "gemini-2.5-flash-preview-tts"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Services.Models.URL == "" {
		c.Services.Models.URL = "https://alphacephei.com/vosk/models"
	}
	if c.Paths.Models == "" {
		c.Paths.Models = filepath.Join("data", "models")
	}
	if c.Paths.Outputs == "" {
		c.Paths.Outputs = filepath.Join("data", "outputs")
	}
}

// Override applies the keys that may come from flags or EDMO_* environment
// variables through viper. Unset keys leave the file values untouched.
func (c *Root) Override(v *viper.Viper) {
	if s := v.GetString("log_level"); s != "" {
		c.Pipeline.LogLvl = s
	}
	if s := v.GetString("log_format"); s != "" {
		c.Pipeline.LogFormat = s
	}
	if s := v.GetString("store_driver"); s != "" {
		c.Store.Driver = s
	}
	if s := v.GetString("store_dsn"); s != "" {
		c.Store.DSN = s
	}
	if s := v.GetString("store_table"); s != "" {
		c.Store.Table = s
	}
	if s := v.GetString("publish_bucket"); s != "" {
		c.Publish.Bucket = s
	}
	if s := v.GetString("gemini_api_key"); s != "" {
		c.Dubbing.GeminiKey = s
	}
	if s := v.GetString("outputs"); s != "" {
		c.Paths.Outputs = s
	}
}

// Validate checks the struct tags on the decoded configuration.
func (c *Root) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func DurSeconds(n int) time.Duration { return time.Duration(n) * time.Second }
