// Package media wraps the ffmpeg and ffprobe command-line tools used by the
// subtitle and dubbing pipelines.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"

	cfg "github.com/maastricht-university/edmo-engagement/config"
)

// ErrNoOutput is returned when the tool exits cleanly but the expected file
// is missing.
var ErrNoOutput = errors.New("media tool produced no output file")

// Transcoder runs ffmpeg/ffprobe through a Runner. No retries.
type Transcoder struct {
	FFmpeg     string
	FFprobe    string
	SampleRate int
	Channels   int
	Codec      string
	Runner     Runner
	Log        logrus.FieldLogger
}

func NewTranscoder(m cfg.Media, a cfg.Audio, log logrus.FieldLogger) *Transcoder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Transcoder{
		FFmpeg:     m.FFmpeg,
		FFprobe:    m.FFprobe,
		SampleRate: a.SampleRate,
		Channels:   a.Channels,
		Codec:      a.Codec,
		Runner:     ExecRunner{Timeout: cfg.DurSeconds(m.Timeout)},
		Log:        log,
	}
}

func (t *Transcoder) withDefaults() Transcoder {
	c := *t
	if c.FFmpeg == "" {
		c.FFmpeg = "ffmpeg"
	}
	if c.FFprobe == "" {
		c.FFprobe = "ffprobe"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.Channels == 0 {
		c.Channels = 1
	}
	if c.Codec == "" {
		c.Codec = "aac"
	}
	if c.Runner == nil {
		c.Runner = ExecRunner{}
	}
	if c.Log == nil {
		c.Log = logrus.StandardLogger()
	}
	return c
}

// produced reports whether path is a non-empty regular file. Callers may
// reserve output names in advance, so an empty file does not count.
func produced(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular() && st.Size() > 0
}

// ExtractAudio writes the audio track of video to wavOut as PCM WAV at the
// recognizer's sample rate and channel count.
func (t *Transcoder) ExtractAudio(ctx context.Context, video, wavOut string) error {
	c := t.withDefaults()
	c.Log.WithFields(logrus.Fields{"video": filepath.Base(video), "output": filepath.Base(wavOut)}).Debug("extracting audio")

	res, err := c.Runner.Run(ctx, c.FFmpeg,
		"-y", "-i", video,
		"-ac", strconv.Itoa(c.Channels),
		"-ar", strconv.Itoa(c.SampleRate),
		"-vn",
		wavOut,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w\n%s", err, res.Stderr)
	}
	if !produced(wavOut) {
		return fmt.Errorf("extract audio %s: %w", wavOut, ErrNoOutput)
	}
	return nil
}

// Mux copies the video stream of video and the audio stream of audio into
// out, re-encoding audio. The result is as long as the shorter input.
func (t *Transcoder) Mux(ctx context.Context, video, audio, out string) error {
	c := t.withDefaults()
	c.Log.WithFields(logrus.Fields{"video": filepath.Base(video), "output": filepath.Base(out)}).Debug("muxing audio")

	res, err := c.Runner.Run(ctx, c.FFmpeg,
		"-i", video,
		"-i", audio,
		"-c:v", "copy",
		"-c:a", c.Codec,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-shortest",
		"-y",
		out,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg mux: %w\n%s", err, res.Stderr)
	}
	if !produced(out) {
		return fmt.Errorf("mux %s: %w", out, ErrNoOutput)
	}
	return nil
}

// MediaInfo holds duration and codec information from ffprobe.
type MediaInfo struct {
	Duration   float64
	VideoCodec string
	AudioCodec string
}

// probeOutput mirrors ffprobe JSON structure.
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
	} `json:"streams"`
}

// Probe reads container duration and the first video/audio codec names.
func (t *Transcoder) Probe(ctx context.Context, path string) (MediaInfo, error) {
	c := t.withDefaults()
	res, err := c.Runner.Run(ctx, c.FFprobe,
		"-v", "error",
		"-show_entries", "stream=codec_type,codec_name:format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return MediaInfo{}, fmt.Errorf("ffprobe: %w\n%s", err, res.Stderr)
	}
	return parseProbe(res.Stdout)
}

func parseProbe(out []byte) (MediaInfo, error) {
	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return MediaInfo{}, fmt.Errorf("ffprobe decode: %w", err)
	}
	var info MediaInfo
	info.Duration, _ = strconv.ParseFloat(probe.Format.Duration, 64)
	for _, s := range probe.Streams {
		switch s.CodecType {
		case "video":
			if info.VideoCodec == "" {
				info.VideoCodec = s.CodecName
			}
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = s.CodecName
			}
		}
	}
	return info, nil
}
