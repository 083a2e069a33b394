package dubbing

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/maastricht-university/edmo-engagement/subtitles"
)

// TextSource supplies the narration spoken over a video.
type TextSource interface {
	Narration(ctx context.Context, video string) (string, error)
}

const lectureTemplate = `Welcome to this educational video lecture.
Today we will be covering important concepts in our course.
This video has been automatically processed with text-to-speech technology.
The content includes detailed explanations and examples.
Please follow along and take notes as needed.
Thank you for your attention and participation.`

// TemplateText narrates every video with the fixed lecture introduction.
type TemplateText struct{}

func (TemplateText) Narration(context.Context, string) (string, error) { return lectureTemplate, nil }

// TranscriptText reads narration from a caption or plain-text transcript.
// With Path empty it looks for <video base>.vtt, .srt or .txt in Dir (or
// next to the video when Dir is empty). Fallback is used when no transcript
// exists.
type TranscriptText struct {
	Path     string
	Dir      string
	Fallback TextSource
}

func (t TranscriptText) Narration(ctx context.Context, video string) (string, error) {
	path := t.Path
	if path == "" {
		path = t.find(video)
	}
	if path != "" {
		text, err := ReadTranscript(path)
		if err != nil {
			return "", err
		}
		if text != "" {
			return text, nil
		}
	}
	if t.Fallback != nil {
		return t.Fallback.Narration(ctx, video)
	}
	return "", ErrNoNarration
}

func (t TranscriptText) find(video string) string {
	dir := t.Dir
	if dir == "" {
		dir = filepath.Dir(video)
	}
	base := strings.TrimSuffix(filepath.Base(video), filepath.Ext(video))
	for _, ext := range []string{".vtt", ".srt", ".txt"} {
		p := filepath.Join(dir, base+ext)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var cueTiming = regexp.MustCompile(`^\d{2,}:\d{2}:\d{2}[.,]\d{3}\s+-->\s+`)

// ReadTranscript returns the spoken text of a VTT, SRT or plain-text file
// with cue numbers, timings and headers removed. The automatic-subtitles
// placeholder counts as no text.
func ReadTranscript(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	caption := strings.EqualFold(filepath.Ext(path), ".vtt") || strings.EqualFold(filepath.Ext(path), ".srt")
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if caption {
			if line == "WEBVTT" || strings.HasPrefix(line, "NOTE") || cueTiming.MatchString(line) {
				continue
			}
			if _, err := strconv.Atoi(line); err == nil {
				continue
			}
			if line == subtitles.PlaceholderCue.Text {
				continue
			}
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return strings.Join(lines, " "), nil
}

var ErrNoNarration = errors.New("no narration text available")
