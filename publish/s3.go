// Package publish uploads finished artifacts (caption tracks, dubbed videos,
// session archives) to S3.
package publish

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/edmo-engagement/config"
)

// PutObjectAPI is the part of *s3.Client used for uploads.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3 struct {
	API    PutObjectAPI
	Bucket string
	Prefix string
	Log    logrus.FieldLogger
}

// NewS3 loads the default AWS credential chain. It returns nil when no
// bucket is configured.
func NewS3(ctx context.Context, c config.Publish, log logrus.FieldLogger) (*S3, error) {
	if c.Bucket == "" {
		return nil, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	return &S3{API: s3.NewFromConfig(awsCfg), Bucket: c.Bucket, Prefix: c.Prefix, Log: log}, nil
}

// Key returns the object key for a local file under kind.
func (p *S3) Key(kind, local string) string {
	return path.Join(strings.Trim(p.Prefix, "/"), kind, filepath.Base(local))
}

// Upload puts local at <Prefix>/<kind>/<basename> and returns the key.
func (p *S3) Upload(ctx context.Context, kind, local string) (string, error) {
	f, err := os.Open(local)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", local, err)
	}
	defer f.Close()

	key := p.Key(kind, local)
	_, err = p.API.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(local)),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s to s3://%s/%s: %w", filepath.Base(local), p.Bucket, key, err)
	}
	if p.Log != nil {
		p.Log.WithFields(logrus.Fields{"bucket": p.Bucket, "key": key}).Info("artifact published")
	}
	return key, nil
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".vtt":
		return "text/vtt"
	case ".srt":
		return "application/x-subrip"
	case ".mp4":
		return "video/mp4"
	case ".wav":
		return "audio/wav"
	case ".zst":
		return "application/zstd"
	default:
		return "application/octet-stream"
	}
}
