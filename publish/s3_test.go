package publish

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maastricht-university/edmo-engagement/config"
)

type fakeS3 struct {
	key, bucket, ctype string
	body              []byte
	err               error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.key, f.bucket, f.ctype = aws.ToString(in.Key), aws.ToString(in.Bucket), aws.ToString(in.ContentType)
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = b
	return &s3.PutObjectOutput{}, nil
}

func TestUpload(t *testing.T) {
	local := filepath.Join(t.TempDir(), "lecture1.vtt")
	require.NoError(t, os.WriteFile(local, []byte("WEBVTT\n"), 0o644))

	api := &fakeS3{}
	p := &S3{API: api, Bucket: "edmo-artifacts", Prefix: "/edmo/"}
	key, err := p.Upload(context.Background(), "subtitles", local)
	require.NoError(t, err)
	assert.Equal(t, "edmo/subtitles/lecture1.vtt", key)
	assert.Equal(t, key, api.key)
	assert.Equal(t, "edmo-artifacts", api.bucket)
	assert.Equal(t, "text/vtt", api.ctype)
	assert.Equal(t, "WEBVTT\n", string(api.body))
}

func TestUploadErrors(t *testing.T) {
	p := &S3{API: &fakeS3{err: errors.New("access denied")}, Bucket: "b"}
	_, err := p.Upload(context.Background(), "dubbed", filepath.Join(t.TempDir(), "missing.mp4"))
	require.Error(t, err)

	local := filepath.Join(t.TempDir(), "x_dubbed.mp4")
	require.NoError(t, os.WriteFile(local, []byte("mp4"), 0o644))
	_, err = p.Upload(context.Background(), "dubbed", local)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestNewS3DisabledWithoutBucket(t *testing.T) {
	p, err := NewS3(context.Background(), config.Publish{}, nil)
	require.NoError(t, err)
	assert.Nil(t, p)
}
