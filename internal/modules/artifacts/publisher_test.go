package artifacts

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type uploaded struct {
	bucket, key, contentType, body string
}

type fakeUploader struct {
	uploads []uploaded
	err     error
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.uploads = append(f.uploads, uploaded{
		bucket:      aws.ToString(input.Bucket),
		key:         aws.ToString(input.Key),
		contentType: aws.ToString(input.ContentType),
		body:        string(body),
	})
	return &manager.UploadOutput{}, nil
}

func TestS3Publisher_PublishFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, ReturnsFile)
	b := filepath.Join(dir, RiskAversionFile)
	require.NoError(t, os.WriteFile(a, []byte("asset_id,return\nA,0.1\n"), 0644))
	require.NoError(t, os.WriteFile(b, []byte("q\n3\n"), 0644))

	up := &fakeUploader{}
	p := newS3Publisher(up, "research", "riskaversion", zerolog.Nop())

	require.NoError(t, p.PublishFiles(context.Background(), "run-1", []string{a, b}))
	require.Len(t, up.uploads, 2)

	assert.Equal(t, uploaded{
		bucket:      "research",
		key:         "riskaversion/run-1/returns.csv",
		contentType: "text/csv",
		body:        "asset_id,return\nA,0.1\n",
	}, up.uploads[0])
	assert.Equal(t, "riskaversion/run-1/risk_aversion.csv", up.uploads[1].key)
}

func TestS3Publisher_Errors(t *testing.T) {
	p := newS3Publisher(&fakeUploader{}, "b", "", zerolog.Nop())
	err := p.PublishFiles(context.Background(), "run", []string{filepath.Join(t.TempDir(), "missing.csv")})
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "x.csv")
	require.NoError(t, os.WriteFile(file, []byte("q\n1\n"), 0644))
	p = newS3Publisher(&fakeUploader{err: errors.New("denied")}, "b", "", zerolog.Nop())
	err = p.PublishFiles(context.Background(), "run", []string{file})
	assert.ErrorContains(t, err, "denied")
	assert.Equal(t, "run/x.csv", p.Key("run", file))
}

func TestNewS3Publisher_RequiresBucket(t *testing.T) {
	_, err := NewS3Publisher(context.Background(), S3Config{}, zerolog.Nop())
	assert.Error(t, err)
}
