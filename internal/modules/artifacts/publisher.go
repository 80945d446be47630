package artifacts

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// S3Config holds the object storage target. Endpoint is set for
// S3-compatible stores such as R2 or MinIO.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// objectUploader is the part of manager.Uploader the publisher needs.
type objectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Publisher uploads artifact files under <prefix>/<run id>/<file>.
type S3Publisher struct {
	uploader objectUploader
	bucket   string
	prefix   string
	log      zerolog.Logger
}

// NewS3Publisher creates a publisher using the default AWS credential chain,
// or static credentials when an access key is configured.
func NewS3Publisher(ctx context.Context, cfg S3Config, log zerolog.Logger) (*S3Publisher, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Publisher(manager.NewUploader(client), cfg.Bucket, cfg.Prefix, log), nil
}

func newS3Publisher(uploader objectUploader, bucket, prefix string, log zerolog.Logger) *S3Publisher {
	return &S3Publisher{
		uploader: uploader,
		bucket:   bucket,
		prefix:   prefix,
		log:      log.With().Str("component", "artifact_publisher").Logger(),
	}
}

// Key returns the object key of a file for a run.
func (p *S3Publisher) Key(runID, file string) string {
	return path.Join(p.prefix, runID, filepath.Base(file))
}

// PublishFiles uploads each file. It stops at the first failure.
func (p *S3Publisher) PublishFiles(ctx context.Context, runID string, files []string) error {
	for _, file := range files {
		if err := p.publish(ctx, runID, file); err != nil {
			return err
		}
	}
	p.log.Info().
		Str("bucket", p.bucket).
		Str("run_id", runID).
		Int("files", len(files)).
		Msg("Published artifacts")
	return nil
}

func (p *S3Publisher) publish(ctx context.Context, runID, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer f.Close()

	key := p.Key(runID, file)
	_, err = p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	p.log.Debug().Str("key", key).Msg("Uploaded artifact")
	return nil
}
