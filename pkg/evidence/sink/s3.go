package sink

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config configures package uploads.
type S3Config struct {
	Bucket string
	Prefix string

	// Region overrides the SDK's default region resolution.
	Region string

	// Endpoint targets an S3-compatible store such as MinIO.
	Endpoint     string
	UsePathStyle bool
}

// uploadAPI is the part of manager.Uploader the sink uses.
type uploadAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Uploader uploads sealed packages to s3://<bucket>/<prefix>/<key>.
// Credentials come from the SDK's default chain (environment, profile,
// instance role).
type S3Uploader struct {
	bucket   string
	prefix   string
	uploader uploadAPI
}

// NewS3Uploader creates an uploader from the default AWS configuration.
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Uploader{
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

// Upload implements packaging.Uploader. It returns the s3:// URI of the
// uploaded object.
func (u *S3Uploader) Upload(ctx context.Context, filePath, key string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	objectKey := path.Join(u.prefix, key)
	_, err = u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(u.bucket),
		Key:                  aws.String(objectKey),
		Body:                 f,
		ContentType:          aws.String("application/zip"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
		ChecksumAlgorithm:    s3types.ChecksumAlgorithmSha256,
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}

	return fmt.Sprintf("s3://%s/%s", u.bucket, objectKey), nil
}
