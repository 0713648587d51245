package output

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Mirror copies published files to s3://{bucket}/{prefix}/{name}.
// Region and credentials come from the usual AWS environment.
type S3Mirror struct {
	bucket   string
	prefix   string
	uploader uploader
}

func NewS3Mirror(ctx context.Context, bucket, prefix string) (*S3Mirror, error) {
	const op = "output.NewS3Mirror"

	if bucket == "" {
		return nil, fmt.Errorf("%s: %w", op, errors.New("bucket required"))
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: load aws config: %w", op, err)
	}
	return &S3Mirror{
		bucket:   bucket,
		prefix:   prefix,
		uploader: manager.NewUploader(s3.NewFromConfig(cfg)),
	}, nil
}

func (s *S3Mirror) Key(name string) string {
	return path.Join(s.prefix, CurrentDir, name)
}

func (s *S3Mirror) Put(ctx context.Context, name string, body []byte, contentType string) error {
	const op = "output.S3Mirror.Put"

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(s.Key(name)),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String(contentType),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, name, err)
	}
	return nil
}
