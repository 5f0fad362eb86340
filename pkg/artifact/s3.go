package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/paper-pigeon/backend/pkg/logger"
)

// ObjectAPI is the subset of *s3.Client used by S3Store.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps the artifact as a single object. A PutObject replaces the
// object atomically, so no staging object is needed.
type S3Store struct {
	api      ObjectAPI
	bucket   string
	key      string
	readOnly bool
}

var _ Store = (*S3Store)(nil)

func NewS3Store(api ObjectAPI, bucket, key string, readOnly bool) *S3Store {
	if key == "" {
		key = DefaultName
	}
	return &S3Store{api: api, bucket: bucket, key: key, readOnly: readOnly}
}

func (s *S3Store) Location() string { return fmt.Sprintf("s3://%s/%s", s.bucket, s.key) }

func (s *S3Store) Writable() bool { return !s.readOnly }

func (s *S3Store) Load(ctx context.Context) ([]byte, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, missing("load "+s.Location(), err)
		}
		return nil, fmt.Errorf("failed to get %s: %w", s.Location(), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.Location(), err)
	}

	logger.Info("[Artifact] Loaded graph cache", "location", s.Location(), "bytes", len(data))
	return data, nil
}

func (s *S3Store) Save(ctx context.Context, data []byte) error {
	if s.readOnly {
		return persistFailed("save "+s.Location(), ErrReadOnly)
	}

	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return persistFailed("save "+s.Location(), err)
	}

	logger.Debug("[Artifact] Replaced graph cache", "location", s.Location(), "bytes", len(data))
	return nil
}

func isNoSuchKey(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
