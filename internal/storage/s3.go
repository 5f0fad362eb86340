package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/paper-pigeon/backend/internal/util"
	"github.com/paper-pigeon/backend/pkg/common"
)

// PDFLinkExpiry is how long a presigned document link stays valid.
const PDFLinkExpiry = time.Hour

// NewAWSConfig loads the shared AWS configuration. Static credentials are used
// when AWS_ACCESS_KEY/AWS_SECRET_KEY are set, otherwise the default chain.
func NewAWSConfig(ctx context.Context) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{}

	if region := util.FirstEnv("AWS_REGION", "VITE_AWS_REGION"); region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	if endpoint := util.GetEnv("AWS_ENDPOINT"); endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(endpoint))
	}

	accessKey := util.FirstEnv("AWS_ACCESS_KEY", "AWS_ACCESS_KEY_ID")
	secretKey := util.FirstEnv("AWS_SECRET_KEY", "AWS_SECRET_ACCESS_KEY")
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}
	return cfg, nil
}

// Client wraps an S3 client bound to one bucket.
type Client struct {
	S3             *s3.Client
	Bucket         string
	PublicEndpoint string
}

// NewS3Client builds a client for S3_BUCKET_NAME. Path-style addressing is
// used when a custom endpoint (MinIO, LocalStack) is configured.
func NewS3Client(cfg aws.Config) *Client {
	pathStyle := util.GetEnv("AWS_ENDPOINT") != ""
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = pathStyle
	})

	return &Client{
		S3:             client,
		Bucket:         util.FirstEnv("S3_BUCKET_NAME", "VITE_S3_BUCKET_NAME"),
		PublicEndpoint: util.GetEnv("AWS_PUBLIC_ENDPOINT"),
	}
}

// PDFKey is the object key of a paper's PDF.
func PDFKey(labID, documentID string) string {
	return fmt.Sprintf("%s/%s.pdf", labID, documentID)
}

func (c *Client) GetFile(ctx context.Context, key string) ([]byte, error) {
	result, err := c.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, common.E(common.KindArtifactMissing, "s3 get "+key, err)
		}
		return nil, common.E(common.KindUpstream, "s3 get "+key, err)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, result.Body); err != nil {
		return nil, common.E(common.KindUpstream, "s3 read "+key, err)
	}

	return buf.Bytes(), nil
}

func (c *Client) PutFile(ctx context.Context, key string, body io.ReadSeeker, contentType string) error {
	_, err := c.S3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return common.E(common.KindUpstream, "s3 put "+key, err)
	}

	return nil
}

// GenerateDownloadLink presigns a GET for key. When a public endpoint is
// configured the link is signed for that host so that browsers outside the
// private network can use it.
func (c *Client) GenerateDownloadLink(ctx context.Context, key string, expires time.Duration) (string, error) {
	if c.Bucket == "" {
		return "", common.E(common.KindUpstream, "presign "+key, errors.New("S3_BUCKET_NAME is not set"))
	}

	presignClient := c.S3
	prefix := ""
	if c.PublicEndpoint != "" {
		publicURL, err := url.Parse(c.PublicEndpoint)
		if err != nil || publicURL.Scheme == "" || publicURL.Host == "" {
			return "", fmt.Errorf("invalid AWS_PUBLIC_ENDPOINT: %s", c.PublicEndpoint)
		}
		prefix = strings.TrimSuffix(publicURL.Path, "/")

		// Sign for the public host so the signature matches the Host header
		// the browser sends.
		presignClient = s3.NewFromConfig(
			aws.Config{
				Region:      c.S3.Options().Region,
				Credentials: c.S3.Options().Credentials,
				HTTPClient:  c.S3.Options().HTTPClient,
			},
			func(o *s3.Options) {
				o.BaseEndpoint = aws.String(fmt.Sprintf("%s://%s", publicURL.Scheme, publicURL.Host))
				o.UsePathStyle = true
			},
		)
	}

	presigner := s3.NewPresignClient(presignClient)
	out, err := presigner.PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(c.Bucket),
			Key:    aws.String(key),
		},
		s3.WithPresignExpires(expires),
	)
	if err != nil {
		return "", common.E(common.KindUpstream, "presign "+key, err)
	}

	if prefix != "" {
		signedURL, parseErr := url.Parse(out.URL)
		if parseErr != nil {
			return "", fmt.Errorf("failed to parse presigned url: %w", parseErr)
		}
		signedURL.Path = prefix + signedURL.Path
		return signedURL.String(), nil
	}

	return out.URL, nil
}

// PresignPDF returns a one hour download link for a paper's PDF.
func (c *Client) PresignPDF(ctx context.Context, labID, documentID string) (string, error) {
	return c.GenerateDownloadLink(ctx, PDFKey(labID, documentID), PDFLinkExpiry)
}
