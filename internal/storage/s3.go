// Package storage uploads rendered reports to S3.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dwsmith1983/atfreport/pkg/types"
)

// BucketPrefix is prepended to the BUCKET suffix to form the report bucket name.
const BucketPrefix = "cvs-atf-reports-"

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// S3API is the subset of the S3 client used by Uploader.
type S3API interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader writes report artifacts to the reports bucket.
type Uploader struct {
	client   S3API
	bucket   string
	endpoint string
	logger   *slog.Logger
}

// UploaderOption configures an Uploader.
type UploaderOption func(*Uploader)

// WithS3Client sets a custom S3 client (useful for testing).
func WithS3Client(c S3API) UploaderOption {
	return func(u *Uploader) { u.client = c }
}

// WithEndpoint points the default client at a local S3-compatible endpoint.
func WithEndpoint(endpoint string) UploaderOption {
	return func(u *Uploader) { u.endpoint = endpoint }
}

// WithLogger sets the uploader's logger.
func WithLogger(l *slog.Logger) UploaderOption {
	return func(u *Uploader) { u.logger = l }
}

// BucketName returns the reports bucket for a BUCKET suffix.
func BucketName(suffix string) string {
	return BucketPrefix + suffix
}

// NewUploader creates an Uploader for the named bucket.
func NewUploader(bucket string, opts ...UploaderOption) (*Uploader, error) {
	if bucket == "" || bucket == BucketPrefix {
		return nil, fmt.Errorf("S3 bucket name required")
	}
	u := &Uploader{bucket: bucket, logger: slog.Default()}
	for _, o := range opts {
		o(u)
	}
	if u.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		u.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			if u.endpoint != "" {
				o.BaseEndpoint = aws.String(u.endpoint)
				o.UsePathStyle = true
			}
		})
	}
	return u, nil
}

// Bucket returns the destination bucket name.
func (u *Uploader) Bucket() string { return u.bucket }

// Upload puts the artifact under its file name.
func (u *Uploader) Upload(ctx context.Context, artifact *types.ReportArtifact) error {
	if artifact == nil || strings.TrimSpace(artifact.FileName) == "" {
		return fmt.Errorf("uploading report: artifact has no file name")
	}
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(artifact.FileName),
		Body:        bytes.NewReader(artifact.Content),
		ContentType: aws.String(xlsxContentType),
	})
	if err != nil {
		return fmt.Errorf("putting report %s to S3: %w", artifact.FileName, err)
	}
	u.logger.Info("report uploaded", "bucket", u.bucket, "key", artifact.FileName, "bytes", len(artifact.Content))
	return nil
}
