package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"flowvault/pkg/config"
	"flowvault/pkg/errors"
)

// S3Store talks to S3-compatible object storage.
type S3Store struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	bucket   string
}

// NewS3Store builds a store from the storage configuration. Explicit
// credentials take precedence; otherwise the default AWS chain applies.
func NewS3Store(cfg config.StorageConfig) (*S3Store, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.ForcePathStyle {
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage session: %w", err)
	}

	return &S3Store{
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		bucket:   cfg.Bucket,
	}, nil
}

// Put uploads one object. Failures come back classified: credential
// rejections are fatal, everything else is transient and retried by the
// caller.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, contentType string, metadata map[string]string) error {
	input := &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if len(metadata) > 0 {
		md := make(map[string]*string, len(metadata))
		for k, v := range metadata {
			md[k] = aws.String(v)
		}
		input.Metadata = md
	}

	if _, err := s.uploader.UploadWithContext(ctx, input); err != nil {
		return classifyStorageError(err, fmt.Sprintf("upload of %s failed", key))
	}
	return nil
}

// Exists probes for an object with a HEAD request.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok {
			switch aerr.Code() {
			case "NotFound", s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket:
				return false, nil
			}
		}
		return false, classifyStorageError(err, fmt.Sprintf("existence probe of %s failed", key))
	}
	return true, nil
}

// credentialErrorCodes are rejections that will not heal with retries and
// must abort the whole run.
var credentialErrorCodes = map[string]bool{
	"InvalidAccessKeyId":     true,
	"SignatureDoesNotMatch":  true,
	"AccessDenied":           true,
	"ExpiredToken":           true,
	"NoCredentialProviders":  true,
	"CredentialsNotVerified": true,
}

func classifyStorageError(err error, message string) *errors.Error {
	if aerr, ok := err.(awserr.Error); ok && credentialErrorCodes[aerr.Code()] {
		return errors.Fatal(err, message)
	}
	return errors.Transient(err, message)
}
