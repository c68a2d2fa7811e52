// Package storage uploads profile pictures to an S3-compatible bucket.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/iliyamo/happiness-journal/internal/config"
)

// MaxPictureBytes bounds profile picture uploads.
const MaxPictureBytes = 5 << 20

var (
	ErrTooLarge        = errors.New("picture exceeds 5 MiB")
	ErrUnsupportedType = errors.New("unsupported picture type")
	// ErrDisabled is returned when no bucket is configured.
	ErrDisabled = errors.New("object storage is not configured")
)

var pictureTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// objectAPI is the part of *s3.Client the store uses.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// PictureStore stores profile pictures and returns their public URL.
type PictureStore interface {
	PutPicture(ctx context.Context, userID uint64, data []byte) (string, error)
	DeleteByURL(ctx context.Context, url string) error
}

type S3Store struct {
	api       objectAPI
	bucket    string
	publicURL string
}

// NewS3Store builds a client for cfg.  A custom endpoint (MinIO and
// friends) switches the client to path-style addressing.
func NewS3Store(ctx context.Context, cfg config.S3Config) (*S3Store, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	public := cfg.PublicURL
	if public == "" {
		if cfg.Endpoint != "" {
			public = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
		} else {
			public = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}
	return &S3Store{api: client, bucket: cfg.Bucket, publicURL: strings.TrimRight(public, "/")}, nil
}

// PutPicture validates data by sniffing its content type and uploads it
// under pfp/<user>/<uuid><ext>.
func (s *S3Store) PutPicture(ctx context.Context, userID uint64, data []byte) (string, error) {
	if len(data) > MaxPictureBytes {
		return "", ErrTooLarge
	}
	ct := http.DetectContentType(data)
	ext, ok := pictureTypes[ct]
	if !ok {
		return "", ErrUnsupportedType
	}
	key := fmt.Sprintf("pfp/%d/%s%s", userID, uuid.NewString(), ext)
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(ct),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return s.publicURL + "/" + key, nil
}

// DeleteByURL removes an object previously returned by PutPicture.  URLs
// outside this bucket are ignored.
func (s *S3Store) DeleteByURL(ctx context.Context, url string) error {
	key, ok := strings.CutPrefix(url, s.publicURL+"/")
	if !ok || key == "" {
		return nil
	}
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	return err
}
