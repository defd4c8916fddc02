package media

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PhotoStore keeps verified photos and returns the URL a profile refers to.
type PhotoStore interface {
	Save(ctx context.Context, key string, photo DataURI) (string, error)
}

// InlineStore keeps the photo inside the profile as a data URI.
type InlineStore struct{}

func (InlineStore) Save(_ context.Context, _ string, photo DataURI) (string, error) {
	return photo.String(), nil
}

type S3Config struct {
	Bucket        string
	Region        string
	Endpoint      string
	PublicBaseURL string
	Prefix        string
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Store struct {
	client  objectPutter
	bucket  string
	baseURL string
	prefix  string
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	baseURL := strings.TrimRight(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	return &S3Store{client: client, bucket: cfg.Bucket, baseURL: baseURL, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

func (s *S3Store) Save(ctx context.Context, key string, photo DataURI) (string, error) {
	objectKey := key + photo.Extension()
	if s.prefix != "" {
		objectKey = s.prefix + "/" + objectKey
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(photo.Data),
		ContentType: aws.String(photo.MIMEType),
	})
	if err != nil {
		return "", fmt.Errorf("upload photo %s: %w", objectKey, err)
	}
	return s.baseURL + "/" + objectKey, nil
}
