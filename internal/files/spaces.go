package files

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const defaultPresignExpiry = 15 * time.Minute

type SpacesConfig struct {
	Key    string
	Secret string
	Region string
	Bucket string
	Root   string
	// Endpoint overrides the DigitalOcean endpoint derived from Region.
	Endpoint string
	Expiry   time.Duration
}

// Spaces hands out presigned GET URLs for objects in an S3-compatible
// bucket.
type Spaces struct {
	presign *s3.PresignClient
	bucket  string
	root    string
	expiry  time.Duration
}

func NewSpaces(ctx context.Context, cfg SpacesConfig) (*Spaces, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("spaces: bucket and region are required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.digitaloceanspaces.com", cfg.Region)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.Key, cfg.Secret, "")),
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("spaces: load config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}
	return &Spaces{
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		root:    strings.Trim(cfg.Root, "/"),
		expiry:  expiry,
	}, nil
}

func (s *Spaces) key(name string) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}
	if s.root == "" {
		return clean, nil
	}
	return s.root + "/" + clean, nil
}

func (s *Spaces) URL(ctx context.Context, name string) (string, error) {
	key, err := s.key(name)
	if err != nil {
		return "", err
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", fmt.Errorf("spaces: presign %s: %w", key, err)
	}
	return req.URL, nil
}
