package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"bounty-quest/config"
	"bounty-quest/logging"
	"bounty-quest/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the part of the S3 API used for metadata uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// R2MetadataPublisher uploads award metadata documents to a Cloudflare R2 bucket.
type R2MetadataPublisher struct {
	client     ObjectPutter
	bucket     string
	cdnBaseURL string
	logger     logging.Logger
}

// NewR2Client builds an S3 client pointed at the account's R2 endpoint.
func NewR2Client(ctx context.Context, cfg config.R2Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(r2Endpoint(cfg.AccountID))
	}), nil
}

func NewR2MetadataPublisher(client ObjectPutter, cfg config.R2Config, logger logging.Logger) *R2MetadataPublisher {
	cdnBaseURL := strings.TrimRight(cfg.CDNBaseURL, "/")
	if cdnBaseURL == "" {
		cdnBaseURL = r2Endpoint(cfg.AccountID)
	}
	return &R2MetadataPublisher{
		client:     client,
		bucket:     cfg.Bucket,
		cdnBaseURL: cdnBaseURL,
		logger:     logger.With("component", "r2"),
	}
}

// PublishMetadata stores the document under key and returns its public CDN URL.
func (p *R2MetadataPublisher) PublishMetadata(ctx context.Context, key string, metadata models.AwardMetadata) (string, error) {
	body, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(p.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String("application/json"),
		CacheControl: aws.String("public, max-age=300"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}

	url := fmt.Sprintf("%s/%s", p.cdnBaseURL, key)
	p.logger.Info("metadata uploaded", "key", key, "url", url)
	return url, nil
}

func r2Endpoint(accountID string) string {
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)
}
