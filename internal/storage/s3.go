package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Publisher は完成した成果物を外部へ公開し、ダウンロードURLを返します。
type Publisher interface {
	Publish(ctx context.Context, jobID, filename, localPath, contentType string) (string, error)
}

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Publisher は成果物を S3 にアップロードし、署名付き GET URL を発行します。
type S3Publisher struct {
	bucket  string
	prefix  string
	expires time.Duration
	client  s3API
	presign presignAPI
}

// NewS3Publisher は既定の認証情報チェーンで S3 クライアントを作成します。
func NewS3Publisher(ctx context.Context, region, bucket string, expires time.Duration) (*S3Publisher, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Publisher{
		bucket:  bucket,
		prefix:  "jobs",
		expires: expires,
		client:  client,
		presign: s3.NewPresignClient(client),
	}, nil
}

// Publish は jobs/<jobID>/<filename> にアップロードします。
func (p *S3Publisher) Publish(ctx context.Context, jobID, filename, localPath, contentType string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	key := path.Join(p.prefix, jobID, filename)
	if _, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType),
	}); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	req, err := p.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(p.expires))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, nil
}
