package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// qrPrefix is where published share codes live in the bucket.
const qrPrefix = "share-qr/"

type S3Service struct {
	client *s3.Client
	bucket string
	region string
}

func NewS3Service(ctx context.Context, bucket, region, accessKeyID, secretAccessKey string) (*S3Service, error) {
	if bucket == "" {
		return nil, fmt.Errorf("AWS_S3_BUCKET is required")
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &S3Service{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		region: region,
	}, nil
}

// Upload stores body under key.
func (s *S3Service) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	return err
}

// Delete removes the object from S3.
func (s *S3Service) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

// PresignedGetURL returns a temporary URL to download the object.
func (s *S3Service) PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	presigner := s3.NewPresignClient(s.client)
	req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// QRKey is the object key a share code is published under. The random suffix
// keeps the shareId from being guessable out of a bucket listing.
func QRKey(shareID string) string {
	return qrPrefix + shareID + "-" + uuid.New().String() + ".png"
}

// PublishQR uploads a rendered share code and returns its key and a presigned
// URL valid for expiry, so a second screen can display the code.
func (s *S3Service) PublishQR(ctx context.Context, shareID string, png []byte, expiry time.Duration) (key, url string, err error) {
	key = QRKey(shareID)
	if err := s.Upload(ctx, key, bytes.NewReader(png), "image/png"); err != nil {
		return "", "", fmt.Errorf("upload qr: %w", err)
	}
	url, err = s.PresignedGetURL(ctx, key, expiry)
	if err != nil {
		return "", "", fmt.Errorf("presign qr: %w", err)
	}
	return key, url, nil
}
