package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"
)

// maxObjectSize bounds downloads handed to the extractor
const maxObjectSize = 20 << 20

var ErrObjectTooLarge = errors.New("object exceeds maximum receipt size")

// PresignedUpload describes a single PUT the client performs directly against the bucket
type PresignedUpload struct {
	Method    string            `json:"method"`
	UploadURL string            `json:"uploadUrl"`
	Headers   map[string]string `json:"headers"`
	Key       string            `json:"key"`
	FileURL   string            `json:"fileUrl"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// Client wraps the S3 client for receipt uploads and downloads
type Client struct {
	s3Client *s3.Client
	presign  *s3.PresignClient
	config   *Config
}

// NewClient creates a new S3 client for the receipt bucket
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("object store is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	client := &Client{
		s3Client: s3Client,
		presign:  s3.NewPresignClient(s3Client),
		config:   cfg,
	}

	if _, err := s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.BucketName)}); err != nil {
		return nil, fmt.Errorf("failed to reach bucket %s: %w", cfg.BucketName, err)
	}

	log.Infof("[ObjectStore] Initialized S3 client for bucket: %s", cfg.BucketName)
	return client, nil
}

// Config returns the bucket configuration
func (c *Client) Config() *Config {
	return c.config
}

// PresignPut returns a presigned PUT for a new receipt object owned by userID
func (c *Client) PresignPut(ctx context.Context, userID uint, fileName, contentType string) (*PresignedUpload, error) {
	key := c.config.ObjectKey(userID, fileName, time.Now().UTC())

	req, err := c.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.config.BucketName),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(c.config.PresignTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	headers := map[string]string{"Content-Type": contentType}
	for k, v := range req.SignedHeader {
		if len(v) > 0 && k != "Host" {
			headers[k] = v[0]
		}
	}

	return &PresignedUpload{
		Method:    req.Method,
		UploadURL: req.URL,
		Headers:   headers,
		Key:       key,
		FileURL:   c.config.ObjectURL(key),
		ExpiresAt: time.Now().UTC().Add(c.config.PresignTTL),
	}, nil
}

// Fetch downloads an object when fileURL points into the bucket. ok is false for foreign URLs.
func (c *Client) Fetch(ctx context.Context, fileURL string) (body []byte, contentType string, ok bool, err error) {
	key, ok := c.config.KeyFromURL(fileURL)
	if !ok {
		return nil, "", false, nil
	}

	out, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.config.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", true, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err = io.ReadAll(io.LimitReader(out.Body, maxObjectSize+1))
	if err != nil {
		return nil, "", true, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	if len(body) > maxObjectSize {
		return nil, "", true, ErrObjectTooLarge
	}
	return body, aws.ToString(out.ContentType), true, nil
}
