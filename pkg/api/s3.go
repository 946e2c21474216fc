package api

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/portfolioor/pkg/config"
)

const imageKeyPrefix = "images/"

// presignCacheEntry holds a cached presigned URL and its expiration time.
type presignCacheEntry struct {
	url       string
	expiresAt time.Time
}

// presignedUpload is a presigned PUT request for a new image object.
type presignedUpload struct {
	URL     string      `json:"url"`
	Method  string      `json:"method"`
	Headers http.Header `json:"headers"`
}

// s3Presigner generates presigned URLs for post images stored in S3.
type s3Presigner struct {
	log           logrus.FieldLogger
	bucket        string
	presignClient *s3.PresignClient
	expiry        time.Duration
	cacheTTL      time.Duration
	mu            sync.RWMutex
	cache         map[string]presignCacheEntry
}

// newS3Presigner creates a new S3 presigner from the given configuration.
func newS3Presigner(
	log logrus.FieldLogger,
	cfg *config.S3Config,
) *s3Presigner {
	expiry := cfg.PresignedURLs.ExpiryDuration()

	return &s3Presigner{
		log:           log.WithField("component", "s3-presigner"),
		bucket:        cfg.Bucket,
		presignClient: s3.NewPresignClient(newPresignS3Client(cfg)),
		expiry:        expiry,
		cacheTTL:      expiry / 2,
		cache:         make(map[string]presignCacheEntry),
	}
}

// PresignGet returns a presigned GET URL for the given image key.
// Results are cached for half the presigned URL expiry duration to avoid
// redundant presigning while ensuring URLs always have sufficient validity.
func (p *s3Presigner) PresignGet(
	ctx context.Context,
	key string,
) (string, error) {
	if !isAllowedImageKey(key) {
		return "", fmt.Errorf("%w: image key %q is not allowed", errValidation, key)
	}

	now := time.Now()

	// Fast path: check cache under read lock.
	p.mu.RLock()
	if entry, ok := p.cache[key]; ok && now.Before(entry.expiresAt) {
		p.mu.RUnlock()

		return entry.url, nil
	}
	p.mu.RUnlock()

	// Slow path: acquire write lock and double-check.
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.cache[key]; ok && now.Before(entry.expiresAt) {
		return entry.url, nil
	}

	result, err := p.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(p.expiry))
	if err != nil {
		return "", fmt.Errorf("presigning GET for %q: %w", key, err)
	}

	p.cache[key] = presignCacheEntry{
		url:       result.URL,
		expiresAt: now.Add(p.cacheTTL),
	}

	return result.URL, nil
}

// PresignPut returns a presigned PUT request that uploads an image with
// the given content type under key.
func (p *s3Presigner) PresignPut(
	ctx context.Context,
	key, contentType string,
) (*presignedUpload, error) {
	if !isAllowedImageKey(key) {
		return nil, fmt.Errorf("%w: image key %q is not allowed", errValidation, key)
	}

	result, err := p.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(p.expiry))
	if err != nil {
		return nil, fmt.Errorf("presigning PUT for %q: %w", key, err)
	}

	p.log.WithField("key", key).Debug("Presigned image upload")

	return &presignedUpload{
		URL:     result.URL,
		Method:  result.Method,
		Headers: result.SignedHeader,
	}, nil
}

// isAllowedImageKey checks that the key is clean and lives under images/.
func isAllowedImageKey(key string) bool {
	if !strings.HasPrefix(key, imageKeyPrefix) || key == imageKeyPrefix {
		return false
	}

	// Reject path traversal.
	if strings.Contains(key, "..") {
		return false
	}

	// Clean the path and ensure it didn't change meaning.
	return path.Clean(key) == key
}

// newPresignS3Client constructs an S3 client from the storage config.
func newPresignS3Client(cfg *config.S3Config) *s3.Client {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	return s3.New(s3.Options{}, opts...)
}
