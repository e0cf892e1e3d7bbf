// Package publish uploads generated sites to S3-compatible object storage so
// each history record can carry a public URL.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Config mirrors config.PublishConfig.
type Config struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

// S3Publisher stores one index.html per generation.
type S3Publisher struct {
	client  *minio.Client
	bucket  string
	region  string
	baseURL string

	bucketMu      sync.Mutex
	bucketReady   bool
	bucketTimeout time.Duration
}

// NewS3Publisher validates cfg and builds a client. No request is made until
// the first Publish.
func NewS3Publisher(cfg Config) (*S3Publisher, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, errors.New("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	base := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + endpoint + "/" + bucket
	}
	return &S3Publisher{
		client:        client,
		bucket:        bucket,
		region:        region,
		baseURL:       base,
		bucketTimeout: 10 * time.Second,
	}, nil
}

// ensureBucket creates the bucket on first use. Only success is remembered;
// a failed check is retried by the next Publish. The check ignores caller
// cancellation and is bounded by bucketTimeout instead.
func (p *S3Publisher) ensureBucket(ctx context.Context) error {
	p.bucketMu.Lock()
	defer p.bucketMu.Unlock()
	if p.bucketReady {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.bucketTimeout)
	defer cancel()

	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{Region: p.region}); err != nil {
			return err
		}
	}
	p.bucketReady = true
	return nil
}

// Publish uploads markup as sites/<owner>/<generation>/index.html and
// returns its public URL.
func (p *S3Publisher) Publish(ctx context.Context, ownerID, generationID, markup string) (string, error) {
	ctx, span := otel.Tracer("publish/S3Publisher").Start(ctx, "Publish",
		trace.WithAttributes(
			attribute.String("user.id", ownerID),
			attribute.String("generation.id", generationID),
		),
	)
	defer span.End()

	key, err := ObjectKey(ownerID, generationID)
	if err != nil {
		return "", err
	}
	if err := p.ensureBucket(ctx); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("ensure bucket: %w", err)
	}
	body := []byte(markup)
	if _, err := p.client.PutObject(ctx, p.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType:  "text/html; charset=utf-8",
		CacheControl: "public, max-age=300",
	}); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return p.baseURL + "/" + key, nil
}

// ObjectKey returns the storage key for a generation. Both ids are path
// escaped so an owner id cannot climb out of its prefix.
func ObjectKey(ownerID, generationID string) (string, error) {
	ownerID = strings.TrimSpace(ownerID)
	generationID = strings.TrimSpace(generationID)
	if ownerID == "" || generationID == "" {
		return "", errors.New("owner and generation id are required")
	}
	return "sites/" + url.PathEscape(ownerID) + "/" + url.PathEscape(generationID) + "/index.html", nil
}
