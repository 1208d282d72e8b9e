// Package media uploads post images to an external object store and returns
// durable public URLs. The store is an external collaborator behind the Relay
// interface; the production implementation targets any S3-compatible API.
package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/xid"

	"github.com/writique/writique/internal/apperror"
)

// Relay accepts an uploaded image and returns a durable URL for it.
type Relay interface {
	Upload(ctx context.Context, body io.Reader, filename, contentType string) (string, error)
}

// uploadTimeout bounds the synchronous relay call so a stalled upstream
// can't pin a request handler forever.
const uploadTimeout = 30 * time.Second

// S3Config holds the credentials and addressing for the object store.
type S3Config struct {
	Endpoint        string // e.g. https://<account>.r2.cloudflarestorage.com; empty for AWS
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PublicBaseURL   string // public host serving the bucket, e.g. a CDN domain
}

// S3Relay implements Relay on an S3-compatible bucket.
type S3Relay struct {
	client  *s3.Client
	bucket  string
	baseURL string
	logger  *slog.Logger
}

var _ Relay = (*S3Relay)(nil)

// NewS3Relay builds the S3 client from explicit static credentials — the
// relay never falls back to ambient machine credentials.
func NewS3Relay(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3Relay, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("media: loading object store config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &S3Relay{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		logger:  logger,
	}, nil
}

// Upload stores the image under a fresh key and returns its public URL.
//
// The key embeds an xid so two uploads of the same filename never collide.
// Failures are wrapped as upstream errors with a genericized message — the
// raw S3 error (which can include request ids and endpoint details) goes to
// the log only.
func (r *S3Relay) Upload(ctx context.Context, body io.Reader, filename, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	key := "writique/" + xid.New().String() + "_" + sanitizeFilename(filename)

	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		r.logger.Error("image upload failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return "", apperror.Upstream("error uploading image", err)
	}

	r.logger.Info("image uploaded", slog.String("key", key))

	return r.baseURL + "/" + key, nil
}

// sanitizeFilename keeps the base name and replaces anything outside a safe
// character set, so user-supplied names can't smuggle path segments into keys.
func sanitizeFilename(name string) string {
	name = path.Base(name)
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '.', c == '-', c == '_':
			b.WriteRune(c)
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "upload"
	}
	return b.String()
}
