package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/forPelevin/shortify/internal/logger"
)

type S3Config struct {
	Bucket string
	// Prefix is prepended to every key, e.g. "shortify/".
	Prefix string
	// Region to use for requests. If empty, AWS defaults apply.
	Region string
	// UsePathStyle forces path-style addressing for S3-compatible providers.
	UsePathStyle bool
}

type putObjecter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 publishes artifacts to a bucket and returns s3:// URIs.
type S3 struct {
	client putObjecter
	cfg    S3Config
	log    *logger.Logger
}

func NewS3(ctx context.Context, cfg S3Config, log *logger.Logger) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("missing S3_BUCKET")
	}
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	c := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newS3(c, cfg, log), nil
}

func newS3(c putObjecter, cfg S3Config, log *logger.Logger) *S3 {
	return &S3{client: c, cfg: cfg, log: logger.OrNop(log).With("service", "S3Artifacts")}
}

func (s *S3) PutBytes(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	full := s.key(key)
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(full),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("s3 put %s: %w", full, err)
	}
	uri := "s3://" + s.cfg.Bucket + "/" + full
	s.log.Debug("uploaded artifact", "uri", uri, "bytes", len(data))
	return uri, nil
}

func (s *S3) PutFile(ctx context.Context, key, localPath string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}
	return s.PutBytes(ctx, key, data, mime.TypeByExtension(filepath.Ext(localPath)))
}

func (s *S3) key(k string) string {
	k = strings.TrimLeft(path.Clean("/"+filepath.ToSlash(k)), "/")
	if s.cfg.Prefix == "" {
		return k
	}
	return strings.TrimRight(s.cfg.Prefix, "/") + "/" + k
}
