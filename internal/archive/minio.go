package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/ugclab/ugc-pipeline/internal/store/model"
	"go.uber.org/zap"
)

const (
	defaultPrefix = "jobs"
	defaultRegion = "us-east-1"
	contentType   = "application/json"
)

type MinioOpts func(c *minioConfig)

type minioConfig struct {
	endpoint        string
	bucket          string
	accessKey       string
	secretAccessKey string
	prefix          string
	region          string
	useSSL          bool
}

func newConfig(opts ...MinioOpts) *minioConfig {
	cfg := &minioConfig{
		prefix: defaultPrefix,
		region: defaultRegion,
	}

	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// MinioArchiver stores terminal job records as json objects named
// <prefix>/<job id>.json.
type MinioArchiver struct {
	cfg    *minioConfig
	client *minio.Client
}

func NewMinioArchiver(opts ...MinioOpts) (*MinioArchiver, error) {
	cfg := newConfig(opts...)
	if cfg.bucket == "" {
		return nil, fmt.Errorf("archive bucket is not set")
	}

	client, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, ""),
		Secure: cfg.useSSL,
		Region: cfg.region,
	})
	if err != nil {
		return nil, err
	}

	return &MinioArchiver{cfg: cfg, client: client}, nil
}

// EnsureBucket creates the bucket when it does not exist.
func (a *MinioArchiver) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.cfg.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", a.cfg.bucket, err)
	}
	if exists {
		return nil
	}

	if err := a.client.MakeBucket(ctx, a.cfg.bucket, minio.MakeBucketOptions{Region: a.cfg.region}); err != nil {
		return fmt.Errorf("creating bucket %s: %w", a.cfg.bucket, err)
	}
	zap.S().Named("archive").Infow("bucket created", "bucket", a.cfg.bucket)
	return nil
}

func (a *MinioArchiver) Archive(ctx context.Context, job *model.Job) error {
	if !job.Terminal() {
		return fmt.Errorf("job %s is %s: only terminal jobs are archived", job.ID, job.Status)
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job %s: %w", job.ID, err)
	}

	info, err := a.client.PutObject(ctx, a.cfg.bucket, a.ObjectName(job.ID), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"job-status": string(job.Status),
		},
	})
	if err != nil {
		return fmt.Errorf("archiving job %s: %w", job.ID, err)
	}

	zap.S().Named("archive").Debugw("job archived", "job_id", job.ID, "object", info.Key, "size", info.Size)
	return nil
}

func (a *MinioArchiver) ObjectName(jobID string) string {
	return path.Join(a.cfg.prefix, jobID+".json")
}

func WithEndpoint(endpoint string) MinioOpts {
	return func(c *minioConfig) {
		c.endpoint = endpoint
	}
}

func WithBucket(bucket string) MinioOpts {
	return func(c *minioConfig) {
		c.bucket = bucket
	}
}

func WithPrefix(prefix string) MinioOpts {
	return func(c *minioConfig) {
		c.prefix = prefix
	}
}

func WithAccessKey(accessKey string) MinioOpts {
	return func(c *minioConfig) {
		c.accessKey = accessKey
	}
}

func WithSecretKey(secretKey string) MinioOpts {
	return func(c *minioConfig) {
		c.secretAccessKey = secretKey
	}
}

func WithSSL(useSSL bool) MinioOpts {
	return func(c *minioConfig) {
		c.useSSL = useSSL
	}
}
