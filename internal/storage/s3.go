package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// Options configures the S3 client. Empty keys use the default AWS
// credential chain.
type Options struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Client downloads job inputs and uploads finished documents.
type S3Client struct {
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucketName string
}

// NewS3Client creates a new S3 client.
func NewS3Client(ctx context.Context, opts Options) (*S3Client, error) {
	var loadOpts []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awscfg.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}

	cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(cfg)
	return &S3Client{
		uploader:   manager.NewUploader(cli),
		downloader: manager.NewDownloader(cli),
		bucketName: opts.Bucket,
	}, nil
}

// Bucket is the default bucket for uploads.
func (s *S3Client) Bucket() string { return s.bucketName }

// DownloadFile writes s3://bucket/key to dst.
func (s *S3Client) DownloadFile(ctx context.Context, bucket, key, dst string) error {
	if bucket == "" {
		bucket = s.bucketName
	}
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	n, err := s.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("failed to download s3://%s/%s: %w", bucket, key, err)
	}
	log.Debug().Str("bucket", bucket).Str("key", key).Int64("bytes", n).Msg("downloaded object from S3")
	return nil
}

// UploadFile uploads the local file at src under key and returns the object
// location.
func (s *S3Client) UploadFile(ctx context.Context, key, src, contentType string) (string, error) {
	if s.bucketName == "" {
		return "", fmt.Errorf("upload %s: no bucket configured", key)
	}
	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()

	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Info().Str("key", key).Str("location", out.Location).Msg("uploaded result to S3")
	return out.Location, nil
}

// ParseS3URL splits s3://bucket/key.
func ParseS3URL(ref string) (bucket, key string, err error) {
	p := strings.TrimPrefix(ref, "s3://")
	slash := strings.Index(p, "/")
	if !strings.HasPrefix(ref, "s3://") || slash <= 0 || slash == len(p)-1 {
		return "", "", fmt.Errorf("invalid s3 url: %s", ref)
	}
	return p[:slash], p[slash+1:], nil
}

// ResultKey is the object key of a finished document: prefix/jobID/name.
func ResultKey(prefix, jobID, name string) string {
	return path.Join(strings.Trim(prefix, "/"), jobID, path.Base(name))
}
