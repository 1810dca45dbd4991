package ingest

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"edgar_facts/pkg/core/filing"
	"edgar_facts/pkg/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// S3Options configures an S3Loader. Empty credentials use the default AWS chain.
type S3Options struct {
	Bucket          string
	Prefix          string // key prefix in front of the archive path
	Region          string
	Endpoint        string // S3-compatible endpoint, e.g. MinIO
	AccessKeyID     string
	SecretAccessKey string
	Logger          *zap.Logger
}

type objectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Loader reads submissions mirrored into a bucket under the archive layout.
type S3Loader struct {
	api    objectAPI
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3Loader creates the S3 client.
func NewS3Loader(ctx context.Context, opts S3Options) (*S3Loader, error) {
	if opts.Bucket == "" {
		return nil, eris.New("ingest: s3 bucket is required")
	}
	loadOpts := []func(*config.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKeyID,
			opts.SecretAccessKey,
			"",
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: load AWS config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Loader(client, opts), nil
}

func newS3Loader(api objectAPI, opts S3Options) *S3Loader {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Loader{
		api:    api,
		bucket: opts.Bucket,
		prefix: strings.Trim(opts.Prefix, "/"),
		logger: logger.With(zap.String("component", "s3_loader"), zap.String("bucket", opts.Bucket)),
	}
}

func (l *S3Loader) key(id models.FilingID) string {
	return path.Join(l.prefix, strings.TrimPrefix(string(id), "/"))
}

func (l *S3Loader) Load(ctx context.Context, id models.FilingID) (*filing.FileContent, error) {
	key := l.key(id)
	resp, err := l.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		var noBucket *types.NoSuchBucket
		switch {
		case errors.As(err, &noKey):
			return nil, permanent(id, eris.Wrapf(ErrNotFound, "s3://%s/%s", l.bucket, key))
		case errors.As(err, &noBucket):
			return nil, permanent(id, eris.Wrapf(ErrUnavailable, "bucket %s", l.bucket))
		}
		return nil, retryable(id, eris.Wrapf(err, "ingest: get object %s", key))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retryable(id, eris.Wrapf(err, "ingest: read object %s", key))
	}
	l.logger.Debug("loaded object", zap.String("key", key), zap.Int("bytes", len(data)))
	return filing.NewFileContent(string(id), data), nil
}

// List returns the ids of every .txt submission under prefix, in key order.
func (l *S3Loader) List(ctx context.Context, prefix string) ([]models.FilingID, error) {
	full := path.Join(l.prefix, strings.TrimPrefix(prefix, "/"))
	var ids []models.FilingID
	paginator := s3.NewListObjectsV2Paginator(l.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(l.bucket),
		Prefix: aws.String(full),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: list objects with prefix %s", full)
		}
		for _, obj := range page.Contents {
			k := aws.ToString(obj.Key)
			if !strings.HasSuffix(k, ".txt") {
				continue
			}
			rel := strings.TrimPrefix(strings.TrimPrefix(k, l.prefix), "/")
			ids = append(ids, models.FilingID(rel))
		}
	}
	return ids, nil
}
