package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"clipwise/internal/awsutil"
	"clipwise/internal/config"
	"clipwise/internal/logging"
)

// S3API is the subset of the S3 client used by the S3 backend.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// S3 stores objects in a bucket, optionally beneath a key prefix.
type S3 struct {
	client S3API
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3FromConfig builds an S3 backend using the default AWS credential chain.
func NewS3FromConfig(ctx context.Context, cfg config.Storage, logger *slog.Logger) (*S3, error) {
	awsCfg, err := awsutil.LoadConfig(ctx, cfg.Region)
	if err != nil {
		return nil, err
	}
	return NewS3(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Prefix, logger)
}

// NewS3 wraps an existing client.
func NewS3(client S3API, bucket, prefix string, logger *slog.Logger) (*S3, error) {
	if client == nil {
		return nil, errors.New("s3 storage requires a client")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("s3 storage requires a bucket")
	}
	return &S3{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logging.NewComponentLogger(logger, "storage.s3"),
	}, nil
}

func (s *S3) Name() string { return "s3" }

func (s *S3) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *S3) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		IfNoneMatch:   aws.String("*"),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		code := awsutil.ErrorCode(err)
		status := awsutil.HTTPStatus(err)
		if code == "PreconditionFailed" || code == "ConditionalRequestConflict" ||
			status == http.StatusPreconditionFailed || status == http.StatusConflict {
			return fmt.Errorf("%s: %w", key, ErrExists)
		}
		return fmt.Errorf("put %s: %w", key, err)
	}
	s.logger.Debug("object stored",
		logging.String("key", key),
		logging.Int("bytes", len(data)),
	)
	return nil
}

func (s *S3) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) || awsutil.ErrorCode(err) == "NotFound" {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (s *S3) List(ctx context.Context, prefix string) ([]Object, error) {
	fullPrefix := strings.TrimPrefix(prefix, "/")
	if s.prefix != "" {
		fullPrefix = s.prefix + "/" + fullPrefix
	}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(fullPrefix),
	})
	var objects []Object
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if s.prefix != "" {
				key = strings.TrimPrefix(key, s.prefix+"/")
			}
			item := Object{Key: key, Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				item.ModifiedAt = obj.LastModified.UTC()
			}
			objects = append(objects, item)
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}
