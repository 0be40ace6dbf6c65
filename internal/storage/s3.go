package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/snarg/transcriptor/internal/config"
)

// deleteBatch is the DeleteObjects per-request ceiling.
const deleteBatch = 1000

// S3Store keeps uploads in an S3-compatible bucket under "<prefix>/uploads/".
type S3Store struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	root          string
	presignExpiry time.Duration
	log           zerolog.Logger
}

// NewS3Store builds a client from config. Static credentials are used when
// an access key is set, otherwise the default AWS credential chain. A custom
// endpoint (MinIO, R2) switches to path-style addressing.
func NewS3Store(cfg config.S3Config, log zerolog.Logger) (*S3Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		root:          path.Join(strings.Trim(cfg.Prefix, "/"), "uploads") + "/",
		presignExpiry: cfg.PresignExpiry,
		log:           log.With().Str("component", "s3-store").Logger(),
	}, nil
}

// HeadBucket verifies the bucket is reachable with the configured credentials.
func (s *S3Store) HeadBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

func (s *S3Store) Save(ctx context.Context, key string, data []byte, contentType string) error {
	objKey, err := s.objectKey(key)
	if err != nil {
		return err
	}
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("put %s: %w", objKey, err)
	}
	return nil
}

// Open streams an object. A missing object yields an error matching
// fs.ErrNotExist.
func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	objKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("%s: %w", key, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("get %s: %w", objKey, err)
	}
	return out.Body, nil
}

// Delete removes the object. S3 reports success for missing keys.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	objKey, err := s.objectKey(key)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	return err
}

func (s *S3Store) Exists(ctx context.Context, key string) bool {
	objKey, err := s.objectKey(key)
	if err != nil {
		return false
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	return err == nil
}

// URL presigns a GET that downloads the object under its own file name.
func (s *S3Store) URL(ctx context.Context, key string) (string, error) {
	objKey, err := s.objectKey(key)
	if err != nil {
		return "", err
	}
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(s.bucket),
		Key:                        aws.String(objKey),
		ResponseContentDisposition: aws.String(fmt.Sprintf(`attachment; filename="%s"`, path.Base(key))),
	}, s3.WithPresignExpires(s.presignExpiry))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", objKey, err)
	}
	return req.URL, nil
}

func (s *S3Store) Type() string { return "s3" }

// PruneOlderThan deletes uploads last modified before cutoff, in batches.
func (s *S3Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int, int64, error) {
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.root),
	})

	var (
		batch []types.ObjectIdentifier
		sizes = make(map[string]int64)
		count int
		freed int64
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: batch, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete objects: %w", err)
		}
		failed := make(map[string]bool, len(out.Errors))
		for _, e := range out.Errors {
			k := aws.ToString(e.Key)
			failed[k] = true
			s.log.Warn().Str("key", k).Str("code", aws.ToString(e.Code)).Msg("prune delete failed")
		}
		for _, obj := range batch {
			k := aws.ToString(obj.Key)
			if !failed[k] {
				count++
				freed += sizes[k]
			}
			delete(sizes, k)
		}
		batch = batch[:0]
		return nil
	}

	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return count, freed, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.LastModified == nil || !obj.LastModified.Before(cutoff) {
				continue
			}
			batch = append(batch, types.ObjectIdentifier{Key: obj.Key})
			sizes[aws.ToString(obj.Key)] = aws.ToInt64(obj.Size)
			if len(batch) == deleteBatch {
				if err := flush(); err != nil {
					return count, freed, err
				}
			}
		}
	}
	return count, freed, flush()
}

// objectKey maps a store key to its bucket key.
func (s *S3Store) objectKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") || path.Clean(key) != key || strings.HasPrefix(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return s.root + key, nil
}
