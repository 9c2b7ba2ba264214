package statebundle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ace-loop/trading-ace/internal/observ"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store persists bundles to an S3 bucket for durability across process
// restarts and hosts, uploading and downloading via the s3manager helpers so
// large bundles stream in parts rather than buffering an unbounded object in
// one PutObject call.
type S3Store struct {
	bucket    string
	prefix    string
	uploader  *manager.Uploader
	downloader *manager.Downloader
	client    *s3.Client
}

// NewS3Store builds an S3Store using the default AWS credential chain
// (environment, shared config, or instance role).
func NewS3Store(ctx context.Context, bucket, prefix string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("statebundle: load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Store{
		bucket:     bucket,
		prefix:     prefix,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		client:     client,
	}, nil
}

func (s *S3Store) key(date string) string {
	return fmt.Sprintf("%s/bundle_%s.json", s.prefix, date)
}

func (s *S3Store) Publish(ctx context.Context, b Bundle) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("statebundle: marshal: %w", err)
	}
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         strPtr(s.key(b.Date)),
		Body:        bytes.NewReader(data),
		ContentType: strPtr("application/json"),
	})
	if err != nil {
		return fmt.Errorf("statebundle: upload: %w", err)
	}
	observ.Log("statebundle.published", map[string]any{"date": b.Date, "run_id": b.RunID, "backend": "s3"})
	return nil
}

func (s *S3Store) Restore(ctx context.Context, date string) (Bundle, bool, error) {
	buf := manager.NewWriteAtBuffer(nil)
	_, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    strPtr(s.key(date)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return Bundle{}, false, nil
		}
		return Bundle{}, false, fmt.Errorf("statebundle: download: %w", err)
	}
	var b Bundle
	if err := json.Unmarshal(buf.Bytes(), &b); err != nil {
		return Bundle{}, false, fmt.Errorf("statebundle: decode: %w", err)
	}
	observ.Log("statebundle.restored", map[string]any{"date": date, "run_id": b.RunID, "backend": "s3"})
	return b, true, nil
}

func strPtr(s string) *string { return &s }
