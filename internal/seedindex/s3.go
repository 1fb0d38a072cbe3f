package seedindex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3Config locates the snapshot object.
type S3Config struct {
	Bucket    string
	Key       string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3Snapshot stores the index as one JSON object in S3 or a compatible
// service.
type S3Snapshot struct {
	client s3iface.S3API
	bucket string
	key    string
}

// NewS3Snapshot creates an S3Snapshot. Static credentials are used when both
// keys are set, otherwise the SDK's default chain applies.
func NewS3Snapshot(cfg S3Config) (*S3Snapshot, error) {
	if cfg.Bucket == "" || cfg.Key == "" {
		return nil, errors.New("s3 snapshot needs a bucket and key")
	}
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return NewS3SnapshotWithClient(s3.New(sess), cfg.Bucket, cfg.Key), nil
}

// NewS3SnapshotWithClient wraps an existing client.
func NewS3SnapshotWithClient(client s3iface.S3API, bucket, key string) *S3Snapshot {
	return &S3Snapshot{client: client, bucket: bucket, key: key}
}

// Load implements Snapshotter. A missing object is an empty index.
func (s *S3Snapshot) Load(ctx context.Context) ([]Entry, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, nil
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, s.key, err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3 snapshot: %w", err)
	}
	return decodeEntries(raw)
}

// Save implements Snapshotter.
func (s *S3Snapshot) Save(ctx context.Context, entries []Entry) error {
	raw, err := encodeEntries(entries)
	if err != nil {
		return err
	}
	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(raw),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}
