package seedindex_test

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmerrifield20/MedRecordLedger/internal/seedindex"
)

// fakeS3 keeps objects in memory. Only the calls the snapshot makes are
// implemented.
type fakeS3 struct {
	s3iface.S3API
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "not found", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(raw))}, nil
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	raw, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Bucket+"/"+*in.Key] = raw
	return &s3.PutObjectOutput{}, nil
}

func TestS3Snapshot_roundTrip(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	snap := seedindex.NewS3SnapshotWithClient(fake, "records", "seed-index.json")

	entries, err := snap.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)

	want := []seedindex.Entry{{Address: "addr1", Seed: "seed1"}, {Address: "addr2", Seed: seedindex.UnknownSeed}}
	require.NoError(t, snap.Save(context.Background(), want))
	assert.Contains(t, fake.objects, "records/seed-index.json")

	got, err := snap.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestNewS3Snapshot_requiresBucket(t *testing.T) {
	_, err := seedindex.NewS3Snapshot(seedindex.S3Config{Key: "k"})
	assert.Error(t, err)
}
