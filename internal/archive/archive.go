// Package archive ships compacted or flushed SSTs to an S3-compatible
// bucket as a best-effort cold-storage tier, entirely below and
// decoupled from the core catalog. Nothing here ever blocks or fails
// a write/read against the live store.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/golang/snappy"
	"golang.org/x/crypto/blake2b"
)

// S3Archiver uploads the concatenated data+index bytes of an SST,
// snappy-compressed, to a single S3 object per table.
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// New builds an S3Archiver using the default AWS credential chain
// (environment, shared config, EC2/ECS role) scoped to region.
func New(ctx context.Context, bucket, prefix, region string) (*S3Archiver, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}
	return &S3Archiver{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// Upload reads dataPath and its sibling indexPath, concatenates them
// behind a snappy frame and a blake2b-256 checksum header, and puts
// the result at `<prefix>/<base>.archive` in the bucket. Errors are
// returned to the caller to log; the caller is expected to never let
// an archive failure affect the read/write path.
func (a *S3Archiver) Upload(ctx context.Context, dataPath, indexPath string) error {
	payload, err := a.buildPayload(dataPath, indexPath)
	if err != nil {
		return err
	}

	key := filepath.Join(a.prefix, filepath.Base(dataPath)+".archive")
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(payload),
	})
	if err != nil {
		return fmt.Errorf("archive: put object %s: %w", key, err)
	}
	return nil
}

// buildPayload lays out: checksum of data ++ index (32 bytes,
// blake2b-256) | snappy(data ++ index).
func (a *S3Archiver) buildPayload(dataPath, indexPath string) ([]byte, error) {
	data, err := os.ReadFile(dataPath)
	if err != nil {
		return nil, fmt.Errorf("archive: read data file: %w", err)
	}
	index, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, fmt.Errorf("archive: read index file: %w", err)
	}

	combined := append(append([]byte(nil), data...), index...)
	sum := blake2b.Sum256(combined)
	compressed := snappy.Encode(nil, combined)

	var buf bytes.Buffer
	buf.Write(sum[:])
	buf.Write(compressed)
	return buf.Bytes(), nil
}

// Verify recomputes the checksum embedded in an archive payload read
// from r and reports whether it matches the decompressed contents.
func Verify(r io.Reader) (bool, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return false, fmt.Errorf("archive: read payload: %w", err)
	}
	if len(payload) < blake2b.Size256 {
		return false, fmt.Errorf("archive: payload too short")
	}

	want := payload[:blake2b.Size256]
	compressed := payload[blake2b.Size256:]

	combined, err := snappy.Decode(nil, compressed)
	if err != nil {
		return false, fmt.Errorf("archive: decompress payload: %w", err)
	}
	got := blake2b.Sum256(combined)
	return bytes.Equal(want, got[:]), nil
}

// UploadAsync fires Upload in its own goroutine and calls onErr (if
// non-nil) with the result; used so flush/compaction never wait on
// network I/O.
func (a *S3Archiver) UploadAsync(dataPath, indexPath string, onErr func(error)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.Upload(ctx, dataPath, indexPath); err != nil && onErr != nil {
			onErr(err)
		}
	}()
}
