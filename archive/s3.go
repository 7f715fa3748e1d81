package archive

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ensure interface is implemented
var _ Archiver = (*S3Archiver)(nil)

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archiver uploads exports under a prefix of an S3 bucket.
type S3Archiver struct {
	bucket   string
	prefix   string
	uploader uploader
}

// NewS3Archiver creates a new S3Archiver using the default AWS credential
// chain. An empty region defers to the environment and shared config.
func NewS3Archiver(ctx context.Context, bucket, prefix, region string) (*S3Archiver, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3Archiver{
		bucket:   bucket,
		prefix:   prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

// buildKey constructs the full S3 key based on the archiver's prefix
func (a *S3Archiver) buildKey(name string) string {
	name = strings.TrimPrefix(name, "/")
	if a.prefix == "" {
		return name
	}
	// Avoid double slashes
	key := path.Join(a.prefix, name)
	return strings.TrimPrefix(key, "/")
}

func (a *S3Archiver) Location(name string) string {
	return "s3://" + a.bucket + "/" + a.buildKey(name)
}

// OpenWrite streams into a multipart upload that completes on Close.
func (a *S3Archiver) OpenWrite(ctx context.Context, name string) (io.WriteCloser, error) {
	key := a.buildKey(name)
	pr, pw := io.Pipe()

	errChan := make(chan error, 1)
	go func() {
		_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        pr,
			ContentType: aws.String("application/json"),
		})
		pr.CloseWithError(err)
		errChan <- err
	}()

	return &asyncS3Writer{pw: pw, errChan: errChan}, nil
}

type asyncS3Writer struct {
	pw      *io.PipeWriter
	errChan <-chan error
}

func (w *asyncS3Writer) Write(p []byte) (n int, err error) {
	return w.pw.Write(p)
}

// Abort fails the upload so that no object is created.
func (w *asyncS3Writer) Abort(cause error) {
	w.pw.CloseWithError(cause)
	<-w.errChan
}

func (w *asyncS3Writer) Close() error {
	if err := w.pw.Close(); err != nil {
		return err
	}
	// Wait for upload to complete
	if err := <-w.errChan; err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	return nil
}
