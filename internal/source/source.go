// Package source opens kinwin inputs: local files, "-" for stdin, and
// s3://bucket/key objects. Gzip-compressed streams are detected by their
// magic bytes and decompressed transparently.
package source

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// S3Config holds S3 client settings. Credentials come from the default AWS
// chain unless AccessKeyID is set.
type S3Config struct {
	Region          string
	Endpoint        string // optional; e.g. a MinIO URL
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
}

// Opener opens input paths. The S3 client is created on first use.
type Opener struct {
	cfg    S3Config
	client *s3.Client
	stdin  io.Reader
	logger *zap.Logger
}

// NewOpener creates an opener using cfg for s3:// paths.
func NewOpener(cfg S3Config) *Opener {
	return &Opener{cfg: cfg, stdin: os.Stdin, logger: zap.NewNop()}
}

// SetLogger sets the logger for fetch messages.
func (o *Opener) SetLogger(l *zap.Logger) {
	o.logger = l
}

// SetS3Client replaces the lazily built S3 client.
func (o *Opener) SetS3Client(c *s3.Client) {
	o.client = c
}

// SetStdin replaces the reader used for "-".
func (o *Opener) SetStdin(r io.Reader) {
	o.stdin = r
}

// IsS3 reports whether path is an s3:// URL.
func IsS3(path string) bool {
	return strings.HasPrefix(path, "s3://")
}

// ParseS3URL splits s3://bucket/key into its bucket and key.
func ParseS3URL(path string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(path, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 url: %s", path)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 url needs bucket and key: %s", path)
	}
	return bucket, key, nil
}

// Open opens path for reading and decompresses gzip input.
func (o *Opener) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	raw, err := o.openRaw(ctx, path)
	if err != nil {
		return nil, err
	}
	return Decompress(raw)
}

func (o *Opener) openRaw(ctx context.Context, path string) (io.ReadCloser, error) {
	switch {
	case path == "-":
		return io.NopCloser(o.stdin), nil
	case IsS3(path):
		return o.getObject(ctx, path)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		return f, nil
	}
}

func (o *Opener) s3Client(ctx context.Context) (*s3.Client, error) {
	if o.client != nil {
		return o.client, nil
	}
	region := o.cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if o.cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.cfg.AccessKeyID, o.cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	o.client = s3.NewFromConfig(awsCfg, func(opt *s3.Options) {
		if o.cfg.PathStyle {
			opt.UsePathStyle = true
		}
		if o.cfg.Endpoint != "" {
			opt.BaseEndpoint = aws.String(o.cfg.Endpoint)
		}
	})
	return o.client, nil
}

func (o *Opener) getObject(ctx context.Context, path string) (io.ReadCloser, error) {
	bucket, key, err := ParseS3URL(path)
	if err != nil {
		return nil, err
	}
	client, err := o.s3Client(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return nil, fmt.Errorf("get s3 object %s: %w", path, err)
	}
	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	o.logger.Info("reading s3 object",
		zap.String("bucket", bucket), zap.String("key", key), zap.Int64("size", size))
	return out.Body, nil
}

// Localize returns a local file path for path, downloading s3:// objects
// into dir. Local paths are returned unchanged with a no-op cleanup. The
// object is copied as stored, without decompression.
func (o *Opener) Localize(ctx context.Context, path, dir string) (string, func(), error) {
	if !IsS3(path) {
		return path, func() {}, nil
	}
	body, err := o.getObject(ctx, path)
	if err != nil {
		return "", nil, err
	}
	defer body.Close()

	_, key, _ := ParseS3URL(path)
	f, err := os.CreateTemp(dir, "kinwin-*-"+filepath.Base(key))
	if err != nil {
		return "", nil, fmt.Errorf("create download file: %w", err)
	}
	cleanup := func() { os.Remove(f.Name()) }
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("download %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close download file: %w", err)
	}
	return f.Name(), cleanup, nil
}

// Decompress wraps rc in a gzip reader when the stream starts with the gzip
// magic number (0x1f, 0x8b). Closing the result closes rc.
func Decompress(rc io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReader(rc)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		rc.Close()
		return nil, fmt.Errorf("read input header: %w", err)
	}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		return &readCloser{Reader: gz, close: func() error {
			gz.Close()
			return rc.Close()
		}}, nil
	}
	return &readCloser{Reader: br, close: rc.Close}, nil
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r *readCloser) Close() error {
	return r.close()
}
