package sink

import (
	"bytes"
	"context"
	"mime"
	"os"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/keithlinneman/linnemanlabs-seed/internal/cryptoutil"
	"github.com/keithlinneman/linnemanlabs-seed/internal/log"
	"github.com/keithlinneman/linnemanlabs-seed/internal/pathutil"
	"github.com/keithlinneman/linnemanlabs-seed/internal/seed"
	"github.com/keithlinneman/linnemanlabs-seed/internal/xerrors"
)

const (
	htmlContentType = "text/html; charset=utf-8"

	metaDigest    = "sha256"
	metaRevision  = "revision"
	metaPublished = "published"
)

// S3API is the subset of the S3 client the sink needs.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type S3Options struct {
	Client S3API
	Bucket string
	Prefix string

	// SkipUnchanged compares the stored sha256 metadata before uploading.
	SkipUnchanged bool

	Logger log.Logger
}

// S3 uploads pages and files to a bucket.
type S3 struct {
	client        S3API
	bucket        string
	prefix        string
	skipUnchanged bool
	logger        log.Logger
}

func NewS3(opts S3Options) (*S3, error) {
	if opts.Client == nil {
		return nil, xerrors.New("s3 client is required")
	}
	if opts.Bucket == "" {
		return nil, xerrors.New("s3 bucket is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &S3{
		client:        opts.Client,
		bucket:        opts.Bucket,
		prefix:        opts.Prefix,
		skipUnchanged: opts.SkipUnchanged,
		logger:        opts.Logger,
	}, nil
}

func (s *S3) Output(ctx context.Context, ev seed.Event) error {
	rel, err := pathutil.PageKey(ev.Path)
	if err != nil {
		return xerrors.Wrapf(err, "page %q", ev.Path)
	}
	key := pathutil.WithPrefix(s.prefix, rel)
	body := []byte(ev.Markup)
	digest := cryptoutil.SHA256Hex(body)

	meta := map[string]string{metaDigest: digest}
	if ev.Revision != nil {
		meta[metaRevision] = strconv.FormatInt(*ev.Revision, 10)
	}
	if p, ok := ev.Metadata["published"].(bool); ok {
		meta[metaPublished] = strconv.FormatBool(p)
	}

	if s.unchanged(ctx, key, meta) {
		s.logger.Debug(ctx, "page unchanged, skipping upload", "key", key)
		return nil
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(htmlContentType),
		Metadata:      meta,
	})
	if err != nil {
		return xerrors.Wrapf(err, "put s3://%s/%s", s.bucket, key)
	}
	s.logger.Debug(ctx, "page uploaded", "bucket", s.bucket, "key", key, "bytes", len(body))
	return nil
}

func (s *S3) File(ctx context.Context, ev seed.FileEvent) error {
	rel, err := pathutil.FileKey(ev.PublicPath)
	if err != nil {
		return xerrors.Wrapf(err, "file %q", ev.PublicPath)
	}
	key := pathutil.WithPrefix(s.prefix, rel)

	digest, size, err := cryptoutil.SHA256File(ev.SourcePath)
	if err != nil {
		return err
	}
	meta := map[string]string{metaDigest: digest}
	if s.unchanged(ctx, key, meta) {
		s.logger.Debug(ctx, "file unchanged, skipping upload", "key", key)
		return nil
	}

	f, err := os.Open(ev.SourcePath)
	if err != nil {
		return xerrors.Wrapf(err, "open %s", ev.SourcePath)
	}
	defer f.Close()

	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(size),
		Metadata:      meta,
	}
	if ct := mime.TypeByExtension(path.Ext(rel)); ct != "" {
		in.ContentType = aws.String(ct)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return xerrors.Wrapf(err, "put s3://%s/%s", s.bucket, key)
	}
	s.logger.Debug(ctx, "file uploaded", "bucket", s.bucket, "key", key, "bytes", size)
	return nil
}

// unchanged reports whether key already holds exactly meta: the same digest
// and the same revision and published values. Lookup failures, including a
// missing object, count as changed.
func (s *S3) unchanged(ctx context.Context, key string, meta map[string]string) bool {
	if !s.skipUnchanged {
		return false
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil || out == nil {
		return false
	}
	if !cryptoutil.HashEqual(out.Metadata[metaDigest], meta[metaDigest]) {
		return false
	}
	for _, k := range []string{metaRevision, metaPublished} {
		if out.Metadata[k] != meta[k] {
			return false
		}
	}
	return true
}
