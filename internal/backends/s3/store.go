package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"kwrelay/internal/backends/flat"
	"kwrelay/internal/types"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Store keeps each registry as a flat text object under prefix in bucket. PutObject replaces
// an object atomically, so readers see either the old or the new snapshot. The ETag is the
// snapshot's version.
type Store struct {
	cli    *s3.Client
	bucket string
	prefix string
}

func NewStore(cli *s3.Client, bucket, prefix string) *Store {
	return &Store{cli: cli, bucket: bucket, prefix: prefix}
}

func (s *Store) Load(ctx context.Context, resource string) ([]string, error) {
	entries, _, err := s.LoadVersion(ctx, resource)
	return entries, err
}

// LoadVersion returns the object's ETag as its version.
func (s *Store) LoadVersion(ctx context.Context, resource string) ([]string, string, error) {
	resp, err := s.cli.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(resource)),
	})
	if err != nil {
		if isNotFound(err) {
			return []string{}, "", nil
		}
		return nil, "", types.Err(types.ErrPersistence, err, "get s3://%s/%s", s.bucket, s.key(resource))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", types.Err(types.ErrPersistence, err, "read s3://%s/%s", s.bucket, s.key(resource))
	}
	return flat.Parse(data), aws.ToString(resp.ETag), nil
}

func (s *Store) Save(ctx context.Context, resource string, entries []string) error {
	return s.put(ctx, s.putInput(resource, entries))
}

// SaveIfVersion uses S3 conditional writes: If-Match on the ETag, or If-None-Match: * when
// the object did not exist.
func (s *Store) SaveIfVersion(ctx context.Context, resource string, entries []string, version string) error {
	in := s.putInput(resource, entries)
	if version == "" {
		in.IfNoneMatch = aws.String("*")
	} else {
		in.IfMatch = aws.String(version)
	}
	return s.put(ctx, in)
}

func (s *Store) putInput(resource string, entries []string) *s3.PutObjectInput {
	return &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(resource)),
		Body:        bytes.NewReader(flat.Format(entries)),
		ContentType: aws.String("text/plain; charset=utf-8"),
	}
}

func (s *Store) put(ctx context.Context, in *s3.PutObjectInput) error {
	_, err := s.cli.PutObject(ctx, in)
	switch {
	case err == nil:
		return nil
	case isPreconditionFailed(err):
		return types.Err(types.ErrConflict, err, "s3://%s/%s changed", s.bucket, aws.ToString(in.Key))
	default:
		return types.Err(types.ErrPersistence, err, "put s3://%s/%s", s.bucket, aws.ToString(in.Key))
	}
}

func (s *Store) key(resource string) string {
	if s.prefix == "" {
		return resource
	}
	return path.Join(s.prefix, resource)
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey"
	}
	return false
}

// isPreconditionFailed covers a failed If-Match/If-None-Match (412) and a conditional write
// racing another one on the same key (409).
func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}
