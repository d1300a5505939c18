package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/relaymesh/gateway/internal/persistence/driver/aws/internal/awsx"
	"github.com/relaymesh/gateway/internal/persistence/objectstore"
	"github.com/relaymesh/gateway/internal/stream"
)

// ObjectStore is an implementation of [objectstore.Client] that stores
// objects in S3 buckets.
type ObjectStore struct {
	// Client is the S3 client to use.
	Client *s3.Client

	// DecorateGetObject is an optional function that is called before each S3
	// "GetObject" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecorateGetObject func(*s3.GetObjectInput) []func(*s3.Options)

	// DecoratePutObject is an optional function that is called before each S3
	// "PutObject" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecoratePutObject func(*s3.PutObjectInput) []func(*s3.Options)

	// DecorateDeleteObject is an optional function that is called before each
	// S3 "DeleteObject" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecorateDeleteObject func(*s3.DeleteObjectInput) []func(*s3.Options)

	// DecorateListObjects is an optional function that is called before each
	// S3 "ListObjectsV2" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecorateListObjects func(*s3.ListObjectsV2Input) []func(*s3.Options)
}

// GetObject returns the object stored under key, or nil if it does not exist.
func (s *ObjectStore) GetObject(ctx context.Context, key, bucket string) (*objectstore.Object, error) {
	out, err := awsx.Do(
		ctx,
		s.Client.GetObject,
		s.DecorateGetObject,
		&s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		},
	)
	if err != nil {
		if errors.As(err, new(*types.NoSuchKey)) {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to get object %q: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read object %q: %w", key, err)
	}

	return &objectstore.Object{
		Body:     body,
		Metadata: out.Metadata,
	}, nil
}

// PutObject stores obj under key, replacing any existing object.
func (s *ObjectStore) PutObject(ctx context.Context, obj *objectstore.Object, key, bucket string) error {
	if _, err := awsx.Do(
		ctx,
		s.Client.PutObject,
		s.DecoratePutObject,
		&s3.PutObjectInput{
			Bucket:   aws.String(bucket),
			Key:      aws.String(key),
			Body:     bytes.NewReader(obj.Body),
			Metadata: obj.Metadata,
		},
	); err != nil {
		return fmt.Errorf("unable to put object %q: %w", key, err)
	}

	return nil
}

// DeleteObject deletes the object stored under key if it exists.
func (s *ObjectStore) DeleteObject(ctx context.Context, key, bucket string) error {
	if _, err := awsx.Do(
		ctx,
		s.Client.DeleteObject,
		s.DecorateDeleteObject,
		&s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		},
	); err != nil {
		return fmt.Errorf("unable to delete object %q: %w", key, err)
	}

	return nil
}

// ListObjectKeys returns a lazy stream of the keys that start with prefix.
//
// Keys are produced one page at a time; the next page is not requested until
// the current one is exhausted.
func (s *ObjectStore) ListObjectKeys(ctx context.Context, prefix, bucket string) stream.Stream[string] {
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}

	var options []func(*s3.Options)
	if s.DecorateListObjects != nil {
		options = s.DecorateListObjects(in)
	}

	paginator := s3.NewListObjectsV2Paginator(s.Client, in)

	var page []string

	return stream.Func[string](func(ctx context.Context) (string, bool, error) {
		for len(page) == 0 {
			if !paginator.HasMorePages() {
				return "", false, nil
			}

			out, err := paginator.NextPage(ctx, options...)
			if err != nil {
				return "", false, fmt.Errorf("unable to list objects under %q: %w", prefix, err)
			}

			for _, obj := range out.Contents {
				page = append(page, aws.ToString(obj.Key))
			}
		}

		key := page[0]
		page = page[1:]
		return key, true, nil
	})
}
