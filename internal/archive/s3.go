// Package archive persists raw API payloads to S3 for audit and replay.
package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

const jsonContentType = "application/json"

// s3API is the slice of the S3 client the store needs. *s3.S3 satisfies it.
type s3API interface {
	PutObject(*s3.PutObjectInput) (*s3.PutObjectOutput, error)
	GetObject(*s3.GetObjectInput) (*s3.GetObjectOutput, error)
	ListObjectsV2Pages(*s3.ListObjectsV2Input, func(*s3.ListObjectsV2Output, bool) bool) error
}

// Object describes one archived payload.
type Object struct {
	Key  string
	Size int64
}

// S3Store stores JSON payloads in S3.
type S3Store struct {
	api s3API
}

// NewS3Store creates a store from an AWS session.
func NewS3Store(sess *session.Session) *S3Store {
	return &S3Store{api: s3.New(sess)}
}

// PutJSON serializes v and uploads it under bucket/key.
func (s *S3Store) PutJSON(bucket, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	_, err = s.api.PutObject(&s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(jsonContentType),
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// GetJSON downloads bucket/key and unmarshals it into out.
func (s *S3Store) GetJSON(bucket, key string, out any) error {
	result, err := s.api.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("downloading %s: %w", key, err)
	}
	defer result.Body.Close()

	body, err := io.ReadAll(result.Body)
	if err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshaling %s: %w", key, err)
	}
	return nil
}

// List returns the objects under bucket/prefix.
func (s *S3Store) List(bucket, prefix string) ([]Object, error) {
	var objects []Object
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}
	err := s.api.ListObjectsV2Pages(input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, item := range page.Contents {
			objects = append(objects, Object{
				Key:  aws.StringValue(item.Key),
				Size: aws.Int64Value(item.Size),
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s/%s: %w", bucket, prefix, err)
	}
	return objects, nil
}

// Bucket binds the store to a single bucket so the ingestion pipeline can
// archive by key alone.
type Bucket struct {
	store *S3Store
	name  string
}

// Bucket returns a single-bucket view of the store.
func (s *S3Store) Bucket(name string) *Bucket {
	return &Bucket{store: s, name: name}
}

// PutJSON uploads v under the bound bucket.
func (b *Bucket) PutJSON(key string, v any) error {
	return b.store.PutJSON(b.name, key, v)
}
