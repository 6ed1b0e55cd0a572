// Package s3test provides in-memory stand-ins for the s3util interfaces.
package s3test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Object is a stored blob.
type Object struct {
	Data        []byte
	ContentType string
	Tagging     string
}

// Store is an in-memory bucket set keyed by "bucket/key".
type Store struct {
	mu       sync.Mutex
	objects  map[string]Object
	puts     []string
	gets     int
	putFails map[string]error
	getFails map[string]error
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		objects:  make(map[string]Object),
		putFails: make(map[string]error),
		getFails: make(map[string]error),
	}
}

// Seed stores data without recording a put.
func (s *Store) Seed(bucket, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = Object{Data: data}
}

// FailPuts makes every PutObject whose key starts with prefix return err.
func (s *Store) FailPuts(prefix string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putFails[prefix] = err
}

// FailGets makes every GetObject whose key starts with prefix return err.
func (s *Store) FailGets(prefix string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getFails[prefix] = err
}

// Get returns the stored object.
func (s *Store) Get(bucket, key string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[bucket+"/"+key]
	return o, ok
}

// Gets returns how many GetObject calls were made.
func (s *Store) Gets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

// Puts returns the keys written, in order, including overwrites.
func (s *Store) Puts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.puts...)
}

func (s *Store) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	key := aws.ToString(in.Key)
	for prefix, err := range s.getFails {
		if strings.HasPrefix(key, prefix) {
			return nil, err
		}
	}
	o, ok := s.objects[aws.ToString(in.Bucket)+"/"+key]
	if !ok {
		return nil, fmt.Errorf("NoSuchKey: %s", key)
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(o.Data)),
		ContentLength: aws.Int64(int64(len(o.Data))),
	}, nil
}

func (s *Store) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := aws.ToString(in.Key)
	for prefix, err := range s.putFails {
		if strings.HasPrefix(key, prefix) {
			return nil, err
		}
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	s.objects[aws.ToString(in.Bucket)+"/"+key] = Object{
		Data:        data,
		ContentType: aws.ToString(in.ContentType),
		Tagging:     aws.ToString(in.Tagging),
	}
	s.puts = append(s.puts, key)
	return &s3.PutObjectOutput{}, nil
}

// Presigner returns deterministic fake URLs that encode the expiry.
type Presigner struct {
	Err error
}

func (p Presigner) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	opts := s3.PresignOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &v4.PresignedHTTPRequest{
		URL:    fmt.Sprintf("https://%s.s3.test/%s?X-Amz-Expires=%d", aws.ToString(in.Bucket), aws.ToString(in.Key), int(opts.Expires/time.Second)),
		Method: http.MethodGet,
	}, nil
}
