// Package s3util provides the S3 helpers the pipeline uses for source
// retrieval, artifact persistence, and presigned links.
//
// Callers depend on the narrow interfaces below rather than *s3.Client so
// that tests can substitute in-memory fakes.
package s3util

import (
	"context"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectGetter is the read half of the blob store contract.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ObjectPutter is the write half of the blob store contract.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// BlobStore is satisfied by *s3.Client.
type BlobStore interface {
	ObjectGetter
	ObjectPutter
}

// Presigner is satisfied by *s3.PresignClient.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

var (
	_ BlobStore = (*s3.Client)(nil)
	_ Presigner = (*s3.PresignClient)(nil)
)
