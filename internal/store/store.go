// Package store keeps an optional DynamoDB index of pipeline runs. Each run
// has one item (PK = RUN#{runId}, SK = META) mirroring the latest status
// snapshot, so operators can query runs by step without listing the status/
// prefix in S3. The S3 status object remains the record front-ends poll.
package store

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// DynamoAPI is the subset of *dynamodb.Client the store uses.
type DynamoAPI interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

var _ DynamoAPI = (*dynamodb.Client)(nil)

// RunRecord is the DynamoDB shape of a run. RunID is derived from PK.
type RunRecord struct {
	RunID     string         `dynamodbav:"-"`
	Bucket    string         `dynamodbav:"bucket"`
	SourceKey string         `dynamodbav:"sourceKey"`
	Step      string         `dynamodbav:"step"`
	Status    string         `dynamodbav:"status"`
	Message   string         `dynamodbav:"message"`
	Details   map[string]any `dynamodbav:"details"`
	UpdatedAt float64        `dynamodbav:"updatedAt"`
	CreatedAt int64          `dynamodbav:"createdAt"`
}
