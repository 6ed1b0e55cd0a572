package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/video-risk-analyzer/internal/status"
)

// DynamoDB key constants.
const (
	pkPrefix = "RUN#"
	skMeta   = "META"
)

// updateRunExpr overwrites the snapshot fields and sets createdAt only on
// the first write for a run.
const updateRunExpr = "SET #bucket = :bucket, #sourceKey = :sourceKey, #step = :step, #status = :status, " +
	"#message = :message, #details = :details, #updatedAt = :updatedAt, #createdAt = if_not_exists(#createdAt, :createdAt)"

// RunStore implements status.Sink on a DynamoDB table.
type RunStore struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

var _ status.Sink = (*RunStore)(nil)

// NewRunStore creates a RunStore for the given table.
func NewRunStore(client DynamoAPI, tableName string) *RunStore {
	return &RunStore{client: client, tableName: tableName, now: time.Now}
}

// TableName returns the backing table name.
func (s *RunStore) TableName() string {
	return s.tableName
}

func runPK(runID string) string {
	return pkPrefix + runID
}

// Put upserts the run item with the latest snapshot.
func (s *RunStore) Put(ctx context.Context, target status.Target, rec status.Record) error {
	item, err := attributevalue.MarshalMap(RunRecord{
		RunID:     target.RunID,
		Bucket:    target.Bucket,
		SourceKey: target.SourceKey,
		Step:      string(rec.Step),
		Status:    string(rec.Status),
		Message:   rec.Message,
		Details:   rec.Details,
		UpdatedAt: rec.Timestamp,
		CreatedAt: s.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", target.RunID, err)
	}
	values := make(map[string]types.AttributeValue, len(item))
	for name, v := range item {
		values[":"+name] = v
	}

	pk := runPK(target.RunID)
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		UpdateExpression: aws.String(updateRunExpr),
		ExpressionAttributeNames: map[string]string{
			"#bucket":    "bucket",
			"#sourceKey": "sourceKey",
			"#step":      "step",
			"#status":    "status",
			"#message":   "message",
			"#details":   "details",
			"#updatedAt": "updatedAt",
			"#createdAt": "createdAt",
		},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("UpdateItem PK=%s SK=%s: %w", pk, skMeta, err)
	}

	log.Debug().Str("runId", target.RunID).Str("step", string(rec.Step)).Msg("Run index updated in DynamoDB")
	return nil
}
