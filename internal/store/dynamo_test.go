package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/fpang/video-risk-analyzer/internal/status"
)

type fakeDynamo struct {
	inputs []*dynamodb.UpdateItemInput
	err    error
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, in)
	return &dynamodb.UpdateItemOutput{}, nil
}

func TestRunStore_Put(t *testing.T) {
	fake := &fakeDynamo{}
	s := NewRunStore(fake, "risk-runs")
	s.now = func() time.Time { return time.Unix(1700000000, 0) }

	rec := status.NewRecord(status.StepVideoDone, "done", map[string]any{"emotions_count": 4}, time.Unix(1700000010, 0))
	target := status.Target{Bucket: "media", RunID: "clip", SourceKey: "uploads/clip.mp4"}
	if err := s.Put(context.Background(), target, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if len(fake.inputs) != 1 {
		t.Fatalf("expected 1 UpdateItem, got %d", len(fake.inputs))
	}
	in := fake.inputs[0]
	if aws.ToString(in.TableName) != "risk-runs" {
		t.Errorf("unexpected table %q", aws.ToString(in.TableName))
	}
	if pk := in.Key["PK"].(*types.AttributeValueMemberS).Value; pk != "RUN#clip" {
		t.Errorf("unexpected PK %q", pk)
	}
	if !strings.Contains(aws.ToString(in.UpdateExpression), "if_not_exists(#createdAt") {
		t.Error("createdAt must only be set on first write")
	}
	step := in.ExpressionAttributeValues[":step"].(*types.AttributeValueMemberS).Value
	if step != "VIDEO_DONE" {
		t.Errorf("unexpected step %q", step)
	}
	details, ok := in.ExpressionAttributeValues[":details"].(*types.AttributeValueMemberM)
	if !ok {
		t.Fatalf("details should marshal as a map, got %T", in.ExpressionAttributeValues[":details"])
	}
	if n := details.Value["emotions_count"].(*types.AttributeValueMemberN).Value; n != "4" {
		t.Errorf("unexpected emotions_count %q", n)
	}
}

func TestRunStore_PutError(t *testing.T) {
	s := NewRunStore(&fakeDynamo{err: errors.New("ProvisionedThroughputExceeded")}, "risk-runs")
	err := s.Put(context.Background(), status.Target{RunID: "clip"}, status.NewRecord(status.StepInit, "", nil, time.Now()))
	if err == nil || !strings.Contains(err.Error(), "RUN#clip") {
		t.Fatalf("expected wrapped error naming the key, got %v", err)
	}
}

func TestRunStore_PutValuesRoundTrip(t *testing.T) {
	fake := &fakeDynamo{}
	s := NewRunStore(fake, "risk-runs")
	s.now = func() time.Time { return time.Unix(1700000000, 0) }

	rec := status.NewRecord(status.StepInit, "", nil, time.Unix(1700000005, 0))
	target := status.Target{Bucket: "media", RunID: "clip", SourceKey: "uploads/clip.mp4"}
	if err := s.Put(context.Background(), target, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	item := make(map[string]types.AttributeValue)
	for name, v := range fake.inputs[0].ExpressionAttributeValues {
		item[strings.TrimPrefix(name, ":")] = v
	}
	var got RunRecord
	if err := attributevalue.UnmarshalMap(item, &got); err != nil {
		t.Fatalf("UnmarshalMap: %v", err)
	}
	if got.SourceKey != "uploads/clip.mp4" || got.Bucket != "media" {
		t.Errorf("unexpected location %+v", got)
	}
	if got.Step != "INIT" || got.CreatedAt != 1700000000 {
		t.Errorf("unexpected step/createdAt %+v", got)
	}
	if got.RunID != "" {
		t.Errorf("runId must not be stored as an attribute, got %q", got.RunID)
	}
	if got.Details != nil {
		t.Errorf("absent details should stay null, got %v", got.Details)
	}
}
