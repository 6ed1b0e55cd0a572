package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"
)

// EventBridge identifiers for run notifications.
const (
	EventSource           = "video-risk-analyzer"
	DetailTypeRunFinished = "RiskAnalysisCompleted"
	DetailTypeRunFailed   = "RiskAnalysisFailed"
)

// RunEvent is published when a run reaches a terminal state.
type RunEvent struct {
	RunID          string `json:"runId"`
	Bucket         string `json:"bucket"`
	SourceKey      string `json:"sourceKey"`
	Status         string `json:"status"`
	ReportKey      string `json:"reportKey,omitempty"`
	RiskScore      *int   `json:"riskScore,omitempty"`
	CriticalFrames int    `json:"criticalFrames"`
	Error          string `json:"error,omitempty"`
}

// Notifier announces finished runs to downstream consumers.
type Notifier interface {
	RunFinished(ctx context.Context, event RunEvent) error
}

// EventBridgeAPI is the subset of *eventbridge.Client used for notifications.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

var (
	_ EventBridgeAPI = (*eventbridge.Client)(nil)
	_ Notifier       = (*EventNotifier)(nil)
)

// EventNotifier publishes RunEvents to an EventBridge bus.
type EventNotifier struct {
	client EventBridgeAPI
	bus    string
}

// NewEventNotifier creates an EventNotifier for bus.
func NewEventNotifier(client EventBridgeAPI, bus string) *EventNotifier {
	return &EventNotifier{client: client, bus: bus}
}

func (n *EventNotifier) RunFinished(ctx context.Context, event RunEvent) error {
	detail, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal RunEvent: %w", err)
	}
	detailType := DetailTypeRunFinished
	if event.Error != "" {
		detailType = DetailTypeRunFailed
	}

	result, err := n.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []ebtypes.PutEventsRequestEntry{{
			EventBusName: aws.String(n.bus),
			Source:       aws.String(EventSource),
			DetailType:   aws.String(detailType),
			Detail:       aws.String(string(detail)),
		}},
	})
	if err != nil {
		return fmt.Errorf("PutEvents: %w", err)
	}
	if result.FailedEntryCount > 0 {
		for i, entry := range result.Entries {
			if entry.ErrorCode != nil || entry.ErrorMessage != nil {
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(entry.ErrorCode), aws.ToString(entry.ErrorMessage))
			}
		}
	}

	log.Debug().Str("runId", event.RunID).Str("detailType", detailType).Msg("Run event published")
	return nil
}
