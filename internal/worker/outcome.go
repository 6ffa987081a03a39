package worker

import (
	"context"
	"encoding/json"

	"github.com/prepstream/shipment-relay/internal/model"
)

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRetryable
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of processing one inbound event.
// Retryable leaves the row pending; Success and Fatal are terminal and
// trigger the one-shot processed transition.
type Outcome struct {
	Kind   OutcomeKind
	Result json.RawMessage // set on Success
	Reason string          // set on Retryable/Fatal
}

func Success(result json.RawMessage) Outcome {
	return Outcome{Kind: OutcomeSuccess, Result: result}
}

func Retryable(reason string) Outcome {
	return Outcome{Kind: OutcomeRetryable, Reason: reason}
}

func Fatal(reason string) Outcome {
	return Outcome{Kind: OutcomeFatal, Reason: reason}
}

// Processor handles one event type. Implementations must be safe to re-run
// for the same event: a crash between Process and the processed transition
// means a later pass sees the row again.
type Processor interface {
	Process(ctx context.Context, event model.InboundEvent) Outcome
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, event model.InboundEvent) Outcome

func (f ProcessorFunc) Process(ctx context.Context, event model.InboundEvent) Outcome {
	return f(ctx, event)
}
