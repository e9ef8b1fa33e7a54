// Package intent classifies what a free-form request says about budget into a
// decision.Signal. Classification is fuzzy; everything downstream of the
// Signal is deterministic.
package intent

import (
	"context"

	"github.com/pfarch/pfarch/internal/decision"
	"github.com/pfarch/pfarch/internal/logging"
)

// Classifier turns a user message into a budget signal.
type Classifier interface {
	Classify(ctx context.Context, message string) (decision.Signal, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, message string) (decision.Signal, error)

// Classify implements Classifier.
func (f ClassifierFunc) Classify(ctx context.Context, message string) (decision.Signal, error) {
	return f(ctx, message)
}

// Fallback tries Primary and uses Secondary when Primary fails.
type Fallback struct {
	Primary   Classifier
	Secondary Classifier
}

// Classify implements Classifier.
func (f Fallback) Classify(ctx context.Context, message string) (decision.Signal, error) {
	signal, err := f.Primary.Classify(ctx, message)
	if err == nil {
		return signal, nil
	}
	logging.GetLogger("intent").WithContext(ctx).WarnWithFields("primary budget classifier failed, using fallback",
		logging.Field("error", err.Error()),
	)
	return f.Secondary.Classify(ctx, message)
}
