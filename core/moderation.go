package orchestration

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// runModeration classifies a snapshot of an assistant message in the
// background. The result re-enters the session loop, which applies it only if
// no classification of a longer snapshot has landed in the meantime.
func (o *Orchestrator) runModeration(itemID, testText string) {
	if o.classifier == nil {
		return
	}

	o.mu.RLock()
	loop := o.loop
	o.mu.RUnlock()
	if loop == nil {
		return
	}

	go func() {
		ctx, span := tracer.Start(o.baseContext, "orchestration.moderate")
		defer span.End()

		result, err := o.classifier.Classify(ctx, testText)
		if err != nil || result == nil {
			if err != nil {
				span.RecordError(err)
				logger.Error("Moderation classification failed", "error", err)
			}
			return
		}

		span.AddEvent("classification resolved",
			trace.WithAttributes(attribute.String("moderation.category", string(result.Category))))

		loop.enqueue(moderationResolvedItem{
			itemID:   itemID,
			testText: testText,
			result:   *result,
		})
	}()
}

func (o *Orchestrator) handleModerationResolved(item moderationResolvedItem) {
	if o.transcript.setModeration(item.itemID, item.testText, item.result) {
		o.notifyTranscriptUpdated()
	}
}
