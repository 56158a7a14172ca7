// Package guardrail classifies streaming assistant output against the
// moderation policy. Classification is best-effort: callers fire it
// asynchronously and drop failures.
package guardrail

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/corgivoice/voice-core/core/completions"
)

// Category is the moderation class assigned to a piece of text.
type Category string

const (
	// CategoryOffensive covers hate speech, discriminatory language,
	// insults, slurs and harassment.
	CategoryOffensive Category = "OFFENSIVE"
	// CategoryOffBrand covers disparaging discussion of competitors.
	CategoryOffBrand Category = "OFF_BRAND"
	// CategoryViolence covers explicit threats, incitement of harm, or
	// graphic descriptions of physical injury.
	CategoryViolence Category = "VIOLENCE"
	// CategoryNone means no other class applies.
	CategoryNone Category = "NONE"
)

// Result is one classification outcome.
type Result struct {
	Category  Category `json:"moderationCategory" jsonschema:"enum=OFFENSIVE,enum=OFF_BRAND,enum=VIOLENCE,enum=NONE"`
	Rationale string   `json:"moderationRationale"`
}

// Classifier runs moderation classification through the completion endpoint.
type Classifier struct {
	Client completions.Client
	// CompanyName is interpolated into the policy prompt so off-brand
	// detection knows whose brand it protects.
	CompanyName string
}

// Classify assigns a moderation category and rationale to the passed text.
func (c *Classifier) Classify(ctx context.Context, text string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "classify moderation")
	defer span.End()

	prompt := fmt.Sprintf(`You are an expert at classifying text according to moderation policies. Consider the provided message, analyze potential classes from output_classes, and output the best classification. Output json, following the provided schema. Keep your analysis and reasoning short and to the point, maximum 2 sentences.

<info>
- Company name: %s
</info>

<message>
%s
</message>

<output_classes>
- OFFENSIVE: Content that includes hate speech, discriminatory language, insults, slurs, or harassment.
- OFF_BRAND: Content that discusses competitors in a disparaging way.
- VIOLENCE: Content that includes explicit threats, incitement of harm, or graphic descriptions of physical injury or violence.
- NONE: If no other classes are appropriate and the message is fine.
</output_classes>
`, c.CompanyName, text)

	result, err := completions.PromptJSONSchema(ctx, c.Client, prompt, Result{})
	if err != nil {
		err = fmt.Errorf("failed to classify text: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("moderation.category", string(result.Category)))
	return result, nil
}
