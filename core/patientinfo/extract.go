// Package patientinfo extracts structured placement facts from conversation
// text. The extracted facts live outside the transcript and survive agent
// hand-offs.
package patientinfo

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/codes"

	"github.com/corgivoice/voice-core/core/completions"
)

// Info holds the facts collected about a prospective resident. Empty fields
// were not mentioned in the conversation.
type Info struct {
	Name                  string `json:"name,omitempty" jsonschema_description:"Patient's name"`
	Age                   string `json:"age,omitempty" jsonschema_description:"Patient's age"`
	CurrentSituation      string `json:"currentSituation,omitempty" jsonschema_description:"Current living situation"`
	CaregiverRelationship string `json:"caregiverRelationship,omitempty" jsonschema_description:"Relationship of caregiver to patient"`
	CareLevel             string `json:"careLevel,omitempty" jsonschema_description:"Level of care needed (independent, assisted, memory care, etc.)"`
	MedicalConditions     string `json:"medicalConditions,omitempty" jsonschema_description:"Medical conditions or diagnoses"`
	Mobility              string `json:"mobility,omitempty" jsonschema_description:"Mobility requirements or limitations"`
	Location              string `json:"location,omitempty" jsonschema_description:"Preferred location or area"`
	Budget                string `json:"budget,omitempty" jsonschema_description:"Budget range for monthly costs"`
	Timeline              string `json:"timeline,omitempty" jsonschema_description:"Timeline for placement"`
	SpecialRequirements   string `json:"specialRequirements,omitempty" jsonschema_description:"Any special requirements or preferences"`
	Concerns              string `json:"concerns,omitempty" jsonschema_description:"Main family concerns or priorities"`
}

// IsZero reports whether no fact has been collected yet.
func (i Info) IsZero() bool {
	return i == Info{}
}

// Summary renders the collected facts as the bullet list interpolated into
// agent instructions.
func (i Info) Summary() string {
	lines := []struct{ label, value string }{
		{"Name", i.Name},
		{"Age", i.Age},
		{"Medical Conditions", i.MedicalConditions},
		{"Mobility", i.Mobility},
		{"Care Level", i.CareLevel},
		{"Caregiver", i.CaregiverRelationship},
		{"Location Preference", i.Location},
		{"Special Requirements", i.SpecialRequirements},
		{"Budget", i.Budget},
		{"Timeline", i.Timeline},
	}

	var b strings.Builder
	for _, line := range lines {
		if line.value == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s: %s", line.label, line.value)
	}
	return b.String()
}

// Extractor pulls placement facts out of conversation text through the
// completion endpoint.
type Extractor struct {
	Client completions.Client
}

// Extract returns the facts explicitly stated or clearly implied by the
// passed conversation text.
func (e *Extractor) Extract(ctx context.Context, conversationText string) (*Info, error) {
	ctx, span := tracer.Start(ctx, "extract patient information")
	defer span.End()

	prompt := fmt.Sprintf(`You are an expert at extracting structured information from conversations about assisted living placement.

Analyze the following conversation and extract any patient information that has been mentioned. Only include information that was explicitly stated or clearly implied in the conversation. If information wasn't mentioned, leave that field empty.

Focus on extracting:
- Basic patient information (name, age, current situation)
- Care needs and medical information
- Preferences and requirements
- Budget and timeline
- Family concerns

Conversation:
%s

Extract the patient information in the specified JSON format. Only include information that was actually discussed.`, conversationText)

	info, err := completions.PromptJSONSchema(ctx, e.Client, prompt, Info{})
	if err != nil {
		err = fmt.Errorf("failed to extract patient information: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return info, nil
}
