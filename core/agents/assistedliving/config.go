// Package assistedliving wires the assisted-living placement agent set:
// an information collector talking to families, a booking coordinator calling
// facilities, a caregiver check-in companion and a facility-side coordinator.
package assistedliving

import (
	"context"

	"github.com/corgivoice/voice-core/core/agents"
	"github.com/corgivoice/voice-core/core/realtime"
)

// Callbacks publish structured data recorded by agent tools to the embedding
// application.
type Callbacks struct {
	// OnAssessmentRecorded receives caregiver burnout assessments recorded by
	// the check-in agent.
	OnAssessmentRecorded func(assessment map[string]any)
}

// FacilityIntroduction seeds the booking agent's first turn after a hand-off:
// the simulated facility staff member picking up the call.
const FacilityIntroduction = "Hello, this is Sunset Manor Assisted Living. This is Sarah from our admissions " +
	"department. How can I help you today?"

// CheckInOpening seeds the check-in agent's first turn after a hand-off: the
// caregiver starting their daily check-in.
const CheckInOpening = "Hello, I'm here for my daily check-in. I'm feeling really stressed today."

// NewAgents builds the validated assisted-living agent set. The information
// collector is the default agent.
func NewAgents(callbacks Callbacks) (*agents.Set, error) {
	informationCollector := &agents.Agent{
		Name:        "informationCollector",
		Description: "Collects comprehensive patient and family information for assisted living placement.",
		Instructions: "You are a warm, patient placement specialist speaking with a family member about " +
			"assisted living for their loved one. Gather the patient's name, age, current situation, care " +
			"needs, medical conditions, mobility, location preference, budget and timeline, one topic at a " +
			"time, and acknowledge how difficult this decision is. When you have a complete picture, offer " +
			"to transfer to the booking coordinator.",
		CollectFacts: true,
		Tools: []agents.Tool{
			agents.NewTool("extractPatientInformation",
				"Record patient information collected during the conversation",
				map[string]realtime.ParameterSchema{
					"patientInfo": {
						Type:        "object",
						Description: "Structured patient information gathered so far",
						Properties: map[string]realtime.ParameterSchema{
							"name":                  {Type: "string", Description: "Patient's name"},
							"age":                   {Type: "string", Description: "Patient's age"},
							"currentSituation":      {Type: "string", Description: "Current living situation"},
							"caregiverRelationship": {Type: "string", Description: "Relationship of caregiver to patient"},
							"careLevel":             {Type: "string", Description: "Level of care needed"},
							"medicalConditions":     {Type: "string", Description: "Medical conditions or diagnoses"},
							"mobility":              {Type: "string", Description: "Mobility requirements or limitations"},
							"location":              {Type: "string", Description: "Preferred location or area"},
							"budget":                {Type: "string", Description: "Budget range for monthly costs"},
							"timeline":              {Type: "string", Description: "Timeline for placement"},
						},
					},
				},
				func(_ context.Context, arguments struct {
					PatientInfo map[string]any `json:"patientInfo"`
				}, _ agents.Call) (any, error) {
					return map[string]any{"success": true, "extractedInfo": arguments.PatientInfo}, nil
				}),
		},
	}

	bookingAgent := &agents.Agent{
		Name:        "bookingAgent",
		Description: "Contacts facilities to book assisted living placement for patients.",
		Instructions: "You are a professional placement coordinator calling an assisted living facility on " +
			"behalf of a family. The person you are speaking with is facility staff, not a family member. " +
			"Present your client's needs, ask about availability, pricing and admission requirements, and " +
			"work toward scheduling a tour or assessment.\n\n" +
			agents.ClientInfoPlaceholder,
		Greeting: FacilityIntroduction,
		Tools: []agents.Tool{
			agents.NewTool("recordFacilityInformation",
				"Record details learned about the facility during the call",
				map[string]realtime.ParameterSchema{
					"facilityAssessment": {
						Type:        "object",
						Description: "Facility details gathered during the call",
						Properties: map[string]realtime.ParameterSchema{
							"availability":          {Type: "string", Description: "Current room/bed availability"},
							"pricing":               {Type: "string", Description: "Monthly costs and fee structure"},
							"careServices":          {Type: "string", Description: "Care services offered"},
							"admissionRequirements": {Type: "string", Description: "Admission requirements and process"},
							"nextSteps":             {Type: "string", Description: "Agreed next steps with the facility"},
						},
					},
				},
				func(_ context.Context, arguments struct {
					FacilityAssessment map[string]any `json:"facilityAssessment"`
				}, _ agents.Call) (any, error) {
					return map[string]any{"success": true, "facilityInfo": arguments.FacilityAssessment}, nil
				}),
		},
	}

	checkInAgent := &agents.Agent{
		Name:        "checkInAgent",
		Description: "Provides supportive daily check-ins for family caregivers and watches for burnout.",
		Instructions: "You are a caring companion doing a daily wellbeing check-in with a family caregiver. " +
			"Listen, validate their feelings, and gently probe stress level, sleep, physical health and " +
			"support network. Record observations about potential burnout frequently, and escalate concern " +
			"non-judgmentally if you detect severe distress.",
		Greeting: CheckInOpening,
		Tools: []agents.Tool{
			agents.NewTool("recordBurnoutAssessment",
				"Record observations about caregiver wellbeing and potential burnout indicators",
				map[string]realtime.ParameterSchema{
					"caregiverAssessment": {
						Type:        "object",
						Description: "Current assessment of the caregiver's wellbeing",
						Properties: map[string]realtime.ParameterSchema{
							"overallWellbeing": {Type: "string", Description: "General assessment of caregiver's overall wellbeing"},
							"stressLevel":      {Type: "string", Description: "Assessment of caregiver's current stress level"},
							"physicalHealth":   {Type: "string", Description: "Notes on caregiver's physical health status"},
							"emotionalState":   {Type: "string", Description: "Assessment of caregiver's emotional and mental state"},
							"burnoutSigns":     {Type: "string", Description: "Observed signs of caregiver burnout"},
							"urgentConcerns":   {Type: "string", Description: "Urgent concerns requiring immediate follow-up"},
						},
					},
				},
				func(_ context.Context, arguments struct {
					CaregiverAssessment map[string]any `json:"caregiverAssessment"`
				}, _ agents.Call) (any, error) {
					if callbacks.OnAssessmentRecorded != nil {
						callbacks.OnAssessmentRecorded(arguments.CaregiverAssessment)
					}
					return map[string]any{"success": true, "assessmentInfo": arguments.CaregiverAssessment}, nil
				}),
		},
	}

	facilityCoordinator := &agents.Agent{
		Name:        "facilityCoordinator",
		Description: "Facility-side admissions coordinator handling placement inquiries.",
		Instructions: "You are the admissions coordinator of an assisted living facility answering a call " +
			"from a placement agency. Answer questions about availability, care levels, pricing and the " +
			"admission process, and check availability before committing to anything.",
		Tools: []agents.Tool{
			agents.NewTool("checkAvailability",
				"Check facility availability for a requested care level and room type",
				map[string]realtime.ParameterSchema{
					"careLevel":    {Type: "string", Description: "Care level requested"},
					"roomType":     {Type: "string", Description: "Room type requested"},
					"timeline":     {Type: "string", Description: "Requested move-in timeline"},
					"specialNeeds": {Type: "string", Description: "Special needs to accommodate"},
					"assessment":   {Type: "string", Description: "Coordinator's assessment of fit"},
				},
				func(_ context.Context, arguments struct {
					CareLevel    string `json:"careLevel"`
					RoomType     string `json:"roomType"`
					Timeline     string `json:"timeline"`
					SpecialNeeds string `json:"specialNeeds"`
					Assessment   string `json:"assessment"`
				}, _ agents.Call) (any, error) {
					return map[string]any{
						"success": true,
						"facilityAssessment": map[string]any{
							"careLevel":    arguments.CareLevel,
							"roomType":     arguments.RoomType,
							"timeline":     arguments.Timeline,
							"specialNeeds": arguments.SpecialNeeds,
							"assessment":   arguments.Assessment,
						},
					}, nil
				}),
		},
	}

	informationCollector.Downstream = []*agents.Agent{bookingAgent, checkInAgent}
	bookingAgent.Downstream = []*agents.Agent{informationCollector, checkInAgent}
	checkInAgent.Downstream = []*agents.Agent{informationCollector, bookingAgent}

	return agents.NewSet(informationCollector, bookingAgent, checkInAgent, facilityCoordinator)
}
