package assistedliving

import (
	"context"
	"strings"
	"testing"

	"github.com/corgivoice/voice-core/core/agents"
)

func TestNewAgentsWiring(t *testing.T) {
	set, err := NewAgents(Callbacks{})
	if err != nil {
		t.Fatalf("failed to build agent set: %v", err)
	}

	collector := set.Default()
	if collector.Name != "informationCollector" {
		t.Fatalf("expected the information collector as default, got %q", collector.Name)
	}
	if !collector.CollectFacts {
		t.Fatalf("expected the information collector to collect facts")
	}

	booking, ok := set.Get("bookingAgent")
	if !ok {
		t.Fatalf("expected a booking agent")
	}
	if booking.Greeting != FacilityIntroduction {
		t.Fatalf("expected the facility introduction greeting")
	}
	if !strings.Contains(booking.Instructions, agents.ClientInfoPlaceholder) {
		t.Fatalf("expected the booking agent to carry the client info placeholder")
	}

	checkIn, ok := set.Get("checkInAgent")
	if !ok {
		t.Fatalf("expected a check-in agent")
	}
	if checkIn.Greeting != CheckInOpening {
		t.Fatalf("expected the check-in opening greeting, got %q", checkIn.Greeting)
	}

	// Every agent with downstream destinations can transfer.
	for _, name := range []string{"informationCollector", "bookingAgent", "checkInAgent"} {
		agent, _ := set.Get(name)
		if _, ok := agent.Tool(agents.TransferToolName); !ok {
			t.Fatalf("expected a transfer tool on %s", name)
		}
	}
	coordinator, _ := set.Get("facilityCoordinator")
	if _, ok := coordinator.Tool(agents.TransferToolName); ok {
		t.Fatalf("expected no transfer tool on the facility coordinator")
	}
}

func TestBurnoutAssessmentReachesCallback(t *testing.T) {
	var recorded map[string]any
	set, err := NewAgents(Callbacks{
		OnAssessmentRecorded: func(assessment map[string]any) { recorded = assessment },
	})
	if err != nil {
		t.Fatalf("failed to build agent set: %v", err)
	}

	checkIn, _ := set.Get("checkInAgent")
	tool, ok := checkIn.Tool("recordBurnoutAssessment")
	if !ok {
		t.Fatalf("expected the burnout assessment tool")
	}

	arguments := []byte(`{"caregiverAssessment":{"stressLevel":"high","burnoutSigns":"exhaustion"}}`)
	result, err := tool.Execute(context.Background(), arguments, agents.Call{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if recorded == nil || recorded["stressLevel"] != "high" {
		t.Fatalf("expected the assessment to reach the callback, got %v", recorded)
	}
	payload, ok := result.(map[string]any)
	if !ok || payload["success"] != true {
		t.Fatalf("unexpected tool result: %v", result)
	}
}
