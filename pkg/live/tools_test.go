package live

import (
	"testing"

	"github.com/astraportal/astraportal/pkg/live/protocol"
)

func profileCall(id string, args map[string]any) protocol.FunctionCall {
	return protocol.FunctionCall{ID: id, Name: protocol.ToolSetUserProfile, Args: args}
}

func TestToolMachine_StartAnalysis(t *testing.T) {
	m := NewToolMachine(testLogger())
	acks := m.Process(protocol.ToolCallBatch{Calls: []protocol.FunctionCall{
		{ID: "c1", Name: protocol.ToolStartAnalysis},
	}})

	if !m.Analyzing() {
		t.Error("analyzing flag not set")
	}
	if len(acks) != 1 || acks[0].ID != "c1" || acks[0].Response["result"] != "ok" {
		t.Errorf("acks: got %+v, want one ok ack for c1", acks)
	}
}

func TestToolMachine_SetUserProfile(t *testing.T) {
	m := NewToolMachine(testLogger())
	m.Process(protocol.ToolCallBatch{Calls: []protocol.FunctionCall{
		{ID: "c1", Name: protocol.ToolStartAnalysis},
	}})

	acks := m.Process(protocol.ToolCallBatch{Calls: []protocol.FunctionCall{
		profileCall("c2", map[string]any{
			"name": "Asha", "sunSign": "Leo", "rashi": "Simha",
		}),
	}})

	if m.Analyzing() {
		t.Error("analyzing flag survived profile finalization")
	}
	p := m.Profile()
	if p == nil || p.Name != "Asha" || p.SunSign != "Leo" || p.Rashi != "Simha" {
		t.Errorf("profile: got %+v", p)
	}
	if len(acks) != 1 || acks[0].Response["result"] != "ok" {
		t.Errorf("acks: got %+v", acks)
	}
}

func TestToolMachine_LatestProfileWins(t *testing.T) {
	m := NewToolMachine(testLogger())
	m.Process(protocol.ToolCallBatch{Calls: []protocol.FunctionCall{
		profileCall("c1", map[string]any{"name": "A", "sunSign": "Leo", "rashi": "Simha"}),
		profileCall("c2", map[string]any{"name": "B", "sunSign": "Aries", "rashi": "Mesha"}),
	}})

	if p := m.Profile(); p == nil || p.Name != "B" {
		t.Errorf("profile: got %+v, want the later call's", p)
	}
}

func TestToolMachine_InvalidArgsAckError(t *testing.T) {
	m := NewToolMachine(testLogger())
	cases := []map[string]any{
		nil,
		{"name": "A"},                                       // missing fields
		{"name": "", "sunSign": "Leo", "rashi": "Simha"},    // empty string
		{"name": 7, "sunSign": "Leo", "rashi": "Simha"},     // wrong type
		{"name": "A", "sunSign": "Leo", "rashi": map[string]any{}}, // wrong type
	}
	for i, args := range cases {
		acks := m.Process(protocol.ToolCallBatch{Calls: []protocol.FunctionCall{
			profileCall("c", args),
		}})
		if len(acks) != 1 {
			t.Fatalf("case %d: got %d acks, want 1", i, len(acks))
		}
		if acks[0].Response["result"] == "ok" {
			t.Errorf("case %d: invalid args acknowledged ok", i)
		}
		if m.Profile() != nil {
			t.Errorf("case %d: invalid args set a profile", i)
		}
	}
}

func TestToolMachine_UnknownToolIgnored(t *testing.T) {
	m := NewToolMachine(testLogger())
	acks := m.Process(protocol.ToolCallBatch{Calls: []protocol.FunctionCall{
		{ID: "c1", Name: "read_tarot"},
		{ID: "c2", Name: protocol.ToolStartAnalysis},
	}})

	// Unknown names get no acknowledgement; the rest of the batch proceeds.
	if len(acks) != 1 || acks[0].ID != "c2" {
		t.Errorf("acks: got %+v, want only c2", acks)
	}
	if !m.Analyzing() {
		t.Error("known call in mixed batch not applied")
	}
}

func TestToolMachine_InterruptClearsAnalyzingKeepsProfile(t *testing.T) {
	m := NewToolMachine(testLogger())
	m.Process(protocol.ToolCallBatch{Calls: []protocol.FunctionCall{
		profileCall("c1", map[string]any{"name": "A", "sunSign": "Leo", "rashi": "Simha"}),
		{ID: "c2", Name: protocol.ToolStartAnalysis},
	}})

	m.Interrupt()
	if m.Analyzing() {
		t.Error("analyzing flag survived interrupt")
	}
	if m.Profile() == nil {
		t.Error("profile did not survive interrupt")
	}
}

func TestToolMachine_ProfileReturnsCopy(t *testing.T) {
	m := NewToolMachine(testLogger())
	m.Process(protocol.ToolCallBatch{Calls: []protocol.FunctionCall{
		profileCall("c1", map[string]any{"name": "A", "sunSign": "Leo", "rashi": "Simha"}),
	}})

	m.Profile().Name = "mutated"
	if m.Profile().Name != "A" {
		t.Error("caller mutation reached the stored profile")
	}
}
