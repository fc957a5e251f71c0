package live

import (
	"log/slog"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/astraportal/astraportal/pkg/live/protocol"
)

// Profile is the finalized user profile. Created only by a valid
// set_user_profile tool call; the latest call wins.
type Profile struct {
	Name    string
	SunSign string
	Rashi   string
}

var setUserProfileSchema = jsonschema.MustCompileString(
	"set_user_profile.json", protocol.SetUserProfileSchema)

// ToolMachine interprets the closed set of remote tool invocations and
// applies them as state transitions over the analyzing flag and the
// profile. Unknown tool names are logged and ignored without an
// acknowledgement.
type ToolMachine struct {
	logger *slog.Logger

	mu        sync.Mutex
	analyzing bool
	profile   *Profile
}

// NewToolMachine creates an empty machine.
func NewToolMachine(logger *slog.Logger) *ToolMachine {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolMachine{logger: logger}
}

// Process applies each call of the batch independently, in batch order,
// and returns one acknowledgement per recognized call. The caller sends
// the whole slice as a single tool-response message.
func (m *ToolMachine) Process(batch protocol.ToolCallBatch) []protocol.FunctionResponse {
	var acks []protocol.FunctionResponse
	for _, call := range batch.Calls {
		switch call.Name {
		case protocol.ToolStartAnalysis:
			m.mu.Lock()
			m.analyzing = true
			m.mu.Unlock()
			acks = append(acks, ack(call, "ok"))

		case protocol.ToolSetUserProfile:
			args := call.Args
			if args == nil {
				args = map[string]any{}
			}
			if err := setUserProfileSchema.Validate(any(args)); err != nil {
				m.logger.Warn("rejecting set_user_profile call", "id", call.ID, "err", err)
				acks = append(acks, ack(call, "error: invalid arguments"))
				continue
			}
			m.mu.Lock()
			m.profile = &Profile{
				Name:    args["name"].(string),
				SunSign: args["sunSign"].(string),
				Rashi:   args["rashi"].(string),
			}
			m.analyzing = false
			m.mu.Unlock()
			acks = append(acks, ack(call, "ok"))

		default:
			m.logger.Warn("ignoring unknown tool call", "name", call.Name, "id", call.ID)
		}
	}
	return acks
}

func ack(call protocol.FunctionCall, result string) protocol.FunctionResponse {
	return protocol.FunctionResponse{
		ID:       call.ID,
		Name:     call.Name,
		Response: map[string]any{"result": result},
	}
}

// Analyzing reports the analysis-in-progress flag.
func (m *ToolMachine) Analyzing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.analyzing
}

// Profile returns a copy of the latest profile, or nil.
func (m *ToolMachine) Profile() *Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profile == nil {
		return nil
	}
	p := *m.profile
	return &p
}

// Interrupt clears the analyzing flag on barge-in; the profile survives.
func (m *ToolMachine) Interrupt() {
	m.mu.Lock()
	m.analyzing = false
	m.mu.Unlock()
}
