package protocol

// Tool names the model may invoke.
const (
	ToolStartAnalysis  = "start_analysis"
	ToolSetUserProfile = "set_user_profile"
)

// SessionTools returns the two tool declarations offered at session open.
func SessionTools() []Tool {
	return []Tool{{
		FunctionDeclarations: []FunctionDeclaration{
			{
				Name:        ToolStartAnalysis,
				Description: "Signal that the birth-chart analysis has begun. Call this once all details are collected, before announcing the reading.",
			},
			{
				Name:        ToolSetUserProfile,
				Description: "Record the finalized user profile once the reading is complete.",
				Parameters: &Schema{
					Type: "OBJECT",
					Properties: map[string]*Schema{
						"name":    {Type: "STRING"},
						"sunSign": {Type: "STRING"},
						"rashi":   {Type: "STRING"},
					},
					Required: []string{"name", "sunSign", "rashi"},
				},
			},
		},
	}}
}

// SetUserProfileSchema is the JSON-schema document the tool state machine
// validates set_user_profile arguments against before applying them.
const SetUserProfileSchema = `{
  "type": "object",
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "sunSign": {"type": "string", "minLength": 1},
    "rashi": {"type": "string", "minLength": 1}
  },
  "required": ["name", "sunSign", "rashi"]
}`
