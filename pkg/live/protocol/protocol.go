// Package protocol defines the bidi wire messages exchanged with the
// Gemini Live API and the tagged inbound variants the orchestrator
// dispatches on.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// CaptureMimeType tags outbound microphone frames.
const CaptureMimeType = "audio/pcm;rate=16000"

// --- Outbound shapes ---

// Setup is the first client message; it configures the session.
type Setup struct {
	Model            string            `json:"model"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *Content         `json:"systemInstruction,omitempty"`
	Tools            []Tool            `json:"tools,omitempty"`
	// OutputAudioTranscription requests streamed transcription of the
	// model's synthesized speech.
	OutputAudioTranscription *struct{} `json:"outputAudioTranscription,omitempty"`
}

// SetupEnvelope wraps Setup for the wire.
type SetupEnvelope struct {
	Setup Setup `json:"setup"`
}

// GenerationConfig fixes the response modality and voice identity.
type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

// SpeechConfig selects the synthesized voice.
type SpeechConfig struct {
	VoiceConfig *VoiceConfig `json:"voiceConfig,omitempty"`
}

type VoiceConfig struct {
	PrebuiltVoiceConfig *PrebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// Content is a role-tagged list of parts.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part carries either text or inline binary data.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData is a MIME-tagged base64 payload.
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Tool holds function declarations offered to the model.
type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations,omitempty"`
}

// FunctionDeclaration describes one callable tool.
type FunctionDeclaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

// Schema is the subset of JSON schema the tool declarations use.
type Schema struct {
	Type       string             `json:"type"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Required   []string           `json:"required,omitempty"`
}

// RealtimeInput carries outbound microphone frames.
type RealtimeInput struct {
	MediaChunks []InlineData `json:"mediaChunks"`
}

type RealtimeInputEnvelope struct {
	RealtimeInput RealtimeInput `json:"realtimeInput"`
}

// AudioFrameMessage wraps one captured PCM16 frame for the wire.
func AudioFrameMessage(pcm []byte) RealtimeInputEnvelope {
	return RealtimeInputEnvelope{
		RealtimeInput: RealtimeInput{
			MediaChunks: []InlineData{{
				MimeType: CaptureMimeType,
				Data:     base64.StdEncoding.EncodeToString(pcm),
			}},
		},
	}
}

// FunctionResponse acknowledges one tool call, correlated by ID.
type FunctionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// ToolResponse batches acknowledgements; one message per inbound batch.
type ToolResponse struct {
	FunctionResponses []FunctionResponse `json:"functionResponses"`
}

type ToolResponseEnvelope struct {
	ToolResponse ToolResponse `json:"toolResponse"`
}

// ClientContent injects a completed turn without audio.
type ClientContent struct {
	Turns        []Content `json:"turns"`
	TurnComplete bool      `json:"turnComplete"`
}

type ClientContentEnvelope struct {
	ClientContent ClientContent `json:"clientContent"`
}

// SyntheticTurnMessage wraps text as a completed user turn.
func SyntheticTurnMessage(text string) ClientContentEnvelope {
	return ClientContentEnvelope{
		ClientContent: ClientContent{
			Turns:        []Content{{Role: "user", Parts: []Part{{Text: text}}}},
			TurnComplete: true,
		},
	}
}

// --- Inbound shapes ---

// FunctionCall is one tool invocation issued by the model.
type FunctionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type serverMessage struct {
	SetupComplete *struct{} `json:"setupComplete"`
	ToolCall      *struct {
		FunctionCalls []FunctionCall `json:"functionCalls"`
	} `json:"toolCall"`
	ServerContent *struct {
		ModelTurn *struct {
			Parts []Part `json:"parts"`
		} `json:"modelTurn"`
		OutputTranscription *struct {
			Text string `json:"text"`
		} `json:"outputTranscription"`
		TurnComplete bool `json:"turnComplete"`
		Interrupted  bool `json:"interrupted"`
	} `json:"serverContent"`
	GoAway *struct {
		TimeLeft string `json:"timeLeft"`
	} `json:"goAway"`
}

// InboundMessage is the tagged variant delivered to the dispatcher.
type InboundMessage interface {
	inboundMessage()
}

// SetupComplete confirms the session configuration was accepted.
type SetupComplete struct{}

func (SetupComplete) inboundMessage() {}

// ToolCallBatch carries one or more tool invocations to execute and
// acknowledge as a single correlated batch.
type ToolCallBatch struct {
	Calls []FunctionCall
}

func (ToolCallBatch) inboundMessage() {}

// AudioChunk is decoded synthesized audio ready for scheduling.
type AudioChunk struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

func (AudioChunk) inboundMessage() {}

// TranscriptionFragment is a streamed caption fragment.
type TranscriptionFragment struct {
	Text string
}

func (TranscriptionFragment) inboundMessage() {}

// TurnComplete marks the end of the model's turn.
type TurnComplete struct{}

func (TurnComplete) inboundMessage() {}

// Interrupted signals barge-in: prior turn audio must stop immediately.
type Interrupted struct{}

func (Interrupted) inboundMessage() {}

// GoAway warns that the server will close the connection shortly.
type GoAway struct {
	TimeLeft string
}

func (GoAway) inboundMessage() {}

// Decode parses one server frame into its tagged variants. A single frame
// may carry several (e.g. a tool call batch alongside audio); variants are
// returned in a fixed order: tool calls, audio, transcription, turn
// complete, interrupted.
func Decode(data []byte) ([]InboundMessage, error) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode server frame: %w", err)
	}

	var out []InboundMessage
	if msg.SetupComplete != nil {
		out = append(out, SetupComplete{})
	}
	if msg.ToolCall != nil && len(msg.ToolCall.FunctionCalls) > 0 {
		out = append(out, ToolCallBatch{Calls: msg.ToolCall.FunctionCalls})
	}
	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData == nil || part.InlineData.Data == "" {
					continue
				}
				pcm, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					return nil, fmt.Errorf("decode inline audio: %w", err)
				}
				out = append(out, AudioChunk{
					PCM:        pcm,
					SampleRate: sampleRateFromMime(part.InlineData.MimeType, 24000),
					Channels:   1,
				})
			}
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			out = append(out, TranscriptionFragment{Text: sc.OutputTranscription.Text})
		}
		if sc.TurnComplete {
			out = append(out, TurnComplete{})
		}
		if sc.Interrupted {
			out = append(out, Interrupted{})
		}
	}
	if msg.GoAway != nil {
		out = append(out, GoAway{TimeLeft: msg.GoAway.TimeLeft})
	}
	return out, nil
}

// sampleRateFromMime parses "audio/pcm;rate=24000" style MIME tags.
func sampleRateFromMime(mime string, fallback int) int {
	for _, param := range strings.Split(mime, ";") {
		param = strings.TrimSpace(param)
		if rate, ok := strings.CutPrefix(param, "rate="); ok {
			var hz int
			if _, err := fmt.Sscanf(rate, "%d", &hz); err == nil && hz > 0 {
				return hz
			}
		}
	}
	return fallback
}
