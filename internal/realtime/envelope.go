// Package realtime implements the real-time multiplexer (C12): one
// authenticated, duplex gorilla/websocket connection per client,
// multiplexing five logical channels (cluster, events, terminal, chat,
// voice) through a single envelope type. Adapted directly from the
// teacher's internal/gateway/ws_control_plane.go connection lifecycle
// (upgrade, read/write loop goroutines, buffered send channel,
// ping/pong deadlines) and ws_schema.go's jsonschema/v5 envelope
// validation, generalized from the teacher's single chat-oriented
// control plane to the channel-multiplexed duplex spec.md §4.12 calls
// for.
package realtime

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	// MaxPayloadBytes bounds one inbound frame.
	MaxPayloadBytes = 1 << 20
)

// Envelope is the single wire frame shape multiplexing every channel:
// {"channel":"chat","event":"chat:send","payload":{...}}.
type Envelope struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var channelNames = map[string]struct{}{
	"cluster": {}, "events": {}, "terminal": {}, "chat": {}, "voice": {},
}

type schemaRegistry struct {
	once    sync.Once
	initErr error
	frame   *jsonschema.Schema
	events  map[string]*jsonschema.Schema
}

var schemas schemaRegistry

func initSchemas() error {
	schemas.once.Do(func() {
		frameSchema, err := jsonschema.CompileString("envelope", envelopeSchema)
		if err != nil {
			schemas.initErr = err
			return
		}
		schemas.frame = frameSchema

		eventSchemas := map[string]string{
			"chat:send":        chatSendSchema,
			"chat:confirm":     chatConfirmSchema,
			"terminal:start":   terminalStartSchema,
			"terminal:resize":  terminalResizeSchema,
			"voice:audio_chunk": voiceAudioChunkSchema,
		}
		schemas.events = make(map[string]*jsonschema.Schema, len(eventSchemas))
		for name, src := range eventSchemas {
			compiled, err := jsonschema.CompileString(name, src)
			if err != nil {
				schemas.initErr = err
				return
			}
			schemas.events[name] = compiled
		}
	})
	return schemas.initErr
}

// decodeEnvelope parses and validates one inbound frame: the envelope
// shape, channel membership, and — where the event carries a known
// schema — the payload shape.
func decodeEnvelope(raw []byte) (*Envelope, error) {
	if err := initSchemas(); err != nil {
		return nil, fmt.Errorf("realtime: schema init: %w", err)
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("realtime: invalid JSON: %w", err)
	}
	if err := schemas.frame.Validate(generic); err != nil {
		return nil, fmt.Errorf("realtime: invalid envelope: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if _, ok := channelNames[env.Channel]; !ok {
		return nil, fmt.Errorf("realtime: unknown channel %q", env.Channel)
	}

	if schema, ok := schemas.events[env.Event]; ok {
		var payload any
		if len(env.Payload) == 0 {
			payload = map[string]any{}
		} else if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, fmt.Errorf("realtime: invalid payload for %s: %w", env.Event, err)
		}
		if err := schema.Validate(payload); err != nil {
			return nil, fmt.Errorf("realtime: payload validation failed for %s: %w", env.Event, err)
		}
	}

	return &env, nil
}

// unmarshalPayload decodes an envelope's payload into dst, treating a
// missing payload as an empty object rather than an error.
func unmarshalPayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

const envelopeSchema = `{
  "type": "object",
  "required": ["channel", "event"],
  "properties": {
    "channel": { "type": "string", "minLength": 1 },
    "event": { "type": "string", "minLength": 1 },
    "payload": {}
  },
  "additionalProperties": true
}`

const chatSendSchema = `{
  "type": "object",
  "required": ["message"],
  "properties": {
    "sessionId": { "type": "string" },
    "message": { "type": "string", "minLength": 1 },
    "voiceMode": { "type": "boolean" }
  },
  "additionalProperties": true
}`

const chatConfirmSchema = `{
  "type": "object",
  "required": ["sessionId", "toolUseId", "confirmed"],
  "properties": {
    "sessionId": { "type": "string", "minLength": 1 },
    "toolUseId": { "type": "string", "minLength": 1 },
    "confirmed": { "type": "boolean" }
  },
  "additionalProperties": true
}`

const terminalStartSchema = `{
  "type": "object",
  "required": ["node"],
  "properties": {
    "node": { "type": "string", "minLength": 1 },
    "cols": { "type": "integer", "minimum": 1 },
    "rows": { "type": "integer", "minimum": 1 },
    "term": { "type": "string" }
  },
  "additionalProperties": true
}`

const terminalResizeSchema = `{
  "type": "object",
  "required": ["cols", "rows"],
  "properties": {
    "cols": { "type": "integer", "minimum": 1 },
    "rows": { "type": "integer", "minimum": 1 }
  },
  "additionalProperties": true
}`

const voiceAudioChunkSchema = `{
  "type": "object",
  "required": ["seq", "audio"],
  "properties": {
    "seq": { "type": "integer", "minimum": 0 },
    "audio": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": true
}`
