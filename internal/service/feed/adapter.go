package feed

import (
	"bytes"
	"encoding/json"

	"GoldPull/internal/domain/models"
)

// Envelope is one decoded upstream frame.
type Envelope struct {
	Channel string
	Payload []byte // set when the frame carries price data to ingest
	Reply   []byte // protocol frame to write back, e.g. a pong
	Closed  bool   // server asked us to disconnect
}

// Adapter translates a provider's wire framing into payloads and normalizes them.
type Adapter interface {
	Name() string
	Decode(frame []byte) Envelope
	Normalize(payload []byte) models.CanonicalTick
}

// NewAdapter returns the adapter for a configured protocol name.
func NewAdapter(protocol string, channels []string, inspectUnknown bool) Adapter {
	if protocol == "json" {
		return JSONAdapter{}
	}
	return NewSocketIOAdapter(channels, inspectUnknown)
}

// SocketIOAdapter decodes Engine.IO v4 text frames carrying Socket.IO events.
type SocketIOAdapter struct {
	known map[string]struct{}
	// InspectUnknownChannels enables the fallback for events outside the known
	// set: they are accepted when their payload is a non-empty JSON object.
	InspectUnknownChannels bool
}

func NewSocketIOAdapter(channels []string, inspectUnknown bool) *SocketIOAdapter {
	known := make(map[string]struct{}, len(channels))
	for _, c := range channels {
		known[c] = struct{}{}
	}
	return &SocketIOAdapter{known: known, InspectUnknownChannels: inspectUnknown}
}

func (a *SocketIOAdapter) Name() string { return "socketio" }

func (a *SocketIOAdapter) Normalize(payload []byte) models.CanonicalTick { return Normalize(payload) }

func (a *SocketIOAdapter) Decode(frame []byte) Envelope {
	if len(frame) == 0 {
		return Envelope{}
	}
	switch frame[0] {
	case '0': // engine open: join the default namespace
		return Envelope{Reply: []byte("40")}
	case '1': // engine close
		return Envelope{Closed: true}
	case '2': // engine ping
		return Envelope{Reply: []byte("3")}
	case '4':
		return a.decodeMessage(frame[1:])
	}
	return Envelope{}
}

func (a *SocketIOAdapter) decodeMessage(msg []byte) Envelope {
	if len(msg) == 0 {
		return Envelope{}
	}
	switch msg[0] {
	case '1': // namespace disconnect
		return Envelope{Closed: true}
	case '2': // event
	default:
		return Envelope{}
	}

	body := msg[1:]
	// Optional "/namespace," prefix.
	if len(body) > 0 && body[0] == '/' {
		if i := bytes.IndexByte(body, ','); i >= 0 {
			body = body[i+1:]
		}
	}
	// Optional ack id.
	i := 0
	for i < len(body) && body[i] >= '0' && body[i] <= '9' {
		i++
	}
	body = body[i:]

	var parts []json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil || len(parts) == 0 {
		return Envelope{}
	}
	var channel string
	if err := json.Unmarshal(parts[0], &channel); err != nil {
		return Envelope{}
	}
	if len(parts) < 2 {
		return Envelope{Channel: channel}
	}
	payload := unwrapString(parts[1])

	if _, ok := a.known[channel]; ok {
		return Envelope{Channel: channel, Payload: payload}
	}
	if a.InspectUnknownChannels && isNonEmptyObject(payload) {
		return Envelope{Channel: channel, Payload: payload}
	}
	return Envelope{Channel: channel}
}

// JSONAdapter treats every text frame that is a JSON object as a payload.
type JSONAdapter struct{}

func (JSONAdapter) Name() string { return "json" }

func (JSONAdapter) Normalize(payload []byte) models.CanonicalTick { return Normalize(payload) }

func (JSONAdapter) Decode(frame []byte) Envelope {
	frame = bytes.TrimSpace(frame)
	if !isNonEmptyObject(frame) {
		return Envelope{}
	}
	return Envelope{Payload: frame}
}

// unwrapString handles providers that emit the payload as a JSON string.
func unwrapString(raw json.RawMessage) []byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return []byte(s)
		}
	}
	return raw
}

func isNonEmptyObject(b []byte) bool {
	b = bytes.TrimSpace(b)
	if len(b) < 2 || b[0] != '{' {
		return false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return false
	}
	return len(m) > 0
}
