package realtime

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// Frame type tag for parameter delivery frames (inbound index-3 "dt").
const frameTypeParameter = "PARAMETER"

// Wire operation names carried in outbound command payloads.
const (
	opSubscribe   = "subscribe"
	opUnsubscribe = "unsubscribe"
)

// parameterID names one remote parameter on the wire.
type parameterID struct {
	Name string `json:"name"`
}

// commandData is the body of a subscribe/unsubscribe command.
// SendFromCache appears only on subscribe, always false: the engine
// wants live samples, not the server's last cached value.
type commandData struct {
	ID            []parameterID `json:"id"`
	SendFromCache *bool         `json:"sendFromCache,omitempty"`
}

// command is an outbound wire command before envelope wrapping.
type command struct {
	Parameter string      `json:"parameter"`
	Data      commandData `json:"data"`
}

// subscribeCommand builds a subscribe command for a qualified name.
func subscribeCommand(qualifiedName string) command {
	sendFromCache := false
	return command{
		Parameter: opSubscribe,
		Data: commandData{
			ID:            []parameterID{{Name: qualifiedName}},
			SendFromCache: &sendFromCache,
		},
	}
}

// unsubscribeCommand builds an unsubscribe command for a qualified name.
func unsubscribeCommand(qualifiedName string) command {
	return command{
		Parameter: opUnsubscribe,
		Data: commandData{
			ID: []parameterID{{Name: qualifiedName}},
		},
	}
}

// encodeEnvelope wraps a command in the outbound frame envelope
// [1, 1, seq, command].
func encodeEnvelope(seq uint64, cmd command) ([]byte, error) {
	return json.Marshal([]any{1, 1, seq, cmd})
}

// frameBody is the index-3 element of an inbound frame.
type frameBody struct {
	Dt   string    `json:"dt"`
	Data frameData `json:"data"`
}

type frameData struct {
	Parameter []parameterSample `json:"parameter"`
}

// parameterSample is one delivered sample on the wire.
type parameterSample struct {
	ID                parameterID `json:"id"`
	GenerationTimeUTC string      `json:"generationTimeUTC,omitempty"`
	GenerationTime    string      `json:"generationTime,omitempty"`
	EngValue          engValue    `json:"engValue"`
	MonitoringResult  string      `json:"monitoringResult,omitempty"`
	RangeCondition    string      `json:"rangeCondition,omitempty"`
}

// timestamp parses the sample's generation time. The UTC form is
// preferred; either way the wire format is ISO-8601.
func (s *parameterSample) timestamp() (time.Time, bool) {
	raw := s.GenerationTimeUTC
	if raw == "" {
		raw = s.GenerationTime
	}
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// decodeFrame parses an inbound frame. Frames shorter than 4 elements,
// frames that are not JSON arrays, and frames whose fourth element is
// not a parameter-data body yield ok == false and are dropped by the
// caller.
func decodeFrame(data []byte) (frameBody, bool) {
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return frameBody{}, false
	}
	if len(elements) < 4 {
		return frameBody{}, false
	}

	var body frameBody
	if err := json.Unmarshal(elements[3], &body); err != nil {
		return frameBody{}, false
	}
	if body.Dt != frameTypeParameter {
		return frameBody{}, false
	}
	return body, true
}

// engValue is the variant engineering value carried by a sample. The
// wire populates exactly one field matching the type tag; decoding
// dispatches on the tag rather than probing field presence.
type engValue struct {
	Type           string          `json:"type"`
	FloatValue     *float64        `json:"floatValue,omitempty"`
	DoubleValue    *float64        `json:"doubleValue,omitempty"`
	Sint32Value    *int32          `json:"sint32Value,omitempty"`
	Uint32Value    *uint32         `json:"uint32Value,omitempty"`
	Sint64Value    *int64          `json:"sint64Value,omitempty"`
	Uint64Value    *uint64         `json:"uint64Value,omitempty"`
	BooleanValue   *bool           `json:"booleanValue,omitempty"`
	StringValue    *string         `json:"stringValue,omitempty"`
	BinaryValue    *string         `json:"binaryValue,omitempty"`
	ArrayValue     []engValue      `json:"arrayValue,omitempty"`
	AggregateValue *aggregateValue `json:"aggregateValue,omitempty"`
}

type aggregateValue struct {
	Name  []string   `json:"name"`
	Value []engValue `json:"value"`
}

// value extracts the Go representation of the engineering value by
// dispatching on the type tag. Unknown or inconsistent values yield nil.
func (v engValue) value() any {
	switch v.Type {
	case "FLOAT":
		if v.FloatValue != nil {
			return *v.FloatValue
		}
	case "DOUBLE":
		if v.DoubleValue != nil {
			return *v.DoubleValue
		}
	case "SINT32":
		if v.Sint32Value != nil {
			return int64(*v.Sint32Value)
		}
	case "UINT32":
		if v.Uint32Value != nil {
			return uint64(*v.Uint32Value)
		}
	case "SINT64":
		if v.Sint64Value != nil {
			return *v.Sint64Value
		}
	case "UINT64":
		if v.Uint64Value != nil {
			return *v.Uint64Value
		}
	case "BOOLEAN":
		if v.BooleanValue != nil {
			return *v.BooleanValue
		}
	case "STRING", "ENUMERATED":
		if v.StringValue != nil {
			return *v.StringValue
		}
	case "BINARY":
		if v.BinaryValue != nil {
			if decoded, err := base64.StdEncoding.DecodeString(*v.BinaryValue); err == nil {
				return decoded
			}
		}
	case "ARRAY":
		out := make([]any, len(v.ArrayValue))
		for i, member := range v.ArrayValue {
			out[i] = member.value()
		}
		return out
	case "AGGREGATE":
		if v.AggregateValue != nil {
			out := make(map[string]any, len(v.AggregateValue.Name))
			for i, name := range v.AggregateValue.Name {
				if i < len(v.AggregateValue.Value) {
					out[name] = v.AggregateValue.Value[i].value()
				}
			}
			return out
		}
	}
	return nil
}
