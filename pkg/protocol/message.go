package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/harun/skillbridge/pkg/plugin"
)

// Type identifies the kind of a protocol message
type Type string

// Host to bridge
const (
	TypeCall        Type = "call"
	TypeLoadPlugins Type = "load_plugins"
	TypeShutdown    Type = "shutdown"
)

// Bridge to host
const (
	TypeResponse         Type = "response"
	TypeReady            Type = "ready"
	TypeLog              Type = "log"
	TypePluginRegistered Type = "plugin_registered"
	TypeLoadResult       Type = "load_result"
)

// Message is the envelope of every line exchanged with the host.
// ID is kept raw so the correlation token is echoed back byte for byte.
type Message struct {
	Type   Type            `json:"type"`
	ID     json.RawMessage `json:"id,omitempty"`
	Plugin string          `json:"plugin,omitempty"`
	Method string          `json:"method,omitempty"`
	Args   []any           `json:"args,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// HasID reports whether the message carries a correlation token
func (m *Message) HasID() bool {
	return len(m.ID) > 0 && string(m.ID) != "null"
}

// ValueData is the payload of a successful response
type ValueData struct {
	Value any `json:"value"`
}

// ErrorData is the payload of a failed response
type ErrorData struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// LogData is the payload of a log event
type LogData struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// LoadPluginsData is the payload of a load_plugins command
type LoadPluginsData struct {
	Dir string `json:"dir"`
}

// LoadResultData is the payload of a load_result reply
type LoadResultData struct {
	Loaded []string          `json:"loaded"`
	Failed map[string]string `json:"failed"`
}

// LoadPlugins decodes the data of a load_plugins command. A missing data block
// yields an empty Dir.
func (m *Message) LoadPlugins() (LoadPluginsData, error) {
	var data LoadPluginsData
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return data, nil
	}
	if err := json.Unmarshal(m.Data, &data); err != nil {
		return data, fmt.Errorf("invalid load_plugins data: %w", err)
	}
	return data, nil
}

// Ready builds the startup signal
func Ready() Message {
	return Message{Type: TypeReady}
}

// Response builds a successful reply. It fails when value cannot be encoded.
func Response(id json.RawMessage, value any) (Message, error) {
	data, err := json.Marshal(ValueData{Value: value})
	if err != nil {
		return Message{}, fmt.Errorf("encode result: %w", err)
	}
	return Message{Type: TypeResponse, ID: id, Data: data}, nil
}

// ErrorResponse builds a failed reply
func ErrorResponse(id json.RawMessage, text, code string) Message {
	data, _ := json.Marshal(ErrorData{Error: text, Code: code})
	return Message{Type: TypeResponse, ID: id, Data: data}
}

// Registered builds the plugin_registered event for a descriptor
func Registered(desc plugin.Descriptor) Message {
	data, _ := json.Marshal(desc.Normalize())
	return Message{Type: TypePluginRegistered, Data: data}
}

// Log builds a diagnostic event
func Log(level, message string) Message {
	data, _ := json.Marshal(LogData{Level: level, Message: message})
	return Message{Type: TypeLog, Data: data}
}

// LoadResult builds the reply to a load_plugins command that carried an id
func LoadResult(id json.RawMessage, result *plugin.LoadResult) Message {
	payload := LoadResultData{
		Loaded: append([]string{}, result.Loaded...),
		Failed: make(map[string]string, len(result.Failed)),
	}
	for _, path := range result.Failed {
		if err := result.Errors[path]; err != nil {
			payload.Failed[path] = err.Error()
		} else {
			payload.Failed[path] = "unknown error"
		}
	}
	data, _ := json.Marshal(payload)
	return Message{Type: TypeLoadResult, ID: id, Data: data}
}
