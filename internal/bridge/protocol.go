package bridge

import "encoding/json"

// ServerVersion is reported in every connection_info event.
const ServerVersion = "1.0.0"

// Built-in event names (spec.md §6 wire protocol table). These are awaited
// inline on the connection's read loop; anything else is dispatched as a
// background goroutine so a slow or input-awaiting handler never blocks
// other traffic on the same connection.
const (
	EventInputResponse = "input_response"
	EventConnectionInfo = "connection_info"
	EventPageUnload     = "page_unload"
	EventGetSchema      = "get_schema"
	EventClearCache     = "clear_cache"
	EventCacheStats     = "cache_stats"
	EventSetCacheTTL    = "set_cache_ttl"
	EventDiscover       = "discover"
	EventIntrospect     = "introspect"
	EventDispatch       = "dispatch"
	EventMenuSelection  = "menu_selection"
	EventExecuteWalker  = "execute_walker"
	EventLoadPage       = "load_page"
	EventFormSubmit     = "form_submit"
)

// server -> client event names.
const (
	EventRenderChunk    = "render_chunk"
	EventMenuSelected   = "menu_selected"
	EventServerShutdown = "server_shutdown"
	EventError          = "error"
)

var builtinEvents = map[string]bool{
	EventInputResponse:  true,
	EventConnectionInfo: true,
	EventPageUnload:     true,
	EventGetSchema:      true,
	EventClearCache:     true,
	EventCacheStats:     true,
	EventSetCacheTTL:    true,
	EventDiscover:       true,
	EventIntrospect:     true,
	EventDispatch:       true,
	EventMenuSelection:  true,
	EventExecuteWalker:  true,
	EventLoadPage:       true,
	EventFormSubmit:     true,
}

// envelope is the shape every inbound message must satisfy: a required
// "event" field plus an arbitrary payload, decoded lazily per handler.
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"-"`
}

// errorPayload matches spec.md §6's malformed-message contract.
type errorPayload struct {
	Event   string `json:"event"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}

func errMsg(message string) errorPayload {
	return errorPayload{Event: EventError, Error: "Invalid message format", Message: message}
}

type inputResponsePayload struct {
	RequestID string      `json:"requestId"`
	Value     interface{} `json:"value"`
}

type menuSelectionPayload struct {
	MenuKey  string      `json:"menu_key"`
	Selected interface{} `json:"selected"`
}

type formSubmitPayload struct {
	Block string                 `json:"block"`
	Data  map[string]interface{} `json:"data"`
}

type getSchemaPayload struct {
	Model string `json:"model"`
}

type setCacheTTLPayload struct {
	TTL int `json:"ttl"`
}

type pageUnloadPayload struct {
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}

type dispatchPayload struct {
	Function string   `json:"function"`
	Args     []string `json:"args"`
}

type executeWalkerPayload struct {
	ZPath string `json:"zpath"`
}

type loadPagePayload struct {
	ZPath string `json:"zpath"`
}

type connectionInfoEvent struct {
	Event           string                 `json:"event"`
	ServerVersion   string                 `json:"server_version"`
	Features        []string               `json:"features"`
	CacheStats      map[string]interface{} `json:"cache_stats"`
	AvailableModels []string               `json:"available_models,omitempty"`
	Session         string                 `json:"session"`
}

type renderChunkEvent struct {
	Event  string      `json:"event"`
	Keys   []string    `json:"keys"`
	IsGate bool        `json:"is_gate"`
	Value  interface{} `json:"value,omitempty"`
}

type menuSelectedEvent struct {
	Event    string      `json:"event"`
	MenuKey  string      `json:"menu_key"`
	Selected interface{} `json:"selected"`
	Success  bool        `json:"success"`
}

type serverShutdownEvent struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}
