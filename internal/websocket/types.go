// internal/websocket/types.go
package websocket

// RPCRequest is a method invocation sent by a frontend client
type RPCRequest struct {
	ID     string        `json:"id"`     // request id, used to match the response
	Method string        `json:"method"` // method name, e.g. "StartGeneration"
	Params []interface{} `json:"params"` // positional arguments
}

// RPCResponse is the reply to an RPCRequest
type RPCResponse struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// WSEvent is an event pushed by the daemon without a request
type WSEvent struct {
	Type    string      `json:"type"` // event type, e.g. "session:stage"
	Payload interface{} `json:"payload"`
}

// WSMessage is the envelope for every WebSocket frame
type WSMessage struct {
	// Message kind: "rpc_request", "rpc_response", "event"
	Kind string `json:"kind"`

	Request  *RPCRequest  `json:"request,omitempty"`
	Response *RPCResponse `json:"response,omitempty"`
	Event    *WSEvent     `json:"event,omitempty"`
}

// EventMessage wraps a pushed event in the wire envelope
func EventMessage(eventType string, payload interface{}) *WSMessage {
	return &WSMessage{
		Kind: "event",
		Event: &WSEvent{
			Type:    eventType,
			Payload: payload,
		},
	}
}

// ResponseMessage wraps an RPC result, or an error, in the wire envelope
func ResponseMessage(id string, result interface{}, errMsg string) *WSMessage {
	resp := &RPCResponse{ID: id}
	if errMsg != "" {
		resp.Error = errMsg
	} else {
		resp.Result = result
	}
	return &WSMessage{
		Kind:     "rpc_response",
		Response: resp,
	}
}
