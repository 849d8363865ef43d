package wirepeer

import "encoding/json"

const jsonrpcVersion = "2.0"

// envelopeKind is the result of classifying a decoded wire object,
// per spec.md §4.3.
type envelopeKind int

const (
	kindInvalid envelopeKind = iota
	kindRequest
	kindNotification
	kindResponse
)

// wireError is the JSON-RPC 2.0 error object shape.
type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// rawEnvelope is the loose decode target used purely for classification:
// every field is raw JSON so presence and type can be inspected before
// committing to a concrete shape (spec.md §4.3's "method non-string"
// and "both result and error present" violations must classify as
// INVALID rather than fail to decode).
type rawEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  json.RawMessage `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// decoded is the classified, typed view of an inbound frame.
type decoded struct {
	kind   envelopeKind
	id     string // valid only when idOK
	idOK   bool   // true iff id was present and a JSON string
	method string
	params json.RawMessage
	result json.RawMessage
	rpcErr *wireError
}

// classify decodes raw and determines its envelope kind, per spec.md §4.3.
// It never returns a decode error for a structurally-odd-but-valid-JSON
// object — those cases become kindInvalid. A decode error here means the
// bytes were not a JSON object at all, which the peer's frame handler
// treats as a parse error rather than an invalid-request.
func classify(raw []byte) (*decoded, error) {
	var env rawEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}

	d := &decoded{params: env.Params, result: env.Result}

	hasMethod := len(env.Method) > 0
	methodStr, methodIsString := asString(env.Method)
	hasID := len(env.ID) > 0
	idStr, idIsString := asString(env.ID)
	hasResult := len(env.Result) > 0
	hasErrorField := len(env.Error) > 0
	d.id, d.idOK = idStr, idIsString

	if hasErrorField {
		var we wireError
		if err := json.Unmarshal(env.Error, &we); err == nil {
			d.rpcErr = &we
		} else {
			hasErrorField = false // malformed error object: treat as absent, not invalid-only-because-of-this
		}
	}

	switch {
	case hasMethod && !methodIsString:
		d.kind = kindInvalid
	case hasResult && hasErrorField:
		d.kind = kindInvalid
	case hasMethod && methodIsString:
		d.method = methodStr
		if hasID {
			if !idIsString {
				d.kind = kindInvalid
				return d, nil
			}
			d.kind = kindRequest
			d.id, d.idOK = idStr, true
		} else {
			d.kind = kindNotification
		}
	case hasID && (hasResult || hasErrorField):
		if !idIsString {
			d.kind = kindInvalid
			return d, nil
		}
		d.kind = kindResponse
		d.id, d.idOK = idStr, true
	default:
		d.kind = kindInvalid
	}
	return d, nil
}

func asString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// outboundRequest builds the wire bytes for a request envelope.
func outboundRequest(id, method string, params any) ([]byte, error) {
	return json.Marshal(struct {
		JSONRPC string `json:"jsonrpc"`
		ID      string `json:"id"`
		Method  string `json:"method"`
		Params  any    `json:"params,omitempty"`
	}{jsonrpcVersion, id, method, params})
}

// outboundNotification builds the wire bytes for a notification envelope.
func outboundNotification(method string, params any) ([]byte, error) {
	return json.Marshal(struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
		Params  any    `json:"params,omitempty"`
	}{jsonrpcVersion, method, params})
}

// outboundResult builds the wire bytes for a success response envelope.
func outboundResult(id string, result any) ([]byte, error) {
	return json.Marshal(struct {
		JSONRPC string `json:"jsonrpc"`
		ID      string `json:"id"`
		Result  any    `json:"result"`
	}{jsonrpcVersion, id, result})
}

// outboundError builds the wire bytes for an error response envelope.
func outboundError(id string, rpcErr *RPCError) ([]byte, error) {
	return json.Marshal(struct {
		JSONRPC string     `json:"jsonrpc"`
		ID      string     `json:"id"`
		Error   *wireError `json:"error"`
	}{jsonrpcVersion, id, &wireError{Code: rpcErr.Code, Message: rpcErr.Message, Data: rpcErr.Data}})
}
