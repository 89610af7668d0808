package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

const (
	CodeNetwork = "NETWORK_ERROR"
	CodeUnknown = "UNKNOWN_ERROR"
)

// Envelope is the backend response wrapper {code, message, data}.
type Envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// OK reports a 2xx envelope code.
func (e Envelope[T]) OK() bool {
	return e.Code >= 200 && e.Code < 300
}

// Error is returned for non-2xx responses and for requests that never got one.
// Status is 0 when the server could not be reached.
type Error struct {
	Status  int
	Code    string
	Message string
	Body    json.RawMessage
	Err     error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("api %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("api status %d code=%s: %s", e.Status, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type rawEnvelope struct {
	Code    *json.Number    `json:"code"`
	Message *string         `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// decodeEnvelope accepts both enveloped bodies and bare payloads; a bare
// payload is wrapped with the HTTP status as its code.
func decodeEnvelope[T any](status int, raw []byte) (Envelope[T], error) {
	var out Envelope[T]
	trimmed := bytes.TrimSpace(raw)

	var env rawEnvelope
	if len(trimmed) > 0 && trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&env); err != nil {
			return out, fmt.Errorf("decode envelope: %w", err)
		}
	}
	if env.Code != nil && env.Message != nil {
		code, err := env.Code.Int64()
		if err == nil {
			out.Code = int(code)
			out.Message = *env.Message
			if len(env.Data) > 0 && string(env.Data) != "null" {
				if err := json.Unmarshal(env.Data, &out.Data); err != nil {
					return out, fmt.Errorf("decode envelope data: %w", err)
				}
			}
			return out, nil
		}
	}

	out.Code = status
	out.Message = http.StatusText(status)
	if out.Message == "" {
		out.Message = "Success"
	}
	if len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &out.Data); err != nil {
			return out, fmt.Errorf("decode response body: %w", err)
		}
	}
	return out, nil
}

// checkEnvelope decodes a 2xx body and turns a non-2xx envelope code into an
// *Error; some backends report failures with HTTP 200.
func checkEnvelope[T any](status int, raw []byte) (Envelope[T], error) {
	env, err := decodeEnvelope[T](status, raw)
	if err != nil {
		return env, err
	}
	if !env.OK() {
		return env, &Error{
			Status:  status,
			Code:    strconv.Itoa(env.Code),
			Message: env.Message,
			Body:    json.RawMessage(bytes.TrimSpace(raw)),
		}
	}
	return env, nil
}

func errorFromResponse(status int, raw []byte) *Error {
	apiErr := &Error{Status: status, Code: strconv.Itoa(status), Message: http.StatusText(status)}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return apiErr
	}
	apiErr.Body = json.RawMessage(trimmed)
	var body struct {
		Code    json.RawMessage `json:"code"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(trimmed, &body); err != nil {
		return apiErr
	}
	if code := scalarString(body.Code); code != "" {
		apiErr.Code = code
	}
	if msg := scalarString(body.Message); msg != "" {
		apiErr.Message = msg
	}
	return apiErr
}

// scalarString renders a JSON string or number; NestJS-style validation
// errors send message as an array, which is joined.
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return joinNonEmpty(list)
	}
	return ""
}

func joinNonEmpty(items []string) string {
	var buf bytes.Buffer
	for _, item := range items {
		if item == "" {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString("; ")
		}
		buf.WriteString(item)
	}
	return buf.String()
}
