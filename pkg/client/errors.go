package client

import (
	"encoding/json"
	"errors"
	"fmt"
)

// APIError is returned for every response that is not a successful
// {code:0} envelope. Status is the HTTP status. Data holds the envelope data
// when the body was JSON and Body the raw text otherwise.
type APIError struct {
	Status int
	Code   int
	Msg    string
	Data   json.RawMessage
	Body   string
}

func (e *APIError) Error() string {
	return e.Msg
}

// StatusOf returns the HTTP status carried by an *APIError in err's chain, or 0.
func StatusOf(err error) int {
	if apiErr, ok := errors.AsType[*APIError](err); ok {
		return apiErr.Status
	}
	return 0
}

// decodeEnvelope validates a REST response body in the order the server's
// clients have always relied on: JSON first, then HTTP status, then shape,
// then the application code.
func decodeEnvelope(status int, body []byte) (json.RawMessage, error) {
	var parsed any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, &APIError{
				Status: status,
				Msg:    fmt.Sprintf("Invalid JSON response: %v", err),
				Body:   string(body),
			}
		}
	}

	fields, isObject := parsed.(map[string]any)
	var envelope struct {
		Code json.RawMessage `json:"code"`
		Msg  any             `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if isObject {
		_ = json.Unmarshal(body, &envelope)
	}
	msg, _ := envelope.Msg.(string)

	if status < 200 || status > 299 {
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", status)
		}
		return nil, &APIError{
			Status: status,
			Code:   codeOf(envelope.Code),
			Msg:    msg,
			Data:   envelope.Data,
		}
	}

	if _, hasCode := fields["code"]; !isObject || !hasCode {
		return nil, &APIError{
			Status: status,
			Msg:    "Response is not ApiResponse shape",
			Data:   json.RawMessage(body),
		}
	}

	if !isZeroCode(envelope.Code) {
		if msg == "" {
			msg = "API returned non-zero code"
		}
		return nil, &APIError{
			Status: status,
			Code:   codeOf(envelope.Code),
			Msg:    msg,
			Data:   envelope.Data,
		}
	}

	return envelope.Data, nil
}

func isZeroCode(raw json.RawMessage) bool {
	var code any
	if err := json.Unmarshal(raw, &code); err != nil {
		return false
	}
	n, ok := code.(float64)
	return ok && n == 0
}

func codeOf(raw json.RawMessage) int {
	var code float64
	if err := json.Unmarshal(raw, &code); err != nil {
		return 0
	}
	return int(code)
}

// parseQueryError renders a failed POST /query body: the envelope message
// when there is one, the raw text otherwise.
func parseQueryError(status int, body []byte) string {
	var envelope struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Msg != "" {
		return fmt.Sprintf("%s (HTTP %d)", envelope.Msg, status)
	}
	return fmt.Sprintf("HTTP %d: %s", status, string(body))
}
