package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MethodExecute is the only request method the worker understands.
const MethodExecute = "execute"

// UnknownClient is logged when a request carries no clientId.
const UnknownClient = "unknown-client"

// Request is one line sent to the worker.
type Request struct {
	ClientID    string   `json:"clientId,omitempty"`
	Method      string   `json:"method"`
	Actions     []Action `json:"actions"`
	SessionID   string   `json:"sessionId,omitempty"`
	StepIndex   *int     `json:"stepIndex,omitempty"`
	SessionDone *bool    `json:"sessionDone,omitempty"`
}

// SessionScoped reports whether the request belongs to a stepwise session.
func (r Request) SessionScoped() bool {
	return strings.TrimSpace(r.SessionID) != ""
}

// Done reports whether the request carries sessionDone=true.
func (r Request) Done() bool {
	return r.SessionDone != nil && *r.SessionDone
}

// Client returns the client id or UnknownClient.
func (r Request) Client() string {
	if strings.TrimSpace(r.ClientID) == "" {
		return UnknownClient
	}
	return r.ClientID
}

// Status of a response envelope.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Response is one line written back by the worker.
type Response struct {
	Status  Status       `json:"status"`
	Message string       `json:"message"`
	Data    ResponseData `json:"data"`
}

// ResponseData carries per-action payloads. Results is keyed by action type
// (a repeated type keeps the last payload); Steps preserves submission order.
type ResponseData struct {
	Results       map[ActionType]json.RawMessage `json:"results,omitempty"`
	Steps         []StepResult                   `json:"steps,omitempty"`
	BrowserClosed *bool                          `json:"browserClosed,omitempty"`
}

// OK reports whether the envelope status is "ok".
func (r Response) OK() bool {
	return r.Status == StatusOK
}

// BrowserClosed reports whether the worker released its browser.
func (r Response) BrowserClosed() bool {
	return r.Data.BrowserClosed != nil && *r.Data.BrowserClosed
}

// Result decodes the payload recorded for action type t into v.
func (r Response) Result(t ActionType, v interface{}) error {
	raw, ok := r.Data.Results[t]
	if !ok {
		return fmt.Errorf("no result for action %q", t)
	}
	return json.Unmarshal(raw, v)
}

// OKResponse builds a success envelope from ordered step results.
func OKResponse(message string, steps []StepResult, browserClosed bool) Response {
	results := make(map[ActionType]json.RawMessage, len(steps))
	for _, s := range steps {
		results[s.Type] = s.Data
	}
	return Response{
		Status:  StatusOK,
		Message: message,
		Data: ResponseData{
			Results:       results,
			Steps:         steps,
			BrowserClosed: Bool(browserClosed),
		},
	}
}

// ErrorResponse builds an error envelope. browserClosed is omitted when nil.
func ErrorResponse(message string, browserClosed *bool) Response {
	return Response{
		Status:  StatusError,
		Message: message,
		Data:    ResponseData{BrowserClosed: browserClosed},
	}
}

// StepResult is the outcome of one action. Index, Message and BrowserClosed
// are filled by the session coordinator for stepwise runs.
type StepResult struct {
	Index         int             `json:"index"`
	Type          ActionType      `json:"type"`
	OK            bool            `json:"ok"`
	Data          json.RawMessage `json:"data,omitempty"`
	Message       string          `json:"message,omitempty"`
	BrowserClosed bool            `json:"browserClosed,omitempty"`

	// Err holds the transport or backend failure, if any.
	Err error `json:"-"`
}

// NewStepResult encodes payload as the step's data.
func NewStepResult(index int, t ActionType, payload interface{}) (StepResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return StepResult{}, fmt.Errorf("failed to encode %s result: %w", t, err)
	}
	return StepResult{Index: index, Type: t, OK: true, Data: raw}, nil
}

// Decode unmarshals the step payload into v.
func (s StepResult) Decode(v interface{}) error {
	if len(s.Data) == 0 {
		return fmt.Errorf("step %d (%s) has no data", s.Index, s.Type)
	}
	return json.Unmarshal(s.Data, v)
}
