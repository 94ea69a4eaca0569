// Package protocol defines the JSON envelopes exchanged between a step
// client and the step worker, along with the closed action vocabulary.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ActionType names one browser step. The set is closed; see Valid.
type ActionType string

const (
	ActionOpenBrowser     ActionType = "open_browser"
	ActionSetDownloadDir  ActionType = "set_download_dir"
	ActionGoto            ActionType = "goto"
	ActionClick           ActionType = "click"
	ActionTypeText        ActionType = "type"
	ActionKeyPress        ActionType = "key_press"
	ActionFindText        ActionType = "find_text"
	ActionWait            ActionType = "wait"
	ActionWaitForSelector ActionType = "wait_for_selector"
	ActionScrollBy        ActionType = "scroll_by"
	ActionScrollTo        ActionType = "scroll_to"
	ActionSwitchToFrame   ActionType = "switch_to_frame"
	ActionSwitchToDefault ActionType = "switch_to_default"
	ActionSenseElements   ActionType = "sense_elements"
	ActionDownloadLink    ActionType = "download_link"
	ActionGetTitle        ActionType = "get_title"
	ActionGetCurrentURL   ActionType = "get_current_url"
	ActionScreenshot      ActionType = "screenshot"
	ActionClose           ActionType = "close"
	ActionQuit            ActionType = "quit"
)

// Catalog lists every supported action type in documentation order.
var Catalog = []ActionType{
	ActionOpenBrowser, ActionSetDownloadDir, ActionGoto, ActionClick, ActionTypeText,
	ActionKeyPress, ActionFindText, ActionWait, ActionWaitForSelector, ActionScrollBy,
	ActionScrollTo, ActionSwitchToFrame, ActionSwitchToDefault, ActionSenseElements,
	ActionDownloadLink, ActionGetTitle, ActionGetCurrentURL, ActionScreenshot,
	ActionClose, ActionQuit,
}

var catalogIndex = func() map[ActionType]struct{} {
	idx := make(map[ActionType]struct{}, len(Catalog))
	for _, t := range Catalog {
		idx[t] = struct{}{}
	}
	return idx
}()

// Valid reports whether t belongs to the action catalog.
func (t ActionType) Valid() bool {
	_, ok := catalogIndex[t]
	return ok
}

// RequiresBrowser reports whether the action needs an open browser.
func (t ActionType) RequiresBrowser() bool {
	switch t {
	case ActionOpenBrowser, ActionSetDownloadDir, ActionWait, ActionClose, ActionQuit:
		return false
	}
	return true
}

// Locator kinds accepted in the "by" field.
const (
	LocatorCSS   = "css"
	LocatorXPath = "xpath"
)

// Action is a single step. Fields that do not apply to Type are ignored.
type Action struct {
	Type        ActionType `json:"type"`
	Selector    string     `json:"selector,omitempty"`
	LocatorKind string     `json:"by,omitempty"`
	Text        string     `json:"text,omitempty"`
	URL         string     `json:"url,omitempty"`
	TimeoutMs   *int       `json:"timeoutMs,omitempty"`
	Headless    *bool      `json:"headless,omitempty"`
	DownloadDir string     `json:"downloadDir,omitempty"`
	Keywords    []string   `json:"keywords,omitempty"`
	Limit       *int       `json:"limit,omitempty"`
	Scope       string     `json:"scope,omitempty"`
	FrameIndex  *int       `json:"frameIndex,omitempty"`
	X           *int       `json:"x,omitempty"`
	Y           *int       `json:"y,omitempty"`
	Note        string     `json:"note,omitempty"`
}

// UnmarshalJSON accepts "locatorKind" as an alias of "by".
func (a *Action) UnmarshalJSON(data []byte) error {
	type plain Action
	aux := struct {
		*plain
		LocatorKindAlias string `json:"locatorKind"`
	}{plain: (*plain)(a)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if a.LocatorKind == "" {
		a.LocatorKind = aux.LocatorKindAlias
	}
	return nil
}

// Timeout returns TimeoutMs or def when unset.
func (a Action) Timeout(def int) int {
	if a.TimeoutMs == nil {
		return def
	}
	return *a.TimeoutMs
}

// ValidateActions rejects any action whose type is outside the catalog.
func ValidateActions(actions []Action) error {
	for _, a := range actions {
		if !a.Type.Valid() {
			return &UnknownActionError{Type: string(a.Type)}
		}
	}
	return nil
}

// UnknownActionError is returned for action types outside the catalog.
type UnknownActionError struct {
	Type string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("Unknown action: %s", e.Type)
}

// ParseActions decodes either a bare JSON array of actions or an object
// with an "actions" field.
func ParseActions(data []byte) ([]Action, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var actions []Action
		if err := json.Unmarshal([]byte(trimmed), &actions); err != nil {
			return nil, fmt.Errorf("failed to decode actions: %w", err)
		}
		return actions, nil
	}

	var wrapper struct {
		Actions []Action `json:"actions"`
	}
	if err := json.Unmarshal([]byte(trimmed), &wrapper); err != nil {
		return nil, fmt.Errorf("failed to decode actions: %w", err)
	}
	return wrapper.Actions, nil
}

// Int returns a pointer to v, for optional numeric action fields.
func Int(v int) *int { return &v }

// Bool returns a pointer to v, for optional boolean fields.
func Bool(v bool) *bool { return &v }
