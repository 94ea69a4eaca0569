package protocol

// Rect is an element's bounding box in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SelectorHint is a ranked candidate element produced by DOM sensing.
type SelectorHint struct {
	Selector   string            `json:"selector"`
	Tag        string            `json:"tag"`
	Score      float64           `json:"score"`
	Attributes map[string]string `json:"attributes"`
	Rect       *Rect             `json:"rect,omitempty"`
}

// Clone returns a deep copy of h.
func (h SelectorHint) Clone() SelectorHint {
	out := h
	if h.Attributes != nil {
		out.Attributes = make(map[string]string, len(h.Attributes))
		for k, v := range h.Attributes {
			out.Attributes[k] = v
		}
	}
	if h.Rect != nil {
		r := *h.Rect
		out.Rect = &r
	}
	return out
}

// CloneHints deep-copies a hint list. A nil input yields nil.
func CloneHints(hints []SelectorHint) []SelectorHint {
	if hints == nil {
		return nil
	}
	out := make([]SelectorHint, len(hints))
	for i, h := range hints {
		out[i] = h.Clone()
	}
	return out
}
