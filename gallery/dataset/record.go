package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Role tags the author of a Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message inside a record's conversation. Only role and content
// survive a load/save round trip.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Record is one image+text+conversation entry of the dataset.
type Record struct {
	ImagePath   string
	Text        string
	Messages    []Turn
	Model       string // set once by the first accepted answer
	Contributor string
	Source      string

	// Extra holds every top-level field this package does not model, so
	// unknown fields survive a load/save round trip.
	Extra map[string]json.RawMessage
}

var knownFields = map[string]bool{
	"image_path":  true,
	"text":        true,
	"messages":    true,
	"model":       true,
	"contributor": true,
	"source":      true,
}

// UnmarshalJSON decodes a record, keeping unknown fields in Extra.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Record{}
	fields := []struct {
		key string
		dst *string
	}{
		{"image_path", &r.ImagePath},
		{"text", &r.Text},
		{"model", &r.Model},
		{"contributor", &r.Contributor},
		{"source", &r.Source},
	}
	for _, f := range fields {
		v, ok := raw[f.key]
		if !ok || isNull(v) {
			continue
		}
		if err := json.Unmarshal(v, f.dst); err != nil {
			return fmt.Errorf("field %s: %w", f.key, err)
		}
	}

	if v, ok := raw["messages"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &r.Messages); err != nil {
			return fmt.Errorf("field messages: %w", err)
		}
	}

	for k, v := range raw {
		if knownFields[k] {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]json.RawMessage)
		}
		r.Extra[k] = append(json.RawMessage(nil), v...)
	}
	return nil
}

// MarshalJSON writes known fields first, then extras in key order. Non-ASCII
// text and HTML characters are written as-is.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	first := true
	write := func(key string, value any) error {
		enc, err := encode(value)
		if err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := encode(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(enc)
		return nil
	}

	messages := r.Messages
	if messages == nil {
		messages = []Turn{}
	}

	if err := write("image_path", r.ImagePath); err != nil {
		return nil, err
	}
	if err := write("text", r.Text); err != nil {
		return nil, err
	}
	if err := write("messages", messages); err != nil {
		return nil, err
	}
	for _, f := range []struct{ key, value string }{
		{"model", r.Model},
		{"contributor", r.Contributor},
		{"source", r.Source},
	} {
		if f.value == "" {
			continue
		}
		if err := write(f.key, f.value); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := write(k, r.Extra[k]); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// Clone returns a deep copy so callers can mutate without aliasing the store.
func (r Record) Clone() Record {
	out := r
	if r.Messages != nil {
		out.Messages = append([]Turn(nil), r.Messages...)
	}
	if r.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// HasConversation reports whether the record has at least one turn.
func (r Record) HasConversation() bool {
	return len(r.Messages) > 0
}

// Pair is a question/answer pair addressed by position.
type Pair struct {
	Position int
	Question string
	Answer   string
	// Dangling marks a trailing turn with no partner.
	Dangling bool
}

// PairCount returns the number of pairs, counting a dangling trailing turn.
func (r Record) PairCount() int {
	return (len(r.Messages) + 1) / 2
}

// Pairs lists the conversation as positional pairs.
func (r Record) Pairs() []Pair {
	pairs := make([]Pair, 0, r.PairCount())
	for pos := 0; pos < r.PairCount(); pos++ {
		p, _ := r.Pair(pos)
		pairs = append(pairs, p)
	}
	return pairs
}

// Pair returns the turns at 2*pos and 2*pos+1. The missing half of a
// dangling pair reads as empty.
func (r Record) Pair(pos int) (Pair, bool) {
	i := pos * 2
	if pos < 0 || i >= len(r.Messages) {
		return Pair{}, false
	}
	p := Pair{Position: pos, Question: r.Messages[i].Content}
	if i+1 < len(r.Messages) {
		p.Answer = r.Messages[i+1].Content
	} else {
		p.Dangling = true
	}
	return p, true
}

// DeletePair removes the turns at 2*pos and 2*pos+1 (only 2*pos for a
// dangling pair). It reports false when pos is out of range.
func (r *Record) DeletePair(pos int) bool {
	i := pos * 2
	if pos < 0 || i >= len(r.Messages) {
		return false
	}
	end := min(i+2, len(r.Messages))
	msgs := make([]Turn, 0, len(r.Messages)-(end-i))
	msgs = append(msgs, r.Messages[:i]...)
	msgs = append(msgs, r.Messages[end:]...)
	r.Messages = msgs
	return true
}

// EditPair replaces the contents of an existing pair, keeping roles. For a
// dangling pair only the question is written.
func (r *Record) EditPair(pos int, question, answer string) bool {
	i := pos * 2
	if pos < 0 || i >= len(r.Messages) {
		return false
	}
	r.Messages[i].Content = question
	if i+1 < len(r.Messages) {
		r.Messages[i+1].Content = answer
	}
	return true
}

// AppendPair adds a user/assistant pair at the end of the conversation.
func (r *Record) AppendPair(question, answer string) {
	r.Messages = append(r.Messages,
		Turn{Role: RoleUser, Content: question},
		Turn{Role: RoleAssistant, Content: answer},
	)
}

// StampModel records the generating model unless one is already present.
func (r *Record) StampModel(model string) {
	if r.Model == "" {
		r.Model = model
	}
}

// StampContributor records the last user who added to the record.
func (r *Record) StampContributor(username string) {
	if username != "" {
		r.Contributor = username
	}
}
