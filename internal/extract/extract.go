// Package extract locates structured JSON results inside raw Claude CLI
// output. The producer is untrusted: output may be stream-json events, plain
// markdown, or free text, and legitimate content routinely embeds nested code
// fences and nested field names, so extraction layers several strategies
// rather than relying on a single pattern.
package extract

import (
	"encoding/json"
	"strings"
)

// Result is an extracted JSON object. A nil Result means "not found", which
// callers must distinguish from a present-but-empty object.
type Result map[string]any

// Find returns the most relevant JSON object in output that contains
// requiredField at any nesting depth, or nil if none exists.
//
// Strategy, short-circuiting on first hit:
//  1. Parse output as line-delimited stream-json events and collect the text
//     segments of assistant events in emission order.
//  2. For each segment, newest first: extract fenced ```json blocks with a
//     nesting-aware scanner and try them newest first.
//  3. Failing that, incrementally scan each segment for bare JSON values.
//  4. If the output was not stream-json at all, unescape common sequences and
//     run steps 2-3 against the raw text.
func Find(output, requiredField string) Result {
	segments := assistantSegments(output)

	for i := len(segments) - 1; i >= 0; i-- {
		if r := fromFences(segments[i], requiredField); r != nil {
			return r
		}
	}
	for i := len(segments) - 1; i >= 0; i-- {
		if r := scanValues(segments[i], requiredField); r != nil {
			return r
		}
	}

	if len(segments) == 0 {
		text := unescape(output)
		if r := fromFences(text, requiredField); r != nil {
			return r
		}
		if r := scanValues(text, requiredField); r != nil {
			return r
		}
	}

	return nil
}

// streamEvent is the subset of a Claude stream-json line we care about.
type streamEvent struct {
	Type    string `json:"type"`
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
}

// assistantSegments parses each line as an independent stream-json event and
// returns the text blocks of assistant events in emission order. Lines that
// are not valid events are ignored; a producer that emits no parseable
// assistant text yields an empty slice.
func assistantSegments(output string) []string {
	var segments []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] != '{' {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		if ev.Type != "assistant" {
			continue
		}
		for _, c := range ev.Message.Content {
			if c.Type == "text" && c.Text != "" {
				segments = append(segments, c.Text)
			}
		}
	}
	return segments
}

// fromFences extracts ```json blocks from text and returns the newest one
// that parses and contains the required field.
func fromFences(text, requiredField string) Result {
	blocks := jsonBlocks(text)
	for i := len(blocks) - 1; i >= 0; i-- {
		if r := tryParse(blocks[i], requiredField); r != nil {
			return r
		}
	}
	return nil
}

const fence = "```"

// jsonBlocks returns the contents of ```json fenced blocks in text.
//
// The scanner tracks fence nesting: a ``` immediately followed by a label
// opens a further nested block, while a bare ``` closes one. This keeps a
// block intact when its JSON content embeds a labeled code snippet (e.g. a
// "```python ... ```" pair inside a string value). An unclosed block extends
// to the end of the text; malformed candidates are weeded out by the JSON
// parse that follows.
func jsonBlocks(text string) []string {
	var blocks []string
	pos := 0
	for {
		open := indexFenceLabel(text[pos:], "json")
		if open < 0 {
			return blocks
		}
		// Content starts after the opener's label line.
		start := pos + open + len(fence) + len("json")
		nl := strings.IndexByte(text[start:], '\n')
		if nl < 0 {
			return blocks
		}
		start += nl + 1

		depth := 1
		cur := start
		for depth > 0 {
			next := strings.Index(text[cur:], fence)
			if next < 0 {
				// Unclosed block: take the rest of the text.
				blocks = append(blocks, text[start:])
				return blocks
			}
			at := cur + next
			if fenceOpensBlock(text[at+len(fence):]) {
				depth++
			} else {
				depth--
			}
			cur = at + len(fence)
			if depth == 0 {
				blocks = append(blocks, text[start:at])
				pos = cur
			}
		}
	}
}

// indexFenceLabel finds the next ``` opener with the given label.
func indexFenceLabel(text, label string) int {
	marker := fence + label
	for from := 0; ; {
		i := strings.Index(text[from:], marker)
		if i < 0 {
			return -1
		}
		at := from + i
		// The label must end the token: "```jsonnet" is a different block type.
		rest := text[at+len(marker):]
		if rest == "" || !isLabelByte(rest[0]) {
			return at
		}
		from = at + len(marker)
	}
}

// fenceOpensBlock reports whether the text following a ``` marker starts a
// labeled block (i.e. the fence is an opener, not a closer).
func fenceOpensBlock(rest string) bool {
	return rest != "" && isLabelByte(rest[0])
}

func isLabelByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// scanValues performs an incremental linear scan over text: at every opening
// bracket it attempts to decode one JSON value, checks it for the required
// field, and otherwise advances past the decoded span. Decoding exactly one
// value per candidate position avoids the quadratic blow-up of pair-matching
// brackets across large text.
func scanValues(text, requiredField string) Result {
	for i := 0; i < len(text); {
		c := text[i]
		if c != '{' && c != '[' {
			i++
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var v any
		if err := dec.Decode(&v); err != nil {
			i++
			continue
		}
		if containsField(v, requiredField) {
			if obj, ok := v.(map[string]any); ok {
				return Result(obj)
			}
			// The field is inside a top-level array: surface the first
			// object in the tree that holds it.
			if obj := objectWithField(v, requiredField); obj != nil {
				return obj
			}
		}
		i += int(dec.InputOffset())
	}
	return nil
}

// tryParse decodes text as a JSON object and returns it if it contains the
// required field anywhere in its tree.
func tryParse(text, requiredField string) Result {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &obj); err != nil {
		return nil
	}
	if !containsField(obj, requiredField) {
		return nil
	}
	return Result(obj)
}

// containsField reports whether field appears as a key anywhere inside v,
// searching nested maps and slices.
func containsField(v any, field string) bool {
	switch t := v.(type) {
	case map[string]any:
		if _, ok := t[field]; ok {
			return true
		}
		for _, child := range t {
			if containsField(child, field) {
				return true
			}
		}
	case []any:
		for _, child := range t {
			if containsField(child, field) {
				return true
			}
		}
	}
	return false
}

// objectWithField returns the first object in v's tree that has field as a
// direct key.
func objectWithField(v any, field string) Result {
	switch t := v.(type) {
	case map[string]any:
		if _, ok := t[field]; ok {
			return Result(t)
		}
		for _, child := range t {
			if obj := objectWithField(child, field); obj != nil {
				return obj
			}
		}
	case []any:
		for _, child := range t {
			if obj := objectWithField(child, field); obj != nil {
				return obj
			}
		}
	}
	return nil
}

// unescape normalizes the escape sequences a non-conforming producer leaves
// in raw (non-stream-json) output.
func unescape(text string) string {
	text = strings.ReplaceAll(text, `\n`, "\n")
	text = strings.ReplaceAll(text, `\"`, `"`)
	text = strings.ReplaceAll(text, `\\`, `\`)
	return text
}

// String returns the string value for key, or "" if absent or not a string.
func (r Result) String(key string) string {
	if s, ok := r[key].(string); ok {
		return s
	}
	return ""
}

// Float returns the numeric value for key, or def if absent or not a number.
func (r Result) Float(key string, def float64) float64 {
	if f, ok := r[key].(float64); ok {
		return f
	}
	return def
}

// Bool returns the boolean value for key, or false if absent or not a bool.
func (r Result) Bool(key string) bool {
	b, _ := r[key].(bool)
	return b
}

// Strings returns the value for key as a string slice, tolerating the
// []any representation JSON decoding produces.
func (r Result) Strings(key string) []string {
	raw, ok := r[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Map returns the value for key as a nested object, or nil.
func (r Result) Map(key string) map[string]any {
	m, _ := r[key].(map[string]any)
	return m
}
