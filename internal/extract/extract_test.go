package extract

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

// streamLine builds one assistant stream-json event containing text.
func streamLine(t *testing.T, text string) string {
	t.Helper()
	ev := map[string]any{
		"type": "assistant",
		"message": map[string]any{
			"content": []map[string]any{{"type": "text", "text": text}},
		},
	}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestFindInStreamJSON(t *testing.T) {
	text := "Analysis done.\n```json\n{\"classification\": \"FIXABLE_CODE\", \"confidence\": 0.8}\n```"
	output := strings.Join([]string{
		`{"type": "system", "subtype": "init"}`,
		streamLine(t, text),
		`{"type": "result", "duration_ms": 1200}`,
	}, "\n")

	r := Find(output, "classification")
	if r == nil {
		t.Fatal("expected a result")
	}
	if got := r.String("classification"); got != "FIXABLE_CODE" {
		t.Errorf("classification = %q, want FIXABLE_CODE", got)
	}
	if got := r.Float("confidence", 0); got != 0.8 {
		t.Errorf("confidence = %v, want 0.8", got)
	}
}

func TestFindNewestBlockWins(t *testing.T) {
	// Two fenced blocks; only the second carries the required field. Then a
	// case where both carry it and the newest must win.
	text := "```json\n{\"other\": 1}\n```\nrevised:\n```json\n{\"verdict\": \"APPROVED\"}\n```"
	r := Find(text, "verdict")
	if r == nil || r.String("verdict") != "APPROVED" {
		t.Fatalf("got %v, want the second block", r)
	}

	text = "```json\n{\"verdict\": \"OLD\"}\n```\n```json\n{\"verdict\": \"NEW\"}\n```"
	r = Find(text, "verdict")
	if r == nil || r.String("verdict") != "NEW" {
		t.Fatalf("got %v, want the newest block", r)
	}
}

func TestFindNewestAssistantEventWins(t *testing.T) {
	output := strings.Join([]string{
		streamLine(t, "```json\n{\"confidence\": 0.1}\n```"),
		streamLine(t, "```json\n{\"confidence\": 0.9}\n```"),
	}, "\n")

	r := Find(output, "confidence")
	if r == nil || r.Float("confidence", 0) != 0.9 {
		t.Fatalf("got %v, want the later event's block", r)
	}
}

func TestFindNestedFenceInsideString(t *testing.T) {
	// The JSON block embeds a labeled code fence pair inside a string value.
	// The scanner must not close the json block at the inner fences.
	inner := `{"summary": "use:\n` + "```python\\nprint(1)\\n```" + `\n done", "files_changed": ["a.py"]}`
	text := "```json\n" + inner + "\n```"

	r := Find(text, "files_changed")
	if r == nil {
		t.Fatal("expected a result despite embedded fences")
	}
	if got := r.Strings("files_changed"); len(got) != 1 || got[0] != "a.py" {
		t.Errorf("files_changed = %v, want [a.py]", got)
	}
	if !strings.Contains(r.String("summary"), "print(1)") {
		t.Errorf("summary lost embedded snippet: %q", r.String("summary"))
	}
}

func TestFindUnclosedFence(t *testing.T) {
	text := "```json\n{\"classification\": \"DUPLICATE\"}"
	r := Find(text, "classification")
	if r == nil || r.String("classification") != "DUPLICATE" {
		t.Fatalf("got %v, want result from unclosed block", r)
	}
}

func TestFindLabelMustEndToken(t *testing.T) {
	// ```jsonnet is not a ```json block.
	text := "```jsonnet\n{\"classification\": \"X\"}\n```\n```json\n{\"classification\": \"FIXABLE_CODE\"}\n```"
	r := Find(text, "classification")
	if r == nil || r.String("classification") != "FIXABLE_CODE" {
		t.Fatalf("got %v, want the real json block", r)
	}
}

func TestFindNestedField(t *testing.T) {
	// The required field may sit arbitrarily deep in maps and slices.
	text := "```json\n{\"result\": {\"steps\": [{\"classification\": \"bug\"}]}}\n```"
	r := Find(text, "classification")
	if r == nil {
		t.Fatal("expected nested field to match")
	}
	if _, ok := r["result"]; !ok {
		t.Error("expected the whole top-level object to be returned")
	}
}

func TestFindBareJSONScan(t *testing.T) {
	// No fences at all: the incremental scan must find the object.
	text := `The result is {"approved": true, "verdict": "APPROVED"} as shown.`
	r := Find(text, "verdict")
	if r == nil || !r.Bool("approved") {
		t.Fatalf("got %v, want bare object", r)
	}
}

func TestFindScanSkipsDecoys(t *testing.T) {
	// Braces that fail to parse must not prevent later candidates.
	text := `{not json} and then {"confidence": 0.7}`
	r := Find(text, "confidence")
	if r == nil || r.Float("confidence", 0) != 0.7 {
		t.Fatalf("got %v, want the parseable object", r)
	}
}

func TestFindTopLevelArray(t *testing.T) {
	text := `[{"other": 1}, {"verdict": "NEEDS_REVISION"}]`
	r := Find(text, "verdict")
	if r == nil || r.String("verdict") != "NEEDS_REVISION" {
		t.Fatalf("got %v, want object inside array", r)
	}
}

func TestFindEscapedRawOutput(t *testing.T) {
	// A non-conforming producer hands back escaped text.
	text := `Result: \n` + "```json" + `\n{\"classification\": \"NEEDS_HUMAN\", \"confidence\": 0.9}\n` + "```"
	r := Find(text, "classification")
	if r == nil || r.String("classification") != "NEEDS_HUMAN" {
		t.Fatalf("got %v, want result after unescaping", r)
	}
}

func TestFindNotFoundIsNil(t *testing.T) {
	cases := []string{
		"",
		"no json here",
		"```json\n{\"other\": 1}\n```",
		`{"type": "assistant", "message": {"content": [{"type": "text", "text": "plain"}]}}`,
	}
	for _, text := range cases {
		if r := Find(text, "classification"); r != nil {
			t.Errorf("Find(%q) = %v, want nil", text, r)
		}
	}
}

func TestFindEmptyObjectIsNotNil(t *testing.T) {
	// An extracted object is distinct from "not found" even when the match
	// carries nothing but the required field.
	r := Find("```json\n{\"classification\": \"\"}\n```", "classification")
	if r == nil {
		t.Fatal("present-but-empty must not be reported as missing")
	}
}

func TestFindLargeOutputScanTerminates(t *testing.T) {
	// The incremental scan must stay linear on brace-heavy text.
	var b strings.Builder
	for i := 0; i < 5000; i++ {
		fmt.Fprintf(&b, "{x%d ", i)
	}
	b.WriteString(`{"confidence": 0.4}`)
	r := Find(b.String(), "confidence")
	if r == nil || r.Float("confidence", 0) != 0.4 {
		t.Fatalf("got %v, want trailing object", r)
	}
}

func TestResultHelpers(t *testing.T) {
	r := Result{
		"s":   "str",
		"f":   1.5,
		"b":   true,
		"arr": []any{"a", 2, "b"},
		"m":   map[string]any{"k": "v"},
	}
	if r.String("s") != "str" || r.String("f") != "" {
		t.Error("String helper mismatch")
	}
	if r.Float("f", 0) != 1.5 || r.Float("s", 9) != 9 {
		t.Error("Float helper mismatch")
	}
	if !r.Bool("b") || r.Bool("s") {
		t.Error("Bool helper mismatch")
	}
	if got := r.Strings("arr"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Strings helper = %v", got)
	}
	if m := r.Map("m"); m == nil || m["k"] != "v" {
		t.Errorf("Map helper = %v", m)
	}
}
