package prompt

import (
	"errors"
	"strings"
	"testing"
)

func TestRenderFillsSlotsAndDefaults(t *testing.T) {
	tmpl := New("greeting", "<|system|>\n{persona}\n<|user|>\n{question}\n", []string{"persona", "question"}, map[string]string{
		"persona": "You are askdb.",
	})

	out, err := tmpl.Render(map[string]string{"question": "hi"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "<|system|>\nYou are askdb.\n<|user|>\nhi\n" {
		t.Fatalf("Render() = %q", out)
	}

	out, err = tmpl.Render(map[string]string{"question": "hi", "persona": "You are Ada."})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(out, "You are Ada.") {
		t.Fatalf("override ignored: %q", out)
	}
}

func TestRenderRequiresSlots(t *testing.T) {
	tmpl := New("q", "{question}", []string{"question"}, nil)
	_, err := tmpl.Render(map[string]string{})
	if !errors.Is(err, ErrMissingSlot) {
		t.Fatalf("Render() error = %v", err)
	}
}

func TestRenderKeepsBracesInValues(t *testing.T) {
	tmpl := New("schema", "schema: {schema}", []string{"schema"}, nil)
	out, err := tmpl.Render(map[string]string{"schema": `{"customer": {"columns": {}}}`})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != `schema: {"customer": {"columns": {}}}` {
		t.Fatalf("Render() = %q", out)
	}
}

func TestRenderUsesCopiesOfSlotsAndDefaults(t *testing.T) {
	defaults := map[string]string{"a": "1"}
	slots := []string{"b", "a"}
	tmpl := New("t", "{a}{b}", slots, defaults)
	defaults["a"] = "changed"
	slots[0] = "changed"

	out, err := tmpl.Render(map[string]string{"b": "x"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "1x" {
		t.Fatalf("Render() = %q, want defaults captured at construction", out)
	}
	if _, err := tmpl.Render(map[string]string{"changed": "y"}); !errors.Is(err, ErrMissingSlot) {
		t.Fatalf("Render() without b error = %v, want ErrMissingSlot", err)
	}
}
