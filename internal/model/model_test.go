// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// VALUE KIND TESTS
// =============================================================================

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		want ValueKind
	}{
		{"prompt", KindPrompt},
		{"PROMPT", KindPrompt},
		{"Response", KindResponse},
		{"content", KindContent},
		{"_user", KindUser},
		{"_USER", KindUser},
		{"files", KindFiles},
		{"Sources", KindSources},
		{"summary", KindDefault},
		{"", KindDefault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.name); got != tt.want {
				t.Errorf("KindOf(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestValueKind_IsText(t *testing.T) {
	for _, k := range []ValueKind{KindPrompt, KindResponse, KindContent} {
		if !k.IsText() {
			t.Errorf("%v should be a text kind", k)
		}
	}
	for _, k := range []ValueKind{KindUser, KindFiles, KindSources, KindDefault} {
		if k.IsText() {
			t.Errorf("%v should not be a text kind", k)
		}
	}
}

func TestMessageValue_IsNull(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"", true},
		{"null", true},
		{"  null ", true},
		{`"x"`, false},
		{"[]", false},
		{"0", false},
	}
	for _, tt := range tests {
		v := MessageValue{Value: json.RawMessage(tt.raw)}
		if got := v.IsNull(); got != tt.want {
			t.Errorf("IsNull(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewOptimisticMessage(t *testing.T) {
	msg := NewOptimisticMessage("alice", "Hi", nil)

	if !msg.Optimistic {
		t.Error("optimistic message should be flagged")
	}
	if !strings.HasPrefix(msg.ID, TempIDPrefix) {
		t.Errorf("ID = %q, want temp prefix", msg.ID)
	}
	if len(msg.Values) != 1 {
		t.Fatalf("len(Values) = %d, want 1", len(msg.Values))
	}
	v := msg.Values[0]
	if v.Name != ValuePrompt || v.Type != TypeInput {
		t.Errorf("value = %s/%s, want prompt/Input", v.Name, v.Type)
	}
	if string(v.Value) != `[{"text":"Hi"}]` {
		t.Errorf("prompt value = %s", v.Value)
	}
}

func TestNewOptimisticMessage_FilesFirst(t *testing.T) {
	msg := NewOptimisticMessage("alice", "see attached", []FileRef{{ID: "f1", Name: "a.png"}})

	if len(msg.Values) != 2 {
		t.Fatalf("len(Values) = %d, want 2", len(msg.Values))
	}
	if msg.Values[0].Kind() != KindFiles {
		t.Errorf("first value kind = %v, want files", msg.Values[0].Kind())
	}
	if msg.Values[1].Kind() != KindPrompt {
		t.Errorf("second value kind = %v, want prompt", msg.Values[1].Kind())
	}
	if msg.Values[0].ID == msg.Values[1].ID {
		t.Error("value ids should be distinct")
	}
}

func TestPromptSignature(t *testing.T) {
	a := Message{Values: []MessageValue{
		{Name: "prompt", Type: TypeInput, Value: json.RawMessage(`[{"text":"Hi"}]`)},
	}}
	b := Message{Values: []MessageValue{
		{Name: "Prompt", Type: TypeInput, Value: json.RawMessage(`[ { "text" : "Hi" } ]`)},
	}}
	c := Message{Values: []MessageValue{
		{Name: "prompt", Type: TypeOutput, Value: json.RawMessage(`[{"text":"Hi"}]`)},
	}}

	sigA, okA := a.PromptSignature()
	sigB, okB := b.PromptSignature()
	if !okA || !okB {
		t.Fatal("both messages should have a signature")
	}
	if sigA != sigB {
		t.Errorf("signatures differ: %q vs %q", sigA, sigB)
	}
	if _, ok := c.PromptSignature(); ok {
		t.Error("Output prompt values must not produce a signature")
	}
}

func TestCanonicalJSON(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		same bool
	}{
		{"key order", `{"a":1,"b":2}`, `{"b":2,"a":1}`, true},
		{"whitespace", `[1, 2]`, `[1,2]`, true},
		{"large ints kept", `12345678901234567890`, `12345678901234567891`, false},
		{"different text", `"Hi"`, `"Hello"`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanonicalJSON(json.RawMessage(tt.a)) == CanonicalJSON(json.RawMessage(tt.b))
			if got != tt.same {
				t.Errorf("CanonicalJSON equality = %v, want %v", got, tt.same)
			}
		})
	}
}

func TestMessage_Clone(t *testing.T) {
	orig := Message{
		ID: "m1",
		Values: []MessageValue{
			{ID: "v1", Value: json.RawMessage(`"x"`), Channels: map[string]int{"a": 1}},
		},
		Errors: []ErrorRecord{{Code: 1}},
	}

	cp := orig.Clone()
	cp.Values[0].Channels["a"] = 9
	cp.Values[0].Value[1] = 'y'
	cp.Errors[0].Code = 2

	if orig.Values[0].Channels["a"] != 1 {
		t.Error("Clone shares channel map")
	}
	if string(orig.Values[0].Value) != `"x"` {
		t.Error("Clone shares value bytes")
	}
	if orig.Errors[0].Code != 1 {
		t.Error("Clone shares errors")
	}
}

func TestValueIndex(t *testing.T) {
	msg := Message{Values: []MessageValue{{ID: "a"}, {ID: "b"}}}
	if got := msg.ValueIndex("b"); got != 1 {
		t.Errorf("ValueIndex(b) = %d, want 1", got)
	}
	if got := msg.ValueIndex("zzz"); got != -1 {
		t.Errorf("ValueIndex(zzz) = %d, want -1", got)
	}
}

// =============================================================================
// THREAD HELPER TESTS
// =============================================================================

func TestReversed(t *testing.T) {
	msgs := []Message{{ID: "3"}, {ID: "2"}, {ID: "1"}}
	got := Reversed(msgs)
	for i, want := range []string{"1", "2", "3"} {
		if got[i].ID != want {
			t.Errorf("Reversed[%d] = %s, want %s", i, got[i].ID, want)
		}
	}
	if msgs[0].ID != "3" {
		t.Error("Reversed must not modify its input")
	}
}

func TestIndexOf(t *testing.T) {
	msgs := []Message{{ID: "a"}, {ID: "b"}}
	if IndexOf(msgs, "b") != 1 {
		t.Error("IndexOf(b) should be 1")
	}
	if IndexOf(msgs, "") != -1 {
		t.Error("empty id must never match")
	}
}

func TestHasSignature(t *testing.T) {
	prompt := MessageValue{Name: "prompt", Type: TypeInput, Value: json.RawMessage(`[{"text":"Hi"}]`)}
	msgs := []Message{
		{ID: "temp-1", Optimistic: true, Values: []MessageValue{prompt}},
	}
	sig := CanonicalJSON(prompt.Value)

	if HasSignature(msgs, sig) {
		t.Error("optimistic entries must not count as confirmed")
	}
	msgs = append(msgs, Message{ID: "real-1", Values: []MessageValue{prompt}})
	if !HasSignature(msgs, sig) {
		t.Error("confirmed entry should match")
	}
}

func TestNewBubble_NonNilCollections(t *testing.T) {
	b := NewBubble(TypeOutput, "bot", time.Time{})
	if b.Content == nil || b.Files == nil || b.Sources == nil {
		t.Error("bubble collections must be non-nil")
	}
	if b.IsForm() {
		t.Error("plain bubble is not a form")
	}
}
