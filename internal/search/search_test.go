package search

import "testing"

func TestPlainSubstringMatch(t *testing.T) {
	p, ok := New("hello", true)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if !p.Matches(`{"msg":"hello world"}`) {
		t.Fatal("expected match")
	}
	if p.Matches(`{"msg":"goodbye"}`) {
		t.Fatal("expected no match")
	}
}

func TestCaseInsensitiveMatch(t *testing.T) {
	p, _ := New("HELLO", false)
	if !p.Matches(`{"msg":"hello world"}`) {
		t.Fatal("expected case-insensitive match")
	}
}

func TestKeyValueQuery(t *testing.T) {
	p, ok := New(`status:"ok"`, true)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if !p.Matches(`{"status":"ok","code":200}`) {
		t.Fatal("expected match on both key and value present")
	}
	if p.Matches(`{"status":"error","code":200}`) {
		t.Fatal("expected no match when value absent")
	}
}

func TestEmptyQueryNotOK(t *testing.T) {
	if _, ok := New("   ", true); ok {
		t.Fatal("expected ok=false for blank query")
	}
}

func TestQuotedFormMatchesJSONEncoding(t *testing.T) {
	p, _ := New(`a"b`, true)
	if !p.Matches(`{"k":"a\"b"}`) {
		t.Fatal("expected quoted-form match")
	}
}
