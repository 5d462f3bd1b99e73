package replcli

import (
	"bytes"
	"strings"
	"testing"

	"lineagedb/internal/engine"
	"lineagedb/internal/table"
)

func newTestREPL(t *testing.T) (*REPL, *bytes.Buffer) {
	t.Helper()
	eng, err := engine.Open(engine.Config{
		Storage: engine.StorageFile,
		DataDir: t.TempDir(),
		Schema: []engine.TableSchema{
			{Name: "rows", Fields: []table.FieldDescriptor{{Name: "email", Unique: true}}},
		},
	})
	if err != nil {
		t.Fatalf("engine.Open: %v", err)
	}
	t.Cleanup(func() { eng.Close() })

	var out bytes.Buffer
	r := New(eng, strings.NewReader(""), &out, &out)
	return r, &out
}

func TestExecuteAddAndList(t *testing.T) {
	r, out := newTestREPL(t)

	if err := r.execute(`add {"email": "a@x.com"}`); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out.String(), "id=") {
		t.Fatalf("expected add output to include an id, got %q", out.String())
	}

	out.Reset()
	if err := r.execute("list email=a@x.com"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out.String(), "1 row(s)") {
		t.Fatalf("expected list to report 1 row, got %q", out.String())
	}
}

func TestExecuteUnknownVerb(t *testing.T) {
	r, _ := newTestREPL(t)
	if err := r.execute("frobnicate"); err == nil {
		t.Fatalf("expected an error for an unknown verb")
	}
}

func TestExecuteGetMissingRow(t *testing.T) {
	r, out := newTestREPL(t)
	if err := r.execute("get 00000000-0000-0000-0000-000000000000"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if !strings.Contains(out.String(), "not found") {
		t.Fatalf("expected not found output, got %q", out.String())
	}
}

func TestParseRecord(t *testing.T) {
	rec, err := parseRecord(`{"a": 1, "b": "x", "c": true, "d": null}`)
	if err != nil {
		t.Fatalf("parseRecord: %v", err)
	}
	if rec["a"].Int() != 1 {
		t.Errorf("a = %v, want 1", rec["a"])
	}
	if rec["b"].Text() != "x" {
		t.Errorf("b = %v, want x", rec["b"])
	}
	if !rec["c"].Bool() {
		t.Errorf("c = %v, want true", rec["c"])
	}
	if !rec["d"].IsNull() {
		t.Errorf("d should be null")
	}
}

func TestValueFromString(t *testing.T) {
	if v := valueFromString("42"); v.Int() != 42 {
		t.Errorf("expected int 42, got %v", v)
	}
	if v := valueFromString("3.5"); v.Float() != 3.5 {
		t.Errorf("expected float 3.5, got %v", v)
	}
	if v := valueFromString("true"); !v.Bool() {
		t.Errorf("expected bool true, got %v", v)
	}
	if v := valueFromString("hello"); v.Text() != "hello" {
		t.Errorf("expected text hello, got %v", v)
	}
}
