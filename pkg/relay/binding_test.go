package relay

import "testing"

func TestBindingTable_LastWriterWins(t *testing.T) {
	tb := NewBindingTable()
	tb.Bind("chan1", "S1")
	tb.Bind("chan1", "S2")

	got, ok := tb.Resolve("chan1")
	if !ok || got != "S2" {
		t.Errorf("resolve: got %q ok=%v, want S2", got, ok)
	}
	if tb.Len() != 1 {
		t.Errorf("len: got %d, want 1", tb.Len())
	}
}

func TestBindingTable_Unbind(t *testing.T) {
	tb := NewBindingTable()
	tb.Bind("chan1", "S1")
	tb.Unbind("chan1")
	tb.Unbind("chan1") // absent, no-op

	if _, ok := tb.Resolve("chan1"); ok {
		t.Error("binding survived unbind")
	}
}

func TestBindingTable_UnbindSession(t *testing.T) {
	tb := NewBindingTable()
	tb.Bind("chan1", "S1")
	tb.Bind("chan2", "S1")
	tb.Bind("chan3", "S2")

	unbound := tb.UnbindSession("S1")
	if len(unbound) != 2 {
		t.Fatalf("unbound: got %d channels, want 2", len(unbound))
	}
	if _, ok := tb.Resolve("chan3"); !ok {
		t.Error("unrelated binding removed")
	}
}
