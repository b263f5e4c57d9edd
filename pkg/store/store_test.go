package store

import "testing"

func TestFieldListLastWriterWins(t *testing.T) {
	fl := FieldList{
		{Name: "admin_status", Value: "up"},
		{Name: "mtu", Value: "1500"},
		{Name: "admin_status", Value: "down"},
	}

	v, ok := fl.Get("admin_status")
	if !ok || v != "down" {
		t.Fatalf("expected last-writer-wins value %q, got %q (ok=%v)", "down", v, ok)
	}

	m := fl.ToMap()
	if m["admin_status"] != "down" || m["mtu"] != "1500" {
		t.Fatalf("unexpected map: %#v", m)
	}
}

func TestFieldListGetMissing(t *testing.T) {
	var fl FieldList
	if _, ok := fl.Get("nothing"); ok {
		t.Fatal("expected missing field to report ok=false")
	}
}

func TestOpString(t *testing.T) {
	if OpSet.String() != "SET" {
		t.Errorf("OpSet.String() = %q, want SET", OpSet.String())
	}
	if OpDel.String() != "DEL" {
		t.Errorf("OpDel.String() = %q, want DEL", OpDel.String())
	}
}
