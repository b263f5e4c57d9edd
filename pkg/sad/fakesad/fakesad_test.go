package fakesad

import (
	"errors"
	"testing"

	"github.com/sonic-net/go-orchagent/pkg/sad"
)

func TestCreateAndRemoveLag(t *testing.T) {
	d := New()
	h, err := d.CreateLag(sad.Attrs{"name": "PortChannel0001"})
	if err != nil {
		t.Fatalf("CreateLag: %v", err)
	}
	if h == "" {
		t.Fatal("expected non-empty handle")
	}
	if err := d.RemoveLag(h); err != nil {
		t.Fatalf("RemoveLag: %v", err)
	}
	if err := d.RemoveLag(h); err == nil {
		t.Fatal("expected RemoveLag on an already-removed handle to fail")
	}
}

func TestFailNextInjectsOneFailure(t *testing.T) {
	d := New()
	d.FailNext["CreateVlan"] = errSentinel

	if _, err := d.CreateVlan(100); err == nil {
		t.Fatal("expected injected failure")
	}
	if _, err := d.CreateVlan(100); err != nil {
		t.Fatalf("expected injected failure to be consumed, got %v", err)
	}
}

func TestDefaultTrapGroupCannotBeRemoved(t *testing.T) {
	d := New()
	if err := d.RemoveTrapGroup(d.GetDefaultTrapGroup()); err == nil {
		t.Fatal("expected removing the default trap group to fail")
	}
}

func TestAclCounterStats(t *testing.T) {
	d := New()
	table, _ := d.CreateAclTable(sad.Attrs{})
	rule, err := d.CreateAclRule(table, sad.Attrs{"PRIORITY": "100"})
	if err != nil {
		t.Fatalf("CreateAclRule: %v", err)
	}
	d.BumpCounter(rule, 10, 1000)

	packets, bytes, err := d.GetAclCounterStats(rule)
	if err != nil {
		t.Fatalf("GetAclCounterStats: %v", err)
	}
	if packets != 10 || bytes != 1000 {
		t.Fatalf("got packets=%d bytes=%d, want 10/1000", packets, bytes)
	}
}

func TestCallsAreRecorded(t *testing.T) {
	d := New()
	d.CreateVlan(200)
	if len(d.Calls) != 1 || d.Calls[0].Name != "CreateVlan" {
		t.Fatalf("expected one recorded CreateVlan call, got %#v", d.Calls)
	}
}

var errSentinel = errors.New("injected test failure")
