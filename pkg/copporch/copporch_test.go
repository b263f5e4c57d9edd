package copporch

import (
	"testing"

	"github.com/sonic-net/go-orchagent/pkg/sad/fakesad"
)

func setup(t *testing.T) (*Orch, *fakesad.Driver) {
	t.Helper()
	d := fakesad.New()
	return New(d), d
}

func TestNewBindsDefaultTrapIDs(t *testing.T) {
	_, d := setup(t)

	var saw bool
	for _, c := range d.Calls {
		if c.Name == "SetTrapIDsGroup" {
			saw = true
		}
	}
	if !saw {
		t.Fatal("expected New to bind the default trap IDs")
	}
}

func TestAddTrapGroupRetriesUntilPolicerExists(t *testing.T) {
	o, _ := setup(t)

	if err := o.AddTrapGroup("g1", []string{"ttl_error"}, "pol1"); err != ErrRetry {
		t.Fatalf("expected ErrRetry before the policer exists, got %v", err)
	}

	if err := o.AddPolicer("pol1", map[string]string{"cir": "1000"}); err != nil {
		t.Fatalf("AddPolicer: %v", err)
	}
	if err := o.AddTrapGroup("g1", []string{"ttl_error"}, "pol1"); err != nil {
		t.Fatalf("AddTrapGroup: %v", err)
	}
}

func TestAddTrapGroupMovesTrapIDOwnership(t *testing.T) {
	o, _ := setup(t)

	if err := o.AddTrapGroup("g1", []string{"ttl_error"}, ""); err != nil {
		t.Fatalf("AddTrapGroup g1: %v", err)
	}
	if owner := o.trapOwner["ttl_error"]; owner != "g1" {
		t.Fatalf("expected ttl_error owned by g1, got %q", owner)
	}

	if err := o.AddTrapGroup("g2", []string{"ttl_error"}, ""); err != nil {
		t.Fatalf("AddTrapGroup g2: %v", err)
	}
	if owner := o.trapOwner["ttl_error"]; owner != "g2" {
		t.Fatalf("expected ttl_error moved to g2, got %q", owner)
	}
	if o.groups["g1"].trapIDs["ttl_error"] {
		t.Fatal("expected g1 to no longer carry ttl_error")
	}
}

func TestRemoveTrapGroupRebindsTrapIDsToDefault(t *testing.T) {
	o, _ := setup(t)

	if err := o.AddTrapGroup("g1", []string{"ttl_error"}, ""); err != nil {
		t.Fatalf("AddTrapGroup: %v", err)
	}
	if err := o.RemoveTrapGroup("g1"); err != nil {
		t.Fatalf("RemoveTrapGroup: %v", err)
	}
	if owner := o.trapOwner["ttl_error"]; owner != defaultTrapGroupName {
		t.Fatalf("expected ttl_error rebound to default, got %q", owner)
	}
	if _, exists := o.groups["g1"]; exists {
		t.Fatal("expected g1 to be removed")
	}
}

func TestRemoveDefaultTrapGroupRejected(t *testing.T) {
	o, _ := setup(t)
	if err := o.RemoveTrapGroup(defaultTrapGroupName); err == nil {
		t.Fatal("expected removing the default trap group to fail")
	}
}

func TestRemovePolicerLeavesTrapGroupBound(t *testing.T) {
	o, _ := setup(t)

	if err := o.AddPolicer("pol1", map[string]string{"cir": "1000"}); err != nil {
		t.Fatalf("AddPolicer: %v", err)
	}
	if err := o.AddTrapGroup("g1", nil, "pol1"); err != nil {
		t.Fatalf("AddTrapGroup: %v", err)
	}
	if err := o.RemovePolicer("pol1"); err != nil {
		t.Fatalf("RemovePolicer: %v", err)
	}
	if o.groups["g1"].policer != "pol1" {
		t.Fatalf("expected g1 to still record pol1 as bound, got %q", o.groups["g1"].policer)
	}
}
