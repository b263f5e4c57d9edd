package qosorch

import (
	"testing"

	"github.com/sonic-net/go-orchagent/pkg/portorch"
	"github.com/sonic-net/go-orchagent/pkg/sad"
	"github.com/sonic-net/go-orchagent/pkg/sad/fakesad"
)

func setup(t *testing.T) (*Orch, *portorch.Catalog, *fakesad.Driver) {
	t.Helper()
	d := fakesad.New()
	ports := portorch.NewCatalog(d, nil)
	ports.SetPortAdminStatus("Ethernet4", true)
	o := New(d, ports)
	return o, ports, d
}

func TestColorAclBootstrapSkippedWhenUnsupported(t *testing.T) {
	d := fakesad.New()
	d.SetSupportsDscpEcnMatch(false)
	ports := portorch.NewCatalog(d, nil)
	New(d, ports)

	for _, c := range d.Calls {
		if c.Name == "CreateAclTable" {
			t.Fatal("expected no ECN color ACL table on a platform without DSCP+ECN match")
		}
	}
}

func TestColorAclBootstrapRunsByDefault(t *testing.T) {
	d := fakesad.New()
	ports := portorch.NewCatalog(d, nil)
	ports.SetPortAdminStatus("Ethernet4", true)
	New(d, ports)

	var sawTable, sawRules int
	for _, c := range d.Calls {
		switch c.Name {
		case "CreateAclTable":
			sawTable++
		case "CreateAclRule":
			sawRules++
		}
	}
	if sawTable != 1 {
		t.Fatalf("expected exactly 1 ECN color ACL table, got %d", sawTable)
	}
	if sawRules != 2 {
		t.Fatalf("expected exactly 2 ECN color ACL rules, got %d", sawRules)
	}
}

func TestMapSharedByReferenceAndRetryUntilResolved(t *testing.T) {
	o, _, _ := setup(t)

	if err := o.SetPortQosMap("Ethernet4", "[DSCP_TO_TC_MAP:AZURE]", "", "", "", "", ""); err != ErrRetry {
		t.Fatalf("expected ErrRetry before the map exists, got %v", err)
	}

	if err := o.AddMap(MapDscpToTc, "AZURE", map[string]string{"0": "0", "8": "1"}); err != nil {
		t.Fatalf("AddMap: %v", err)
	}
	if err := o.SetPortQosMap("Ethernet4", "[DSCP_TO_TC_MAP:AZURE]", "", "", "", "", ""); err != nil {
		t.Fatalf("SetPortQosMap: %v", err)
	}
}

func TestSchedulerAssignmentWalksSchedGroupTree(t *testing.T) {
	o, ports, d := setup(t)
	p, _ := ports.GetPort("Ethernet4")

	qh := queueHandle(p.SadPort, 3)
	d.SetSchedGroups(p.SadPort, []sad.SchedGroup{
		{Handle: "group-0", Children: []sad.Handle{queueHandle(p.SadPort, 0), queueHandle(p.SadPort, 1)}},
		{Handle: "group-1", Children: []sad.Handle{qh}},
	})

	if err := o.AddScheduler("sched1", "DWRR", 20, 0); err != nil {
		t.Fatalf("AddScheduler: %v", err)
	}
	if err := o.SetQueue("Ethernet4", 3, "sched1", true, "", false); err != nil {
		t.Fatalf("SetQueue: %v", err)
	}

	var applied bool
	for _, c := range d.Calls {
		if c.Name == "SetSchedGroupAttr" && c.Args[0] == sad.Handle("group-1") {
			applied = true
		}
	}
	if !applied {
		t.Fatal("expected the scheduler to be applied to the group owning the queue")
	}
}

func TestSetQueueUnknownSchedulerRetries(t *testing.T) {
	o, ports, d := setup(t)
	p, _ := ports.GetPort("Ethernet4")
	d.SetSchedGroups(p.SadPort, []sad.SchedGroup{{Handle: "group-0", Children: []sad.Handle{queueHandle(p.SadPort, 0)}}})

	if err := o.SetQueue("Ethernet4", 0, "missing", true, "", false); err != ErrRetry {
		t.Fatalf("expected ErrRetry for an unresolved scheduler ref, got %v", err)
	}
}
