package intfsorch

import (
	"testing"

	"github.com/sonic-net/go-orchagent/pkg/portorch"
	"github.com/sonic-net/go-orchagent/pkg/sad"
	"github.com/sonic-net/go-orchagent/pkg/sad/fakesad"
)

func newTestOrch(t *testing.T) (*Orch, *portorch.Catalog, *fakesad.Driver) {
	t.Helper()
	d := fakesad.New()
	ports := portorch.NewCatalog(d, nil)
	ports.SetPortAdminStatus("Ethernet0", true)
	ctx := sad.NewContext(d)
	return New(d, ports, ctx), ports, d
}

func TestAddCreatesRifAndRoutes(t *testing.T) {
	o, _, d := newTestOrch(t)
	prefix, err := parsePrefix("10.0.0.0/31")
	if err != nil {
		t.Fatalf("parsePrefix: %v", err)
	}
	if err := o.Add("Ethernet0", prefix); err != nil {
		t.Fatalf("Add: %v", err)
	}
	intf, ok := o.Get("Ethernet0")
	if !ok {
		t.Fatal("expected synced interface")
	}
	if intf.RefCount != 2 {
		t.Fatalf("expected ref_count 2 (subnet + ip2me), got %d", intf.RefCount)
	}

	var createRoutes int
	var sawSubnetNextHop bool
	for _, c := range d.Calls {
		if c.Name == "CreateRoute" {
			createRoutes++
			if c.Args[1] == prefix.String() {
				if c.Args[2] != intf.Rif {
					t.Fatalf("subnet route next-hop = %v, want rif handle %v", c.Args[2], intf.Rif)
				}
				sawSubnetNextHop = true
			}
		}
	}
	if createRoutes != 2 {
		t.Fatalf("expected 2 CreateRoute calls, got %d", createRoutes)
	}
	if !sawSubnetNextHop {
		t.Fatal("expected a CreateRoute call for the subnet prefix")
	}
}

func TestAddRetriesWhenPortMissing(t *testing.T) {
	o, _, _ := newTestOrch(t)
	prefix, _ := parsePrefix("10.0.0.0/31")
	if err := o.Add("Ethernet4", prefix); err != ErrRetry {
		t.Fatalf("expected ErrRetry for missing port, got %v", err)
	}
}

func TestOverlapGuardDefersSecondPrefix(t *testing.T) {
	o, _, _ := newTestOrch(t)
	wide, _ := parsePrefix("10.0.0.0/8")
	narrow, _ := parsePrefix("10.0.0.0/31")

	if err := o.Add("Ethernet0", wide); err != nil {
		t.Fatalf("Add wide: %v", err)
	}
	if err := o.Add("Ethernet0", narrow); err != ErrRetry {
		t.Fatalf("expected overlapping prefix to retry, got %v", err)
	}
}

func TestRemoveDestroysRifWhenEmpty(t *testing.T) {
	o, ports, _ := newTestOrch(t)
	prefix, _ := parsePrefix("10.0.0.0/31")
	if err := o.Add("Ethernet0", prefix); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := o.Remove("Ethernet0", prefix); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := o.Get("Ethernet0"); ok {
		t.Fatal("expected interface to be removed once ref_count hit zero")
	}
	p, _ := ports.GetPort("Ethernet0")
	if p.SadRif != "" {
		t.Fatalf("expected port's rif handle to be cleared, got %q", p.SadRif)
	}
}

func TestManagementAliasesAreSkipped(t *testing.T) {
	o, _, d := newTestOrch(t)
	prefix, _ := parsePrefix("10.0.0.0/31")
	before := len(d.Calls)
	if err := o.Add("eth0", prefix); err != nil {
		t.Fatalf("Add eth0: %v", err)
	}
	if len(d.Calls) != before {
		t.Fatalf("expected no driver calls for management alias, got %d new calls", len(d.Calls)-before)
	}
}
