package intfsorch

import (
	"testing"

	"github.com/sonic-net/go-orchagent/pkg/orch"
	"github.com/sonic-net/go-orchagent/pkg/store/faketable"
)

func TestInterfaceTableHandlerAddAndRemove(t *testing.T) {
	o, _, _ := newTestOrch(t)
	table := faketable.New("INTERFACE_TABLE")
	consumer := orch.NewTableConsumer(table, o.Handler())

	table.Push("Ethernet0|10.0.0.0/31")
	if err := consumer.Execute(0, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, ok := o.Get("Ethernet0"); !ok {
		t.Fatal("expected interface to be synced")
	}
	if consumer.PendingCount() != 0 {
		t.Fatalf("expected entry consumed, got %d pending", consumer.PendingCount())
	}

	table.PushDel("Ethernet0|10.0.0.0/31")
	if err := consumer.Execute(0, nil); err != nil {
		t.Fatalf("DEL Execute: %v", err)
	}
	if _, ok := o.Get("Ethernet0"); ok {
		t.Fatal("expected interface to be torn down after last prefix removed")
	}
}

func TestInterfaceTableHandlerBareAliasIsNoop(t *testing.T) {
	o, _, _ := newTestOrch(t)
	table := faketable.New("INTERFACE_TABLE")
	consumer := orch.NewTableConsumer(table, o.Handler())

	table.Push("Ethernet0", faketable.Field("vrf_name", "Vrf1"))
	if err := consumer.Execute(0, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if consumer.PendingCount() != 0 {
		t.Fatalf("expected bare alias entry consumed as no-op, got %d pending", consumer.PendingCount())
	}
}

func TestInterfaceTableHandlerInvalidPrefix(t *testing.T) {
	o, _, _ := newTestOrch(t)
	table := faketable.New("INTERFACE_TABLE")
	consumer := orch.NewTableConsumer(table, o.Handler())

	table.Push("Ethernet0|not-an-ip")
	if err := consumer.Execute(0, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if consumer.PendingCount() != 0 {
		t.Fatalf("expected invalid prefix entry to be dropped, got %d pending", consumer.PendingCount())
	}
}
