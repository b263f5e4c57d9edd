package fdborch

import (
	"testing"

	"github.com/sonic-net/go-orchagent/pkg/orch"
	"github.com/sonic-net/go-orchagent/pkg/store/faketable"
)

func TestFdbTableHandlerAddAndRemove(t *testing.T) {
	o, _ := setup(t)
	table := faketable.New("FDB_TABLE")
	consumer := orch.NewTableConsumer(table, o.Handler())

	table.Push("Vlan100:aa:bb:cc:dd:ee:01", faketable.Field("port", "Ethernet0"), faketable.Field("type", "dynamic"))
	if err := consumer.Execute(0, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if port, ok := o.Get("aa:bb:cc:dd:ee:01", 100); !ok || port != "Ethernet0" {
		t.Fatalf("expected Ethernet0, got %q ok=%v", port, ok)
	}

	table.PushDel("Vlan100:aa:bb:cc:dd:ee:01")
	if err := consumer.Execute(0, nil); err != nil {
		t.Fatalf("DEL Execute: %v", err)
	}
	if _, ok := o.Get("aa:bb:cc:dd:ee:01", 100); ok {
		t.Fatal("expected entry to be removed")
	}
}

func TestFdbTableHandlerInvalidKey(t *testing.T) {
	o, _ := setup(t)
	table := faketable.New("FDB_TABLE")
	consumer := orch.NewTableConsumer(table, o.Handler())

	table.Push("not-a-vlan-key", faketable.Field("port", "Ethernet0"))
	if err := consumer.Execute(0, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if consumer.PendingCount() != 0 {
		t.Fatalf("expected invalid key dropped, got %d pending", consumer.PendingCount())
	}
}

func TestFdbTableHandlerMissingPortIsInvalid(t *testing.T) {
	o, _ := setup(t)
	table := faketable.New("FDB_TABLE")
	consumer := orch.NewTableConsumer(table, o.Handler())

	table.Push("Vlan100:aa:bb:cc:dd:ee:01")
	if err := consumer.Execute(0, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if consumer.PendingCount() != 0 {
		t.Fatalf("expected entry missing 'port' field to be dropped, got %d pending", consumer.PendingCount())
	}
}
