package neighorch

import (
	"testing"

	"github.com/sonic-net/go-orchagent/pkg/orch"
	"github.com/sonic-net/go-orchagent/pkg/store/faketable"
)

func TestNeighTableHandlerAddAndRemove(t *testing.T) {
	o, _, _ := setup(t)
	table := faketable.New("NEIGH_TABLE")
	consumer := orch.NewTableConsumer(table, o.Handler())

	table.Push("Ethernet0:10.0.0.1", faketable.Field("neigh", "aa:bb:cc:dd:ee:01"))
	if err := consumer.Execute(0, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, ok := o.Get(Key{Interface: "Ethernet0", IP: "10.0.0.1"}); !ok {
		t.Fatal("expected neighbor to be synced")
	}

	table.PushDel("Ethernet0:10.0.0.1")
	if err := consumer.Execute(0, nil); err != nil {
		t.Fatalf("DEL Execute: %v", err)
	}
	if _, ok := o.Get(Key{Interface: "Ethernet0", IP: "10.0.0.1"}); ok {
		t.Fatal("expected neighbor to be removed")
	}
}

func TestNeighTableHandlerInvalidKey(t *testing.T) {
	o, _, _ := setup(t)
	table := faketable.New("NEIGH_TABLE")
	consumer := orch.NewTableConsumer(table, o.Handler())

	table.Push("no-colon-here", faketable.Field("neigh", "aa:bb:cc:dd:ee:01"))
	if err := consumer.Execute(0, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if consumer.PendingCount() != 0 {
		t.Fatalf("expected invalid key entry dropped, got %d pending", consumer.PendingCount())
	}
}

func TestNeighTableHandlerMissingMacIsInvalid(t *testing.T) {
	o, _, _ := setup(t)
	table := faketable.New("NEIGH_TABLE")
	consumer := orch.NewTableConsumer(table, o.Handler())

	table.Push("Ethernet0:10.0.0.1")
	if err := consumer.Execute(0, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if consumer.PendingCount() != 0 {
		t.Fatalf("expected entry missing 'neigh' field to be dropped, got %d pending", consumer.PendingCount())
	}
}
