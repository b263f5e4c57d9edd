package qosorch

import (
	"testing"

	"github.com/sonic-net/go-orchagent/pkg/orch"
	"github.com/sonic-net/go-orchagent/pkg/store/faketable"
)

func TestMapHandlerAddsAndRemoves(t *testing.T) {
	o, _, _ := setup(t)
	table := faketable.New(MapDscpToTc)
	consumer := orch.NewTableConsumer(table, o.MapHandler(MapDscpToTc))

	table.Push("AZURE", faketable.Field("0", "1"), faketable.Field("8", "2"))
	if err := consumer.Execute(0, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if consumer.PendingCount() != 0 {
		t.Fatalf("expected map creation consumed, got %d pending", consumer.PendingCount())
	}
	if _, ok := o.maps[MapDscpToTc]["AZURE"]; !ok {
		t.Fatal("expected DSCP_TO_TC_MAP entry AZURE to exist")
	}

	table.PushDel("AZURE")
	if err := consumer.Execute(0, nil); err != nil {
		t.Fatalf("DEL Execute: %v", err)
	}
	if _, ok := o.maps[MapDscpToTc]["AZURE"]; ok {
		t.Fatal("expected DSCP_TO_TC_MAP entry AZURE to be removed")
	}
}

func TestMapHandlerRejectsNonNumericEntry(t *testing.T) {
	o, _, _ := setup(t)
	table := faketable.New(MapDscpToTc)
	consumer := orch.NewTableConsumer(table, o.MapHandler(MapDscpToTc))

	table.Push("BAD", faketable.Field("not-a-number", "1"))
	if err := consumer.Execute(0, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if consumer.PendingCount() != 0 {
		t.Fatalf("expected invalid entry dropped rather than retried, got %d pending", consumer.PendingCount())
	}
}
