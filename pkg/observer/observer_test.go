package observer

import "testing"

type recordingNeighborObserver struct {
	updates []NeighborUpdate
}

func (r *recordingNeighborObserver) OnNeighborUpdate(u NeighborUpdate) {
	r.updates = append(r.updates, u)
}

func TestRegistryAttachNotifyDetach(t *testing.T) {
	var reg Registry[NeighborObserver]
	a := &recordingNeighborObserver{}
	b := &recordingNeighborObserver{}
	reg.Attach(a)
	reg.Attach(b)

	reg.Each(func(o NeighborObserver) {
		o.OnNeighborUpdate(NeighborUpdate{IP: "10.0.0.1", Interface: "Ethernet0", Mac: "aa:bb:cc:dd:ee:ff", Add: true})
	})

	if len(a.updates) != 1 || len(b.updates) != 1 {
		t.Fatalf("expected both observers to receive one update, got %d and %d", len(a.updates), len(b.updates))
	}

	removed := reg.Detach(func(o NeighborObserver) bool { return o.(*recordingNeighborObserver) == a })
	if !removed {
		t.Fatal("expected Detach to remove observer a")
	}
	if reg.Len() != 1 {
		t.Fatalf("expected 1 remaining observer, got %d", reg.Len())
	}

	reg.Each(func(o NeighborObserver) {
		o.OnNeighborUpdate(NeighborUpdate{IP: "10.0.0.1", Add: false})
	})
	if len(a.updates) != 1 {
		t.Errorf("detached observer a should not receive further updates, got %d", len(a.updates))
	}
	if len(b.updates) != 2 {
		t.Errorf("observer b should have received 2 updates, got %d", len(b.updates))
	}
}
