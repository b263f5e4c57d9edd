package sad_test

import (
	"testing"

	"github.com/sonic-net/go-orchagent/pkg/sad"
	"github.com/sonic-net/go-orchagent/pkg/sad/fakesad"
)

func TestNewContextLeavesMaxGroupsAloneByDefault(t *testing.T) {
	d := fakesad.New()
	d.SetMaxNextHopGroups(128)
	ctx := sad.NewContext(d)
	if ctx.MaxGroups != 128 {
		t.Fatalf("MaxGroups = %d, want 128", ctx.MaxGroups)
	}
}

func TestNewContextDividesByThirtyTwoOnAffectedPlatform(t *testing.T) {
	d := fakesad.New()
	d.SetMaxNextHopGroups(4096)
	d.SetMaxNextHopGroupsDivideBy32(true)
	ctx := sad.NewContext(d)
	if ctx.MaxGroups != 128 {
		t.Fatalf("MaxGroups = %d, want 128", ctx.MaxGroups)
	}
}

func TestNewContextDividesByThirtyTwoEvenWhenNotOne(t *testing.T) {
	// Regression: the correction must apply for any raw value the platform
	// reports, not only when it happens to equal 1.
	d := fakesad.New()
	d.SetMaxNextHopGroups(64)
	d.SetMaxNextHopGroupsDivideBy32(true)
	ctx := sad.NewContext(d)
	if ctx.MaxGroups != 2 {
		t.Fatalf("MaxGroups = %d, want 2", ctx.MaxGroups)
	}
}
