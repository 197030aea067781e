package models

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := [][2]string{
		{OrderQueued, OrderProcessing},
		{OrderProcessing, OrderCompleted},
		{OrderProcessing, OrderFailed},
	}
	for _, tr := range allowed {
		if !CanTransition(tr[0], tr[1]) {
			t.Fatalf("%s -> %s should be allowed", tr[0], tr[1])
		}
	}

	denied := [][2]string{
		{OrderQueued, OrderCompleted},
		{OrderQueued, OrderFailed},
		{OrderProcessing, OrderQueued},
		{OrderCompleted, OrderProcessing},
		{OrderCompleted, OrderFailed},
		{OrderFailed, OrderQueued},
		{OrderFailed, OrderCompleted},
	}
	for _, tr := range denied {
		if CanTransition(tr[0], tr[1]) {
			t.Fatalf("%s -> %s should be denied", tr[0], tr[1])
		}
	}
}

func TestDerived(t *testing.T) {
	var o *SwapOrder
	if o.Derived() {
		t.Fatal("nil order is not derived")
	}
	o = &SwapOrder{}
	if o.Derived() {
		t.Fatal("order without parent is not derived")
	}
	parent := uint64(7)
	o.ParentOrderID = &parent
	if !o.Derived() {
		t.Fatal("order with parent is derived")
	}
}

func TestSubscriptionPlatformFilter(t *testing.T) {
	s := &Subscription{}
	if !s.PlatformAllowed(PlatformDedust) {
		t.Fatal("empty allow-list should permit every venue")
	}
	s.Platforms = []byte(`["stonfi"]`)
	if s.PlatformAllowed(PlatformDedust) {
		t.Fatal("dedust should be filtered out")
	}
	if !s.PlatformAllowed(PlatformStonfi) {
		t.Fatal("stonfi should pass")
	}
}

func TestSubscriptionCanRun(t *testing.T) {
	s := &Subscription{}
	if s.CanRun() {
		t.Fatal("profile without leader must not run")
	}
	leader := "0:0000000000000000000000000000000000000000000000000000000000000001"
	s.LeaderAddress = &leader
	if !s.CanRun() {
		t.Fatal("profile with leader should run")
	}
}
