package arb

import "testing"

func TestOpportunityLogEvictsOldest(t *testing.T) {
	t.Parallel()

	log := NewOpportunityLog(3)
	for i := uint64(1); i <= 5; i++ {
		log.Record(OpportunityRecord{SignalID: i})
	}

	recent := log.Recent()
	if len(recent) != 3 {
		t.Fatalf("expected 3 retained records, got %d", len(recent))
	}
	want := []uint64{5, 4, 3}
	for i, o := range recent {
		if o.SignalID != want[i] {
			t.Errorf("recent[%d].SignalID = %d, want %d", i, o.SignalID, want[i])
		}
	}
}

func TestOpportunityLogBelowCapacity(t *testing.T) {
	t.Parallel()

	log := NewOpportunityLog(5)
	log.Record(OpportunityRecord{SignalID: 1})
	log.Record(OpportunityRecord{SignalID: 2})

	recent := log.Recent()
	if len(recent) != 2 {
		t.Fatalf("expected 2 retained records, got %d", len(recent))
	}
	if recent[0].SignalID != 2 || recent[1].SignalID != 1 {
		t.Errorf("unexpected order: %+v", recent)
	}
}
