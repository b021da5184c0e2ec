package ringbuf

import (
	"encoding/binary"
	"path/filepath"
	"testing"
)

func recordOf(n uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, n)
	return buf
}

func valueOf(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}

func TestWriteReadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ring")
	w, err := Create(path, 8, 8)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer w.Close()

	r, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	for i := uint64(0); i < 5; i++ {
		if err := w.Write(recordOf(i)); err != nil {
			t.Fatalf("Write(%d): %v", i, err)
		}
	}

	got, err := r.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len(got) = %d, want 5", len(got))
	}
	for i, rec := range got {
		if valueOf(rec) != uint64(i) {
			t.Errorf("record[%d] = %d, want %d", i, valueOf(rec), i)
		}
	}
}

// TestLagCapacityOne reproduces the tightest possible overwrite: a
// capacity-1 ring where every write overwrites the previous slot before the
// reader can see it, per spec §8.1's universal lag invariant.
func TestLagCapacityOne(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ring")
	w, err := Create(path, 1, 8)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer w.Close()

	r, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	for i := uint64(0); i < 3; i++ {
		if err := w.Write(recordOf(i)); err != nil {
			t.Fatalf("Write(%d): %v", i, err)
		}
	}

	got, err := r.Read()
	lagged, ok := err.(Lagged)
	if !ok {
		t.Fatalf("err = %v (%T), want Lagged", err, err)
	}
	if lagged.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", lagged.Dropped)
	}
	if len(got) != 1 || valueOf(got[0]) != 2 {
		t.Fatalf("got = %v, want [2]", got)
	}
}

// TestLagCapacityFourTenWrites is spec §8.3 scenario #5: write 10 records
// into a capacity-4 ring, *then* open a reader and read once, expecting
// Lagged{6} and records 6..9 delivered. The reader must not attach until
// after every write has happened — that ordering is the point of the
// scenario, since a reader catching up from nothing written yet would
// never exercise the lag path at all.
func TestLagCapacityFourTenWrites(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ring")
	w, err := Create(path, 4, 8)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer w.Close()

	for i := uint64(0); i < 10; i++ {
		if err := w.Write(recordOf(i)); err != nil {
			t.Fatalf("Write(%d): %v", i, err)
		}
	}

	r, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	got, err := r.Read()
	lagged, ok := err.(Lagged)
	if !ok {
		t.Fatalf("err = %v (%T), want Lagged", err, err)
	}
	if lagged.Dropped != 6 {
		t.Fatalf("Dropped = %d, want 6", lagged.Dropped)
	}
	if len(got) != 4 {
		t.Fatalf("len(got) = %d, want 4", len(got))
	}
	for i, rec := range got {
		want := uint64(6 + i)
		if valueOf(rec) != want {
			t.Errorf("record[%d] = %d, want %d", i, valueOf(rec), want)
		}
	}
}

func TestReadWithNoNewDataReturnsNil(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ring")
	w, err := Create(path, 4, 8)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer w.Close()

	r, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	got, err := r.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != nil {
		t.Fatalf("got = %v, want nil", got)
	}
}

func TestWriteBatchSignalsOnce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ring")
	w, err := Create(path, 8, 8)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer w.Close()

	r, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	batch := [][]byte{recordOf(0), recordOf(1), recordOf(2)}
	if err := w.WriteBatch(batch); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}

	got, err := r.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3", len(got))
	}
}

// TestMultipleIndependentReaders checks that each reader's cursor advances
// independently: a reader attaching after a write has already happened
// still catches up on it from the start of the ring (spec §8.3 scenario
// #5), while a reader that already consumed a record doesn't see it again.
func TestMultipleIndependentReaders(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ring")
	w, err := Create(path, 8, 8)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer w.Close()

	r1, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open reader 0: %v", err)
	}
	defer r1.Close()

	if err := w.Write(recordOf(1)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got1a, err := r1.Read()
	if err != nil {
		t.Fatalf("r1.Read (first): %v", err)
	}
	if len(got1a) != 1 || valueOf(got1a[0]) != 1 {
		t.Fatalf("r1 got = %v, want [1]", got1a)
	}

	// r2 attaches after record 1 was already written. It must still catch
	// up on it from the start of the ring, not silently skip straight to
	// the current head as if record 1 never happened.
	r2, err := Open(path, 1)
	if err != nil {
		t.Fatalf("Open reader 1: %v", err)
	}
	defer r2.Close()

	if err := w.Write(recordOf(2)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got1b, err := r1.Read()
	if err != nil {
		t.Fatalf("r1.Read (second): %v", err)
	}
	if len(got1b) != 1 || valueOf(got1b[0]) != 2 {
		t.Fatalf("r1 got = %v, want [2] (already consumed record 1)", got1b)
	}

	got2, err := r2.Read()
	if err != nil {
		t.Fatalf("r2.Read: %v", err)
	}
	if len(got2) != 2 || valueOf(got2[0]) != 1 || valueOf(got2[1]) != 2 {
		t.Fatalf("r2 got = %v, want [1 2] (catches up from the start)", got2)
	}
}

// TestResetReaderReclaimsSlot checks that ResetReader clears a reader
// slot for reuse. Reclaiming the slot doesn't exempt whoever claims it
// next from the standard start-at-0 catch-up behavior (spec §8.3 scenario
// #5): a fresh Open still sees whatever the ring holds since the
// beginning, including the record written before the reset.
func TestResetReaderReclaimsSlot(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ring")
	w, err := Create(path, 4, 8)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer w.Close()

	r, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.Write(recordOf(0)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := r.Read(); err != nil {
		t.Fatalf("Read: %v", err)
	}
	r.Close()

	if err := w.ResetReader(0); err != nil {
		t.Fatalf("ResetReader: %v", err)
	}

	r2, err := Open(path, 0)
	if err != nil {
		t.Fatalf("re-Open: %v", err)
	}
	defer r2.Close()
	if r2.Lag() != 1 {
		t.Errorf("Lag() = %d, want 1 (record 0 still unread from this slot's perspective)", r2.Lag())
	}
	got, err := r2.Read()
	if err != nil {
		t.Fatalf("r2.Read: %v", err)
	}
	if len(got) != 1 || valueOf(got[0]) != 0 {
		t.Fatalf("r2 got = %v, want [0]", got)
	}
}

func TestCreateRejectsZeroCapacity(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ring")
	_, err := Create(path, 0, 8)
	if _, ok := err.(*ResourceError); !ok {
		t.Fatalf("err = %v (%T), want *ResourceError", err, err)
	}
}

func TestWriteRejectsWrongSize(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ring")
	w, err := Create(path, 4, 8)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer w.Close()

	if err := w.Write(make([]byte, 4)); err == nil {
		t.Fatal("Write with wrong-size record should fail")
	}
}
