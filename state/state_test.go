package state

import (
	"context"
	"testing"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

func TestStore_RecordRoundtrip(t *testing.T) {
	st := OpenMemory(t)
	ctx := context.Background()

	if _, ok, err := st.Load(ctx, RecordSettings); err != nil || ok {
		t.Fatalf("Load before Save: ok=%v err=%v", ok, err)
	}

	if err := st.Save(ctx, RecordSettings, []byte(`{"poll_ms":1000}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	v, ok, err := st.Load(ctx, RecordSettings)
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if string(v) != `{"poll_ms":1000}` {
		t.Errorf("Load = %s", v)
	}

	// Save replaces.
	if err := st.Save(ctx, RecordSettings, []byte(`{"poll_ms":500}`)); err != nil {
		t.Fatalf("Save replace: %v", err)
	}
	v, _, _ = st.Load(ctx, RecordSettings)
	if string(v) != `{"poll_ms":500}` {
		t.Errorf("after replace = %s", v)
	}
}

func TestStore_Delete(t *testing.T) {
	st := OpenMemory(t)
	ctx := context.Background()

	if err := st.Save(ctx, RecordAuth, []byte(`{"user":"u"}`)); err != nil {
		t.Fatal(err)
	}
	if err := st.Delete(ctx, RecordAuth); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := st.Load(ctx, RecordAuth); ok {
		t.Error("record survived Delete")
	}

	// Deleting a missing record is fine.
	if err := st.Delete(ctx, RecordAuth); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
}

func TestCache_LastKnownGood(t *testing.T) {
	var c Cache[string]

	if _, ok := c.Get(); ok {
		t.Fatal("empty cache reported a value")
	}

	c.Set("v1")
	if v, ok := c.Get(); !ok || v != "v1" {
		t.Errorf("Get = %q, %v", v, ok)
	}

	c.Set("v2")
	if v, _ := c.Get(); v != "v2" {
		t.Errorf("Get after replace = %q", v)
	}

	c.Clear()
	if _, ok := c.Get(); ok {
		t.Error("cache held value after Clear")
	}
}
