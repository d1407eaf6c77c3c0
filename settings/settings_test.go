package settings

import (
	"context"
	"testing"
	"time"

	"github.com/capsight/capsight/state"
	_ "modernc.org/sqlite" // register "sqlite" driver
)

func TestDefaults(t *testing.T) {
	s := New(state.OpenMemory(t)).Current()

	if s.BaseURL() != "http://127.0.0.1:8081/api" {
		t.Errorf("BaseURL = %q", s.BaseURL())
	}
	if s.PollInterval != time.Second {
		t.Errorf("PollInterval = %v", s.PollInterval)
	}
	if s.EventWindow != 50 {
		t.Errorf("EventWindow = %d", s.EventWindow)
	}
}

func TestStore_PersistsOnEveryChange(t *testing.T) {
	st := state.OpenMemory(t)
	s := New(st)
	ctx := context.Background()

	if err := s.SetTarget(ctx, "https", "10.0.0.5", 8083, "/api"); err != nil {
		t.Fatalf("SetTarget: %v", err)
	}
	if err := s.SetPollInterval(ctx, 500*time.Millisecond); err != nil {
		t.Fatalf("SetPollInterval: %v", err)
	}
	if err := s.Mute(ctx, "wifi.client.probe"); err != nil {
		t.Fatalf("Mute: %v", err)
	}
	if err := s.Pin(ctx, "aa:bb:cc:dd:ee:ff"); err != nil {
		t.Fatalf("Pin: %v", err)
	}

	// A fresh store over the same backing file sees everything.
	fresh := New(st)
	if err := fresh.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := fresh.Current()
	if got.BaseURL() != "https://10.0.0.5:8083/api" {
		t.Errorf("BaseURL = %q", got.BaseURL())
	}
	if got.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v", got.PollInterval)
	}
	if !got.Muted("wifi.client.probe") {
		t.Error("muted tag lost")
	}
	if !got.Pinned("aa:bb:cc:dd:ee:ff") {
		t.Error("pinned item lost")
	}
}

func TestStore_MuteUnmute(t *testing.T) {
	s := New(state.OpenMemory(t))
	ctx := context.Background()

	s.Mute(ctx, "wifi.ap.lost")
	s.Mute(ctx, "wifi.ap.lost") // idempotent
	if got := s.Current().MutedTags; len(got) != 1 {
		t.Fatalf("MutedTags = %v", got)
	}

	s.Unmute(ctx, "wifi.ap.lost")
	if s.Current().Muted("wifi.ap.lost") {
		t.Error("tag still muted after Unmute")
	}
}

func TestStore_AbsorbMuted(t *testing.T) {
	s := New(state.OpenMemory(t))
	ctx := context.Background()

	s.Mute(ctx, "wifi.ap.lost")
	if err := s.AbsorbMuted(ctx, []string{"wifi.deauth", "wifi.ap.lost"}); err != nil {
		t.Fatalf("AbsorbMuted: %v", err)
	}
	got := s.Current().MutedTags
	if len(got) != 2 || !s.Current().Muted("wifi.deauth") {
		t.Fatalf("MutedTags = %v", got)
	}

	// Absorbing an already-covered list changes and broadcasts nothing.
	updates := s.Updates()
	if err := s.AbsorbMuted(ctx, []string{"wifi.deauth"}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-updates:
		t.Error("broadcast despite fully-covered absorb")
	default:
	}
}

func TestStore_UpdatesBroadcast(t *testing.T) {
	s := New(state.OpenMemory(t))
	updates := s.Updates()

	if err := s.SetEventWindow(context.Background(), 25); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-updates:
		if got.EventWindow != 25 {
			t.Errorf("EventWindow = %d", got.EventWindow)
		}
	case <-time.After(time.Second):
		t.Fatal("no update broadcast")
	}
}

func TestStore_ReloadIfChanged(t *testing.T) {
	st := state.OpenMemory(t)
	s := New(st)
	ctx := context.Background()

	// Simulate an out-of-band write by another store over the same file.
	other := New(st)
	if err := other.SetEventWindow(ctx, 99); err != nil {
		t.Fatal(err)
	}

	updates := s.Updates()
	if err := s.reloadIfChanged(ctx); err != nil {
		t.Fatalf("reloadIfChanged: %v", err)
	}
	if got := s.Current().EventWindow; got != 99 {
		t.Errorf("EventWindow = %d, want 99", got)
	}
	select {
	case <-updates:
	default:
		t.Error("no broadcast after out-of-band reload")
	}

	// A second reload with identical content stays silent.
	if err := s.reloadIfChanged(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case <-updates:
		t.Error("broadcast despite unchanged record")
	default:
	}
}
