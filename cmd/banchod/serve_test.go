package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/opsu/bancho/internal/config"
	"github.com/opsu/bancho/internal/store"
)

func TestBuildLifecycleSeedsChannelsAndBlocklist(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st, err := store.Open(filepath.Join(t.TempDir(), "bancho.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	// A channel created at runtime (persisted through the store) survives
	// alongside the config-declared ones.
	if err := st.UpsertChannel(ctx, store.ChannelRow{Name: "#lobby", Title: "Multiplayer lobby"}); err != nil {
		t.Fatalf("persist channel: %v", err)
	}
	if err := st.BlockIP(ctx, "198.51.100.1", "abuse"); err != nil {
		t.Fatalf("block ip: %v", err)
	}

	cfg := config.Default()
	cfg.LoginDisallowedIP = []string{"203.0.113.5"}
	cfg.MenuIcon = "https://img.example/icon.png|https://example.com"

	lc, err := buildLifecycle(ctx, cfg, st)
	if err != nil {
		t.Fatalf("buildLifecycle: %v", err)
	}

	for _, name := range []string{"#osu", "#announce", "#lobby"} {
		if _, ok := lc.Channels.Get(name); !ok {
			t.Errorf("registry missing channel %s", name)
		}
	}
	for _, ip := range []string{"203.0.113.5", "198.51.100.1"} {
		if _, blocked := lc.DisallowedIPs[ip]; !blocked {
			t.Errorf("blocklist missing %s", ip)
		}
	}
	if lc.MenuIconURL != "https://img.example/icon.png" || lc.MenuClickURL != "https://example.com" {
		t.Errorf("menu icon split incorrectly: %q | %q", lc.MenuIconURL, lc.MenuClickURL)
	}
	if lc.Notify == nil {
		t.Error("notify bus should be wired")
	}
}

func TestStoreUsersAdapter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st, err := store.Open(filepath.Join(t.TempDir(), "bancho.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	row := store.UserRow{
		UserID:       1000,
		Username:     "alice",
		PasswordHash: "$2a$04$testhash",
		Privileges:   1,
		Friends:      []int32{2000},
	}
	if err := st.UpsertUser(ctx, row); err != nil {
		t.Fatalf("upsert user: %v", err)
	}

	repo := storeUsers{st: st}
	rec, ok := repo.ByUsername("alice")
	if !ok {
		t.Fatal("expected alice to resolve")
	}
	if rec.UserID != 1000 || rec.PasswordHash != row.PasswordHash || len(rec.Friends) != 1 {
		t.Errorf("unexpected record %+v", rec)
	}
	if _, ok := repo.ByUsername("ghost"); ok {
		t.Error("unknown username should not resolve")
	}
}
