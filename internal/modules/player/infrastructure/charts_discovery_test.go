package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

func TestChartsDiscovery_NoListenersNoProposal(t *testing.T) {
	discovery := NewChartsDiscovery()

	candidate, err := discovery.NextTrack(context.Background(), snowflake.ID(1), nil, "", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if candidate != nil {
		t.Errorf("expected no candidate without listeners, got %+v", candidate)
	}
}

func TestChartsDiscovery_PickHonorsCooldown(t *testing.T) {
	discovery := NewChartsDiscovery()
	guildID := snowflake.ID(1)
	tracks := []chartTrack{
		{videoID: "a", title: "A"},
		{videoID: "b", title: "B"},
	}

	first, ok := discovery.pick(guildID, tracks, time.Hour)
	if !ok {
		t.Fatal("expected a first pick")
	}
	second, ok := discovery.pick(guildID, tracks, time.Hour)
	if !ok {
		t.Fatal("expected a second pick")
	}
	if first.videoID == second.videoID {
		t.Errorf("expected distinct picks, got %q twice", first.videoID)
	}

	if _, ok := discovery.pick(guildID, tracks, time.Hour); ok {
		t.Error("expected no pick once every track is on cooldown")
	}
}

func TestChartsDiscovery_CooldownIsPerGuild(t *testing.T) {
	discovery := NewChartsDiscovery()
	tracks := []chartTrack{{videoID: "a", title: "A"}}

	if _, ok := discovery.pick(snowflake.ID(1), tracks, time.Hour); !ok {
		t.Fatal("expected a pick for the first guild")
	}
	if _, ok := discovery.pick(snowflake.ID(2), tracks, time.Hour); !ok {
		t.Error("expected the second guild to be unaffected by the first guild's cooldown")
	}
}

func TestChartsDiscovery_ZeroCooldownAllowsRepeats(t *testing.T) {
	discovery := NewChartsDiscovery()
	guildID := snowflake.ID(1)
	tracks := []chartTrack{{videoID: "a", title: "A"}}

	for range 3 {
		if _, ok := discovery.pick(guildID, tracks, 0); !ok {
			t.Fatal("expected every pick to succeed with no cooldown")
		}
	}
}
