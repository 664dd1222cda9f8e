package domain

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Source
	}{
		{name: "user request", input: "user_request", want: SourceUserRequest},
		{name: "similar", input: "similar", want: SourceSimilar},
		{name: "artist radio", input: "artist_radio", want: SourceArtistRadio},
		{name: "wildcard", input: "wildcard", want: SourceWildcard},
		{name: "library", input: "library", want: SourceLibrary},
		{name: "unknown falls back to wildcard", input: "mystery_strategy", want: SourceWildcard},
		{name: "empty falls back to wildcard", input: "", want: SourceWildcard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseSource(tt.input); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestQueueItem_BeginMetadataOnce(t *testing.T) {
	item := NewQueueItem("track-1", "Song", "Artist")

	if item.MetadataAttempted() {
		t.Error("expected metadataAttempted false for new item")
	}
	if !item.BeginMetadata() {
		t.Error("expected first BeginMetadata to return true")
	}
	if item.BeginMetadata() {
		t.Error("expected second BeginMetadata to return false")
	}
	if !item.MetadataAttempted() {
		t.Error("expected metadataAttempted true after BeginMetadata")
	}
}

func TestQueueItem_BeginMetadataConcurrent(t *testing.T) {
	item := NewQueueItem("track-1", "Song", "Artist")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if item.BeginMetadata() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestQueueItem_ResolvedFields(t *testing.T) {
	item := NewQueueItem("track-1", "Song", "Artist")

	if item.StreamURL() != "" {
		t.Errorf("expected empty stream URL, got %q", item.StreamURL())
	}
	item.SetStreamURL("https://cdn.example/audio")
	if item.StreamURL() != "https://cdn.example/audio" {
		t.Errorf("unexpected stream URL %q", item.StreamURL())
	}

	item.SetGenre("House")
	item.SetYear(1997)
	if item.Genre() != "House" || item.Year() != 1997 {
		t.Errorf("expected House/1997, got %s/%d", item.Genre(), item.Year())
	}

	item.SetTrackDBID(42)
	item.SetHistoryID(7)
	if item.TrackDBID() != 42 || item.HistoryID() != 7 {
		t.Errorf("expected 42/7, got %d/%d", item.TrackDBID(), item.HistoryID())
	}
}
