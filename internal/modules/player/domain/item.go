package domain

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Source describes how a track ended up in the queue.
type Source string

const (
	SourceUserRequest Source = "user_request"
	SourceSimilar     Source = "similar"
	SourceArtistRadio Source = "artist_radio"
	SourceWildcard    Source = "wildcard"
	SourceLibrary     Source = "library"
)

// ParseSource converts a discovery strategy name to a Source.
// Unknown strategies are treated as wildcard, the lowest-confidence class.
func ParseSource(name string) Source {
	switch Source(name) {
	case SourceUserRequest, SourceSimilar, SourceArtistRadio, SourceWildcard, SourceLibrary:
		return Source(name)
	default:
		return SourceWildcard
	}
}

// QueueItem is one track awaiting or currently in playback.
//
// Identity fields are set before the item is enqueued and never change
// afterwards. Fields resolved later (stream URL, genre, year, store handles)
// are written by the prefetcher, the consensus round, and the playback loop
// concurrently, so access to them goes through the mutex.
type QueueItem struct {
	TrackID     string
	Title       string
	Artist      string
	RequesterID snowflake.ID
	ForUserID   snowflake.ID
	Source      Source
	Reason      string
	Duration    time.Duration

	mu        sync.Mutex
	streamURL string
	genre     string
	year      int
	trackDBID int64
	historyID int64

	attempted atomic.Bool
}

// NewQueueItem creates a QueueItem for a user-requested track.
func NewQueueItem(trackID, title, artist string) *QueueItem {
	return &QueueItem{
		TrackID: trackID,
		Title:   title,
		Artist:  artist,
		Source:  SourceUserRequest,
	}
}

// StreamURL returns the resolved direct-fetch audio URL, or "" if not yet resolved.
func (i *QueueItem) StreamURL() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.streamURL
}

// SetStreamURL stores the resolved audio URL.
func (i *QueueItem) SetStreamURL(url string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.streamURL = url
}

// Genre returns the current genre, or "" if unknown.
func (i *QueueItem) Genre() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.genre
}

// SetGenre stores the genre.
func (i *QueueItem) SetGenre(genre string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.genre = genre
}

// Year returns the release year, or 0 if unknown.
func (i *QueueItem) Year() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.year
}

// SetYear stores the release year.
func (i *QueueItem) SetYear(year int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.year = year
}

// TrackDBID returns the durable track record ID, or 0 if not yet persisted.
func (i *QueueItem) TrackDBID() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.trackDBID
}

// SetTrackDBID stores the durable track record ID.
func (i *QueueItem) SetTrackDBID(id int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.trackDBID = id
}

// HistoryID returns the session-log row ID for this play, or 0 if none.
func (i *QueueItem) HistoryID() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.historyID
}

// SetHistoryID stores the session-log row ID for this play.
func (i *QueueItem) SetHistoryID(id int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.historyID = id
}

// BeginMetadata marks the item as having attempted metadata resolution.
// It returns true exactly once; later calls return false so a resolution
// round is never repeated for the same item.
func (i *QueueItem) BeginMetadata() bool {
	return i.attempted.CompareAndSwap(false, true)
}

// MetadataAttempted reports whether a metadata round has been started.
func (i *QueueItem) MetadataAttempted() bool {
	return i.attempted.Load()
}
