package usecases

import "errors"

// Domain errors for the player module.
var (
	// ErrNotConnected is returned when an operation requires an attached
	// voice connection.
	ErrNotConnected = errors.New("not connected to a voice channel")

	// ErrAlreadyConnected is returned when joining a channel the player is
	// already attached to.
	ErrAlreadyConnected = errors.New("already connected to that voice channel")

	// ErrNotPlaying is returned when no track is currently playing.
	ErrNotPlaying = errors.New("nothing is currently playing")

	// ErrQueueEmpty is returned when the queue has nothing to clear.
	ErrQueueEmpty = errors.New("the queue is empty")
)
