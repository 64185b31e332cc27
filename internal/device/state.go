package device

import "time"

// PlaybackState is the transport state a device reports.
type PlaybackState string

const (
	PlaybackPlaying       PlaybackState = "PLAYING"
	PlaybackPaused        PlaybackState = "PAUSED_PLAYBACK"
	PlaybackStopped       PlaybackState = "STOPPED"
	PlaybackTransitioning PlaybackState = "TRANSITIONING"
)

// Transitional reports whether the state is an in-flight value that a
// stable-state wait must not resolve on.
func (s PlaybackState) Transitional() bool {
	return s == PlaybackTransitioning
}

// Track is the currently loaded track as last reported by the device.
type Track struct {
	URI      string
	Title    string
	Artist   string
	Album    string
	Duration string
}

// State is the cached last-known snapshot for one device. It changes
// only through notification ingestion or an explicit post-command
// update; readers always get a copy.
type State struct {
	Playback  PlaybackState
	Volume    int
	Mute      bool
	Track     Track
	UpdatedAt time.Time
}
