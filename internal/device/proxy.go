package device

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zonehub/zonehub/internal/upnp"
)

// ErrVolumeOutOfRange rejects absolute volume sets outside [0,100]
// before any network dispatch.
var ErrVolumeOutOfRange = errors.New("volume out of range [0,100]")

// Proxy is the per-physical-device handle: control operations plus the
// cached last-known state snapshot. One Proxy exists per discovered
// unit; the topology engine owns their lifecycle.
type Proxy struct {
	ID   string // stable unit identifier (RINCON UDN)
	Name string

	client *upnp.Client
	log    zerolog.Logger

	mu    sync.RWMutex
	state State

	// onResult, when set, observes the outcome of every network
	// operation so the owner can track reachability.
	onResult func(err error)
}

func NewProxy(id, name string, client *upnp.Client) *Proxy {
	return &Proxy{
		ID:     id,
		Name:   name,
		client: client,
		log:    log.With().Str("component", "device").Str("device", name).Str("udn", id).Logger(),
	}
}

// IP returns the device's network address.
func (p *Proxy) IP() string { return p.client.IP }

// Client exposes the underlying transport handle for subscription
// management. Control traffic goes through the proxy methods.
func (p *Proxy) Client() *upnp.Client { return p.client }

// OnResult registers the reachability observer. Owned by the topology
// engine; set once before the proxy is shared.
func (p *Proxy) OnResult(fn func(err error)) { p.onResult = fn }

// State returns a copy of the cached snapshot.
func (p *Proxy) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// UpdateState mutates the cached snapshot. Reserved for the
// notification-ingestion path; commands use their own optimistic
// updates.
func (p *Proxy) UpdateState(fn func(*State)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.state)
	p.state.UpdatedAt = time.Now()
}

func (p *Proxy) observe(err error) {
	if p.onResult != nil {
		p.onResult(err)
	}
}

func (p *Proxy) call(ctx context.Context, svc upnp.Service, action string, args map[string]string) (map[string]string, error) {
	out, err := p.client.Call(ctx, svc, action, args)
	p.observe(err)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", p.Name, action, err)
	}
	return out, nil
}

// Play starts group playback. Valid only on a coordinator; callers
// resolve through the topology resolver first.
func (p *Proxy) Play(ctx context.Context) error {
	_, err := p.call(ctx, upnp.AVTransport, "Play", map[string]string{"InstanceID": "0", "Speed": "1"})
	if err != nil {
		return err
	}
	p.UpdateState(func(s *State) { s.Playback = PlaybackPlaying })
	return nil
}

func (p *Proxy) Pause(ctx context.Context) error {
	_, err := p.call(ctx, upnp.AVTransport, "Pause", map[string]string{"InstanceID": "0", "Speed": "1"})
	if err != nil {
		return err
	}
	p.UpdateState(func(s *State) { s.Playback = PlaybackPaused })
	return nil
}

func (p *Proxy) Stop(ctx context.Context) error {
	_, err := p.call(ctx, upnp.AVTransport, "Stop", map[string]string{"InstanceID": "0", "Speed": "1"})
	if err != nil {
		return err
	}
	p.UpdateState(func(s *State) { s.Playback = PlaybackStopped })
	return nil
}

func (p *Proxy) Next(ctx context.Context) error {
	_, err := p.call(ctx, upnp.AVTransport, "Next", map[string]string{"InstanceID": "0", "Speed": "1"})
	return err
}

func (p *Proxy) Previous(ctx context.Context) error {
	_, err := p.call(ctx, upnp.AVTransport, "Previous", map[string]string{"InstanceID": "0", "Speed": "1"})
	return err
}

func (p *Proxy) SeekRelTime(ctx context.Context, hhmmss string) error {
	_, err := p.call(ctx, upnp.AVTransport, "Seek", map[string]string{
		"InstanceID": "0",
		"Unit":       "REL_TIME",
		"Target":     hhmmss,
	})
	return err
}

// SetAVTransportURI loads a playable URI with its protocol metadata.
// Content adapters supply both; the proxy does not interpret them.
func (p *Proxy) SetAVTransportURI(ctx context.Context, uri, metadata string) error {
	_, err := p.call(ctx, upnp.AVTransport, "SetAVTransportURI", map[string]string{
		"InstanceID":         "0",
		"CurrentURI":         uri,
		"CurrentURIMetaData": metadata,
	})
	if err != nil {
		return err
	}
	p.UpdateState(func(s *State) { s.Track = Track{URI: uri} })
	return nil
}

// BecomeStandalone detaches the device from its group, making it the
// coordinator of its own standalone zone.
func (p *Proxy) BecomeStandalone(ctx context.Context) error {
	_, err := p.call(ctx, upnp.AVTransport, "BecomeCoordinatorOfStandaloneGroup", map[string]string{"InstanceID": "0"})
	return err
}

// JoinGroup attaches this device to the group coordinated by
// coordinatorID, via the vendor's x-rincon transport URI.
func (p *Proxy) JoinGroup(ctx context.Context, coordinatorID string) error {
	if coordinatorID == "" {
		return errors.New("coordinator id required")
	}
	_, err := p.call(ctx, upnp.AVTransport, "SetAVTransportURI", map[string]string{
		"InstanceID":         "0",
		"CurrentURI":         "x-rincon:" + coordinatorID,
		"CurrentURIMetaData": "",
	})
	return err
}

// SetVolume sets the absolute Master volume. Out-of-range values fail
// locally without dispatch.
func (p *Proxy) SetVolume(ctx context.Context, volume int) error {
	if volume < 0 || volume > 100 {
		return fmt.Errorf("%s: %w: %d", p.Name, ErrVolumeOutOfRange, volume)
	}
	_, err := p.call(ctx, upnp.RenderingControl, "SetVolume", map[string]string{
		"InstanceID":    "0",
		"Channel":       "Master",
		"DesiredVolume": strconv.Itoa(volume),
	})
	if err != nil {
		return err
	}
	p.UpdateState(func(s *State) { s.Volume = volume })
	return nil
}

// AdjustVolume applies a relative delta. The raw sum goes to the
// device, which clamps on its side; the cached snapshot clamps to
// [0,100] so reported state stays in range.
func (p *Proxy) AdjustVolume(ctx context.Context, delta int) (int, error) {
	raw := p.State().Volume + delta
	_, err := p.call(ctx, upnp.RenderingControl, "SetVolume", map[string]string{
		"InstanceID":    "0",
		"Channel":       "Master",
		"DesiredVolume": strconv.Itoa(raw),
	})
	if err != nil {
		return 0, err
	}
	clamped := clampVolume(raw)
	p.UpdateState(func(s *State) { s.Volume = clamped })
	return clamped, nil
}

// SetMute sets the absolute Master mute. Idempotent: repeating the same
// value is a no-op at the device and in the cache.
func (p *Proxy) SetMute(ctx context.Context, mute bool) error {
	v := "0"
	if mute {
		v = "1"
	}
	_, err := p.call(ctx, upnp.RenderingControl, "SetMute", map[string]string{
		"InstanceID":  "0",
		"Channel":     "Master",
		"DesiredMute": v,
	})
	if err != nil {
		return err
	}
	p.UpdateState(func(s *State) { s.Mute = mute })
	return nil
}

// GetState queries the device and refreshes the cached snapshot
// authoritatively.
func (p *Proxy) GetState(ctx context.Context) (State, error) {
	info, err := p.call(ctx, upnp.AVTransport, "GetTransportInfo", map[string]string{"InstanceID": "0"})
	if err != nil {
		return State{}, err
	}
	vol, err := p.call(ctx, upnp.RenderingControl, "GetVolume", map[string]string{"InstanceID": "0", "Channel": "Master"})
	if err != nil {
		return State{}, err
	}
	mute, err := p.call(ctx, upnp.RenderingControl, "GetMute", map[string]string{"InstanceID": "0", "Channel": "Master"})
	if err != nil {
		return State{}, err
	}

	volume, _ := strconv.Atoi(vol["CurrentVolume"])
	p.UpdateState(func(s *State) {
		s.Playback = PlaybackState(info["CurrentTransportState"])
		s.Volume = volume
		s.Mute = mute["CurrentMute"] == "1"
	})
	return p.State(), nil
}

// PositionInfo is the current play position within the loaded track.
type PositionInfo struct {
	Track         int
	TrackURI      string
	TrackMeta     string
	TrackDuration string
	RelTime       string
}

func (p *Proxy) GetPositionInfo(ctx context.Context) (PositionInfo, error) {
	resp, err := p.call(ctx, upnp.AVTransport, "GetPositionInfo", map[string]string{"InstanceID": "0"})
	if err != nil {
		return PositionInfo{}, err
	}
	trackNo, _ := strconv.Atoi(resp["Track"])
	return PositionInfo{
		Track:         trackNo,
		TrackURI:      resp["TrackURI"],
		TrackMeta:     resp["TrackMetaData"],
		TrackDuration: resp["TrackDuration"],
		RelTime:       resp["RelTime"],
	}, nil
}

// MediaInfo describes what is loaded on the transport.
type MediaInfo struct {
	URI      string
	Metadata string
	NrTracks int
}

func (p *Proxy) GetMediaInfo(ctx context.Context) (MediaInfo, error) {
	resp, err := p.call(ctx, upnp.AVTransport, "GetMediaInfo", map[string]string{"InstanceID": "0"})
	if err != nil {
		return MediaInfo{}, err
	}
	n, _ := strconv.Atoi(resp["NrTracks"])
	return MediaInfo{
		URI:      resp["CurrentURI"],
		Metadata: resp["CurrentURIMetaData"],
		NrTracks: n,
	}, nil
}

// Browse lists one page of a ContentDirectory container.
func (p *Proxy) Browse(ctx context.Context, containerID string) ([]upnp.DIDLItem, error) {
	resp, err := p.call(ctx, upnp.ContentDirectory, "Browse", map[string]string{
		"ObjectID":       containerID,
		"BrowseFlag":     "BrowseDirectChildren",
		"Filter":         "*",
		"StartingIndex":  "0",
		"RequestedCount": "100",
		"SortCriteria":   "",
	})
	if err != nil {
		return nil, err
	}
	items, err := upnp.ParseDIDL(resp["Result"])
	if err != nil {
		return nil, fmt.Errorf("%s: browse %s: %w", p.Name, containerID, err)
	}
	return items, nil
}

// GroupVolume sets the volume across the whole group; valid only on a
// coordinator.
func (p *Proxy) SetGroupVolume(ctx context.Context, volume int) error {
	if volume < 0 || volume > 100 {
		return fmt.Errorf("%s: %w: %d", p.Name, ErrVolumeOutOfRange, volume)
	}
	_, err := p.call(ctx, upnp.GroupRenderingControl, "SetGroupVolume", map[string]string{
		"InstanceID":    "0",
		"DesiredVolume": strconv.Itoa(volume),
	})
	return err
}

func (p *Proxy) SetGroupMute(ctx context.Context, mute bool) error {
	v := "0"
	if mute {
		v = "1"
	}
	_, err := p.call(ctx, upnp.GroupRenderingControl, "SetGroupMute", map[string]string{
		"InstanceID":  "0",
		"DesiredMute": v,
	})
	return err
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
