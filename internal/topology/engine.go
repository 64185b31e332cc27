package topology

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zonehub/zonehub/internal/device"
	"github.com/zonehub/zonehub/internal/events"
	"github.com/zonehub/zonehub/internal/upnp"
)

// Status is the per-device lifecycle state.
type Status string

const (
	StatusDiscovered  Status = "discovered"
	StatusSubscribed  Status = "subscribed"
	StatusActive      Status = "active"
	StatusUnreachable Status = "unreachable"
)

// ErrDeviceNotFound is what the boundary surfaces instead of raw
// protocol detail when an id resolves to nothing.
var ErrDeviceNotFound = errors.New("device not found")

// failureThreshold is how many consecutive request failures mark a
// device unreachable.
const failureThreshold = 3

// Subscriber is the slice of the subscription manager the engine
// drives. Capability checks happen before calling it.
type Subscriber interface {
	Subscribe(ctx context.Context, deviceID string, client *upnp.Client, svc upnp.Service) error
	Unsubscribe(ctx context.Context, deviceID string, svc upnp.Service)
	UnsubscribeDevice(ctx context.Context, deviceID string)
}

// Options tunes discovery and lets tests inject transport handles.
type Options struct {
	DiscoveryTimeout time.Duration
	// Subnets are /24 prefixes for the scan fallback ("192.168.1").
	Subnets []string
	// StaticIPs seed discovery with known devices from configuration.
	StaticIPs []string
	// DisableScan turns off the port-scan fallback.
	DisableScan bool
	// NewClient builds the transport handle for a device address.
	NewClient func(ip string) *upnp.Client
	// Fetch retrieves a device description document.
	Fetch func(ctx context.Context, location string) (upnp.Description, error)
}

func (o Options) withDefaults() Options {
	if o.DiscoveryTimeout <= 0 {
		o.DiscoveryTimeout = 5 * time.Second
	}
	if o.NewClient == nil {
		o.NewClient = upnp.NewClient
	}
	if o.Fetch == nil {
		httpClient := &http.Client{Timeout: o.DiscoveryTimeout}
		o.Fetch = func(ctx context.Context, location string) (upnp.Description, error) {
			return upnp.FetchDescription(ctx, httpClient, location)
		}
	}
	return o
}

type deviceEntry struct {
	desc     upnp.Description
	proxy    *device.Proxy
	status   Status
	failures int
}

// Engine owns the device registry and the zone map. The zone map is
// mutated only here, and always by whole-map replacement; everything
// else reads copies.
type Engine struct {
	hub  *events.Hub
	subs Subscriber
	opts Options
	log  zerolog.Logger

	mu      sync.RWMutex
	devices map[string]*deviceEntry
	zones   ZoneMap
}

func NewEngine(hub *events.Hub, subs Subscriber, opts Options) *Engine {
	return &Engine{
		hub:     hub,
		subs:    subs,
		opts:    opts.withDefaults(),
		log:     log.With().Str("component", "topology").Logger(),
		devices: map[string]*deviceEntry{},
	}
}

// Bootstrap runs the initial enumeration: find devices, create stub
// entries immediately so the rest of the system can proceed, subscribe
// each device's channels, and seed the zone map from the first device
// that will answer a topology query. Per-device failures are isolated;
// one dead unit never aborts the fleet.
func (e *Engine) Bootstrap(ctx context.Context) error {
	descs, err := e.discover(ctx)
	if err != nil {
		return err
	}
	if len(descs) == 0 {
		return errors.New("no devices discovered")
	}

	for _, desc := range descs {
		e.ensureDevice(desc)
	}
	// Topology channels come first: the zone map must be known before
	// transport channels are opened, so bonded units are recognized and
	// never granted transport subscriptions.
	for _, desc := range descs {
		e.subscribeTopology(ctx, desc.UDN)
	}
	if err := e.RefreshTopology(ctx); err != nil {
		e.log.Warn().Err(err).Msg("initial topology refresh failed; waiting for push")
	}
	for _, desc := range descs {
		e.subscribeTransport(ctx, desc.UDN)
	}
	return nil
}

func (e *Engine) discover(ctx context.Context) ([]upnp.Description, error) {
	locations := make([]string, 0, len(e.opts.StaticIPs))
	for _, ip := range e.opts.StaticIPs {
		locations = append(locations, upnp.DescriptionURL(ip))
	}

	if len(locations) == 0 {
		results, err := ssdpSearch(ctx, e.opts.DiscoveryTimeout)
		if err != nil {
			e.log.Warn().Err(err).Msg("ssdp search failed")
		}
		for _, r := range results {
			locations = append(locations, r.Location)
		}
	}
	if len(locations) == 0 {
		found, err := mdnsSearch(ctx, e.opts.DiscoveryTimeout)
		if err != nil {
			e.log.Warn().Err(err).Msg("mdns search failed")
		}
		locations = found
	}
	if len(locations) == 0 && !e.opts.DisableScan {
		found, err := scanSubnets(ctx, e.opts.Subnets, e.opts.DiscoveryTimeout)
		if err != nil {
			e.log.Warn().Err(err).Msg("subnet scan failed")
		}
		locations = found
	}

	byUDN := map[string]upnp.Description{}
	for _, location := range locations {
		desc, err := e.opts.Fetch(ctx, location)
		if err != nil {
			e.log.Debug().Str("location", location).Err(err).Msg("description fetch failed")
			continue
		}
		byUDN[desc.UDN] = desc
	}

	out := make([]upnp.Description, 0, len(byUDN))
	for _, d := range byUDN {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomName < out[j].RoomName })
	return out, nil
}

// ensureDevice creates (or refreshes) the registry entry and proxy for
// a unit. New entries start in the discovered state.
func (e *Engine) ensureDevice(desc upnp.Description) *deviceEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ensureDeviceLocked(desc)
}

func (e *Engine) ensureDeviceLocked(desc upnp.Description) *deviceEntry {
	if entry, ok := e.devices[desc.UDN]; ok {
		entry.desc = desc
		return entry
	}
	proxy := device.NewProxy(desc.UDN, desc.RoomName, e.opts.NewClient(desc.IP))
	id := desc.UDN
	proxy.OnResult(func(err error) { e.reportResult(id, err) })
	entry := &deviceEntry{desc: desc, proxy: proxy, status: StatusDiscovered}
	e.devices[id] = entry
	e.log.Info().Str("device", desc.RoomName).Str("udn", id).
		Str("ip", desc.IP).Msg("device registered")
	return entry
}

// subscribeDevice wires all of a device's notification channels. Only
// safe once the zone map covers the device; bootstrap instead phases
// topology and transport channels around the first refresh.
func (e *Engine) subscribeDevice(ctx context.Context, id string) {
	e.subscribeTopology(ctx, id)
	e.subscribeTransport(ctx, id)
}

// subscribeTopology wires the topology channel. Every topology-capable
// device gets its own subscription rather than leaning on one
// preferred reporter, which may be slow, offline, or stale.
func (e *Engine) subscribeTopology(ctx context.Context, id string) {
	e.subscribeServices(ctx, id, []upnp.Service{upnp.ZoneGroupTopology})
}

// subscribeTransport wires AVTransport and RenderingControl. Bonded
// units never carry independent transport state, so their transport
// channels are skipped.
func (e *Engine) subscribeTransport(ctx context.Context, id string) {
	e.mu.RLock()
	bonded := false
	if m, found := e.zones.Member(id); found {
		bonded = m.Bonded()
	}
	e.mu.RUnlock()
	if bonded {
		return
	}
	e.subscribeServices(ctx, id, []upnp.Service{upnp.AVTransport, upnp.RenderingControl})
}

func (e *Engine) subscribeServices(ctx context.Context, id string, svcs []upnp.Service) {
	e.mu.RLock()
	entry, ok := e.devices[id]
	if !ok {
		e.mu.RUnlock()
		return
	}
	desc := entry.desc
	client := entry.proxy.Client()
	e.mu.RUnlock()

	subscribed := false
	for _, svc := range svcs {
		if !desc.HasService(svc) {
			e.log.Debug().Str("udn", id).Str("service", svc.Name).Msg("capability missing; channel skipped")
			continue
		}
		if err := e.subs.Subscribe(ctx, id, client, svc); err != nil {
			e.log.Warn().Str("udn", id).Str("service", svc.Name).Err(err).Msg("subscribe failed")
			continue
		}
		subscribed = true
	}

	if subscribed {
		e.mu.Lock()
		if entry, ok := e.devices[id]; ok && entry.status == StatusDiscovered {
			entry.status = StatusSubscribed
		}
		e.mu.Unlock()
	}
}

// RefreshTopology queries zone group state from the first capable,
// reachable device and applies it. Used at bootstrap and to recover
// from inconsistent push payloads.
func (e *Engine) RefreshTopology(ctx context.Context) error {
	e.mu.RLock()
	candidates := make([]*deviceEntry, 0, len(e.devices))
	for _, entry := range e.devices {
		if entry.desc.HasService(upnp.ZoneGroupTopology) && entry.status != StatusUnreachable {
			candidates = append(candidates, entry)
		}
	}
	e.mu.RUnlock()

	var lastErr error = errors.New("no topology-capable device available")
	for _, entry := range candidates {
		resp, err := entry.proxy.Client().Call(ctx, upnp.ZoneGroupTopology, "GetZoneGroupState", nil)
		if err != nil {
			lastErr = err
			continue
		}
		payload := resp["ZoneGroupState"]
		if payload == "" {
			lastErr = errors.New("zone group state missing in response")
			continue
		}
		return e.ApplyZoneGroupState(ctx, payload)
	}
	return lastErr
}

// ApplyZoneGroupState ingests one complete topology payload: parse,
// replace the zone map atomically, and emit a topology-changed event
// only when membership or coordinator identity actually moved.
// Inconsistent payloads (unknown coordinator) leave the previous map
// in place; the next full refresh resolves them.
func (e *Engine) ApplyZoneGroupState(ctx context.Context, payload string) error {
	next, err := ParseZoneGroupState(payload)
	if err != nil {
		var inc *InconsistencyError
		if errors.As(err, &inc) {
			e.log.Warn().Str("zone", inc.ZoneID).Str("coordinator", inc.Coordinator).
				Msg("inconsistent topology payload; keeping previous map")
		}
		return err
	}

	e.mu.Lock()
	prev := e.zones
	changed := !prev.Equal(next)
	e.zones = next

	// Members reported by other devices may be new to us; register
	// stubs so they are addressable before their own reports arrive.
	var added []string
	for _, id := range next.MemberIDs() {
		if _, ok := e.devices[id]; ok {
			continue
		}
		m, _ := next.Member(id)
		e.ensureDeviceLocked(upnp.Description{
			UDN:      m.ID,
			RoomName: m.Name,
			IP:       m.IP,
			Location: m.Location,
			Services: map[string]bool{},
		})
		added = append(added, id)
	}

	// Devices that dropped out of topology are removed entirely.
	var removed []string
	for id := range e.devices {
		if _, ok := next.Member(id); !ok {
			removed = append(removed, id)
			delete(e.devices, id)
		}
	}

	// Units the new map reports as bonded must not hold transport
	// subscriptions; any opened before the bond was known are revoked.
	var bonded []string
	for _, id := range next.MemberIDs() {
		if m, ok := next.Member(id); ok && m.Bonded() {
			if _, ok := e.devices[id]; ok {
				bonded = append(bonded, id)
			}
		}
	}
	e.mu.Unlock()

	for _, id := range added {
		e.probeDescription(ctx, id)
		e.subscribeDevice(ctx, id)
	}
	for _, id := range bonded {
		e.subs.Unsubscribe(ctx, id, upnp.AVTransport)
		e.subs.Unsubscribe(ctx, id, upnp.RenderingControl)
	}
	for _, id := range removed {
		e.subs.UnsubscribeDevice(ctx, id)
		e.hub.DropDevice(id)
		e.log.Info().Str("udn", id).Msg("device left topology")
	}

	if changed {
		e.hub.Publish(events.Event{
			Kind: events.KindTopology,
			Prev: prev.Signature(),
			Curr: next.Signature(),
		})
	}
	return nil
}

// probeDescription fills in capabilities for a stub created from a
// topology report. Failure is fine: the unit stays a member with no
// subscribable channels until it answers.
func (e *Engine) probeDescription(ctx context.Context, id string) {
	e.mu.RLock()
	entry, ok := e.devices[id]
	if !ok || len(entry.desc.Services) > 0 {
		e.mu.RUnlock()
		return
	}
	location := entry.desc.Location
	e.mu.RUnlock()
	if location == "" {
		return
	}

	desc, err := e.opts.Fetch(ctx, location)
	if err != nil {
		e.log.Debug().Str("udn", id).Err(err).Msg("description probe failed")
		return
	}
	e.mu.Lock()
	if entry, ok := e.devices[id]; ok {
		entry.desc = desc
	}
	e.mu.Unlock()
}

// HandleTransportChange ingests an AVTransport notification for one
// device: refresh the snapshot and publish state/track events.
func (e *Engine) HandleTransportChange(deviceID string, lc upnp.LastChange) {
	proxy, ok := e.Device(deviceID)
	if !ok {
		return
	}
	e.markContact(deviceID)

	var prevState, prevTrack string
	proxy.UpdateState(func(s *device.State) {
		prevState = string(s.Playback)
		prevTrack = s.Track.URI
		if lc.TransportState != "" {
			s.Playback = device.PlaybackState(lc.TransportState)
		}
		if lc.CurrentTrackURI != "" {
			s.Track.URI = lc.CurrentTrackURI
			if items, err := upnp.ParseDIDL(lc.CurrentTrackMetaData); err == nil && len(items) > 0 {
				s.Track.Title = items[0].Title
				s.Track.Artist = items[0].Artist
				s.Track.Album = items[0].Album
			}
		}
	})

	if lc.TransportState != "" {
		e.hub.Publish(events.Event{
			Kind:     events.KindState,
			DeviceID: deviceID,
			Prev:     prevState,
			Curr:     lc.TransportState,
		})
	}
	if lc.CurrentTrackURI != "" {
		e.hub.Publish(events.Event{
			Kind:     events.KindTrack,
			DeviceID: deviceID,
			Prev:     prevTrack,
			Curr:     lc.CurrentTrackURI,
		})
	}
}

// HandleRenderingChange ingests a RenderingControl notification:
// Master volume and mute.
func (e *Engine) HandleRenderingChange(deviceID string, lc upnp.LastChange) {
	proxy, ok := e.Device(deviceID)
	if !ok {
		return
	}
	e.markContact(deviceID)

	volume, hasVolume := lc.Volume["Master"]
	mute, hasMute := lc.Mute["Master"]

	var prevVolume int
	var prevMute bool
	proxy.UpdateState(func(s *device.State) {
		prevVolume = s.Volume
		prevMute = s.Mute
		if hasVolume {
			s.Volume = volume
		}
		if hasMute {
			s.Mute = mute
		}
	})

	if hasVolume {
		e.hub.Publish(events.Event{
			Kind:     events.KindVolume,
			DeviceID: deviceID,
			Prev:     fmt.Sprintf("%d", prevVolume),
			Curr:     fmt.Sprintf("%d", volume),
		})
	}
	if hasMute {
		e.hub.Publish(events.Event{
			Kind:     events.KindMute,
			DeviceID: deviceID,
			Prev:     fmt.Sprintf("%t", prevMute),
			Curr:     fmt.Sprintf("%t", mute),
		})
	}
}

// reportResult tracks reachability from command outcomes. Repeated
// failures park the device as unreachable and tear down its
// subscriptions; any renewed contact restores it.
func (e *Engine) reportResult(id string, err error) {
	if err == nil {
		e.markContact(id)
		return
	}
	e.mu.Lock()
	entry, ok := e.devices[id]
	if !ok {
		e.mu.Unlock()
		return
	}
	entry.failures++
	becameUnreachable := entry.failures >= failureThreshold && entry.status != StatusUnreachable
	if becameUnreachable {
		entry.status = StatusUnreachable
	}
	e.mu.Unlock()

	if becameUnreachable {
		e.log.Warn().Str("udn", id).Msg("device unreachable")
		e.subs.UnsubscribeDevice(context.Background(), id)
	}
}

func (e *Engine) markContact(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.devices[id]; ok {
		entry.failures = 0
		if entry.status == StatusUnreachable || entry.status == StatusSubscribed {
			entry.status = StatusActive
		}
	}
}

// AllDevices returns every registered device, sorted by name.
func (e *Engine) AllDevices() []*device.Proxy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*device.Proxy, 0, len(e.devices))
	for _, entry := range e.devices {
		out = append(out, entry.proxy)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Device looks up a proxy by unit id.
func (e *Engine) Device(id string) (*device.Proxy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.devices[id]
	if !ok {
		return nil, false
	}
	return entry.proxy, true
}

// DeviceStatus reports the lifecycle state of a unit.
func (e *Engine) DeviceStatus(id string) (Status, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.devices[id]
	if !ok {
		return "", false
	}
	return entry.status, true
}

// Zones returns the current zone list.
func (e *Engine) Zones() []Zone {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Zone(nil), e.zones.Zones...)
}

// ZoneMap returns the current complete map.
func (e *Engine) ZoneMap() ZoneMap {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.zones
}
