package control

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zonehub/zonehub/internal/config"
	"github.com/zonehub/zonehub/internal/device"
	"github.com/zonehub/zonehub/internal/eventer"
	"github.com/zonehub/zonehub/internal/events"
	"github.com/zonehub/zonehub/internal/subs"
	"github.com/zonehub/zonehub/internal/topology"
)

// Plane wires the whole control plane together: event hub, subscription
// manager, notification listener, topology engine and coordinator
// resolver. One Plane per process; collaborators consume its accessors
// and never reach into the parts directly.
type Plane struct {
	cfg config.Config
	log zerolog.Logger

	hub      *events.Hub
	manager  *subs.Manager
	engine   *topology.Engine
	resolver *topology.Resolver
	listener *eventer.Listener
}

func NewPlane(cfg config.Config) *Plane {
	hub := events.NewHub()
	manager := subs.NewManager("")
	manager.SetRequestedTimeout(cfg.Events.RequestedTimeout)

	engine := topology.NewEngine(hub, manager, topology.Options{
		DiscoveryTimeout: cfg.Discovery.Timeout,
		Subnets:          cfg.Discovery.Subnets,
		StaticIPs:        cfg.Discovery.StaticIPs,
		DisableScan:      cfg.Discovery.DisableScan,
	})

	return &Plane{
		cfg:      cfg,
		log:      log.With().Str("component", "plane").Logger(),
		hub:      hub,
		manager:  manager,
		engine:   engine,
		resolver: topology.NewResolver(engine),
		listener: eventer.NewListener(manager, engine),
	}
}

// Start binds the notification listener, registers its callback URL
// with the subscription manager, and bootstraps discovery. After Start
// returns, the zone map is live and updates arrive by push.
func (p *Plane) Start(ctx context.Context) error {
	if err := p.listener.Start(p.cfg.Listen); err != nil {
		return err
	}

	advertise := p.cfg.AdvertiseIP
	if advertise == "" {
		ip, err := eventer.LocalIP()
		if err != nil {
			return fmt.Errorf("cannot determine advertise address, set advertise_ip: %w", err)
		}
		advertise = ip
	}
	p.manager.SetCallbackURL(p.listener.CallbackURL(advertise))

	if err := p.engine.Bootstrap(ctx); err != nil {
		p.shutdownListener()
		return err
	}
	p.log.Info().Int("devices", len(p.engine.AllDevices())).Msg("control plane started")
	return nil
}

// Stop cancels every renewal timer and stops the listener. Devices
// expire the abandoned subscriptions on their own.
func (p *Plane) Stop(ctx context.Context) {
	p.manager.Close()
	if err := p.listener.Shutdown(ctx); err != nil {
		p.log.Warn().Err(err).Msg("listener shutdown")
	}
}

func (p *Plane) shutdownListener() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = p.listener.Shutdown(ctx)
}

// Hub exposes event channels and the wait primitives.
func (p *Plane) Hub() *events.Hub { return p.hub }

// Devices lists every known device, sorted by room name.
func (p *Plane) Devices() []*device.Proxy { return p.engine.AllDevices() }

// Zones returns the current zone list.
func (p *Plane) Zones() []topology.Zone { return p.engine.Zones() }

// Device resolves a unit id or a room name (case-insensitive) to its
// proxy. Room names are how external callers usually address units.
func (p *Plane) Device(idOrName string) (*device.Proxy, error) {
	if d, ok := p.engine.Device(idOrName); ok {
		return d, nil
	}
	for _, d := range p.engine.AllDevices() {
		if strings.EqualFold(d.Name, idOrName) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", topology.ErrDeviceNotFound, idOrName)
}

// Coordinator resolves the device that executes transport commands for
// the given unit's group.
func (p *Plane) Coordinator(idOrName string) (*device.Proxy, error) {
	d, err := p.Device(idOrName)
	if err != nil {
		return nil, err
	}
	return p.resolver.Coordinator(d.ID)
}

// Join moves a device into the target's group.
func (p *Plane) Join(ctx context.Context, idOrName, targetIDOrName string) error {
	d, err := p.Device(idOrName)
	if err != nil {
		return err
	}
	target, err := p.Device(targetIDOrName)
	if err != nil {
		return err
	}
	return p.resolver.Join(ctx, d.ID, target.ID)
}

// Leave removes a device from its group.
func (p *Plane) Leave(ctx context.Context, idOrName string) error {
	d, err := p.Device(idOrName)
	if err != nil {
		return err
	}
	return p.resolver.Leave(ctx, d.ID)
}

// RefreshTopology forces a pull of the zone map, normally only needed
// to recover from an inconsistent push.
func (p *Plane) RefreshTopology(ctx context.Context) error {
	return p.engine.RefreshTopology(ctx)
}
