package topology

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zonehub/zonehub/internal/device"
)

// Resolver answers "who actually executes this command" for grouped
// and bonded units, and performs group membership changes.
type Resolver struct {
	engine *Engine
	log    zerolog.Logger
}

func NewResolver(engine *Engine) *Resolver {
	return &Resolver{
		engine: engine,
		log:    log.With().Str("component", "resolver").Logger(),
	}
}

// Coordinator resolves the device that owns transport state for the
// given unit. Bonded units (stereo-pair halves, satellites) first
// resolve to their visible parent, then to that parent's zone
// coordinator. A device absent from the zone map is its own
// coordinator: topology may simply not have arrived yet, and transport
// commands must not be held hostage to it.
func (r *Resolver) Coordinator(id string) (*device.Proxy, error) {
	proxy, ok := r.engine.Device(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	zm := r.engine.ZoneMap()
	m, inMap := zm.Member(id)
	if !inMap {
		return proxy, nil
	}
	if m.Bonded() {
		m, inMap = zm.Member(m.BondedTo)
		if !inMap {
			return proxy, nil
		}
	}

	coord, ok := zm.Coordinator(m.ID)
	if !ok {
		return proxy, nil
	}
	coordProxy, ok := r.engine.Device(coord.ID)
	if !ok {
		// Coordinator reported by topology but never enumerated; fall
		// back to the unit itself rather than fail the command.
		r.log.Warn().Str("udn", coord.ID).Msg("coordinator not in registry")
		return proxy, nil
	}
	return coordProxy, nil
}

// transportOperand maps a bonded unit (stereo-pair hidden half,
// satellite) to its visible parent. Bonded sets move as one unit, so
// group operations address the parent, never the hidden half.
func (r *Resolver) transportOperand(id string) string {
	if m, ok := r.engine.ZoneMap().Member(id); ok && m.Bonded() {
		return m.BondedTo
	}
	return id
}

// Join moves a device into the group led by target's coordinator.
// Joining a zone the device already belongs to is a no-op. A device
// that leads its own group leaves it first, which dissolves that
// group for its followers.
func (r *Resolver) Join(ctx context.Context, id, targetID string) error {
	id = r.transportOperand(id)
	proxy, ok := r.engine.Device(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	targetCoord, err := r.Coordinator(targetID)
	if err != nil {
		return err
	}
	if targetCoord.ID == id {
		return nil
	}

	zm := r.engine.ZoneMap()
	if z, ok := zm.ZoneFor(id); ok {
		if tz, ok := zm.ZoneFor(targetCoord.ID); ok && z.ID == tz.ID {
			return nil
		}
		if z.Coordinator.ID == id && len(z.VisibleMembers()) > 1 {
			if err := r.Leave(ctx, id); err != nil {
				return err
			}
		}
	}

	r.log.Info().Str("udn", id).Str("coordinator", targetCoord.ID).Msg("joining group")
	return proxy.JoinGroup(ctx, targetCoord.ID)
}

// Leave removes a device from its group. A follower simply becomes
// standalone. A coordinator leaving dissolves the group: every other
// visible member is made standalone first, then the coordinator
// itself.
func (r *Resolver) Leave(ctx context.Context, id string) error {
	id = r.transportOperand(id)
	proxy, ok := r.engine.Device(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	zm := r.engine.ZoneMap()
	z, inMap := zm.ZoneFor(id)
	if !inMap || z.Coordinator.ID != id {
		return proxy.BecomeStandalone(ctx)
	}

	for _, m := range z.VisibleMembers() {
		if m.ID == id {
			continue
		}
		follower, ok := r.engine.Device(m.ID)
		if !ok {
			continue
		}
		if err := follower.BecomeStandalone(ctx); err != nil {
			return fmt.Errorf("dissolving group %s: %w", z.ID, err)
		}
	}
	return proxy.BecomeStandalone(ctx)
}
