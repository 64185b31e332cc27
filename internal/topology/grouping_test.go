package topology

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zonehub/zonehub/internal/events"
	"github.com/zonehub/zonehub/internal/upnp"
)

func standalonePayload() string {
	return `<ZoneGroupState><ZoneGroups>
		<ZoneGroup Coordinator="RINCON_A" ID="RINCON_A:1">
			<ZoneGroupMember UUID="RINCON_A" ZoneName="Office" Location="http://10.0.0.1:1400/xml/device_description.xml"/>
		</ZoneGroup>
		<ZoneGroup Coordinator="RINCON_B" ID="RINCON_B:1">
			<ZoneGroupMember UUID="RINCON_B" ZoneName="Kitchen" Location="http://10.0.0.2:1400/xml/device_description.xml"/>
		</ZoneGroup>
	</ZoneGroups></ZoneGroupState>`
}

func groupedPayload() string {
	return `<ZoneGroupState><ZoneGroups>
		<ZoneGroup Coordinator="RINCON_A" ID="RINCON_A:2">
			<ZoneGroupMember UUID="RINCON_A" ZoneName="Office" Location="http://10.0.0.1:1400/xml/device_description.xml"/>
			<ZoneGroupMember UUID="RINCON_B" ZoneName="Kitchen" Location="http://10.0.0.2:1400/xml/device_description.xml"/>
		</ZoneGroup>
	</ZoneGroups></ZoneGroupState>`
}

// Full grouping round trip: two standalone zones, join one into the
// other, observe the topology event and the merged zone, then leave and
// observe the split. Topology pushes are injected the way the
// notification path delivers them.
func TestGroupingRoundTrip(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, "10.0.0.1", "10.0.0.2")
	fx.register("RINCON_A", "Office", "10.0.0.1", allServices()...)
	fx.register("RINCON_B", "Kitchen", "10.0.0.2", allServices()...)
	r := NewResolver(fx.engine)
	ctx := context.Background()

	require.NoError(t, fx.engine.ApplyZoneGroupState(ctx, standalonePayload()))
	require.Len(t, fx.engine.Zones(), 2)

	// Join B into A's group; the device confirms by pushing the new
	// topology, which the waiter observes.
	done := make(chan bool, 1)
	go func() {
		ok := fx.hub.WaitForTopologyChange(5 * time.Second)
		done <- ok
	}()
	waitForTopologyWaiter(t, fx.hub)

	require.NoError(t, r.Join(ctx, "RINCON_B", "RINCON_A"))
	assert.Contains(t, fx.units["10.0.0.2"].lastBody(), "x-rincon:RINCON_A")
	require.NoError(t, fx.engine.ApplyZoneGroupState(ctx, groupedPayload()))
	assert.True(t, <-done, "join must surface a topology change")

	zones := fx.engine.Zones()
	require.Len(t, zones, 1)
	assert.Equal(t, "RINCON_A", zones[0].Coordinator.ID)
	assert.Len(t, zones[0].VisibleMembers(), 2)

	// Joining again with no intervening leave is a no-op.
	callsBefore := len(fx.units["10.0.0.2"].calls())
	require.NoError(t, r.Join(ctx, "RINCON_B", "RINCON_A"))
	assert.Equal(t, callsBefore, len(fx.units["10.0.0.2"].calls()))

	// Leave splits the zone back apart.
	require.NoError(t, r.Leave(ctx, "RINCON_B"))
	require.NoError(t, fx.engine.ApplyZoneGroupState(ctx, standalonePayload()))
	assert.Len(t, fx.engine.Zones(), 2)
}

// A unit with no topology service still becomes a zone member through
// another device's report.
func TestTopologyLessDeviceStillAppearsInZones(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, "10.0.0.1", "10.0.0.2")
	fx.register("RINCON_A", "Office", "10.0.0.1", allServices()...)
	fx.register("RINCON_B", "Kitchen", "10.0.0.2", upnp.AVTransport, upnp.RenderingControl)

	fx.engine.subscribeDevice(context.Background(), "RINCON_B")
	assert.NotContains(t, fx.subs.subs(), "RINCON_B/ZoneGroupTopology")

	require.NoError(t, fx.engine.ApplyZoneGroupState(context.Background(), groupedPayload()))
	m, ok := fx.engine.ZoneMap().Member("RINCON_B")
	require.True(t, ok, "membership comes from the other device's report")
	assert.Equal(t, "Kitchen", m.Name)
}

// waitForTopologyWaiter blocks until the hub has a registered topology
// listener, so the test's publish cannot race the wait registration.
func waitForTopologyWaiter(t *testing.T, h *events.Hub) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if h.HasListeners(events.KindTopology) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.Fail(t, fmt.Sprintf("no %s listener registered in time", events.KindTopology))
}
