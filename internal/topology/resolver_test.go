package topology

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGroupedFixture(t *testing.T) *fixture {
	t.Helper()
	fx := newFixture(t, "10.0.0.1", "10.0.0.2", "10.0.0.3")
	fx.register("RINCON_LIVING", "Living Room", "10.0.0.1", allServices()...)
	fx.register("RINCON_KITCHEN", "Kitchen", "10.0.0.2", allServices()...)
	fx.register("RINCON_DEN", "Den", "10.0.0.3", allServices()...)
	require.NoError(t, fx.engine.ApplyZoneGroupState(context.Background(), twoZonePayload))
	return fx
}

func TestCoordinatorResolvesFollowerToGroupLead(t *testing.T) {
	t.Parallel()

	fx := newGroupedFixture(t)
	r := NewResolver(fx.engine)

	coord, err := r.Coordinator("RINCON_KITCHEN")
	require.NoError(t, err)
	assert.Equal(t, "RINCON_LIVING", coord.ID)

	// The coordinator resolves to itself.
	coord, err = r.Coordinator("RINCON_LIVING")
	require.NoError(t, err)
	assert.Equal(t, "RINCON_LIVING", coord.ID)
}

func TestCoordinatorResolvesBondedUnitThroughParent(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, "10.0.1.1", "10.0.1.2")
	fx.register("RINCON_LEFT", "Bedroom", "10.0.1.1", allServices()...)
	fx.register("RINCON_RIGHT", "Bedroom", "10.0.1.2", allServices()...)
	require.NoError(t, fx.engine.ApplyZoneGroupState(context.Background(), stereoPairPayload))

	r := NewResolver(fx.engine)
	coord, err := r.Coordinator("RINCON_RIGHT")
	require.NoError(t, err)
	assert.Equal(t, "RINCON_LEFT", coord.ID, "pair half resolves to its visible parent")
}

// pairAndDenPayload bonds RINCON_RIGHT to RINCON_LEFT and keeps a
// standalone Den available as a join target.
const pairAndDenPayload = `<ZoneGroupState><ZoneGroups>
	<ZoneGroup Coordinator="RINCON_LEFT" ID="RINCON_LEFT:30">
		<ZoneGroupMember UUID="RINCON_LEFT" ZoneName="Bedroom" Location="http://10.0.1.1:1400/xml/device_description.xml" ChannelMapSet="RINCON_LEFT:LF,LF;RINCON_RIGHT:RF,RF"/>
		<ZoneGroupMember UUID="RINCON_RIGHT" ZoneName="Bedroom" Location="http://10.0.1.2:1400/xml/device_description.xml" Invisible="1"/>
	</ZoneGroup>
	<ZoneGroup Coordinator="RINCON_DEN" ID="RINCON_DEN:5">
		<ZoneGroupMember UUID="RINCON_DEN" ZoneName="Den" Location="http://10.0.0.3:1400/xml/device_description.xml"/>
	</ZoneGroup>
</ZoneGroups></ZoneGroupState>`

func newPairedFixture(t *testing.T) *fixture {
	t.Helper()
	fx := newFixture(t, "10.0.1.1", "10.0.1.2", "10.0.0.3")
	fx.register("RINCON_LEFT", "Bedroom", "10.0.1.1", allServices()...)
	fx.register("RINCON_RIGHT", "Bedroom", "10.0.1.2", allServices()...)
	fx.register("RINCON_DEN", "Den", "10.0.0.3", allServices()...)
	require.NoError(t, fx.engine.ApplyZoneGroupState(context.Background(), pairAndDenPayload))
	return fx
}

func TestJoinWithBondedOperandCommandsVisibleParent(t *testing.T) {
	t.Parallel()

	fx := newPairedFixture(t)
	r := NewResolver(fx.engine)

	// Joining via the hidden half moves the pair; the visible parent
	// carries the transport command.
	require.NoError(t, r.Join(context.Background(), "RINCON_RIGHT", "RINCON_DEN"))

	left := fx.units["10.0.1.1"]
	assert.Equal(t, []string{"SetAVTransportURI"}, left.calls())
	assert.Contains(t, left.lastBody(), "<CurrentURI>x-rincon:RINCON_DEN</CurrentURI>")
	assert.Empty(t, fx.units["10.0.1.2"].calls(), "hidden pair half must not receive transport commands")
}

func TestLeaveWithBondedOperandCommandsVisibleParent(t *testing.T) {
	t.Parallel()

	fx := newPairedFixture(t)
	r := NewResolver(fx.engine)

	require.NoError(t, r.Leave(context.Background(), "RINCON_RIGHT"))

	assert.Equal(t, []string{"BecomeCoordinatorOfStandaloneGroup"}, fx.units["10.0.1.1"].calls())
	assert.Empty(t, fx.units["10.0.1.2"].calls(), "hidden pair half must not receive transport commands")
}

func TestCoordinatorFallsBackToDeviceWithoutTopology(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, "10.0.0.1")
	fx.register("RINCON_LONE", "Attic", "10.0.0.1", allServices()...)

	r := NewResolver(fx.engine)
	coord, err := r.Coordinator("RINCON_LONE")
	require.NoError(t, err)
	assert.Equal(t, "RINCON_LONE", coord.ID, "no zone map yet: the unit is its own coordinator")

	_, err = r.Coordinator("RINCON_MISSING")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestJoinSendsRinconURIToTargetCoordinator(t *testing.T) {
	t.Parallel()

	fx := newGroupedFixture(t)
	r := NewResolver(fx.engine)

	// Den joins the Living Room group. The join targets the group's
	// coordinator even when addressed via a follower.
	require.NoError(t, r.Join(context.Background(), "RINCON_DEN", "RINCON_KITCHEN"))

	den := fx.units["10.0.0.3"]
	assert.Equal(t, []string{"SetAVTransportURI"}, den.calls())
	assert.Contains(t, den.lastBody(), "<CurrentURI>x-rincon:RINCON_LIVING</CurrentURI>")
}

func TestJoinSameZoneIsNoOp(t *testing.T) {
	t.Parallel()

	fx := newGroupedFixture(t)
	r := NewResolver(fx.engine)

	require.NoError(t, r.Join(context.Background(), "RINCON_KITCHEN", "RINCON_LIVING"))
	assert.Empty(t, fx.units["10.0.0.2"].calls(), "already grouped: no network traffic")

	require.NoError(t, r.Join(context.Background(), "RINCON_LIVING", "RINCON_LIVING"))
	assert.Empty(t, fx.units["10.0.0.1"].calls())
}

func TestJoinByCoordinatorDissolvesItsOwnGroupFirst(t *testing.T) {
	t.Parallel()

	fx := newGroupedFixture(t)
	r := NewResolver(fx.engine)

	// Living Room leads Kitchen; moving it under Den must free the
	// Kitchen first, then join.
	require.NoError(t, r.Join(context.Background(), "RINCON_LIVING", "RINCON_DEN"))

	kitchen := fx.units["10.0.0.2"]
	assert.Equal(t, []string{"BecomeCoordinatorOfStandaloneGroup"}, kitchen.calls())

	living := fx.units["10.0.0.1"]
	require.Len(t, living.calls(), 2)
	assert.Equal(t, "BecomeCoordinatorOfStandaloneGroup", living.calls()[0])
	assert.Equal(t, "SetAVTransportURI", living.calls()[1])
	assert.Contains(t, living.lastBody(), "<CurrentURI>x-rincon:RINCON_DEN</CurrentURI>")
}

func TestLeaveFollowerBecomesStandalone(t *testing.T) {
	t.Parallel()

	fx := newGroupedFixture(t)
	r := NewResolver(fx.engine)

	require.NoError(t, r.Leave(context.Background(), "RINCON_KITCHEN"))
	assert.Equal(t, []string{"BecomeCoordinatorOfStandaloneGroup"}, fx.units["10.0.0.2"].calls())
	assert.Empty(t, fx.units["10.0.0.1"].calls(), "coordinator untouched by a follower leaving")
}

func TestLeaveFollowerFromLargeGroupKeepsCoordinator(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, "10.0.0.1", "10.0.0.2", "10.0.0.3")
	fx.register("RINCON_LIVING", "Living Room", "10.0.0.1", allServices()...)
	fx.register("RINCON_KITCHEN", "Kitchen", "10.0.0.2", allServices()...)
	fx.register("RINCON_DEN", "Den", "10.0.0.3", allServices()...)

	threeMember := `<ZoneGroupState><ZoneGroups>
		<ZoneGroup Coordinator="RINCON_LIVING" ID="RINCON_LIVING:20">
			<ZoneGroupMember UUID="RINCON_LIVING" ZoneName="Living Room" Location="http://10.0.0.1:1400/xml/device_description.xml"/>
			<ZoneGroupMember UUID="RINCON_KITCHEN" ZoneName="Kitchen" Location="http://10.0.0.2:1400/xml/device_description.xml"/>
			<ZoneGroupMember UUID="RINCON_DEN" ZoneName="Den" Location="http://10.0.0.3:1400/xml/device_description.xml"/>
		</ZoneGroup>
	</ZoneGroups></ZoneGroupState>`
	require.NoError(t, fx.engine.ApplyZoneGroupState(context.Background(), threeMember))

	r := NewResolver(fx.engine)
	require.NoError(t, r.Leave(context.Background(), "RINCON_DEN"))

	// Only the leaver is touched; the rest of the group stays intact.
	assert.Equal(t, []string{"BecomeCoordinatorOfStandaloneGroup"}, fx.units["10.0.0.3"].calls())
	assert.Empty(t, fx.units["10.0.0.1"].calls())
	assert.Empty(t, fx.units["10.0.0.2"].calls())
}

func TestLeaveByCoordinatorDissolvesGroup(t *testing.T) {
	t.Parallel()

	fx := newGroupedFixture(t)
	r := NewResolver(fx.engine)

	require.NoError(t, r.Leave(context.Background(), "RINCON_LIVING"))
	assert.Equal(t, []string{"BecomeCoordinatorOfStandaloneGroup"}, fx.units["10.0.0.2"].calls())
	assert.Equal(t, []string{"BecomeCoordinatorOfStandaloneGroup"}, fx.units["10.0.0.1"].calls())
}

func TestLeaveWithoutTopologyStillStandsAlone(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, "10.0.0.1")
	fx.register("RINCON_LONE", "Attic", "10.0.0.1", allServices()...)

	r := NewResolver(fx.engine)
	require.NoError(t, r.Leave(context.Background(), "RINCON_LONE"))
	assert.Equal(t, []string{"BecomeCoordinatorOfStandaloneGroup"}, fx.units["10.0.0.1"].calls())
}
