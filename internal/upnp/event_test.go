package upnp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventPropertyset(t *testing.T) {
	t.Parallel()

	body := []byte(`<e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0">
  <e:property><ZoneGroupState>&lt;ZoneGroupState/&gt;</ZoneGroupState></e:property>
  <e:property><ThirdPartyMediaServersX>sync</ThirdPartyMediaServersX></e:property>
</e:propertyset>`)

	vars, err := ParseEvent(body)
	require.NoError(t, err)
	assert.Equal(t, "<ZoneGroupState/>", vars["ZoneGroupState"])
	assert.Equal(t, "sync", vars["ThirdPartyMediaServersX"])
}

func TestParseLastChangeTransport(t *testing.T) {
	t.Parallel()

	doc := `<Event xmlns="urn:schemas-upnp-org:metadata-1-0/AVT/">
  <InstanceID val="0">
    <TransportState val="PLAYING"/>
    <CurrentTrackURI val="x-sonos-spotify:track"/>
    <CurrentTrackMetaData val="&lt;DIDL-Lite/&gt;"/>
  </InstanceID>
</Event>`

	lc, err := ParseLastChange(doc)
	require.NoError(t, err)
	assert.Equal(t, "PLAYING", lc.TransportState)
	assert.Equal(t, "x-sonos-spotify:track", lc.CurrentTrackURI)
	assert.Equal(t, "<DIDL-Lite/>", lc.CurrentTrackMetaData)
}

func TestParseLastChangeRendering(t *testing.T) {
	t.Parallel()

	doc := `<Event xmlns="urn:schemas-upnp-org:metadata-1-0/RCS/">
  <InstanceID val="0">
    <Volume channel="Master" val="31"/>
    <Volume channel="LF" val="100"/>
    <Mute channel="Master" val="1"/>
  </InstanceID>
</Event>`

	lc, err := ParseLastChange(doc)
	require.NoError(t, err)
	assert.Equal(t, 31, lc.Volume["Master"])
	assert.Equal(t, 100, lc.Volume["LF"])
	assert.True(t, lc.Mute["Master"])
}

func TestParseLastChangeDefaultsChannel(t *testing.T) {
	t.Parallel()

	doc := `<Event><InstanceID val="0"><Volume val="5"/></InstanceID></Event>`
	lc, err := ParseLastChange(doc)
	require.NoError(t, err)
	assert.Equal(t, 5, lc.Volume["Master"])
}

func TestParseDIDL(t *testing.T) {
	t.Parallel()

	doc := `<DIDL-Lite xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/" xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/">
  <container id="A:ALBUM/1"><dc:title>Albums</dc:title><upnp:class>object.container.album</upnp:class></container>
  <item id="Q:0/1">
    <dc:title>Song One</dc:title>
    <dc:creator>Some Artist</dc:creator>
    <upnp:album>Some Album</upnp:album>
    <upnp:class>object.item.audioItem.musicTrack</upnp:class>
    <res protocolInfo="http-get:*:audio/mpeg:*">http://10.0.0.5/track.mp3</res>
  </item>
</DIDL-Lite>`

	items, err := ParseDIDL(doc)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[0].IsContainer())
	assert.Equal(t, "Albums", items[0].Title)
	assert.Equal(t, "Song One", items[1].Title)
	assert.Equal(t, "Some Artist", items[1].Artist)
	assert.Equal(t, "http://10.0.0.5/track.mp3", items[1].URI)
	assert.False(t, items[1].IsContainer())
}

func TestParseDIDLNotImplemented(t *testing.T) {
	t.Parallel()

	items, err := ParseDIDL("NOT_IMPLEMENTED")
	require.NoError(t, err)
	assert.Empty(t, items)
}
