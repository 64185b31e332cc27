package topology

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"

	"github.com/zonehub/zonehub/internal/upnp"
)

// Member is one physical unit as reported inside a zone group.
type Member struct {
	ID        string // RINCON UDN
	Name      string
	IP        string
	Location  string
	Invisible bool
	// Satellite marks home-theater satellites reported nested under
	// their parent.
	Satellite bool
	// BondedTo is the visible unit this member is bonded to (stereo
	// pair hidden half, satellite, sub). Bonded members are never
	// independently addressable for transport.
	BondedTo      string
	IsCoordinator bool
}

// Bonded reports whether the member is half of a stereo pair or a
// satellite rather than a standalone addressable unit.
func (m Member) Bonded() bool { return m.BondedTo != "" }

// Zone is a set of members sharing playback under one coordinator.
type Zone struct {
	ID          string
	Coordinator Member
	Members     []Member
}

// VisibleMembers filters out bonded and invisible units.
func (z Zone) VisibleMembers() []Member {
	out := make([]Member, 0, len(z.Members))
	for _, m := range z.Members {
		if !m.Invisible && !m.Bonded() {
			out = append(out, m)
		}
	}
	return out
}

// ZoneMap is one consistent view of the whole fleet's grouping. It is
// immutable once built; the engine swaps complete maps atomically.
type ZoneMap struct {
	Zones []Zone

	byID       map[string]Member
	zoneByUnit map[string]int
}

// Member looks up any reported unit by id.
func (zm ZoneMap) Member(id string) (Member, bool) {
	m, ok := zm.byID[id]
	return m, ok
}

// ZoneFor returns the zone containing the unit.
func (zm ZoneMap) ZoneFor(id string) (Zone, bool) {
	i, ok := zm.zoneByUnit[id]
	if !ok {
		return Zone{}, false
	}
	return zm.Zones[i], true
}

// Coordinator returns the coordinator of the unit's zone.
func (zm ZoneMap) Coordinator(id string) (Member, bool) {
	z, ok := zm.ZoneFor(id)
	if !ok {
		return Member{}, false
	}
	return z.Coordinator, true
}

// MemberIDs returns every reported unit id.
func (zm ZoneMap) MemberIDs() []string {
	ids := make([]string, 0, len(zm.byID))
	for id := range zm.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Signature is a canonical rendering of membership and coordinator
// identity, used to decide whether a recomputed map actually changed.
func (zm ZoneMap) Signature() string {
	parts := make([]string, 0, len(zm.Zones))
	for _, z := range zm.Zones {
		ids := make([]string, 0, len(z.Members))
		for _, m := range z.Members {
			ids = append(ids, m.ID)
		}
		sort.Strings(ids)
		parts = append(parts, z.Coordinator.ID+":"+strings.Join(ids, ","))
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

// Equal compares membership and coordinator identity only; name or
// address churn does not count as a topology change.
func (zm ZoneMap) Equal(other ZoneMap) bool {
	return zm.Signature() == other.Signature()
}

// InconsistencyError reports a zone group whose coordinator is not
// among its own members. Transient by design: the next full refresh
// resolves it.
type InconsistencyError struct {
	ZoneID      string
	Coordinator string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("zone %s names unknown coordinator %s", e.ZoneID, e.Coordinator)
}

type zgsDoc struct {
	ZoneGroups *struct {
		Groups []zgsGroup `xml:"ZoneGroup"`
	} `xml:"ZoneGroups"`
	Groups []zgsGroup `xml:"ZoneGroup"`
}

type zgsGroup struct {
	Coordinator string      `xml:"Coordinator,attr"`
	ID          string      `xml:"ID,attr"`
	Members     []zgsMember `xml:"ZoneGroupMember"`
}

type zgsMember struct {
	ZoneName      string         `xml:"ZoneName,attr"`
	Location      string         `xml:"Location,attr"`
	UUID          string         `xml:"UUID,attr"`
	Invisible     string         `xml:"Invisible,attr"`
	ChannelMapSet string         `xml:"ChannelMapSet,attr"`
	HTSatChanMap  string         `xml:"HTSatChanMapSet,attr"`
	Satellites    []zgsSatellite `xml:"Satellite"`
}

type zgsSatellite struct {
	ZoneName  string `xml:"ZoneName,attr"`
	Location  string `xml:"Location,attr"`
	UUID      string `xml:"UUID,attr"`
	Invisible string `xml:"Invisible,attr"`
}

// ParseZoneGroupState decodes a complete ZoneGroupState payload into a
// ZoneMap. The payload always carries every group, so the result
// replaces the previous map wholesale; it is never merged.
func ParseZoneGroupState(payload string) (ZoneMap, error) {
	var doc zgsDoc
	if err := xml.Unmarshal([]byte(payload), &doc); err != nil {
		return ZoneMap{}, fmt.Errorf("zone group state: %w", err)
	}

	groups := doc.Groups
	if doc.ZoneGroups != nil && len(doc.ZoneGroups.Groups) > 0 {
		groups = doc.ZoneGroups.Groups
	}

	zm := ZoneMap{
		byID:       map[string]Member{},
		zoneByUnit: map[string]int{},
	}

	for _, g := range groups {
		members := make([]Member, 0, len(g.Members))
		bonds := map[string]string{} // bonded uuid -> visible uuid

		for _, raw := range g.Members {
			ip, err := upnp.HostFromLocation(raw.Location)
			if err != nil {
				continue
			}
			m := Member{
				ID:        raw.UUID,
				Name:      raw.ZoneName,
				IP:        ip,
				Location:  raw.Location,
				Invisible: raw.Invisible == "1",
			}
			m.IsCoordinator = m.ID == g.Coordinator
			members = append(members, m)

			// A ChannelMapSet on a visible unit bonds every other
			// unit it names (the hidden half of a stereo pair).
			if !m.Invisible {
				for _, bonded := range bondedUnitIDs(raw.ChannelMapSet, m.ID) {
					bonds[bonded] = m.ID
				}
				for _, bonded := range bondedUnitIDs(raw.HTSatChanMap, m.ID) {
					bonds[bonded] = m.ID
				}
			}

			for _, sat := range raw.Satellites {
				satIP, err := upnp.HostFromLocation(sat.Location)
				if err != nil {
					continue
				}
				members = append(members, Member{
					ID:        sat.UUID,
					Name:      sat.ZoneName,
					IP:        satIP,
					Location:  sat.Location,
					Invisible: sat.Invisible == "1",
					Satellite: true,
					BondedTo:  m.ID,
				})
			}
		}

		var coordinator Member
		for i := range members {
			if id, ok := bonds[members[i].ID]; ok && members[i].BondedTo == "" {
				members[i].BondedTo = id
			}
			if members[i].IsCoordinator {
				coordinator = members[i]
			}
		}
		if coordinator.ID == "" {
			return ZoneMap{}, &InconsistencyError{ZoneID: g.ID, Coordinator: g.Coordinator}
		}

		idx := len(zm.Zones)
		zm.Zones = append(zm.Zones, Zone{ID: g.ID, Coordinator: coordinator, Members: members})
		for _, m := range members {
			zm.byID[m.ID] = m
			zm.zoneByUnit[m.ID] = idx
		}
	}

	return zm, nil
}

// bondedUnitIDs extracts the unit ids named in a channel map like
// "RINCON_A:LF,LF;RINCON_B:RF,RF", excluding self.
func bondedUnitIDs(channelMap, self string) []string {
	if channelMap == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(channelMap, ";") {
		id, _, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		id = strings.TrimSpace(id)
		if id != "" && id != self {
			out = append(out, id)
		}
	}
	return out
}
