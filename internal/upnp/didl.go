package upnp

import (
	"encoding/xml"
	"strings"
)

// DIDLItem is one entry from a DIDL-Lite document: a track's metadata
// or a browsable container.
type DIDLItem struct {
	ID      string
	Title   string
	Artist  string
	Album   string
	URI     string
	Class   string
}

// IsContainer reports whether the item is a browsable container rather
// than a playable object.
func (i DIDLItem) IsContainer() bool {
	return strings.HasPrefix(i.Class, "object.container")
}

type didlDoc struct {
	Items      []didlEntry `xml:"item"`
	Containers []didlEntry `xml:"container"`
}

type didlEntry struct {
	ID     string `xml:"id,attr"`
	Title  string `xml:"title"`
	Artist string `xml:"creator"`
	Album  string `xml:"album"`
	Class  string `xml:"class"`
	Res    []struct {
		URI string `xml:",chardata"`
	} `xml:"res"`
}

// ParseDIDL decodes a DIDL-Lite document, as found in track metadata
// and ContentDirectory browse results. Containers precede items so
// browse listings keep the device's ordering within each kind.
func ParseDIDL(doc string) ([]DIDLItem, error) {
	doc = strings.TrimSpace(doc)
	if doc == "" || doc == "NOT_IMPLEMENTED" {
		return nil, nil
	}
	var parsed didlDoc
	if err := xml.Unmarshal([]byte(doc), &parsed); err != nil {
		return nil, err
	}

	out := make([]DIDLItem, 0, len(parsed.Containers)+len(parsed.Items))
	for _, e := range parsed.Containers {
		out = append(out, toDIDLItem(e))
	}
	for _, e := range parsed.Items {
		out = append(out, toDIDLItem(e))
	}
	return out, nil
}

func toDIDLItem(e didlEntry) DIDLItem {
	item := DIDLItem{
		ID:     e.ID,
		Title:  strings.TrimSpace(e.Title),
		Artist: strings.TrimSpace(e.Artist),
		Album:  strings.TrimSpace(e.Album),
		Class:  strings.TrimSpace(e.Class),
	}
	if len(e.Res) > 0 {
		item.URI = strings.TrimSpace(e.Res[0].URI)
	}
	return item
}
