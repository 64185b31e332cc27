package upnp

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
)

// ParseEvent flattens a GENA propertyset body into variable name/value
// pairs. Values holding nested XML documents (LastChange,
// ZoneGroupState) arrive decoded once, ready for their own parse.
func ParseEvent(body []byte) (map[string]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	vars := map[string]string{}

	inProperty := false
	depth := 0
	var key string

	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return vars, nil
			}
			return nil, fmt.Errorf("event propertyset: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "property" {
				inProperty = true
				depth = 0
				continue
			}
			if inProperty {
				depth++
				if depth == 1 {
					key = t.Name.Local
					vars[key] = ""
				}
			}
		case xml.EndElement:
			if t.Name.Local == "property" {
				inProperty = false
				key = ""
				continue
			}
			if inProperty && depth > 0 {
				depth--
			}
		case xml.CharData:
			if inProperty && depth == 1 && key != "" {
				vars[key] += string(t)
			}
		}
	}
}

// LastChange is the decoded form of the AVTransport/RenderingControl
// LastChange document. Only the variables the control plane reacts to
// are surfaced.
type LastChange struct {
	TransportState       string
	CurrentTrackURI      string
	CurrentTrackMetaData string
	// Volume and Mute are keyed by channel ("Master", "LF", "RF").
	Volume map[string]int
	Mute   map[string]bool
}

type lastChangeDoc struct {
	Instances []struct {
		TransportState       *valAttr       `xml:"TransportState"`
		CurrentTrackURI      *valAttr       `xml:"CurrentTrackURI"`
		CurrentTrackMetaData *valAttr       `xml:"CurrentTrackMetaData"`
		Volume               []channelAttr  `xml:"Volume"`
		Mute                 []channelAttr  `xml:"Mute"`
	} `xml:"InstanceID"`
}

type valAttr struct {
	Val string `xml:"val,attr"`
}

type channelAttr struct {
	Channel string `xml:"channel,attr"`
	Val     string `xml:"val,attr"`
}

// ParseLastChange decodes the nested LastChange payload. Instance 0 is
// the only instance ZonePlayers emit.
func ParseLastChange(doc string) (LastChange, error) {
	var parsed lastChangeDoc
	if err := xml.Unmarshal([]byte(doc), &parsed); err != nil {
		return LastChange{}, fmt.Errorf("lastchange: %w", err)
	}

	lc := LastChange{
		Volume: map[string]int{},
		Mute:   map[string]bool{},
	}
	for _, inst := range parsed.Instances {
		if inst.TransportState != nil {
			lc.TransportState = inst.TransportState.Val
		}
		if inst.CurrentTrackURI != nil {
			lc.CurrentTrackURI = inst.CurrentTrackURI.Val
		}
		if inst.CurrentTrackMetaData != nil {
			lc.CurrentTrackMetaData = inst.CurrentTrackMetaData.Val
		}
		for _, v := range inst.Volume {
			if n, err := strconv.Atoi(v.Val); err == nil {
				lc.Volume[channelOrMaster(v.Channel)] = n
			}
		}
		for _, m := range inst.Mute {
			lc.Mute[channelOrMaster(m.Channel)] = m.Val == "1"
		}
	}
	return lc, nil
}

func channelOrMaster(ch string) string {
	if ch == "" {
		return "Master"
	}
	return ch
}
