package upnp

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

const soapEnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"

// statusError is a non-200 HTTP response that carried no parseable
// SOAP fault. 503 responses count as busy for retry purposes.
type statusError struct {
	status string
	code   int
}

func (e *statusError) Error() string { return "soap http " + e.status }

func buildEnvelope(serviceURN, action string, args map[string]string) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?>`)
	b.WriteString(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">`)
	b.WriteString(`<s:Body>`)
	b.WriteString(`<u:`)
	b.WriteString(action)
	b.WriteString(` xmlns:u="`)
	b.WriteString(xmlEscape(serviceURN))
	b.WriteString(`">`)

	// Deterministic argument order keeps request logs and tests stable.
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		tag := xmlTagName(k)
		b.WriteString("<")
		b.WriteString(tag)
		b.WriteString(">")
		b.WriteString(xmlEscape(args[k]))
		b.WriteString("</")
		b.WriteString(tag)
		b.WriteString(">")
	}

	b.WriteString(`</u:`)
	b.WriteString(action)
	b.WriteString(`>`)
	b.WriteString(`</s:Body></s:Envelope>`)
	return []byte(b.String())
}

// parseEnvelope extracts the direct children of the ActionResponse
// element (the first element under <Body>) as a flat string map.
// Values that are themselves XML documents (LastChange,
// ZoneGroupState) come back still encoded, for the caller to decode.
func parseEnvelope(raw []byte) (map[string]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	out := map[string]string{}

	inBody := false
	bodyDepth := 0
	inResponse := false
	respDepth := 0
	var key string

	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return out, nil
			}
			return nil, fmt.Errorf("soap response: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case !inBody:
				if t.Name.Space == soapEnvelopeNS && t.Name.Local == "Body" {
					inBody = true
					bodyDepth = 1
				}
			case !inResponse && bodyDepth == 1:
				inResponse = true
				respDepth = 1
			case inResponse:
				respDepth++
				if respDepth == 2 {
					key = t.Name.Local
					out[key] = ""
				}
			default:
				bodyDepth++
			}
		case xml.EndElement:
			if inResponse {
				if respDepth == 2 {
					key = ""
				}
				respDepth--
				if respDepth == 0 {
					inResponse = false
				}
			} else if inBody {
				bodyDepth--
				if bodyDepth == 0 {
					inBody = false
				}
			}
		case xml.CharData:
			if inResponse && respDepth == 2 && key != "" {
				out[key] += string(t)
			}
		}
	}
}

// parseFault looks for a <UPnPError> block anywhere in a 500 response
// body. Devices nest it inside detail elements with varying namespaces,
// so scan rather than unmarshal the whole envelope.
func parseFault(raw []byte) (*Fault, bool) {
	type faultBody struct {
		Code        string `xml:"errorCode"`
		Description string `xml:"errorDescription"`
	}

	dec := xml.NewDecoder(bytes.NewReader(raw))
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if se.Name.Local != "UPnPError" {
			continue
		}
		var body faultBody
		if err := dec.DecodeElement(&body, &se); err != nil {
			return nil, false
		}
		code := strings.TrimSpace(body.Code)
		desc := strings.TrimSpace(body.Description)
		if code == "" && desc == "" {
			return nil, false
		}
		return &Fault{Code: FaultCode(code), Description: desc}, true
	}
}

func xmlEscape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// xmlTagName strips anything that is not a plain tag character. Tag
// names come from our own action tables, so conservative is fine.
func xmlTagName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == '_' || r == '-':
			return r
		default:
			return -1
		}
	}, s)
}
