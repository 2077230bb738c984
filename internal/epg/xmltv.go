// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"encoding/xml"
	"strings"
)

// Channel is a <channel> element.
type Channel struct {
	ID           string     `xml:"id,attr"`
	DisplayNames []LangText `xml:"display-name"`
	Icon         *Icon      `xml:"icon,omitempty"`
}

// Icon is the channel logo.
type Icon struct {
	Src string `xml:"src,attr"`
}

// LangText is a text element with an optional lang attribute.
type LangText struct {
	Lang  string `xml:"lang,attr,omitempty"`
	Value string `xml:",chardata"`
}

// Programme is a <programme> element with the fields the importer consumes.
type Programme struct {
	XMLName xml.Name   `xml:"programme"`
	Start   string     `xml:"start,attr"`
	Stop    string     `xml:"stop,attr"`
	Channel string     `xml:"channel,attr"`
	Titles  []LangText `xml:"title"`
	Descs   []LangText `xml:"desc"`
}

// Title returns the first non-empty title.
func (p *Programme) Title() string { return firstText(p.Titles) }

// Description returns the first non-empty description.
func (p *Programme) Description() string { return firstText(p.Descs) }

func firstText(items []LangText) string {
	for _, it := range items {
		if v := strings.TrimSpace(it.Value); v != "" {
			return v
		}
	}
	return ""
}

func attr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
