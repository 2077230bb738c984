// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fetch

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
)

// Preset is a named feed source.
type Preset struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Label string `json:"label"`
}

// DefaultPreset is used when no source is configured.
const DefaultPreset = "epgshare-pl"

var presets = map[string]Preset{
	"epgshare-pl": {
		Name:  "epgshare-pl",
		URL:   "https://epgshare01.online/epgshare01/epg_ripper_PL1.xml.gz",
		Label: "EPG Share PL",
	},
	"epgshare-all": {
		Name:  "epgshare-all",
		URL:   "https://epgshare01.online/epgshare01/epg_ripper_ALL_SOURCES1.xml.gz",
		Label: "EPG Share ALL",
	},
	"iptv-epg-pl": {
		Name:  "iptv-epg-pl",
		URL:   "https://iptv-epg.org/files/epg-pl.xml.gz",
		Label: "IPTV-EPG.org PL",
	},
	"epg-ovh-pl": {
		Name:  "epg-ovh-pl",
		URL:   "https://epg.ovh/pl.xml",
		Label: "EPG OVH PL",
	},
}

// Presets lists the built-in sources sorted by name.
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ResolveSource returns the URL for a preset name or a custom URL. A custom
// URL wins when both are set; an empty pair selects DefaultPreset.
func ResolveSource(preset, custom string) (string, error) {
	if custom = strings.TrimSpace(custom); custom != "" && custom != "http://" && custom != "https://" {
		return custom, nil
	}
	if preset = strings.TrimSpace(preset); preset == "" {
		preset = DefaultPreset
	}
	p, ok := presets[preset]
	if !ok {
		return "", fmt.Errorf("unknown feed preset %q", preset)
	}
	return p.URL, nil
}

// Extension is the local file suffix for a source: the compression suffix
// of the URL path, or ".xml".
func Extension(source string) string {
	p := source
	if u, err := url.Parse(source); err == nil && u.Path != "" {
		p = u.Path
	}
	p = strings.ToLower(path.Base(p))
	for _, ext := range []string{".xml.gz", ".xml.zst", ".xml.br", ".gz", ".zst", ".br"} {
		if strings.HasSuffix(p, ext) {
			if !strings.HasPrefix(ext, ".xml") {
				return ".xml" + ext
			}
			return ext
		}
	}
	return ".xml"
}
