// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package normalize

// DefaultJunkWords returns the built-in list of tokens that never identify a
// channel. A fresh slice is returned on every call.
func DefaultJunkWords() []string {
	return []string{
		// resolution / codec
		"HD", "FHD", "FULLHD", "UHD", "4K", "8K", "SD", "HDTV", "SUPERHD", "PLUSHD",
		"HEVC", "H265", "H264", "MPEG4", "MPEG2", "AAC", "AC3", "EAC3",
		"4KUHD", "UHD4K", "HD4K", "FHD1", "FHD2", "FHD3",
		// language / region / audio
		"PL", "POL", "ENG", "EN", "DE", "GER", "CZ", "SK", "RUS", "RU",
		"PL1", "PL2", "PL3",
		"MULTI", "MULTIAUDIO", "DUAL", "NAPISY", "LEKTOR", "DUB", "SUB",
		// quality / marketing
		"VIP", "VVIP", "RAW", "VOD", "SVOD", "AVOD",
		"PREMIUM", "ULTRA", "MAXHD", "MOBILE", "LIGHT",
		// technical / stream
		"BACKUP", "UPDATE", "TEST", "BETA", "OLD", "ARCHIVE", "DUMP",
		"LOW", "HIGH", "ORIGINAL", "ALT", "ALT1", "ALT2",
		"TV", "TELEWIZJA", "CHANNEL", "KANAL", "STREAM", "LIVE",
		"ONLINE", "IPTV", "OTT", "OTV", "APP", "PORTAL",
		"REC", "PVR", "TS", "TSFILE", "TIMESHIFT",
		// Polish filler
		"NA", "ZYWO", "NAZYWO",
	}
}
