package models

import "strings"

// Platform identifies a supported DEX venue on TON.
type Platform string

const (
	PlatformDedust Platform = "dedust"
	PlatformStonfi Platform = "stonfi"
)

func AllPlatforms() []Platform {
	return []Platform{PlatformDedust, PlatformStonfi}
}

func (p Platform) Valid() bool {
	switch p {
	case PlatformDedust, PlatformStonfi:
		return true
	}
	return false
}

// platformKeywords maps memo keywords to venues. Matching is done on the
// lowercased comment; first hit wins, ordered from most to least specific.
var platformKeywords = []struct {
	keyword string
	venue   Platform
}{
	{"dedust", PlatformDedust},
	{"ston.fi", PlatformStonfi},
	{"stonfi", PlatformStonfi},
}

// MatchPlatform resolves a transfer memo to a venue. This is the single
// place venue keywords are interpreted; activity whose memo matches no
// keyword is not considered a trade.
func MatchPlatform(comment string) (Platform, bool) {
	c := strings.ToLower(strings.TrimSpace(comment))
	if c == "" {
		return "", false
	}
	for _, k := range platformKeywords {
		if strings.Contains(c, k.keyword) {
			return k.venue, true
		}
	}
	return "", false
}
