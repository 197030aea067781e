package models

import "testing"

func TestMatchPlatform(t *testing.T) {
	cases := []struct {
		comment string
		want    Platform
		ok      bool
	}{
		{"Swap via DeDust", PlatformDedust, true},
		{"dedust.io swap #123", PlatformDedust, true},
		{"STON.fi: swap ok", PlatformStonfi, true},
		{"routed through stonfi v2", PlatformStonfi, true},
		{"", "", false},
		{"   ", "", false},
		{"regular transfer", "", false},
		{"thanks for lunch", "", false},
	}
	for _, tc := range cases {
		got, ok := MatchPlatform(tc.comment)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("MatchPlatform(%q)=(%q,%v) want=(%q,%v)", tc.comment, got, ok, tc.want, tc.ok)
		}
	}
}

func TestPlatformValid(t *testing.T) {
	for _, p := range AllPlatforms() {
		if !p.Valid() {
			t.Fatalf("%q should be valid", p)
		}
	}
	if Platform("uniswap").Valid() {
		t.Fatal("unknown venue should be invalid")
	}
}
