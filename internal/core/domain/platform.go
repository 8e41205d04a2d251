package domain

import (
	"fmt"
	"strings"
)

// Platform identifies a third-party social network.
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformLinkedIn  Platform = "linkedin"
)

// Platforms lists every supported platform in a stable order.
var Platforms = []Platform{PlatformFacebook, PlatformInstagram, PlatformLinkedIn}

// PlatformDisplayName maps a Platform to its human-readable name.
var PlatformDisplayName = map[Platform]string{
	PlatformFacebook:  "Facebook",
	PlatformInstagram: "Instagram",
	PlatformLinkedIn:  "LinkedIn",
}

// PlatformHomeURL is where users go to post by hand.
var PlatformHomeURL = map[Platform]string{
	PlatformFacebook:  "https://www.facebook.com",
	PlatformInstagram: "https://www.instagram.com",
	PlatformLinkedIn:  "https://www.linkedin.com/feed",
}

// ParsePlatform converts a case-insensitive name into a Platform.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedPlatform, s)
	}
	return p, nil
}

// Valid reports whether p is one of the supported platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformFacebook, PlatformInstagram, PlatformLinkedIn:
		return true
	default:
		return false
	}
}

func (p Platform) String() string {
	return string(p)
}

// DisplayName returns the human-readable name, or the raw value if unknown.
func (p Platform) DisplayName() string {
	if name, ok := PlatformDisplayName[p]; ok {
		return name
	}
	return string(p)
}
