package model

import "regexp"

// Default brand values, used field by field whenever extraction yields nothing
const (
	DefaultBrandName      = "YOUR BRAND"
	DefaultTagline        = "Your Amazing Tagline"
	DefaultPrimaryColor   = "#00F3F9"
	DefaultSecondaryColor = "#001A33"
	DefaultAccentColor    = "#00C4C9"
	DefaultCTA            = "Learn More"
	DefaultInstagram      = "@yourbrand"
	DefaultWebsite        = "www.yourbrand.com"
)

var hexColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Brand holds the creative parameters a video is generated from
type Brand struct {
	Name           string `json:"name"`
	Tagline        string `json:"tagline"`
	PrimaryColor   string `json:"primaryColor"`
	SecondaryColor string `json:"secondaryColor"`
	AccentColor    string `json:"accentColor"`
	CTA            string `json:"cta"`
	Instagram      string `json:"instagram"`
	Website        string `json:"website"`
}

// DefaultBrand returns the fully populated default record
func DefaultBrand() Brand {
	return Brand{
		Name:           DefaultBrandName,
		Tagline:        DefaultTagline,
		PrimaryColor:   DefaultPrimaryColor,
		SecondaryColor: DefaultSecondaryColor,
		AccentColor:    DefaultAccentColor,
		CTA:            DefaultCTA,
		Instagram:      DefaultInstagram,
		Website:        DefaultWebsite,
	}
}

// IsHexColor reports whether s is a strict #RRGGBB color
func IsHexColor(s string) bool {
	return hexColorPattern.MatchString(s)
}
