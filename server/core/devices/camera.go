package devices

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/webcampics/webcampics/server/core/identity"
)

// ReservedKey is the template entry shipped in cameras.json. It is preserved on
// save but never treated as a device.
const ReservedKey = "_example_"

const (
	DefaultLocation  = "unknown"
	DefaultFontSize  = 16
	DefaultFontColor = "#FFFFFF"
	MaxFontSize      = 200
)

// Status controls what happens to a camera's uploads.
type Status int

const (
	// StatusDisabled drops uploads without storing them.
	StatusDisabled Status = iota
	// StatusHidden stores uploads but keeps the camera out of public listings.
	StatusHidden
	// StatusEnabled stores uploads and lists the camera publicly.
	StatusEnabled
)

func (s Status) String() string {
	switch s {
	case StatusDisabled:
		return "disabled"
	case StatusHidden:
		return "hidden"
	case StatusEnabled:
		return "enabled"
	default:
		return "Status(" + strconv.Itoa(int(s)) + ")"
	}
}

// ParseStatus accepts the three status names, case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled":
		return StatusDisabled, nil
	case "hidden":
		return StatusHidden, nil
	case "enabled":
		return StatusEnabled, nil
	default:
		return 0, fmt.Errorf("unknown status %q", s)
	}
}

func (s Status) MarshalText() ([]byte, error) {
	switch s {
	case StatusDisabled, StatusHidden, StatusEnabled:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("invalid status %d", int(s))
	}
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Rotation is the clockwise correction applied to every frame, in degrees.
type Rotation int

func (r Rotation) Valid() bool {
	switch r {
	case 0, 90, 180, 270:
		return true
	default:
		return false
	}
}

// Color is an overlay text color. It satisfies image/color.Color.
type Color struct {
	R, G, B uint8
}

var White = Color{R: 0xFF, G: 0xFF, B: 0xFF}

// ParseColor reads "#RGB" or "#RRGGBB" (the leading '#' is optional).
func ParseColor(s string) (Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return Color{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid color %q", s)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// Hex formats c as "#RRGGBB".
func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

func (c Color) RGBA() (r, g, b, a uint32) {
	r = uint32(c.R)
	r |= r << 8
	g = uint32(c.G)
	g |= g << 8
	b = uint32(c.B)
	b |= b << 8
	return r, g, b, 0xFFFF
}

func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// CameraConfig is the per-device configuration, keyed in storage by Key.
type CameraConfig struct {
	Key          string   `json:"key"`
	Identifier   string   `json:"device_id"`
	Location     string   `json:"location"`
	Title        string   `json:"title"`
	Status       Status   `json:"status"`
	Rotation     Rotation `json:"rotation"`
	AddTitle     bool     `json:"add_title"`
	AddTimestamp bool     `json:"add_timestamp"`
	FontSize     int      `json:"font_size"`
	FontColor    Color    `json:"font_color"`
	FontOutline  bool     `json:"font_outline"`
}

// NewDefaultCameraConfig is the configuration a camera gets on first contact.
func NewDefaultCameraConfig(id string) *CameraConfig {
	return &CameraConfig{
		Identifier:   id,
		Location:     DefaultLocation,
		Title:        identity.DefaultTitle(id),
		Status:       StatusHidden,
		Rotation:     0,
		AddTitle:     true,
		AddTimestamp: true,
		FontSize:     DefaultFontSize,
		FontColor:    White,
		FontOutline:  true,
	}
}

// Matches reports whether id names this camera.
func (c *CameraConfig) Matches(id string) bool {
	return identity.Equivalent(c.Identifier, id)
}

// Clone returns an independent copy.
func (c *CameraConfig) Clone() *CameraConfig {
	clone := *c
	return &clone
}

// CameraUpdate carries an administrative change; nil fields are left untouched.
type CameraUpdate struct {
	Location     *string `json:"location,omitempty"`
	Title        *string `json:"title,omitempty"`
	Status       *string `json:"status,omitempty"`
	Rotation     *int    `json:"rotation,omitempty"`
	AddTitle     *bool   `json:"add_title,omitempty"`
	AddTimestamp *bool   `json:"add_timestamp,omitempty"`
	FontSize     *int    `json:"font_size,omitempty"`
	FontColor    *string `json:"font_color,omitempty"`
	FontOutline  *bool   `json:"font_outline,omitempty"`
}

// apply validates u and writes it onto c. Nothing is written when validation fails.
func (u CameraUpdate) apply(c *CameraConfig) error {
	var problems []string
	next := *c

	if u.Location != nil {
		next.Location = strings.TrimSpace(*u.Location)
	}
	if u.Title != nil {
		next.Title = strings.TrimSpace(*u.Title)
	}
	if u.Status != nil {
		status, err := ParseStatus(*u.Status)
		if err != nil {
			problems = append(problems, "status must be one of disabled, hidden, enabled")
		}
		next.Status = status
	}
	if u.Rotation != nil {
		rotation := Rotation(*u.Rotation)
		if !rotation.Valid() {
			problems = append(problems, "rotation must be one of 0, 90, 180, 270")
		}
		next.Rotation = rotation
	}
	if u.AddTitle != nil {
		next.AddTitle = *u.AddTitle
	}
	if u.AddTimestamp != nil {
		next.AddTimestamp = *u.AddTimestamp
	}
	if u.FontSize != nil {
		if *u.FontSize < 1 || *u.FontSize > MaxFontSize {
			problems = append(problems, fmt.Sprintf("font_size must be between 1 and %d", MaxFontSize))
		}
		next.FontSize = *u.FontSize
	}
	if u.FontColor != nil {
		col, err := ParseColor(*u.FontColor)
		if err != nil {
			problems = append(problems, "font_color must be #RGB or #RRGGBB")
		}
		next.FontColor = col
	}
	if u.FontOutline != nil {
		next.FontOutline = *u.FontOutline
	}

	if len(problems) > 0 {
		return NewValidationError(problems...)
	}
	*c = next
	return nil
}
