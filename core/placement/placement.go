// Package placement keeps the layout offsets each chat composes with and the
// named presets it has saved.
package placement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/m3rciful/mergebot/core/compositor"
)

const (
	// MaxPresets caps the presets one chat may keep.
	MaxPresets = 20
	// MaxNameRunes caps the length of a preset name.
	MaxNameRunes = 32
)

// Offset keys accepted by With.
const (
	KeyImageX = "image_x"
	KeyImageY = "image_y"
	KeyTextX  = "text_x"
	KeyTextY  = "text_y"
)

// Keys lists the offset keys in display order.
var Keys = []string{KeyImageX, KeyImageY, KeyTextX, KeyTextY}

var (
	// ErrNotFound reports a preset that does not exist.
	ErrNotFound = errors.New("preset not found")
	// ErrInvalidName reports a blank, overlong or non-printable preset name.
	ErrInvalidName = errors.New("invalid preset name")
	// ErrTooManyPresets reports that a chat already holds MaxPresets presets.
	ErrTooManyPresets = errors.New("too many presets")
	// ErrUnknownKey reports an offset key outside Keys.
	ErrUnknownKey = errors.New("unknown offset key")
)

// Preset is a named set of offsets.
type Preset struct {
	Name string `db:"name"`
	compositor.Offsets
	UpdatedAt time.Time `db:"updated_at"`
}

// Store persists current offsets and presets per chat.
type Store interface {
	// Offsets returns the chat's current offsets; zero when never set.
	Offsets(ctx context.Context, chatID int64) (compositor.Offsets, error)
	SetOffsets(ctx context.Context, chatID int64, off compositor.Offsets) error
	// SavePreset creates or overwrites a preset. created is false on overwrite.
	SavePreset(ctx context.Context, chatID int64, name string, off compositor.Offsets) (created bool, err error)
	Preset(ctx context.Context, chatID int64, name string) (Preset, error)
	// Presets lists the chat's presets ordered by name.
	Presets(ctx context.Context, chatID int64) ([]Preset, error)
	DeletePreset(ctx context.Context, chatID int64, name string) error
}

// NormalizeName trims name and checks it can be stored.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", ErrInvalidName
	case utf8.RuneCountInString(name) > MaxNameRunes:
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidName, MaxNameRunes)
	case strings.IndexFunc(name, func(r rune) bool { return !unicode.IsPrint(r) }) >= 0:
		return "", fmt.Errorf("%w: non-printable character", ErrInvalidName)
	}
	return name, nil
}

// With returns off with the component named key set to v.
func With(off compositor.Offsets, key string, v int) (compositor.Offsets, error) {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case KeyImageX:
		off.ImageX = v
	case KeyImageY:
		off.ImageY = v
	case KeyTextX:
		off.TextX = v
	case KeyTextY:
		off.TextY = v
	default:
		return off, fmt.Errorf("%w %q", ErrUnknownKey, key)
	}
	return off, off.Validate()
}

// Apply copies a preset into the chat's current offsets.
func Apply(ctx context.Context, s Store, chatID int64, name string) (Preset, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return Preset{}, err
	}
	p, err := s.Preset(ctx, chatID, name)
	if err != nil {
		return Preset{}, err
	}
	if err := s.SetOffsets(ctx, chatID, p.Offsets); err != nil {
		return Preset{}, err
	}
	return p, nil
}

// Describe renders offsets as directions, e.g. "image 20px right, 5px up".
func Describe(off compositor.Offsets) string {
	image := axis(off.ImageX, "left", "right") + axis(off.ImageY, "up", "down")
	text := axis(off.TextX, "left", "right") + axis(off.TextY, "up", "down")
	if image == "" {
		image = ", centered"
	}
	if text == "" {
		text = ", default"
	}
	return "image" + strings.TrimPrefix(image, ",") + "; text" + strings.TrimPrefix(text, ",")
}

func axis(v int, neg, pos string) string {
	switch {
	case v < 0:
		return fmt.Sprintf(", %dpx %s", -v, neg)
	case v > 0:
		return fmt.Sprintf(", %dpx %s", v, pos)
	default:
		return ""
	}
}
