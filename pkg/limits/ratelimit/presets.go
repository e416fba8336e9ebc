package ratelimit

import (
	"fmt"
	"sort"
	"time"
)

// Named presets. They carry no special-cased logic.
var (
	// Strict admits 10 requests per minute.
	Strict = Config{
		Window:      time.Minute,
		MaxRequests: 10,
		Message:     "Too many requests, please slow down.",
	}

	// Standard admits 100 requests per minute.
	Standard = Config{
		Window:      time.Minute,
		MaxRequests: 100,
		Message:     "Too many requests, please try again later.",
	}

	// Auth admits 5 failed attempts per 15 minutes. Successful attempts
	// are not counted.
	Auth = Config{
		Window:                 15 * time.Minute,
		MaxRequests:            5,
		Message:                "Too many failed attempts, please try again later.",
		SkipSuccessfulRequests: true,
	}

	// Booking admits 20 reservation attempts per minute.
	Booking = Config{
		Window:      time.Minute,
		MaxRequests: 20,
		Message:     "Too many booking attempts, please wait before trying again.",
	}

	// Lenient admits 1000 requests per minute for cheap read endpoints.
	Lenient = Config{
		Window:      time.Minute,
		MaxRequests: 1000,
		Message:     "Too many requests, please try again later.",
	}
)

var presets = map[string]Config{
	"strict":   Strict,
	"standard": Standard,
	"auth":     Auth,
	"booking":  Booking,
	"lenient":  Lenient,
}

// Preset returns the named preset.
func Preset(name string) (Config, error) {
	cfg, ok := presets[name]
	if !ok {
		return Config{}, fmt.Errorf("unknown rate limit preset %q", name)
	}
	return cfg, nil
}

// PresetNames returns the built-in preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
