package models

import (
	"fmt"
	"strings"
)

// TravelMode is the means of travel for a segment
type TravelMode string

const (
	ModeWalk    TravelMode = "walk"
	ModeCar     TravelMode = "car"
	ModeTaxi    TravelMode = "taxi"
	ModeBus     TravelMode = "bus"
	ModeTrain   TravelMode = "train"
	ModeSubway  TravelMode = "subway"
	ModeTransit TravelMode = "transit"
	ModeBicycle TravelMode = "bicycle"
)

var supportedModes = map[TravelMode]bool{
	ModeWalk:    true,
	ModeCar:     true,
	ModeTaxi:    true,
	ModeBus:     true,
	ModeTrain:   true,
	ModeSubway:  true,
	ModeTransit: true,
	ModeBicycle: true,
}

// Supported reports whether the mode is in the supported set
func (m TravelMode) Supported() bool {
	return supportedModes[m]
}

// IsTransit reports whether the mode belongs to the public transit family
func (m TravelMode) IsTransit() bool {
	switch m {
	case ModeBus, ModeTrain, ModeSubway, ModeTransit:
		return true
	}
	return false
}

// ParseTravelMode parses a mode name, case-insensitively
func ParseTravelMode(s string) (TravelMode, error) {
	m := TravelMode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Supported() {
		return "", fmt.Errorf("unsupported travel mode %q", s)
	}
	return m, nil
}
