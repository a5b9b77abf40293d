package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/i474232898/weather-ensemble/internal/weather"
)

// Key parts are joined with the ASCII unit separator so that city names may
// contain any printable character.
const sep = "\x1f"

const (
	prefixObservation = "obs"
	prefixWeights     = "weights"
	prefixProduced    = "produced"
	prefixErrors      = "errors"
)

func join(parts ...string) string {
	return strings.Join(parts, sep)
}

func distancePart(d int) string {
	return fmt.Sprintf("%04d", d)
}

// seriesKey identifies one source's observations at one forecast distance.
func seriesKey(loc weather.Location, source string, distance int) string {
	return join(prefixObservation, loc.City, loc.Country, distancePart(distance), source)
}

// modelKey identifies the model outputs of one (location, distance).
func modelKey(loc weather.Location, distance int) string {
	return join(loc.City, loc.Country, distancePart(distance))
}

// locationPrefix covers every observation series of loc.
func locationPrefix(loc weather.Location) string {
	return join(prefixObservation, loc.City, loc.Country) + sep
}

// distanceOf extracts the forecast distance from a key under locationPrefix.
func distanceOf(key, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return 0, false
	}
	part, _, _ := strings.Cut(rest, sep)
	d, err := strconv.Atoi(part)
	return d, err == nil
}
