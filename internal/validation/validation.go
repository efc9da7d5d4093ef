package validation

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"
)

var (
	// ErrLocationEmpty is returned when the city is empty or whitespace-only after trim.
	ErrLocationEmpty = errors.New("location is required")
	// ErrLocationTooShort is returned when the city length is below the minimum.
	ErrLocationTooShort = errors.New("location too short")
	// ErrLocationTooLong is returned when the city length exceeds the maximum.
	ErrLocationTooLong = errors.New("location too long")
	// ErrLocationInvalidChars is returned when the city contains disallowed characters.
	ErrLocationInvalidChars = errors.New("location contains invalid characters")
	// ErrCoordinatesOutOfRange is returned for latitudes outside [-90, 90] or longitudes outside [-180, 180].
	ErrCoordinatesOutOfRange = errors.New("coordinates out of range")
	// ErrObjectKeyInvalid is returned for object keys that would not map to a single stable object.
	ErrObjectKeyInvalid = errors.New("invalid object key")
)

// ValidateLocation trims the input, enforces length bounds (minLen, maxLen in runes),
// and restricts to characters that appear in provider city names: letters (Unicode),
// digits, space, comma, hyphen, period and apostrophe ("St. John's").
func ValidateLocation(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrLocationEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrLocationTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrLocationTooLong
	}
	for _, c := range r {
		if !isAllowedLocationRune(c) {
			return "", ErrLocationInvalidChars
		}
	}
	return s, nil
}

func isAllowedLocationRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}

// ValidateCoordinates checks that lat/lon are finite and in range.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return fmt.Errorf("%w: not finite", ErrCoordinatesOutOfRange)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: lat %v", ErrCoordinatesOutOfRange, lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("%w: lon %v", ErrCoordinatesOutOfRange, lon)
	}
	return nil
}

// ValidateObjectKey rejects empty keys, keys ending in "/" (a prefix, not an object)
// and keys with empty or relative path segments.
func ValidateObjectKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty", ErrObjectKeyInvalid)
	}
	if strings.HasSuffix(key, "/") {
		return fmt.Errorf("%w: %q ends with /", ErrObjectKeyInvalid, key)
	}
	for _, seg := range strings.Split(strings.TrimPrefix(key, "/"), "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q has an empty or relative segment", ErrObjectKeyInvalid, key)
		}
	}
	return nil
}
