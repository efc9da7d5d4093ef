// Package transform flattens a current-weather payload into a models.WeatherRecord.
package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/weather-etl/internal/models"
)

// ErrSchema means a required key path is absent, null, of the wrong type, or not coercible.
var ErrSchema = errors.New("schema error")

// Key paths read from the provider payload.
const (
	PathCity        = "name"
	PathTimestamp   = "dt"
	PathTemperature = "main.temp"
	PathHumidity    = "main.humidity"
	PathDescription = "weather[0].description"
)

// Options relaxes individual field checks.
type Options struct {
	// AllowEmptyCity accepts "name":"". The provider sends that for coordinates
	// with no nearby populated place, so it only makes sense for lat/lon lookups.
	AllowEmptyCity bool
}

// Transform builds exactly one record from payload. On error the zero record is returned.
func Transform(payload map[string]any) (models.WeatherRecord, error) {
	return TransformWith(payload, Options{})
}

// TransformWith is Transform with relaxed checks from opts.
func TransformWith(payload map[string]any, opts Options) (models.WeatherRecord, error) {
	if payload == nil {
		return models.WeatherRecord{}, fmt.Errorf("%w: payload is empty", ErrSchema)
	}

	city, err := stringAt(payload, PathCity)
	if err != nil {
		return models.WeatherRecord{}, err
	}
	if strings.TrimSpace(city) == "" && !opts.AllowEmptyCity {
		return models.WeatherRecord{}, fmt.Errorf("%w: %s is empty", ErrSchema, PathCity)
	}

	ts, err := timestampAt(payload, PathTimestamp)
	if err != nil {
		return models.WeatherRecord{}, err
	}

	temp, err := floatAt(payload, PathTemperature)
	if err != nil {
		return models.WeatherRecord{}, err
	}

	humidity, err := intAt(payload, PathHumidity)
	if err != nil {
		return models.WeatherRecord{}, err
	}

	desc, err := stringAt(payload, PathDescription)
	if err != nil {
		return models.WeatherRecord{}, err
	}

	return models.WeatherRecord{
		City:        city,
		Timestamp:   ts,
		Temperature: temp,
		Humidity:    humidity,
		Description: desc,
	}, nil
}

// lookup resolves a dotted key path. A segment suffixed with [0] selects the first
// element of a list; when the value is a single object it is used as-is, since the
// provider has been seen to return "weather" either way.
func lookup(payload map[string]any, path string) (any, error) {
	var cur any = payload
	for _, seg := range strings.Split(path, ".") {
		key, first := strings.CutSuffix(seg, "[0]")

		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s: parent of %q is %s, not an object", ErrSchema, path, key, typeName(cur))
		}
		v, ok := obj[key]
		if !ok || v == nil {
			return nil, fmt.Errorf("%w: %s is missing", ErrSchema, path)
		}

		if first {
			switch list := v.(type) {
			case []any:
				if len(list) == 0 {
					return nil, fmt.Errorf("%w: %s: %q is an empty list", ErrSchema, path, key)
				}
				v = list[0]
			case map[string]any:
			default:
				return nil, fmt.Errorf("%w: %s: %q is %s, not a list", ErrSchema, path, key, typeName(v))
			}
		}
		cur = v
	}
	if cur == nil {
		return nil, fmt.Errorf("%w: %s is missing", ErrSchema, path)
	}
	return cur, nil
}

func stringAt(payload map[string]any, path string) (string, error) {
	v, err := lookup(payload, path)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %s, want string", ErrSchema, path, typeName(v))
	}
	return s, nil
}

func floatAt(payload map[string]any, path string) (float64, error) {
	v, err := lookup(payload, path)
	if err != nil {
		return 0, err
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrSchema, path, err)
	}
	return f, nil
}

func intAt(payload map[string]any, path string) (int, error) {
	f, err := floatAt(payload, path)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("%w: %s: %v is not an integer", ErrSchema, path, f)
	}
	return int(f), nil
}

// maxUnixSeconds is 9999-12-31T23:59:59Z, the last instant a warehouse TIMESTAMP can hold.
const maxUnixSeconds = 253402300799

func timestampAt(payload map[string]any, path string) (time.Time, error) {
	f, err := floatAt(payload, path)
	if err != nil {
		return time.Time{}, err
	}
	if f < 0 {
		return time.Time{}, fmt.Errorf("%w: %s: negative unix time %v", ErrSchema, path, f)
	}
	if f > maxUnixSeconds {
		return time.Time{}, fmt.Errorf("%w: %s: unix time %v is after 9999-12-31", ErrSchema, path, f)
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}

func toFloat(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", n.String())
		}
		f = parsed
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to a number", n)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("%s is not a number", typeName(v))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v is not finite", f)
	}
	return f, nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "an object"
	case []any:
		return "a list"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case json.Number, float64, float32, int, int64:
		return "a number"
	}
	return fmt.Sprintf("%T", v)
}
