package transform

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/weather-etl/internal/models"
)

func decode(t *testing.T, body string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var payload map[string]any
	require.NoError(t, dec.Decode(&payload))
	return payload
}

func TestTransform_WellFormedPayload(t *testing.T) {
	payload := decode(t, `{"main":{"temp":21.5,"humidity":60},"weather":[{"description":"clear sky"}],"dt":1700000000,"name":"Athens"}`)

	got, err := Transform(payload)
	require.NoError(t, err)

	assert.Equal(t, models.WeatherRecord{
		City:        "Athens",
		Timestamp:   time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC),
		Temperature: 21.5,
		Humidity:    60,
		Description: "clear sky",
	}, got)
}

func TestTransform_FullProviderPayload(t *testing.T) {
	payload := decode(t, `{
		"coord": {"lon": 22.9439, "lat": 40.6403},
		"weather": [
			{"id": 803, "main": "Clouds", "description": "broken clouds", "icon": "04d"},
			{"id": 500, "main": "Rain", "description": "light rain", "icon": "10d"}
		],
		"base": "stations",
		"main": {"temp": 14.02, "feels_like": 13.1, "pressure": 1016, "humidity": 71},
		"wind": {"speed": 4.12, "deg": 300},
		"dt": 1712838000,
		"sys": {"country": "GR"},
		"timezone": 10800,
		"name": "Thessaloniki",
		"cod": 200
	}`)

	got, err := Transform(payload)
	require.NoError(t, err)

	assert.Equal(t, "Thessaloniki", got.City)
	assert.Equal(t, 14.02, got.Temperature)
	assert.Equal(t, 71, got.Humidity)
	assert.Equal(t, "broken clouds", got.Description)
	assert.Equal(t, time.UTC, got.Timestamp.Location())
	assert.Equal(t, int64(1712838000), got.Timestamp.Unix())
}

func TestTransform_WeatherAsObject(t *testing.T) {
	payload := decode(t, `{"main":{"temp":3,"humidity":90},"weather":{"description":"mist"},"dt":1700000000,"name":"London"}`)

	got, err := Transform(payload)
	require.NoError(t, err)
	assert.Equal(t, "mist", got.Description)
	assert.Equal(t, 3.0, got.Temperature)
}

func TestTransform_Coercion(t *testing.T) {
	tests := []struct {
		name     string
		payload  map[string]any
		wantTemp float64
		wantHum  int
	}{
		{
			name: "native float64 values",
			payload: map[string]any{
				"name": "Athens", "dt": float64(1700000000),
				"main":    map[string]any{"temp": 21.5, "humidity": float64(60)},
				"weather": []any{map[string]any{"description": "clear sky"}},
			},
			wantTemp: 21.5,
			wantHum:  60,
		},
		{
			name: "numeric strings",
			payload: map[string]any{
				"name": "Athens", "dt": "1700000000",
				"main":    map[string]any{"temp": "-4.25", "humidity": "55"},
				"weather": []any{map[string]any{"description": "snow"}},
			},
			wantTemp: -4.25,
			wantHum:  55,
		},
		{
			name: "integral float humidity",
			payload: map[string]any{
				"name": "Athens", "dt": json.Number("1700000000"),
				"main":    map[string]any{"temp": json.Number("20"), "humidity": json.Number("60.0")},
				"weather": []any{map[string]any{"description": "clear sky"}},
			},
			wantTemp: 20,
			wantHum:  60,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transform(tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTemp, got.Temperature)
			assert.Equal(t, tt.wantHum, got.Humidity)
			assert.Equal(t, int64(1700000000), got.Timestamp.Unix())
		})
	}
}

// TestTransform_SchemaErrors verifies that every malformed payload yields ErrSchema and
// a zero record, never a partially filled one.
func TestTransform_SchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"missing main", `{"weather":[{"description":"clear sky"}],"dt":1700000000,"name":"Athens"}`, "main.temp is missing"},
		{"missing name", `{"main":{"temp":21.5,"humidity":60},"weather":[{"description":"clear sky"}],"dt":1700000000}`, "name is missing"},
		{"empty name", `{"main":{"temp":21.5,"humidity":60},"weather":[{"description":"clear sky"}],"dt":1700000000,"name":"  "}`, "name is empty"},
		{"missing dt", `{"main":{"temp":21.5,"humidity":60},"weather":[{"description":"clear sky"}],"name":"Athens"}`, "dt is missing"},
		{"null temp", `{"main":{"temp":null,"humidity":60},"weather":[{"description":"clear sky"}],"dt":1700000000,"name":"Athens"}`, "main.temp is missing"},
		{"main not object", `{"main":"hot","weather":[{"description":"clear sky"}],"dt":1700000000,"name":"Athens"}`, "not an object"},
		{"temp not numeric", `{"main":{"temp":"warm","humidity":60},"weather":[{"description":"clear sky"}],"dt":1700000000,"name":"Athens"}`, "cannot convert"},
		{"temp boolean", `{"main":{"temp":true,"humidity":60},"weather":[{"description":"clear sky"}],"dt":1700000000,"name":"Athens"}`, "a boolean is not a number"},
		{"fractional humidity", `{"main":{"temp":21.5,"humidity":60.5},"weather":[{"description":"clear sky"}],"dt":1700000000,"name":"Athens"}`, "not an integer"},
		{"dt past year 9999", `{"main":{"temp":21.5,"humidity":60},"weather":[{"description":"clear sky"}],"dt":1e19,"name":"Athens"}`, "after 9999-12-31"},
		{"negative dt", `{"main":{"temp":21.5,"humidity":60},"weather":[{"description":"clear sky"}],"dt":-5,"name":"Athens"}`, "negative unix time"},
		{"empty weather list", `{"main":{"temp":21.5,"humidity":60},"weather":[],"dt":1700000000,"name":"Athens"}`, "empty list"},
		{"weather is string", `{"main":{"temp":21.5,"humidity":60},"weather":"sunny","dt":1700000000,"name":"Athens"}`, "not a list"},
		{"missing description", `{"main":{"temp":21.5,"humidity":60},"weather":[{"main":"Clear"}],"dt":1700000000,"name":"Athens"}`, "weather[0].description is missing"},
		{"description not string", `{"main":{"temp":21.5,"humidity":60},"weather":[{"description":7}],"dt":1700000000,"name":"Athens"}`, "want string"},
		{"name not string", `{"main":{"temp":21.5,"humidity":60},"weather":[{"description":"clear sky"}],"dt":1700000000,"name":42}`, "want string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transform(decode(t, tt.body))
			require.ErrorIs(t, err, ErrSchema)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Equal(t, models.WeatherRecord{}, got)
		})
	}
}

func TestTransformWith_AllowEmptyCity(t *testing.T) {
	body := `{"main":{"temp":21.5,"humidity":60},"weather":[{"description":"clear sky"}],"dt":1700000000,"name":""}`

	got, err := TransformWith(decode(t, body), Options{AllowEmptyCity: true})
	require.NoError(t, err)
	assert.Equal(t, "", got.City)
	assert.Equal(t, 21.5, got.Temperature)

	_, err = TransformWith(decode(t, `{"main":{"temp":21.5,"humidity":60},"weather":[{"description":"clear sky"}],"dt":1700000000}`), Options{AllowEmptyCity: true})
	require.ErrorIs(t, err, ErrSchema, "the name key must still be present")
}

func TestTransform_NilPayload(t *testing.T) {
	got, err := Transform(nil)
	require.ErrorIs(t, err, ErrSchema)
	assert.Zero(t, got)
}
