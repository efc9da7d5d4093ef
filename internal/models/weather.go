package models

import "time"

// WeatherRecord is one flattened observation. Field order matches the CSV
// columns and the warehouse table schema.
type WeatherRecord struct {
	City        string    `json:"city" bigquery:"city"`
	Timestamp   time.Time `json:"timestamp" bigquery:"timestamp"`
	Temperature float64   `json:"temperature" bigquery:"temperature"`
	Humidity    int       `json:"humidity" bigquery:"humidity"`
	Description string    `json:"description" bigquery:"description"`
}

// Columns returns the tabular header for WeatherRecord.
func Columns() []string {
	return []string{"city", "timestamp", "temperature", "humidity", "description"}
}

// Location identifies the place to fetch. Coordinates take precedence over City when both are set.
type Location struct {
	City    string   `json:"city,omitempty"`
	Country string   `json:"country,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
}

// HasCoordinates reports whether both Lat and Lon are set.
func (l Location) HasCoordinates() bool {
	return l.Lat != nil && l.Lon != nil
}

// Query returns the provider "q" value, e.g. "Athens,GR".
func (l Location) Query() string {
	if l.Country == "" {
		return l.City
	}
	return l.City + "," + l.Country
}
