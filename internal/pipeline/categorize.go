package pipeline

import (
	"errors"

	"github.com/kjstillabower/weather-etl/internal/client"
	"github.com/kjstillabower/weather-etl/internal/localstore"
	"github.com/kjstillabower/weather-etl/internal/sink"
	"github.com/kjstillabower/weather-etl/internal/transform"
)

// Categories for errors raised after the fetch stage. Fetch errors use client.ErrorCategory values.
const (
	ErrorCategorySchema client.ErrorCategory = "schema"
	ErrorCategoryIO     client.ErrorCategory = "io"
	ErrorCategoryUpload client.ErrorCategory = "upload"
	ErrorCategoryLoad   client.ErrorCategory = "load"
)

// CategorizeError maps any pipeline error to a stable metric label.
func CategorizeError(err error) client.ErrorCategory {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, transform.ErrSchema):
		return ErrorCategorySchema
	case errors.Is(err, localstore.ErrIO):
		return ErrorCategoryIO
	case errors.Is(err, sink.ErrUpload):
		return ErrorCategoryUpload
	case errors.Is(err, sink.ErrLoad):
		return ErrorCategoryLoad
	}
	return client.CategorizeError(err)
}
