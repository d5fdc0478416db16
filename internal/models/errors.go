package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfiguration marks errors raised before a simulation starts
	ErrConfiguration = errors.New("configuration error")

	// ErrDataQuality marks input data the engine refuses to simulate over
	ErrDataQuality = errors.New("data quality error")
)

// ConfigError reports an invalid or missing configuration value or input column
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// DataQualityError reports a bad row, identified by date and symbol where known
type DataQualityError struct {
	Date   time.Time
	Symbol string
	Reason string
}

func (e *DataQualityError) Error() string {
	switch {
	case e.Symbol != "" && !e.Date.IsZero():
		return fmt.Sprintf("data quality error: %s %s: %s", e.Date.Format(DateLayout), e.Symbol, e.Reason)
	case e.Symbol != "":
		return fmt.Sprintf("data quality error: %s: %s", e.Symbol, e.Reason)
	case !e.Date.IsZero():
		return fmt.Sprintf("data quality error: %s: %s", e.Date.Format(DateLayout), e.Reason)
	}
	return "data quality error: " + e.Reason
}

func (e *DataQualityError) Unwrap() error { return ErrDataQuality }
