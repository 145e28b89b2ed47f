package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const dateOnlyLayout = "2006-01-02"

func parseOptionalBool(value string) (*bool, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalSnowflakeID(value string) (*snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed <= 0 {
		return nil, errors.New("invalid_snowflake_id")
	}
	return &parsed, nil
}

// parseOptionalDate accepts YYYY-MM-DD or RFC3339 and returns UTC midnight.
func parseOptionalDate(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(dateOnlyLayout, trimmed); err == nil {
		return &parsed, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		parsed = parsed.UTC()
		day := time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
		return &day, nil
	}
	return nil, errors.New("invalid_date")
}

func parseOptionalDecimal(value *string) (*decimal.Decimal, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	parsed, err := decimal.NewFromString(strings.TrimSpace(*value))
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// pathID parses a snowflake path parameter, reporting failures as a
// validation error on field.
func pathID(c *gin.Context, field string) (snowflake.ID, bool) {
	id, err := parseOptionalSnowflakeID(c.Param(field))
	if err != nil || id == nil {
		AbortWithError(c, newValidationError(field, "invalid_id", "invalid id"))
		return 0, false
	}
	return *id, true
}

// yearParam defaults to the current calendar year.
func yearParam(c *gin.Context, now time.Time) (int, bool) {
	raw := strings.TrimSpace(c.Query("year"))
	if raw == "" {
		return now.Year(), true
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		AbortWithError(c, newValidationError("year", "invalid_year", "invalid year"))
		return 0, false
	}
	return year, true
}
