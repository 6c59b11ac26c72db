// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data
// shared by the dashboard handlers.

package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
)

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams extracts year and month from query parameters, using now
// as the default. Out-of-range months fall back to the current month.
func ParseMonthParams(query url.Values, now time.Time) MonthParams {
	params := MonthParams{
		Year:  now.Year(),
		Month: int(now.Month()),
	}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil && y >= 1900 && y <= 9999 {
			params.Year = y
		}
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil && m >= 1 && m <= 12 {
			params.Month = m
		}
	}

	return params
}

// Prev returns the previous month.
func (p MonthParams) Prev() MonthParams {
	if p.Month == 1 {
		return MonthParams{Year: p.Year - 1, Month: 12}
	}
	return MonthParams{Year: p.Year, Month: p.Month - 1}
}

// Next returns the following month.
func (p MonthParams) Next() MonthParams {
	if p.Month == 12 {
		return MonthParams{Year: p.Year + 1, Month: 1}
	}
	return MonthParams{Year: p.Year, Month: p.Month + 1}
}

// First and Last return the bounds of the month as YYYY-MM-DD.
func (p MonthParams) First() string {
	from, _ := core.MonthRange(p.Year, p.Month)
	return from.String()
}

func (p MonthParams) Last() string {
	_, to := core.MonthRange(p.Year, p.Month)
	return to.String()
}

func (p MonthParams) Label() string {
	return time.Month(p.Month).String() + " " + strconv.Itoa(p.Year)
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads at most maxBodyBytes of the body once.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = fmt.Errorf("request body larger than %d bytes", maxBodyBytes)
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	// Try JSON first if content looks like JSON
	if p.body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a sanitized string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Bool treats "on", "true" and "1" as set, matching checkbox submissions.
func (p *RequestBodyParser) Bool(key string) bool {
	switch strings.ToLower(p.Get(key)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

func (p *RequestBodyParser) ContentType() string {
	return p.contentType
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// Transaction builds a transaction from the dashboard form fields. A missing
// date means today.
func (p *RequestBodyParser) Transaction(today core.Date) (core.Transaction, error) {
	typ, err := core.ParseType(p.Get("type"))
	if err != nil {
		return core.Transaction{}, err
	}
	amount, err := core.ParseAmount(p.Get("amount"))
	if err != nil {
		return core.Transaction{}, err
	}
	date := today
	if v := p.Get("date"); v != "" {
		if date, err = core.ParseDate(v); err != nil {
			return core.Transaction{}, err
		}
	}
	return core.Transaction{
		Type:        typ,
		Amount:      amount,
		Category:    p.Get("category"),
		Description: p.Get("description"),
		Date:        date,
		Paid:        p.Bool("paid"),
	}, nil
}

// stringValue converts an interface{} to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
