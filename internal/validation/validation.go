package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hyperengineering/shopfilter/internal/types"
)

// Request limits.
const (
	MaxMessageLength  = 2000
	MaxHistoryEntries = 50
	MaxSelectedChips  = 100
	MaxResultLimit    = 500
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// ValidateUTF8 returns an error if the value is not valid UTF-8.
func ValidateUTF8(field, value string) *ValidationError {
	if !utf8.ValidString(value) {
		return &ValidationError{
			Field:   field,
			Message: "must be valid UTF-8",
		}
	}
	return nil
}

// ValidateNoNullBytes returns an error if the value contains null bytes.
func ValidateNoNullBytes(field, value string) *ValidationError {
	if strings.Contains(value, "\x00") {
		return &ValidationError{
			Field:   field,
			Message: "must not contain null bytes",
		}
	}
	return nil
}

// ValidateMaxLength returns an error if the value exceeds max runes.
func ValidateMaxLength(field, value string, max int) *ValidationError {
	if utf8.RuneCountInString(value) > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", max),
		}
	}
	return nil
}

// ValidateRequired returns an error if the value is empty or whitespace-only.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ValidateEnum returns an error if the value is not in the allowed list.
func ValidateEnum(field, value string, allowed []string) *ValidationError {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidateRange returns an error if the value is outside [min, max].
func ValidateRange(field string, value, min, max float64) *ValidationError {
	if value < min || value > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be between %.1f and %.1f", min, max),
		}
	}
	return nil
}

// ValidateTurnRequest checks request-level fields of a conversational turn.
func ValidateTurnRequest(req types.TurnRequest) []ValidationError {
	var c Collector

	validateMessage(&c, "message", req.Message)

	if len(req.ConversationHistory) > MaxHistoryEntries {
		c.Add(&ValidationError{
			Field:   "conversationHistory",
			Message: fmt.Sprintf("exceeds maximum of %d entries", MaxHistoryEntries),
		})
	}
	for i, m := range req.ConversationHistory {
		field := fmt.Sprintf("conversationHistory[%d]", i)
		c.Add(ValidateEnum(field+".role", m.Role, []string{types.RoleUser, types.RoleAssistant}))
		c.Add(ValidateMaxLength(field+".content", m.Content, MaxMessageLength))
		c.Add(ValidateUTF8(field+".content", m.Content))
	}

	if len(req.SelectedChips) > MaxSelectedChips {
		c.Add(&ValidationError{
			Field:   "selectedChips",
			Message: fmt.Sprintf("exceeds maximum of %d chips", MaxSelectedChips),
		})
	}

	if req.CurrentFilters != nil {
		validateFilterState(&c, "currentFilters", *req.CurrentFilters)
	}

	return c.Errors()
}

// ValidateSessionTurnRequest checks a message sent to a held session.
func ValidateSessionTurnRequest(req types.SessionTurnRequest) []ValidationError {
	var c Collector
	validateMessage(&c, "message", req.Message)
	if req.Version < 0 {
		c.Add(&ValidationError{Field: "version", Message: "must not be negative"})
	}
	return c.Errors()
}

// ValidateFilterRequest checks a product filter request.
func ValidateFilterRequest(req types.FilterRequest) []ValidationError {
	var c Collector
	validateFilterState(&c, "filters", req.Filters)
	validateLimit(&c, req.Limit)
	return c.Errors()
}

// ValidatePreviewRequest checks a chip preview request.
func ValidatePreviewRequest(req types.PreviewRequest) []ValidationError {
	var c Collector
	if len(req.Chips) > MaxSelectedChips {
		c.Add(&ValidationError{
			Field:   "chips",
			Message: fmt.Sprintf("exceeds maximum of %d chips", MaxSelectedChips),
		})
	}
	validateLimit(&c, req.Limit)
	return c.Errors()
}

// ValidateAvailabilityRequest checks a chip availability request.
func ValidateAvailabilityRequest(req types.AvailabilityRequest) []ValidationError {
	var c Collector
	validateFilterState(&c, "filters", req.Filters)
	if len(req.Candidates) > MaxSelectedChips {
		c.Add(&ValidationError{
			Field:   "candidates",
			Message: fmt.Sprintf("exceeds maximum of %d chips", MaxSelectedChips),
		})
	}
	if len(req.Selected) > MaxSelectedChips {
		c.Add(&ValidationError{
			Field:   "selected",
			Message: fmt.Sprintf("exceeds maximum of %d chips", MaxSelectedChips),
		})
	}
	return c.Errors()
}

func validateMessage(c *Collector, field, msg string) {
	c.Add(ValidateRequired(field, msg))
	c.Add(ValidateMaxLength(field, msg, MaxMessageLength))
	c.Add(ValidateUTF8(field, msg))
	c.Add(ValidateNoNullBytes(field, msg))
}

func validateFilterState(c *Collector, prefix string, f types.FilterState) {
	if f.MinPrice != nil {
		c.Add(ValidateRange(prefix+".minPrice", float64(*f.MinPrice), 0, maxPrice))
	}
	if f.MaxPrice != nil {
		c.Add(ValidateRange(prefix+".maxPrice", float64(*f.MaxPrice), 0, maxPrice))
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		c.Add(&ValidationError{
			Field:   prefix + ".minPrice",
			Message: "must not exceed maxPrice",
		})
	}
}

func validateLimit(c *Collector, limit int) {
	if limit < 0 || limit > MaxResultLimit {
		c.Add(&ValidationError{
			Field:   "limit",
			Message: fmt.Sprintf("must be between 0 and %d", MaxResultLimit),
		})
	}
}

// maxPrice is the largest price accepted from clients.
const maxPrice = 1e9
