package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/avalens/avalens/internal/domain"
)

// Content-safety patterns. Any match is a hard failure: definitive advice,
// template placeholders, and inflammatory language all block persistence in
// strict mode.
var (
	definitiveAdviceRe = regexp.MustCompile(`(?i)you should definitely|you must immediately|guaranteed to|risk-free|100% certain`)
	placeholderRe      = regexp.MustCompile(`(?i)protocol XYZ|token ABC|unnamed protocol|hypothetical`)
	inflammatoryRe     = regexp.MustCompile(`(?i)scam|rug pull|ponzi|illegal`)
)

var validPriorities = map[string]bool{"low": true, "medium": true, "high": true}

// ValidationResult collects structural errors and advisory warnings found in
// a generated insight. Warnings never block persistence; whether errors do
// depends on the configured validation mode.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// Valid reports whether the insight passed every hard check.
func (r ValidationResult) Valid() bool { return len(r.Errors) == 0 }

func (r *ValidationResult) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// ValidateInsight checks a generated insight for structural completeness and
// content safety.
func ValidateInsight(ins *domain.Insight) ValidationResult {
	var res ValidationResult

	if ins.Title == "" {
		res.errorf("title is empty")
	} else if len(ins.Title) > 150 {
		res.errorf("title exceeds 150 characters (%d)", len(ins.Title))
	}

	if n := len(ins.Summary); n < 50 || n > 500 {
		res.errorf("summary length %d outside 50-500", n)
	}
	if n := len(ins.DetailedAnalysis); n < 100 || n > 5000 {
		res.errorf("detailed analysis length %d outside 100-5000", n)
	}

	if !domain.ValidSeverity(ins.Severity) {
		res.errorf("unrecognized severity %q", ins.Severity)
	}

	if ins.Confidence < 0 || ins.Confidence > 1 {
		res.errorf("confidence %.2f outside [0, 1]", ins.Confidence)
	} else if ins.Confidence < 0.5 {
		res.warnf("low confidence %.2f", ins.Confidence)
	}

	if len(ins.Recommendations) == 0 {
		res.errorf("no recommendations")
	}
	for i, rec := range ins.Recommendations {
		if rec.Action == "" {
			res.errorf("recommendation %d has no action", i)
		}
		if rec.Description == "" {
			res.errorf("recommendation %d has no description", i)
		}
		if !validPriorities[rec.Priority] {
			res.errorf("recommendation %d has invalid priority %q", i, rec.Priority)
		}
	}

	if len(ins.Tags) == 0 {
		res.warnf("no tags")
	}

	parts := []string{ins.Title, ins.Summary, ins.DetailedAnalysis}
	for _, rec := range ins.Recommendations {
		parts = append(parts, rec.Action+" "+rec.Description)
	}
	full := strings.Join(parts, "\n")

	if m := definitiveAdviceRe.FindString(full); m != "" {
		res.errorf("definitive financial advice: %q", m)
	}
	if m := placeholderRe.FindString(full); m != "" {
		res.errorf("placeholder content: %q", m)
	}
	if m := inflammatoryRe.FindString(full); m != "" {
		res.errorf("inflammatory language: %q", m)
	}

	return res
}
