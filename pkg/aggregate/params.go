package aggregate

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/eunmann/s3-user-agg/pkg/table"
)

// ErrBadParam indicates a filter parameter that cannot be converted.
var ErrBadParam = errors.New("invalid filter parameter")

// Filter parameter names.
const (
	ParamImageExists = "image_exists"
	ParamMinAge      = "min_age"
	ParamMaxAge      = "max_age"

	prefixEqual  = "eq."
	prefixMin    = "min."
	prefixMax    = "max."
	prefixExists = "exists."
)

// ParseParams converts name/value filter parameters into predicates.
//
// Recognized names:
//
//	image_exists=True|False   user has (or lacks) an image
//	min_age=N, max_age=N      non-negative ages in years, from birthts at now
//	eq.<column>=V             column equals V
//	min.<column>=N            numeric column >= N
//	max.<column>=N            numeric column <= N
//	exists.<column>=True|False column is present (or missing)
//
// Predicates are returned in parameter-name order.
func ParseParams(params map[string]string, now time.Time) ([]Predicate, error) {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	minAge, maxAge := -1.0, -1.0
	var preds []Predicate
	for _, name := range names {
		val := params[name]
		switch {
		case name == ParamImageExists:
			b, err := parseBool(name, val)
			if err != nil {
				return nil, err
			}
			preds = append(preds, ImageExists(b))
		case name == ParamMinAge:
			f, err := parseNonNegFloat(name, val)
			if err != nil {
				return nil, err
			}
			minAge = f
		case name == ParamMaxAge:
			f, err := parseNonNegFloat(name, val)
			if err != nil {
				return nil, err
			}
			maxAge = f
		case strings.HasPrefix(name, prefixEqual):
			col, err := columnOf(name, prefixEqual)
			if err != nil {
				return nil, err
			}
			preds = append(preds, Equal(col, table.ParseValue(val)))
		case strings.HasPrefix(name, prefixMin):
			col, f, err := columnAndFloat(name, prefixMin, val)
			if err != nil {
				return nil, err
			}
			preds = append(preds, AtLeast(col, f))
		case strings.HasPrefix(name, prefixMax):
			col, f, err := columnAndFloat(name, prefixMax, val)
			if err != nil {
				return nil, err
			}
			preds = append(preds, AtMost(col, f))
		case strings.HasPrefix(name, prefixExists):
			col, err := columnOf(name, prefixExists)
			if err != nil {
				return nil, err
			}
			b, err := parseBool(name, val)
			if err != nil {
				return nil, err
			}
			if b {
				preds = append(preds, Exists(col))
			} else {
				preds = append(preds, Missing(col))
			}
		default:
			return nil, fmt.Errorf("%w: unknown parameter %q", ErrBadParam, name)
		}
	}

	if minAge >= 0 || maxAge >= 0 {
		preds = append(preds, AgeRange(now, minAge, maxAge))
	}
	return preds, nil
}

// ParseColumns splits a comma-separated column list, dropping blanks.
func ParseColumns(s string) []string {
	var cols []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}

func parseBool(name, val string) (bool, error) {
	switch val {
	case "True", "true":
		return true, nil
	case "False", "false":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s must be \"True\" or \"False\", got %q", ErrBadParam, name, val)
	}
}

func parseNonNegFloat(name, val string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrBadParam, name, err)
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s must be a non-negative number, got %g", ErrBadParam, name, f)
	}
	return f, nil
}

func columnOf(name, prefix string) (string, error) {
	col := strings.TrimPrefix(name, prefix)
	if col == "" {
		return "", fmt.Errorf("%w: %q names no column", ErrBadParam, name)
	}
	return col, nil
}

func columnAndFloat(name, prefix, val string) (string, float64, error) {
	col, err := columnOf(name, prefix)
	if err != nil {
		return "", 0, err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %s: %w", ErrBadParam, name, err)
	}
	if math.IsNaN(f) {
		return "", 0, fmt.Errorf("%w: %s is NaN", ErrBadParam, name)
	}
	return col, f, nil
}
