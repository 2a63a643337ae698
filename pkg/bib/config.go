package bib

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var rangeValidator = validator.New()

type rangesFile struct {
	Categories map[string]Range `yaml:"categories"`
}

// ParseRanges reads the compact form used in environment variables:
//
//	SHORT=5001-5999,LONG=10001-10999
func ParseRanges(raw string) (Ranges, error) {
	rs := Ranges{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, bounds, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not CATEGORY=LOWER-UPPER", ErrInvalidRange, part)
		}
		lo, hi, ok := strings.Cut(bounds, "-")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not CATEGORY=LOWER-UPPER", ErrInvalidRange, part)
		}
		lower, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("%w: lower bound of %q: %v", ErrInvalidRange, part, err)
		}
		upper, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("%w: upper bound of %q: %v", ErrInvalidRange, part, err)
		}
		c := ParseCategory(name)
		if _, dup := rs[c]; dup {
			return nil, fmt.Errorf("%w: category %s configured twice", ErrInvalidRange, c)
		}
		rs[c] = Range{Lower: lower, Upper: upper}
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

// LoadRangesFile reads ranges from a YAML file:
//
//	categories:
//	  SHORT: {lower: 5001, upper: 5999}
func LoadRangesFile(path string) (Ranges, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bib ranges file: %w", err)
	}
	var f rangesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidRange, path, err)
	}
	rs := make(Ranges, len(f.Categories))
	for name, r := range f.Categories {
		c := ParseCategory(name)
		if _, dup := rs[c]; dup {
			return nil, fmt.Errorf("%w: category %s configured twice", ErrInvalidRange, c)
		}
		rs[c] = r
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

// Validate checks every range and rejects overlapping categories, since a printed
// bib must identify one category unambiguously.
func (rs Ranges) Validate() error {
	if len(rs) == 0 {
		return fmt.Errorf("%w: no categories configured", ErrInvalidRange)
	}

	var errs []error
	cats := rs.Categories()
	for i, c := range cats {
		if c == "" {
			errs = append(errs, fmt.Errorf("%w: empty category name", ErrInvalidRange))
			continue
		}
		if err := rangeValidator.Struct(rs[c]); err != nil {
			errs = append(errs, fmt.Errorf("%w: category %s (%s): %v", ErrInvalidRange, c, rs[c], err))
			continue
		}
		for _, o := range cats[i+1:] {
			if rs[c].overlaps(rs[o]) {
				errs = append(errs, fmt.Errorf("%w: categories %s and %s overlap", ErrInvalidRange, c, o))
			}
		}
	}
	return errors.Join(errs...)
}
