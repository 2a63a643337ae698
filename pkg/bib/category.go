package bib

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Category names a race distance. Each category owns one bib range.
type Category string

const (
	Short Category = "SHORT"
	Long  Category = "LONG"
)

// ParseCategory normalizes user input ("short", " Long ") to a Category.
// It does not check that the category is configured.
func ParseCategory(s string) Category {
	return Category(strings.ToUpper(strings.TrimSpace(s)))
}

// MaxValue is the largest bib ParseValue accepts (18 digits).
const MaxValue = 999_999_999_999_999_999

// Range is an inclusive [Lower, Upper] interval of bib values.
type Range struct {
	Lower int `yaml:"lower" json:"lower" validate:"min=0,max=999999999999999999"`
	Upper int `yaml:"upper" json:"upper" validate:"gtefield=Lower,max=999999999999999999"`
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v int) bool {
	return v >= r.Lower && v <= r.Upper
}

// Size is the number of values in the range. It cannot overflow for a validated range.
func (r Range) Size() int {
	return r.Upper - r.Lower + 1
}

func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.Lower, r.Upper)
}

func (r Range) overlaps(o Range) bool {
	return r.Lower <= o.Upper && o.Lower <= r.Upper
}

// Identifier is an allocated bib. Its serialized form is the plain decimal value.
type Identifier struct {
	Category Category
	Value    int
}

func (id Identifier) String() string {
	return strconv.Itoa(id.Value)
}

// Ranges is the category configuration supplied at startup.
type Ranges map[Category]Range

// DefaultRanges returns SHORT 5001-5999 and LONG 10001-10999.
func DefaultRanges() Ranges {
	return Ranges{
		Short: {Lower: 5001, Upper: 5999},
		Long:  {Lower: 10001, Upper: 10999},
	}
}

// Lookup returns the range of c or ErrInvalidCategory.
func (rs Ranges) Lookup(c Category) (Range, error) {
	r, ok := rs[c]
	if !ok {
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidCategory, string(c))
	}
	return r, nil
}

func (rs Ranges) Has(c Category) bool {
	_, ok := rs[c]
	return ok
}

// Categories returns the configured categories in lexical order.
func (rs Ranges) Categories() []Category {
	out := make([]Category, 0, len(rs))
	for c := range rs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (rs Ranges) String() string {
	parts := make([]string, 0, len(rs))
	for _, c := range rs.Categories() {
		parts = append(parts, fmt.Sprintf("%s=%s", c, rs[c]))
	}
	return strings.Join(parts, ",")
}
