package bib

import "strconv"

// ParseValue parses a serialized bib: ASCII digits only, no sign, no leading zero.
func ParseValue(s string) (int, bool) {
	if s == "" || len(s) > 18 {
		return 0, false
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

// IsValid reports whether value is a well-formed bib inside the category range.
// Unknown categories have no valid values.
func (rs Ranges) IsValid(value string, category Category) bool {
	r, ok := rs[category]
	if !ok {
		return false
	}
	v, ok := ParseValue(value)
	return ok && r.Contains(v)
}

// Snapshot filters raw stored values for category into the set of valid values.
// Values failing IsValid are returned separately for repair and never count as
// occupied.
func (rs Ranges) Snapshot(category Category, raw []string) (Set, []string, error) {
	r, err := rs.Lookup(category)
	if err != nil {
		return nil, nil, err
	}

	valid := make(Set, len(raw))
	var malformed []string
	for _, s := range raw {
		v, ok := ParseValue(s)
		if !ok || !r.Contains(v) {
			malformed = append(malformed, s)
			continue
		}
		valid.Add(v)
	}
	return valid, malformed, nil
}
