package http

import (
	"fmt"
	"net/http"
	"strconv"

	"racereg/pkg/config"
	apperrors "racereg/pkg/errors"
)

// ExtractLimitOffset reads the limit and offset query parameters of a list request.
// A missing or zero limit selects the default page size and larger limits are capped.
// Negative or non-numeric values are rejected with INVALID_INPUT.
func ExtractLimitOffset(r *http.Request) (int, int64, error) {
	query := r.URL.Query()

	limit, err := nonNegativeParam(query.Get("limit"), "limit", strconv.IntSize)
	if err != nil {
		return 0, 0, err
	}
	offset, err := nonNegativeParam(query.Get("offset"), "offset", 64)
	if err != nil {
		return 0, 0, err
	}

	return config.NormalizePaginationLimit(int(limit)), config.NormalizeOffset(offset), nil
}

func nonNegativeParam(raw, name string, bitSize int) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, bitSize)
	if err != nil {
		return 0, apperrors.InvalidInput(fmt.Sprintf("invalid %s parameter: %s", name, raw))
	}
	if v < 0 {
		return 0, apperrors.InvalidInput(fmt.Sprintf("%s parameter cannot be negative: %s", name, raw))
	}
	return v, nil
}
