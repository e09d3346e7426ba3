package http

import (
	"net/http"
	"slotcore/pkg/config"
	apperrors "slotcore/pkg/errors"
	"strconv"
)

func ExtractLimitOffset(r *http.Request) (int, int64, error) {
	query := r.URL.Query()

	limit := 0
	if s := query.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid limit parameter: " + s)
		}
		limit = v
	}

	var offset int64 = 0
	if s := query.Get("offset"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid offset parameter: " + s)
		}
		offset = int64(v)
	}

	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	return limit, offset, nil
}

// ExtractFencingToken reads the token query parameter renew calls carry.
func ExtractFencingToken(r *http.Request) (int64, error) {
	s := r.URL.Query().Get("fencing_token")
	if s == "" {
		return 0, apperrors.InvalidInput("fencing_token parameter is required")
	}
	token, err := strconv.ParseInt(s, 10, 64)
	if err != nil || token < 1 {
		return 0, apperrors.InvalidInput("invalid fencing_token parameter: " + s)
	}
	return token, nil
}

// ExtractOptionalFencingToken reads the token query parameter on release
// and convert calls, where the hold's stored token authorizes the
// operation and a client-supplied one is only cross-checked. Absent means
// zero; present but malformed is still an error.
func ExtractOptionalFencingToken(r *http.Request) (int64, error) {
	if r.URL.Query().Get("fencing_token") == "" {
		return 0, nil
	}
	return ExtractFencingToken(r)
}
