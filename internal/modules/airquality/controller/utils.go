package controller

import (
	"errors"
	"net/http"
	"strconv"
)

const (
	maxPageLimit   = 1000
	maxExportLimit = 100000
)

// parseLimitQuery reads ?limit, falling back to def when absent.
func parseLimitQuery(r *http.Request, def, max int) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid 'limit' (expected integer)")
	}
	if n <= 0 {
		return 0, errors.New("'limit' must be > 0")
	}
	if n > max {
		return 0, errors.New("'limit' must be <= " + strconv.Itoa(max))
	}
	return n, nil
}
