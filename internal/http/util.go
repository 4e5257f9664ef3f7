package httpx

import (
	"net/http"
	"strconv"
)

// parseIntQuery returns the integer value of a query parameter, or def when
// the parameter is absent or malformed.
func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
