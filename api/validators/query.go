package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/nursecall-backend/pkg/errors"
)

// ParseQueryInt reads an optional integer query parameter within [min, max].
func ParseQueryInt(r *http.Request, key string, def, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err == nil && value >= min && value <= max {
		return value, nil
	}
	return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be a whole number between %d and %d", key, min, max).
		WithDetails(map[string]string{
			"field": key,
			"min":   strconv.Itoa(min),
			"max":   strconv.Itoa(max),
		})
}
