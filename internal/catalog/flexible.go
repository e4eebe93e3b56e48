package catalog

import (
	"encoding/json"
	"strconv"
	"strings"
)

// flexibleString decodes catalog fields that arrive as a string, a number, or
// a list of strings. Lists keep their first element.
type flexibleString string

func (f *flexibleString) UnmarshalJSON(data []byte) error {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*f = flexibleString(flatten(value))
	return nil
}

func flatten(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []any:
		for _, item := range v {
			if s := flatten(item); s != "" {
				return s
			}
		}
	}
	return ""
}
