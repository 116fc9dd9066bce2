package postgresosm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// parseTags decodes a jsonb tag document. Non-string values are rendered with fmt.
func parseTags(raw []byte) map[string]string {
	if len(raw) == 0 {
		return map[string]string{}
	}

	var tmp map[string]interface{}
	if err := json.Unmarshal(raw, &tmp); err != nil {
		return map[string]string{}
	}

	tags := make(map[string]string, len(tmp))
	for k, v := range tmp {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			tags[k] = val
		default:
			tags[k] = fmt.Sprint(val)
		}
	}
	return tags
}

func decodeGeometry(raw []byte) (orb.Geometry, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	g, err := wkb.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("decode wkb: %w", err)
	}
	return g, nil
}

func nullableString(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

// argList numbers positional parameters while a query is assembled.
type argList struct {
	values []interface{}
}

func (a *argList) add(v interface{}) string {
	a.values = append(a.values, v)
	return fmt.Sprintf("$%d", len(a.values))
}
