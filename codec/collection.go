package codec

import (
	"bytes"
	"encoding/json"
	"net/url"
)

// IsCollection reports whether body, fetched from href, is a collection page
// rather than a single resource. JSON:API pages carry an array as data. HAL
// pages have no attributes, a self link to href and a single _embedded array.
func IsCollection(body []byte, f Format, href string) bool {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return false
	}
	switch f {
	case JSONAPI:
		return isArray(top["data"])
	case HAL:
		return halCollection(top, href)
	default:
		return false
	}
}

func halCollection(top map[string]json.RawMessage, href string) bool {
	for k := range top {
		if k != halLinks && k != halEmbedded {
			return false
		}
	}

	var embedded map[string]json.RawMessage
	if err := json.Unmarshal(top[halEmbedded], &embedded); err != nil || len(embedded) != 1 {
		return false
	}
	for _, v := range embedded {
		if !isArray(v) {
			return false
		}
	}

	var links struct {
		Self struct {
			Href string `json:"href"`
		} `json:"self"`
	}
	if err := json.Unmarshal(top[halLinks], &links); err != nil || links.Self.Href == "" {
		return false
	}
	return samePath(links.Self.Href, href)
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

// samePath compares two hrefs by path, so a first page that carries paging
// parameters still matches the link it was fetched from.
func samePath(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return ua.Path == ub.Path
}
