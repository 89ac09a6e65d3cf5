package console

import (
	"encoding/json"
)

// The console's frontend has no stable contract for the contact-list response;
// different console builds nest the list under different JSON paths and name
// the per-item fields differently. ExtractContacts tries a ranked list of
// candidate shapes and takes the first structural match.

// listPath is one candidate location of the contact array inside a payload.
type listPath []string

var candidateListPaths = []listPath{
	{"data", "list"},
	{"data", "contacts"},
	{"data", "items"},
	{"result", "list"},
	{"list"},
	{"contacts"},
}

var nameFields = []string{"nickname", "nick_name", "display_name", "name"}
var remarkFields = []string{"remark", "remark_name", "alias"}
var avatarFields = []string{"avatar", "avatar_url", "head_img_url", "head_url"}

// ExtractContacts probes body for a contact-list-shaped payload. It reports
// ok=false when no candidate path holds a non-empty list of objects carrying
// at least a display name.
func ExtractContacts(body []byte) ([]RawContact, bool) {
	var root map[string]any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, false
	}

	for _, path := range candidateListPaths {
		items, ok := resolveList(root, path)
		if !ok {
			continue
		}
		contacts := normalizeItems(items)
		if len(contacts) > 0 {
			return contacts, true
		}
	}
	return nil, false
}

func resolveList(root map[string]any, path listPath) ([]any, bool) {
	var node any = root
	for _, key := range path {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	items, ok := node.([]any)
	if !ok || len(items) == 0 {
		return nil, false
	}
	return items, true
}

func normalizeItems(items []any) []RawContact {
	contacts := make([]RawContact, 0, len(items))
	for _, raw := range items {
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name := firstString(obj, nameFields)
		if name == "" {
			continue
		}
		contacts = append(contacts, RawContact{
			DisplayName: name,
			RemarkName:  firstString(obj, remarkFields),
			AvatarRef:   firstString(obj, avatarFields),
		})
	}
	return contacts
}

func firstString(obj map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := obj[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
