package domain

import (
	"fmt"
	"sort"
	"strings"
)

// ContentType tags the variant of an outreach content item.
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeVideo ContentType = "video"
	ContentTypeLink  ContentType = "link"
	ContentTypeImage ContentType = "image"
)

// ContentItem is one unit of outreach content. Items are immutable once a task
// is constructed. CanonicalPayload returns the semantically-relevant fields in
// a stable textual form: two items of the same type with identical semantic
// payload canonicalize identically regardless of incidental ordering upstream.
type ContentItem interface {
	Type() ContentType
	CanonicalPayload() string
}

// TextContent is a plain text message body.
type TextContent struct {
	Body string `json:"body"`
}

func (t TextContent) Type() ContentType        { return ContentTypeText }
func (t TextContent) CanonicalPayload() string { return t.Body }

// VideoContent references an already-uploaded video material.
type VideoContent struct {
	MaterialID int64 `json:"material_id"`
}

func (v VideoContent) Type() ContentType        { return ContentTypeVideo }
func (v VideoContent) CanonicalPayload() string { return fmt.Sprintf("material:%d", v.MaterialID) }

// LinkContent references an already-authored link-card material.
type LinkContent struct {
	MaterialID int64 `json:"material_id"`
}

func (l LinkContent) Type() ContentType        { return ContentTypeLink }
func (l LinkContent) CanonicalPayload() string { return fmt.Sprintf("material:%d", l.MaterialID) }

// ImageContent is a set of image URLs sent as one multi-image message.
type ImageContent struct {
	URLs []string `json:"urls"`
}

func (i ImageContent) Type() ContentType { return ContentTypeImage }

// CanonicalPayload sorts the URL list before joining so that element order
// never produces a distinct hash for the same image set.
func (i ImageContent) CanonicalPayload() string {
	urls := make([]string, len(i.URLs))
	copy(urls, i.URLs)
	sort.Strings(urls)
	return strings.Join(urls, "\n")
}

// OrderContentItems returns the items in delivery order: the text item first
// if present, all other items in their original task order.
func OrderContentItems(items []ContentItem) []ContentItem {
	ordered := make([]ContentItem, 0, len(items))
	for _, it := range items {
		if it.Type() == ContentTypeText {
			ordered = append(ordered, it)
		}
	}
	for _, it := range items {
		if it.Type() != ContentTypeText {
			ordered = append(ordered, it)
		}
	}
	return ordered
}
