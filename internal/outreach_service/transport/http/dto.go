package http

import (
	"fmt"

	"github.com/wecrm/outreach_gateway/internal/outreach_service/domain"
)

// StartSyncRequest optionally narrows a sync to specific accounts.
type StartSyncRequest struct {
	AccountNames []string `json:"account_names"`
}

// ContentItemDTO is the wire form of one content item; Type selects which of
// the remaining fields apply.
type ContentItemDTO struct {
	Type       string   `json:"type" validate:"required,oneof=text video link image"`
	Body       string   `json:"body,omitempty"`
	MaterialID int64    `json:"material_id,omitempty"`
	URLs       []string `json:"urls,omitempty"`
}

// ToDomain converts the DTO into the tagged domain variant.
func (d ContentItemDTO) ToDomain() (domain.ContentItem, error) {
	switch domain.ContentType(d.Type) {
	case domain.ContentTypeText:
		if d.Body == "" {
			return nil, fmt.Errorf("text item requires a body")
		}
		return domain.TextContent{Body: d.Body}, nil
	case domain.ContentTypeVideo:
		if d.MaterialID <= 0 {
			return nil, fmt.Errorf("video item requires a material_id")
		}
		return domain.VideoContent{MaterialID: d.MaterialID}, nil
	case domain.ContentTypeLink:
		if d.MaterialID <= 0 {
			return nil, fmt.Errorf("link item requires a material_id")
		}
		return domain.LinkContent{MaterialID: d.MaterialID}, nil
	case domain.ContentTypeImage:
		if len(d.URLs) == 0 {
			return nil, fmt.Errorf("image item requires at least one url")
		}
		return domain.ImageContent{URLs: d.URLs}, nil
	default:
		return nil, fmt.Errorf("unknown content item type %q", d.Type)
	}
}

// ForbiddenRangeDTO is a clock-time window, e.g. {"start":"23:00","end":"08:00"}.
type ForbiddenRangeDTO struct {
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

// StartDispatchRequest submits an outreach task.
type StartDispatchRequest struct {
	ContentItems         []ContentItemDTO    `json:"content_items" validate:"required,min=1,dive"`
	TargetCompletionDays int                 `json:"target_completion_days" validate:"required,min=1"`
	ForbiddenRanges      []ForbiddenRangeDTO `json:"forbidden_ranges" validate:"dive"`
	SelectedAccountNames []string            `json:"selected_account_names" validate:"required,min=1"`
	SelectedContactIDs   []string            `json:"selected_contact_ids" validate:"required,min=1"`
}

// ToDomainTask builds the domain task for the authenticated scope.
func (req StartDispatchRequest) ToDomainTask(userScope string) (*domain.OutreachTask, error) {
	items := make([]domain.ContentItem, 0, len(req.ContentItems))
	for _, dto := range req.ContentItems {
		item, err := dto.ToDomain()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	ranges := make([]domain.ForbiddenTimeRange, 0, len(req.ForbiddenRanges))
	for _, dto := range req.ForbiddenRanges {
		r, err := domain.ParseForbiddenRange(dto.Start, dto.End)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}

	return &domain.OutreachTask{
		UserScope:            userScope,
		ContentItems:         items,
		TargetCompletionDays: req.TargetCompletionDays,
		ForbiddenRanges:      ranges,
		SelectedAccountNames: req.SelectedAccountNames,
		SelectedContactIDs:   req.SelectedContactIDs,
	}, nil
}

// StartDispatchResponse returns the fire-and-forget task handle.
type StartDispatchResponse struct {
	TaskID string `json:"task_id"`
}

// SelectionRequest mutates the selected flag on a batch of contacts.
type SelectionRequest struct {
	ContactIDs []string `json:"contact_ids" validate:"required,min=1"`
	Selected   bool     `json:"selected"`
}
