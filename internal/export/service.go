package export

import (
	"context"
	"fmt"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetIdea(ctx context.Context, id string) (IdeaInfo, error)
	GetIdeaSnapshot(ctx context.Context, id, version string) (SnapshotInfo, error)
	ListComments(ctx context.Context, ideaID string) ([]CommentInfo, error)
	ListStatusChanges(ctx context.Context, ideaID string) ([]StatusChangeInfo, error)
}

// Service renders single-idea exports
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format. When a revision hash is
// given, content fields come from that revision while votes, submitter and
// dates stay current.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	idea, err := s.store.GetIdea(ctx, req.IdeaID)
	if err != nil {
		return nil, fmt.Errorf("get idea: %w", err)
	}

	if req.Version != "" && req.Version != "latest" {
		snapshot, err := s.store.GetIdeaSnapshot(ctx, req.IdeaID, req.Version)
		if err != nil {
			return nil, fmt.Errorf("%w: revision %s", ErrContentUnavailable, req.Version)
		}
		idea.Title = snapshot.Title
		idea.Description = snapshot.Description
		idea.Category = snapshot.Category
		idea.Status = snapshot.Status
		idea.Priority = snapshot.Priority
		idea.Impact = snapshot.Impact
		idea.Inspiration = snapshot.Inspiration
		idea.SimilarSolutions = snapshot.SimilarSolutions
		idea.Tags = snapshot.Tags
	}

	data := templateDataFromIdea(idea)

	if req.IncludeHistory {
		changes, err := s.store.ListStatusChanges(ctx, req.IdeaID)
		if err != nil {
			return nil, fmt.Errorf("list status changes: %w", err)
		}
		for _, change := range changes {
			data.History = append(data.History, TemplateStatusChange{
				FromStatus: change.FromStatus,
				ToStatus:   change.ToStatus,
				ChangedBy:  change.ChangedBy,
				Note:       change.Note,
				CreatedAt:  change.CreatedAt,
			})
		}
	}

	if req.IncludeComments {
		comments, err := s.store.ListComments(ctx, req.IdeaID)
		if err != nil {
			return nil, fmt.Errorf("list comments: %w", err)
		}
		for _, comment := range comments {
			data.Comments = append(data.Comments, TemplateComment{
				Author:    comment.Author,
				Role:      comment.Role,
				Body:      comment.Body,
				CreatedAt: comment.CreatedAt,
			})
		}
	}

	html, err := RenderIdeaHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(html, idea.Title)
	case FormatDOCX:
		return exportDOCX(html, idea.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

func templateDataFromIdea(idea IdeaInfo) TemplateData {
	return TemplateData{
		Title:                idea.Title,
		Category:             idea.Category,
		Status:               idea.Status,
		Priority:             idea.Priority,
		Department:           idea.Department,
		Submitter:            idea.Submitter,
		Votes:                idea.Votes,
		Tags:                 idea.Tags,
		CreatedAt:            idea.CreatedAt,
		UpdatedAt:            idea.UpdatedAt,
		DescriptionHTML:      SafeHTML(TextToHTML(idea.Description)),
		ImpactHTML:           SafeHTML(TextToHTML(idea.Impact)),
		InspirationHTML:      SafeHTML(TextToHTML(idea.Inspiration)),
		SimilarSolutionsHTML: SafeHTML(TextToHTML(idea.SimilarSolutions)),
		CostSaved:            idea.CostSaved,
		RevenueGenerated:     idea.RevenueGenerated,
	}
}
