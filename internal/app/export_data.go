package app

import (
	"context"

	"ideahub/api/internal/export"
)

// exportData feeds the document renderers from the service's own stores.
type exportData struct {
	service *Service
}

func (d *exportData) GetIdea(ctx context.Context, id string) (export.IdeaInfo, error) {
	idea, err := d.service.store.GetIdea(ctx, id)
	if err != nil {
		return export.IdeaInfo{}, err
	}
	info := export.IdeaInfo{
		ID:               idea.ID,
		Title:            idea.Title,
		Category:         idea.Category,
		Status:           idea.Status,
		Priority:         idea.Priority,
		Department:       idea.Department,
		Submitter:        idea.SubmitterName,
		Votes:            idea.Votes,
		Tags:             idea.Tags,
		Description:      idea.Description,
		Impact:           idea.Impact,
		Inspiration:      idea.Inspiration,
		SimilarSolutions: idea.SimilarSolutions,
		CreatedAt:        idea.CreatedAt,
		UpdatedAt:        idea.UpdatedAt,
	}
	if idea.CostSaved != nil {
		info.CostSaved = *idea.CostSaved
	}
	if idea.RevenueGenerated != nil {
		info.RevenueGenerated = *idea.RevenueGenerated
	}
	return info, nil
}

func (d *exportData) GetIdeaSnapshot(ctx context.Context, id, version string) (export.SnapshotInfo, error) {
	snapshot, err := d.service.git.GetSnapshotByHash(id, version)
	if err != nil {
		return export.SnapshotInfo{}, err
	}
	return export.SnapshotInfo{
		Title:            snapshot.Title,
		Description:      snapshot.Description,
		Category:         snapshot.Category,
		Status:           snapshot.Status,
		Priority:         snapshot.Priority,
		Impact:           snapshot.Impact,
		Inspiration:      snapshot.Inspiration,
		SimilarSolutions: snapshot.SimilarSolutions,
		Tags:             snapshot.Tags,
	}, nil
}

func (d *exportData) ListComments(ctx context.Context, ideaID string) ([]export.CommentInfo, error) {
	comments, err := d.service.store.ListComments(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	infos := make([]export.CommentInfo, 0, len(comments))
	for _, comment := range comments {
		infos = append(infos, export.CommentInfo{
			Author:    comment.AuthorName,
			Role:      comment.AuthorRole,
			Body:      comment.Body,
			CreatedAt: comment.CreatedAt,
		})
	}
	return infos, nil
}

func (d *exportData) ListStatusChanges(ctx context.Context, ideaID string) ([]export.StatusChangeInfo, error) {
	changes, err := d.service.store.ListStatusChanges(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	infos := make([]export.StatusChangeInfo, 0, len(changes))
	for _, change := range changes {
		infos = append(infos, export.StatusChangeInfo{
			FromStatus: change.FromStatus,
			ToStatus:   change.ToStatus,
			ChangedBy:  change.ChangedByName,
			Note:       change.Note,
			CreatedAt:  change.CreatedAt,
		})
	}
	return infos, nil
}
