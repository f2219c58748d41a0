package app

import (
	"context"
	"time"

	"ideahub/api/internal/store"
)

func ideaSummaryPayload(idea store.Idea, voted, following bool) map[string]any {
	return map[string]any{
		"id":         idea.ID,
		"title":      idea.Title,
		"category":   idea.Category,
		"status":     idea.Status,
		"priority":   idea.Priority,
		"department": idea.Department,
		"votes":      idea.Votes,
		"tags":       nonNilStrings(idea.Tags),
		"submitter": map[string]any{
			"id":         idea.SubmitterID,
			"name":       idea.SubmitterName,
			"department": idea.SubmitterDepartment,
			"avatarUrl":  idea.SubmitterAvatarURL,
		},
		"commentCount":     idea.CommentCount,
		"participantCount": idea.ParticipantCount,
		"voted":            voted,
		"following":        following,
		"createdAt":        idea.CreatedAt.Format(time.RFC3339),
		"updatedAt":        idea.UpdatedAt.Format(time.RFC3339),
	}
}

// assignmentPayload resolves one triage slot for display. Pending email
// invitations surface as such; an empty slot is null.
func (s *Service) assignmentPayload(ctx context.Context, assignment store.Assignment) any {
	switch {
	case assignment.UserID != "":
		user, err := s.store.GetUserByID(ctx, assignment.UserID)
		if err != nil {
			return map[string]any{"userId": assignment.UserID}
		}
		return map[string]any{
			"userId":    user.ID,
			"name":      user.DisplayName,
			"avatarUrl": user.AvatarURL,
		}
	case assignment.Email != "":
		return map[string]any{"email": assignment.Email, "pending": true}
	default:
		return nil
	}
}

func commentPayload(comment store.Comment) map[string]any {
	return map[string]any{
		"id":        comment.ID,
		"ideaId":    comment.IdeaID,
		"parentId":  comment.ParentID,
		"body":      comment.Body,
		"author":    map[string]any{"id": comment.AuthorID, "name": comment.AuthorName, "role": comment.AuthorRole},
		"createdAt": comment.CreatedAt.Format(time.RFC3339),
		"replies":   []map[string]any{},
	}
}

// commentThread nests replies one level under their top-level parent;
// orphaned replies surface as top-level rather than vanish.
func commentThread(comments []store.Comment) []map[string]any {
	byID := make(map[string]map[string]any, len(comments))
	for _, comment := range comments {
		byID[comment.ID] = commentPayload(comment)
	}
	roots := make([]map[string]any, 0, len(comments))
	for _, comment := range comments {
		node := byID[comment.ID]
		if comment.ParentID != nil {
			if parent, ok := byID[*comment.ParentID]; ok {
				parent["replies"] = append(parent["replies"].([]map[string]any), node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}

func attachmentPayload(att store.Attachment) map[string]any {
	return map[string]any{
		"id":          att.ID,
		"ideaId":      att.IdeaID,
		"filename":    att.Filename,
		"contentType": att.ContentType,
		"size":        att.Size,
		"createdAt":   att.CreatedAt.Format(time.RFC3339),
	}
}

func statusChangePayload(change store.StatusChange) map[string]any {
	return map[string]any{
		"id":         change.ID,
		"fromStatus": nilIfEmpty(change.FromStatus),
		"toStatus":   change.ToStatus,
		"note":       change.Note,
		"changedBy":  map[string]any{"id": change.ChangedBy, "name": change.ChangedByName},
		"createdAt":  change.CreatedAt.Format(time.RFC3339),
	}
}

func userSummaryPayload(user store.User) map[string]any {
	return map[string]any{
		"id":         user.ID,
		"username":   user.Username,
		"name":       user.DisplayName,
		"department": user.Department,
		"avatarUrl":  user.AvatarURL,
		"role":       user.Role,
	}
}

func notificationPayload(n store.Notification) map[string]any {
	return map[string]any{
		"id":        n.ID,
		"title":     n.Title,
		"message":   n.Message,
		"type":      n.Type,
		"ideaId":    n.IdeaID,
		"actorId":   n.ActorID,
		"read":      n.Read,
		"createdAt": n.CreatedAt.Format(time.RFC3339),
	}
}

func commitPayload(commit store.CommitInfo) map[string]any {
	return map[string]any{
		"hash":      commit.Hash,
		"message":   commit.Message,
		"author":    commit.Author,
		"createdAt": commit.CreatedAt.Format(time.RFC3339),
	}
}

func nilIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
