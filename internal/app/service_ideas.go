package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"ideahub/api/internal/gitrepo"
	"ideahub/api/internal/rbac"
	"ideahub/api/internal/search"
	"ideahub/api/internal/storage"
	"ideahub/api/internal/store"
	"ideahub/api/internal/util"
)

var ideaCategories = map[string]bool{
	"idea":       true,
	"pain-point": true,
	"challenge":  true,
}

type SubmitIdeaInput struct {
	Title            string   `json:"title" validate:"required,min=4,max=200"`
	Description      string   `json:"description" validate:"required,min=10,max=20000"`
	Category         string   `json:"category" validate:"required,oneof=idea pain-point challenge"`
	Department       string   `json:"department" validate:"max=80"`
	Priority         string   `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	Tags             []string `json:"tags" validate:"max=10,dive,min=1,max=40"`
	Impact           string   `json:"impact" validate:"max=10000"`
	Inspiration      string   `json:"inspiration" validate:"max=10000"`
	SimilarSolutions string   `json:"similarSolutions" validate:"max=10000"`
}

func (s *Service) SubmitIdea(ctx context.Context, session Session, input SubmitIdeaInput) (store.Idea, error) {
	if err := validateInput(input); err != nil {
		return store.Idea{}, err
	}

	priority := input.Priority
	if priority == "" {
		priority = "medium"
	}
	idea := store.Idea{
		ID:               util.NewID("idea"),
		Title:            strings.TrimSpace(input.Title),
		Description:      strings.TrimSpace(input.Description),
		Category:         input.Category,
		Department:       strings.TrimSpace(input.Department),
		Status:           "submitted",
		Priority:         priority,
		Tags:             normalizeTags(input.Tags),
		Impact:           strings.TrimSpace(input.Impact),
		Inspiration:      strings.TrimSpace(input.Inspiration),
		SimilarSolutions: strings.TrimSpace(input.SimilarSolutions),
		SubmitterID:      session.UserID,
	}

	if err := s.store.InsertIdea(ctx, idea); err != nil {
		return store.Idea{}, err
	}

	// The revision repo is part of the submission; a failure rolls the row
	// back so every stored idea has a history.
	if err := s.git.EnsureIdeaRepo(idea.ID, gitrepo.SnapshotFromIdea(idea), session.UserName); err != nil {
		_ = s.store.DeleteIdea(ctx, idea.ID)
		return store.Idea{}, fmt.Errorf("init idea history: %w", err)
	}

	stored, err := s.store.GetIdea(ctx, idea.ID)
	if err != nil {
		return store.Idea{}, err
	}
	s.search.IndexIdea(searchRecord(stored))
	return stored, nil
}

type IdeaListInput struct {
	Status     string
	Category   string
	Department string
	Tag        string
	Submitter  string
	Sort       string
	Limit      int
	Offset     int
}

func (s *Service) ListIdeas(ctx context.Context, session Session, input IdeaListInput) (map[string]any, error) {
	if input.Status != "" && !ideaStatuses[input.Status] {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "unknown status filter", map[string]any{"status": input.Status})
	}
	if input.Category != "" && !ideaCategories[input.Category] {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "unknown category filter", map[string]any{"category": input.Category})
	}

	submitterID := ""
	switch input.Submitter {
	case "":
	case "me":
		submitterID = session.UserID
	default:
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "submitter filter only supports 'me'", nil)
	}

	sort := input.Sort
	switch sort {
	case "":
		sort = "new"
	case "new", "top", "active":
	default:
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "sort must be new, top, or active", nil)
	}

	limit, offset := clampPage(input.Limit, input.Offset, 20, 100)
	ideas, total, err := s.store.ListIdeas(ctx, store.IdeaFilter{
		Status:      input.Status,
		Category:    input.Category,
		Department:  strings.TrimSpace(input.Department),
		Tag:         strings.TrimSpace(input.Tag),
		SubmitterID: submitterID,
		Sort:        sort,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		return nil, err
	}

	votedSet, followSet, err := s.viewerSets(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(ideas))
	for _, idea := range ideas {
		items = append(items, ideaSummaryPayload(idea, votedSet[idea.ID], followSet[idea.ID]))
	}
	return map[string]any{
		"items":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	}, nil
}

// GetIdea builds the full single-idea payload including the caller's
// engagement flags. Admin notes only surface to triage-capable viewers.
func (s *Service) GetIdea(ctx context.Context, session Session, ideaID string) (map[string]any, error) {
	idea, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}

	voted, err := s.store.HasVoted(ctx, ideaID, session.UserID)
	if err != nil {
		return nil, err
	}
	following, err := s.store.IsFollowing(ctx, session.UserID, ideaID)
	if err != nil {
		return nil, err
	}
	joined := false
	if idea.Category == "challenge" {
		joined, err = s.store.IsParticipant(ctx, ideaID, session.UserID)
		if err != nil {
			return nil, err
		}
	}
	attachments, err := s.store.ListAttachments(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	participants, err := s.store.ListParticipants(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	changes, err := s.store.ListStatusChanges(ctx, ideaID)
	if err != nil {
		return nil, err
	}

	payload := ideaSummaryPayload(idea, voted, following)
	payload["description"] = idea.Description
	payload["impact"] = idea.Impact
	payload["inspiration"] = idea.Inspiration
	payload["similarSolutions"] = idea.SimilarSolutions
	payload["costSaved"] = idea.CostSaved
	payload["revenueGenerated"] = idea.RevenueGenerated
	payload["joined"] = joined
	payload["assignments"] = map[string]any{
		"reviewer":    s.assignmentPayload(ctx, idea.Reviewer),
		"transformer": s.assignmentPayload(ctx, idea.Transformer),
		"implementer": s.assignmentPayload(ctx, idea.Implementer),
	}
	if s.Can(session.Role, rbac.ActionTriage) {
		payload["adminNotes"] = idea.AdminNotes
	}

	attachmentItems := make([]map[string]any, 0, len(attachments))
	for _, att := range attachments {
		attachmentItems = append(attachmentItems, attachmentPayload(att))
	}
	payload["attachments"] = attachmentItems

	participantItems := make([]map[string]any, 0, len(participants))
	for _, user := range participants {
		participantItems = append(participantItems, userSummaryPayload(user))
	}
	payload["participants"] = participantItems

	changeItems := make([]map[string]any, 0, len(changes))
	for _, change := range changes {
		changeItems = append(changeItems, statusChangePayload(change))
	}
	payload["statusHistory"] = changeItems

	return payload, nil
}

type UpdateIdeaInput struct {
	Title            *string   `json:"title" validate:"omitempty,min=4,max=200"`
	Description      *string   `json:"description" validate:"omitempty,min=10,max=20000"`
	Category         *string   `json:"category" validate:"omitempty,oneof=idea pain-point challenge"`
	Department       *string   `json:"department" validate:"omitempty,max=80"`
	Priority         *string   `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	Tags             *[]string `json:"tags" validate:"omitempty,max=10,dive,min=1,max=40"`
	Impact           *string   `json:"impact" validate:"omitempty,max=10000"`
	Inspiration      *string   `json:"inspiration" validate:"omitempty,max=10000"`
	SimilarSolutions *string   `json:"similarSolutions" validate:"omitempty,max=10000"`
	AdminNotes       *string   `json:"adminNotes" validate:"omitempty,max=10000"`
	CostSaved        *float64  `json:"costSaved" validate:"omitempty,gte=0"`
	RevenueGenerated *float64  `json:"revenueGenerated" validate:"omitempty,gte=0"`
}

func (input UpdateIdeaInput) hasAdminFields() bool {
	return input.AdminNotes != nil || input.CostSaved != nil || input.RevenueGenerated != nil
}

func (s *Service) UpdateIdea(ctx context.Context, session Session, ideaID string, input UpdateIdeaInput) (map[string]any, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	idea, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}

	if !s.Can(session.Role, rbac.ActionTriage) {
		if idea.SubmitterID != session.UserID {
			return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only the submitter can edit an idea", nil)
		}
		if idea.Status != "submitted" {
			return nil, domainError(http.StatusConflict, "CONFLICT", "Ideas can only be edited while status is submitted", nil)
		}
		if input.hasAdminFields() {
			return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Outcome fields require the admin role", nil)
		}
	}

	update := store.IdeaUpdate{
		Title:            trimmedPtr(input.Title),
		Description:      trimmedPtr(input.Description),
		Category:         input.Category,
		Department:       trimmedPtr(input.Department),
		Priority:         input.Priority,
		Impact:           trimmedPtr(input.Impact),
		Inspiration:      trimmedPtr(input.Inspiration),
		SimilarSolutions: trimmedPtr(input.SimilarSolutions),
		AdminNotes:       trimmedPtr(input.AdminNotes),
		CostSaved:        input.CostSaved,
		RevenueGenerated: input.RevenueGenerated,
	}
	if input.Tags != nil {
		tags := normalizeTags(*input.Tags)
		update.Tags = &tags
	}
	if err := s.store.UpdateIdea(ctx, ideaID, update); err != nil {
		return nil, err
	}

	updated, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}

	// Only content changes produce a revision; outcome-field edits do not.
	before := gitrepo.SnapshotFromIdea(idea)
	after := gitrepo.SnapshotFromIdea(updated)
	if gitrepo.HasChanges(before, after) {
		if _, err := s.git.CommitSnapshot(ideaID, after, session.UserName, "Update content"); err != nil {
			s.logger.Warn("commit idea revision", zap.String("idea_id", ideaID), zap.Error(err))
		}
	}
	s.search.IndexIdea(searchRecord(updated))

	return s.GetIdea(ctx, session, ideaID)
}

// DeleteIdea removes the idea along with its attachment objects and
// revision repository. The database cascades take the engagement rows.
func (s *Service) DeleteIdea(ctx context.Context, session Session, ideaID string) error {
	if _, err := s.store.GetIdea(ctx, ideaID); err != nil {
		return err
	}

	attachments, err := s.store.ListAttachments(ctx, ideaID)
	if err != nil {
		return err
	}
	for _, att := range attachments {
		if err := s.files.Delete(ctx, att.ObjectKey); err != nil {
			s.logger.Warn("delete attachment object", zap.String("object_key", att.ObjectKey), zap.Error(err))
		}
	}

	if err := s.store.DeleteIdea(ctx, ideaID); err != nil {
		return err
	}
	if err := s.git.Remove(ideaID); err != nil {
		s.logger.Warn("remove idea repo", zap.String("idea_id", ideaID), zap.Error(err))
	}
	s.search.DeleteIdea(ideaID)
	return nil
}

func (s *Service) Vote(ctx context.Context, session Session, ideaID string) (map[string]any, error) {
	idea, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	votes, added, err := s.store.AddVote(ctx, ideaID, session.UserID)
	if err != nil {
		return nil, err
	}
	// Only a counted vote notifies; repeats and self-votes stay silent.
	if added && idea.SubmitterID != session.UserID {
		actorID := session.UserID
		s.notify(ctx, idea.SubmitterID, "New vote",
			fmt.Sprintf("%s voted for %q.", session.UserName, idea.Title), "vote", &idea.ID, &actorID)
	}
	return map[string]any{"votes": votes, "voted": true}, nil
}

func (s *Service) Unvote(ctx context.Context, session Session, ideaID string) (map[string]any, error) {
	if _, err := s.store.GetIdea(ctx, ideaID); err != nil {
		return nil, err
	}
	votes, _, err := s.store.RemoveVote(ctx, ideaID, session.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"votes": votes, "voted": false}, nil
}

func (s *Service) IdeaComments(ctx context.Context, ideaID string) (map[string]any, error) {
	if _, err := s.store.GetIdea(ctx, ideaID); err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"ideaId": ideaID,
		"items":  commentThread(comments),
		"total":  len(comments),
	}, nil
}

type CommentInput struct {
	Body     string  `json:"body" validate:"required,max=4000"`
	ParentID *string `json:"parentId"`
}

func (s *Service) AddComment(ctx context.Context, session Session, ideaID string, input CommentInput) (map[string]any, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "body is required", nil)
	}

	idea, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}

	// Replies stay one level deep and must target a comment on this idea.
	var parent *store.Comment
	if input.ParentID != nil && *input.ParentID != "" {
		p, err := s.store.GetComment(ctx, *input.ParentID)
		if err != nil {
			return nil, err
		}
		if p.IdeaID != ideaID {
			return nil, sql.ErrNoRows
		}
		if p.ParentID != nil {
			return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "replies cannot be nested further", nil)
		}
		parent = &p
	}

	comment := store.Comment{
		ID:       util.NewID("cmt"),
		IdeaID:   ideaID,
		AuthorID: session.UserID,
		Body:     body,
	}
	if parent != nil {
		comment.ParentID = &parent.ID
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return nil, err
	}
	if err := s.store.TouchIdea(ctx, ideaID); err != nil {
		s.logger.Warn("touch idea", zap.String("idea_id", ideaID), zap.Error(err))
	}

	actorID := session.UserID
	if idea.SubmitterID != session.UserID {
		s.notify(ctx, idea.SubmitterID, "New comment",
			fmt.Sprintf("%s commented on %q.", session.UserName, idea.Title), "comment", &idea.ID, &actorID)
	}
	if parent != nil && parent.AuthorID != session.UserID && parent.AuthorID != idea.SubmitterID {
		s.notify(ctx, parent.AuthorID, "New reply",
			fmt.Sprintf("%s replied to your comment on %q.", session.UserName, idea.Title), "comment", &idea.ID, &actorID)
	}

	s.search.IndexComment(search.CommentRecord{
		ID:        comment.ID,
		Body:      comment.Body,
		IdeaID:    idea.ID,
		IdeaTitle: idea.Title,
		Category:  idea.Category,
		Status:    idea.Status,
	})

	stored, err := s.store.GetComment(ctx, comment.ID)
	if err != nil {
		return nil, err
	}
	return commentPayload(stored), nil
}

func (s *Service) DeleteComment(ctx context.Context, session Session, ideaID, commentID string) error {
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.IdeaID != ideaID {
		return sql.ErrNoRows
	}
	if comment.AuthorID != session.UserID && !s.Can(session.Role, rbac.ActionAdmin) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the author can delete a comment", nil)
	}
	if err := s.store.DeleteComment(ctx, commentID); err != nil {
		return err
	}
	s.search.DeleteComment(commentID)
	return nil
}

func (s *Service) FollowIdea(ctx context.Context, session Session, ideaID string) (map[string]any, error) {
	idea, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	already, err := s.store.IsFollowing(ctx, session.UserID, ideaID)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddFollow(ctx, store.Follow{
		UserID:   session.UserID,
		ItemID:   ideaID,
		ItemType: idea.Category,
	}); err != nil {
		return nil, err
	}
	// First follow only; re-follow stays silent.
	if !already && idea.SubmitterID != session.UserID {
		actorID := session.UserID
		s.notify(ctx, idea.SubmitterID, "New follower",
			fmt.Sprintf("%s is following %q.", session.UserName, idea.Title), "follow", &idea.ID, &actorID)
	}
	return map[string]any{"ideaId": ideaID, "following": true}, nil
}

func (s *Service) UnfollowIdea(ctx context.Context, session Session, ideaID string) (map[string]any, error) {
	if _, err := s.store.GetIdea(ctx, ideaID); err != nil {
		return nil, err
	}
	if err := s.store.RemoveFollow(ctx, session.UserID, ideaID); err != nil {
		return nil, err
	}
	return map[string]any{"ideaId": ideaID, "following": false}, nil
}

func (s *Service) FollowedIdeas(ctx context.Context, session Session) (map[string]any, error) {
	follows, err := s.store.ListFollows(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	votes, err := s.store.ListUserVotes(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	votedSet := make(map[string]bool, len(votes))
	for _, id := range votes {
		votedSet[id] = true
	}

	items := make([]map[string]any, 0, len(follows))
	for _, follow := range follows {
		idea, err := s.store.GetIdea(ctx, follow.ItemID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, err
		}
		item := ideaSummaryPayload(idea, votedSet[idea.ID], true)
		item["followedAt"] = follow.CreatedAt.Format(time.RFC3339)
		items = append(items, item)
	}
	return map[string]any{"items": items, "total": len(items)}, nil
}

func (s *Service) JoinChallenge(ctx context.Context, session Session, ideaID string) (map[string]any, error) {
	idea, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	if idea.Category != "challenge" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Only challenges can be joined", nil)
	}
	added, err := s.store.AddParticipant(ctx, ideaID, session.UserID)
	if err != nil {
		return nil, err
	}
	if !added {
		return nil, domainError(http.StatusConflict, "CONFLICT", "Already participating in this challenge", nil)
	}
	return map[string]any{"ideaId": ideaID, "joined": true}, nil
}

func (s *Service) LeaveChallenge(ctx context.Context, session Session, ideaID string) (map[string]any, error) {
	idea, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	if idea.Category != "challenge" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Only challenges can be joined", nil)
	}
	joined, err := s.store.IsParticipant(ctx, ideaID, session.UserID)
	if err != nil {
		return nil, err
	}
	if !joined {
		return nil, domainError(http.StatusConflict, "CONFLICT", "Not participating in this challenge", nil)
	}
	if err := s.store.RemoveParticipant(ctx, ideaID, session.UserID); err != nil {
		return nil, err
	}
	return map[string]any{"ideaId": ideaID, "joined": false}, nil
}

func (s *Service) ChallengeParticipants(ctx context.Context, ideaID string) (map[string]any, error) {
	if _, err := s.store.GetIdea(ctx, ideaID); err != nil {
		return nil, err
	}
	participants, err := s.store.ListParticipants(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(participants))
	for _, user := range participants {
		items = append(items, userSummaryPayload(user))
	}
	return map[string]any{"ideaId": ideaID, "items": items, "total": len(items)}, nil
}

func (s *Service) IdeaHistory(ctx context.Context, ideaID string, limit int) (map[string]any, error) {
	if _, err := s.store.GetIdea(ctx, ideaID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	commits, err := s.git.History(ideaID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(commits))
	for _, commit := range commits {
		items = append(items, commitPayload(commit))
	}
	return map[string]any{"ideaId": ideaID, "items": items}, nil
}

func (s *Service) IdeaRevision(ctx context.Context, ideaID, hash string) (map[string]any, error) {
	if _, err := s.store.GetIdea(ctx, ideaID); err != nil {
		return nil, err
	}
	// Unknown or malformed hashes read as absent revisions.
	snapshot, err := s.git.GetSnapshotByHash(ideaID, hash)
	if err != nil {
		return nil, sql.ErrNoRows
	}
	commit, err := s.git.GetCommitByHash(ideaID, hash)
	if err != nil {
		return nil, sql.ErrNoRows
	}
	head, _, err := s.git.GetHeadSnapshot(ideaID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"ideaId":   ideaID,
		"commit":   commitPayload(commit),
		"snapshot": snapshotPayload(snapshot),
		"diff":     gitrepo.DiffFields(snapshot, head),
	}, nil
}

func snapshotPayload(snapshot gitrepo.Snapshot) map[string]any {
	return map[string]any{
		"title":            snapshot.Title,
		"description":      snapshot.Description,
		"category":         snapshot.Category,
		"status":           snapshot.Status,
		"priority":         snapshot.Priority,
		"tags":             nonNilStrings(snapshot.Tags),
		"impact":           snapshot.Impact,
		"inspiration":      snapshot.Inspiration,
		"similarSolutions": snapshot.SimilarSolutions,
	}
}

// AttachFile stores one uploaded file and its metadata row. The object is
// removed again if the row cannot be written.
func (s *Service) AttachFile(ctx context.Context, session Session, ideaID, filename, contentType string, size int64, reader io.Reader) (map[string]any, error) {
	idea, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	if idea.SubmitterID != session.UserID && !s.Can(session.Role, rbac.ActionTriage) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only the submitter can attach files", nil)
	}
	if size <= 0 || size > s.cfg.MaxUploadMB<<20 {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR",
			fmt.Sprintf("attachment must be between 1 byte and %d MB", s.cfg.MaxUploadMB), nil)
	}

	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "file"
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	att := store.Attachment{
		ID:          util.NewID("att"),
		IdeaID:      ideaID,
		Filename:    name,
		ContentType: contentType,
		Size:        size,
	}
	att.ObjectKey = ideaID + "/" + att.ID + "/" + name

	if err := s.files.Put(ctx, att.ObjectKey, reader, size, contentType); err != nil {
		return nil, fmt.Errorf("store attachment: %w", err)
	}
	if err := s.store.InsertAttachment(ctx, att); err != nil {
		_ = s.files.Delete(ctx, att.ObjectKey)
		return nil, err
	}
	return attachmentPayload(att), nil
}

// OpenAttachment returns the metadata row and a reader over the stored
// object. The caller owns closing the reader.
func (s *Service) OpenAttachment(ctx context.Context, attachmentID string) (store.Attachment, io.ReadCloser, error) {
	att, err := s.store.GetAttachment(ctx, attachmentID)
	if err != nil {
		return store.Attachment{}, nil, err
	}
	reader, err := s.files.Get(ctx, att.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return store.Attachment{}, nil, sql.ErrNoRows
		}
		return store.Attachment{}, nil, err
	}
	return att, reader, nil
}

func (s *Service) Notifications(ctx context.Context, session Session, unreadOnly bool, limit, offset int) (map[string]any, error) {
	limit, offset = clampPage(limit, offset, 20, 100)
	notifications, err := s.store.ListNotifications(ctx, session.UserID, unreadOnly, limit, offset)
	if err != nil {
		return nil, err
	}
	unread, err := s.store.UnreadNotificationCount(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(notifications))
	for _, n := range notifications {
		items = append(items, notificationPayload(n))
	}
	return map[string]any{
		"items":  items,
		"unread": unread,
		"limit":  limit,
		"offset": offset,
	}, nil
}

func (s *Service) UnreadNotificationCount(ctx context.Context, session Session) (map[string]any, error) {
	unread, err := s.store.UnreadNotificationCount(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"unread": unread}, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, session Session, notificationID string) error {
	return s.store.MarkNotificationRead(ctx, session.UserID, notificationID)
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, session Session) (map[string]any, error) {
	updated, err := s.store.MarkAllNotificationsRead(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"updated": updated}, nil
}

func (s *Service) UserProfile(ctx context.Context, session Session) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	stats, err := s.contributionStats(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	follows, err := s.store.ListFollows(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	stats["following"] = len(follows)

	payload := userSummaryPayload(user)
	payload["email"] = user.Email
	payload["emailVerified"] = user.IsEmailVerified
	payload["stats"] = stats
	payload["createdAt"] = user.CreatedAt.Format(time.RFC3339)
	return payload, nil
}

type UpdateProfileInput struct {
	DisplayName *string `json:"displayName" validate:"omitempty,min=1,max=80"`
	Department  *string `json:"department" validate:"omitempty,max=80"`
	AvatarURL   *string `json:"avatarUrl" validate:"omitempty,max=400"`
}

func (s *Service) UpdateProfile(ctx context.Context, session Session, input UpdateProfileInput) (map[string]any, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	displayName := user.DisplayName
	if input.DisplayName != nil {
		displayName = strings.TrimSpace(*input.DisplayName)
	}
	if displayName == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "displayName cannot be blank", nil)
	}
	department := user.Department
	if input.Department != nil {
		department = strings.TrimSpace(*input.Department)
	}
	avatarURL := user.AvatarURL
	if input.AvatarURL != nil {
		avatarURL = strings.TrimSpace(*input.AvatarURL)
	}

	if err := s.store.UpdateUserProfile(ctx, user.ID, displayName, department, avatarURL); err != nil {
		return nil, err
	}
	return s.UserProfile(ctx, session)
}

func (s *Service) PublicProfile(ctx context.Context, userID string) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats, err := s.contributionStats(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	payload := userSummaryPayload(user)
	payload["stats"] = stats
	payload["createdAt"] = user.CreatedAt.Format(time.RFC3339)
	return payload, nil
}

func (s *Service) contributionStats(ctx context.Context, userID string) (map[string]any, error) {
	_, submissions, err := s.store.ListIdeas(ctx, store.IdeaFilter{SubmitterID: userID, Limit: 1})
	if err != nil {
		return nil, err
	}
	_, implemented, err := s.store.ListIdeas(ctx, store.IdeaFilter{SubmitterID: userID, Status: "implemented", Limit: 1})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"submissions": submissions,
		"implemented": implemented,
	}, nil
}

func (s *Service) viewerSets(ctx context.Context, userID string) (map[string]bool, map[string]bool, error) {
	votes, err := s.store.ListUserVotes(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	follows, err := s.store.ListFollows(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	votedSet := make(map[string]bool, len(votes))
	for _, id := range votes {
		votedSet[id] = true
	}
	followSet := make(map[string]bool, len(follows))
	for _, follow := range follows {
		followSet[follow.ItemID] = true
	}
	return votedSet, followSet, nil
}

func searchRecord(idea store.Idea) search.IdeaRecord {
	return search.IdeaRecord{
		ID:          idea.ID,
		Title:       idea.Title,
		Description: idea.Description,
		Impact:      idea.Impact,
		Category:    idea.Category,
		Status:      idea.Status,
		Department:  idea.Department,
		Tags:        idea.Tags,
	}
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}

func clampPage(limit, offset, fallback, ceiling int) (int, int) {
	if limit <= 0 {
		limit = fallback
	}
	if limit > ceiling {
		limit = ceiling
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
