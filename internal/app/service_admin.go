package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"ideahub/api/internal/export"
	"ideahub/api/internal/gitrepo"
	"ideahub/api/internal/rbac"
	"ideahub/api/internal/store"
	"ideahub/api/internal/util"
)

var ideaStatuses = map[string]bool{
	"submitted":   true,
	"in-review":   true,
	"merged":      true,
	"parked":      true,
	"implemented": true,
}

// allowedTransitions is the triage workflow. Implemented is terminal.
var allowedTransitions = map[string][]string{
	"submitted":   {"in-review", "parked"},
	"in-review":   {"merged", "parked", "implemented"},
	"merged":      {"implemented", "parked"},
	"parked":      {"in-review"},
	"implemented": {},
}

func transitionAllowed(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type StatusChangeInput struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=2000"`
}

func (s *Service) ChangeIdeaStatus(ctx context.Context, session Session, ideaID string, input StatusChangeInput) (map[string]any, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if !ideaStatuses[input.Status] {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "unknown status", map[string]any{"status": input.Status})
	}

	idea, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	if idea.Status == input.Status {
		return nil, domainError(http.StatusConflict, "CONFLICT", fmt.Sprintf("Idea is already %s", idea.Status), nil)
	}
	if !transitionAllowed(idea.Status, input.Status) {
		return nil, domainError(http.StatusConflict, "CONFLICT",
			fmt.Sprintf("Cannot move from %s to %s", idea.Status, input.Status), nil)
	}

	if err := s.store.UpdateIdeaStatus(ctx, ideaID, input.Status); err != nil {
		return nil, err
	}
	if err := s.store.InsertStatusChange(ctx, store.StatusChange{
		ID:         util.NewID("stc"),
		IdeaID:     ideaID,
		FromStatus: idea.Status,
		ToStatus:   input.Status,
		Note:       strings.TrimSpace(input.Note),
		ChangedBy:  session.UserID,
	}); err != nil {
		return nil, err
	}

	updated, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	if _, err := s.git.CommitSnapshot(ideaID, gitrepo.SnapshotFromIdea(updated), session.UserName, "Status: "+input.Status); err != nil {
		s.logger.Warn("commit status revision", zap.String("idea_id", ideaID), zap.Error(err))
	}
	s.search.IndexIdea(searchRecord(updated))
	s.notifyStatusChange(ctx, session, updated, idea.Status)

	return s.GetIdea(ctx, session, ideaID)
}

// notifyStatusChange tells the submitter and every follower, minus the
// actor, that the idea moved.
func (s *Service) notifyStatusChange(ctx context.Context, session Session, idea store.Idea, from string) {
	recipients := map[string]bool{idea.SubmitterID: true}
	followers, err := s.store.ListFollowerIDs(ctx, idea.ID)
	if err != nil {
		s.logger.Warn("list followers", zap.String("idea_id", idea.ID), zap.Error(err))
	}
	for _, id := range followers {
		recipients[id] = true
	}
	delete(recipients, session.UserID)

	actorID := session.UserID
	message := fmt.Sprintf("%q moved from %s to %s.", idea.Title, from, idea.Status)
	for id := range recipients {
		s.notify(ctx, id, "Status changed", message, "status", &idea.ID, &actorID)
	}
}

// AssignmentsInput distinguishes an absent slot (keep as is) from an
// explicit null (clear) and an object (set).
type AssignmentsInput struct {
	Reviewer    json.RawMessage `json:"reviewer"`
	Transformer json.RawMessage `json:"transformer"`
	Implementer json.RawMessage `json:"implementer"`
}

type assignmentSlotInput struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

func (s *Service) SetIdeaAssignments(ctx context.Context, session Session, ideaID string, input AssignmentsInput) (map[string]any, error) {
	idea, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}

	reviewer, err := s.resolveAssignment(ctx, input.Reviewer, idea.Reviewer)
	if err != nil {
		return nil, err
	}
	transformer, err := s.resolveAssignment(ctx, input.Transformer, idea.Transformer)
	if err != nil {
		return nil, err
	}
	implementer, err := s.resolveAssignment(ctx, input.Implementer, idea.Implementer)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateIdeaAssignments(ctx, ideaID, reviewer, transformer, implementer); err != nil {
		return nil, err
	}

	s.announceAssignment(ctx, session, idea, "reviewer", idea.Reviewer, reviewer)
	s.announceAssignment(ctx, session, idea, "transformer", idea.Transformer, transformer)
	s.announceAssignment(ctx, session, idea, "implementer", idea.Implementer, implementer)

	return s.GetIdea(ctx, session, ideaID)
}

// resolveAssignment turns one wire slot into a stored assignment. An email
// with no matching account becomes a pending invitation.
func (s *Service) resolveAssignment(ctx context.Context, raw json.RawMessage, current store.Assignment) (store.Assignment, error) {
	if len(raw) == 0 {
		return current, nil
	}
	if string(raw) == "null" {
		return store.Assignment{}, nil
	}

	var slot assignmentSlotInput
	if err := json.Unmarshal(raw, &slot); err != nil {
		return store.Assignment{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "assignment must be null or an object", nil)
	}

	if slot.UserID != "" {
		user, err := s.store.GetUserByID(ctx, slot.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.Assignment{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "assigned user does not exist", nil)
			}
			return store.Assignment{}, err
		}
		return store.Assignment{UserID: user.ID}, nil
	}

	email := strings.ToLower(strings.TrimSpace(slot.Email))
	if email == "" {
		return store.Assignment{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "assignment requires userId or email", nil)
	}
	if err := validate.Var(email, "email"); err != nil {
		return store.Assignment{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "invalid email address", nil)
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return store.Assignment{UserID: user.ID}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.Assignment{}, err
	}
	return store.Assignment{Email: email}, nil
}

func (s *Service) announceAssignment(ctx context.Context, session Session, idea store.Idea, slotName string, previous, next store.Assignment) {
	if next == previous {
		return
	}
	if next.UserID != "" && next.UserID != session.UserID {
		actorID := session.UserID
		s.notify(ctx, next.UserID, "New assignment",
			fmt.Sprintf("You were assigned as %s for %q.", slotName, idea.Title), "assignment", &idea.ID, &actorID)
	}
	if next.Email != "" {
		s.sendAssignmentInvite(next.Email, idea.Title, slotName)
	}
}

func (s *Service) sendAssignmentInvite(address, ideaTitle, slotName string) {
	if s.mailer == nil || !s.mailer.IsConfigured() {
		return
	}
	inviteURL := s.cfg.BaseURL + "/register?email=" + url.QueryEscape(address)
	go func() {
		if err := s.mailer.SendAssignmentInvitation(address, ideaTitle, slotName, inviteURL); err != nil {
			s.logger.Warn("send assignment invitation", zap.String("email", address), zap.Error(err))
		}
	}()
}

func (s *Service) AdminListUsers(ctx context.Context, searchTerm string, limit, offset int) (map[string]any, error) {
	limit, offset = clampPage(limit, offset, 50, 200)
	users, total, err := s.store.ListUsers(ctx, strings.TrimSpace(searchTerm), limit, offset)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(users))
	for _, user := range users {
		items = append(items, adminUserPayload(user))
	}
	return map[string]any{
		"items":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	}, nil
}

type AdminUpdateUserInput struct {
	DisplayName *string `json:"displayName" validate:"omitempty,min=1,max=80"`
	Department  *string `json:"department" validate:"omitempty,max=80"`
}

func (s *Service) AdminUpdateUser(ctx context.Context, userID string, input AdminUpdateUserInput) (map[string]any, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
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

	if err := s.store.UpdateUserProfile(ctx, user.ID, displayName, department, user.AvatarURL); err != nil {
		return nil, err
	}
	updated, err := s.store.GetUserByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return adminUserPayload(updated), nil
}

type UpdateRoleInput struct {
	Role string `json:"role" validate:"required"`
}

func (s *Service) AdminUpdateUserRole(ctx context.Context, session Session, userID string, input UpdateRoleInput) (map[string]any, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	switch rbac.Role(input.Role) {
	case rbac.RoleUser, rbac.RoleReviewer, rbac.RoleTransformer, rbac.RoleImplementer, rbac.RoleAdmin:
	default:
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "unknown role", map[string]any{"role": input.Role})
	}
	if userID == session.UserID {
		return nil, domainError(http.StatusConflict, "CONFLICT", "Cannot change your own role", nil)
	}

	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.store.UpdateUserRole(ctx, userID, input.Role); err != nil {
		return nil, err
	}
	updated, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return adminUserPayload(updated), nil
}

func (s *Service) AdminDeleteUser(ctx context.Context, session Session, userID string) error {
	if userID == session.UserID {
		return domainError(http.StatusConflict, "CONFLICT", "Cannot delete your own account", nil)
	}
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return err
	}
	return s.store.DeleteUser(ctx, userID)
}

func adminUserPayload(user store.User) map[string]any {
	payload := userSummaryPayload(user)
	payload["email"] = user.Email
	payload["emailVerified"] = user.IsEmailVerified
	payload["createdAt"] = user.CreatedAt.Format(time.RFC3339)
	return payload
}

func (s *Service) AdminExportIdeas(ctx context.Context) (*export.Result, error) {
	ideas, _, err := s.store.ListIdeas(ctx, store.IdeaFilter{Sort: "new", Limit: 10000})
	if err != nil {
		return nil, err
	}
	rows := make([]export.IdeaRow, 0, len(ideas))
	for _, idea := range ideas {
		row := export.IdeaRow{
			ID:         idea.ID,
			Title:      idea.Title,
			Category:   idea.Category,
			Status:     idea.Status,
			Priority:   idea.Priority,
			Department: idea.Department,
			Submitter:  idea.SubmitterName,
			Votes:      idea.Votes,
			Comments:   idea.CommentCount,
			CreatedAt:  idea.CreatedAt,
		}
		if idea.CostSaved != nil {
			row.CostSaved = *idea.CostSaved
		}
		if idea.RevenueGenerated != nil {
			row.RevenueGenerated = *idea.RevenueGenerated
		}
		rows = append(rows, row)
	}
	return export.IdeasSpreadsheet(rows)
}

func (s *Service) AdminExportLeaderboard(ctx context.Context) (*export.Result, error) {
	rows, err := s.store.Leaderboard(ctx, store.LeaderboardFilter{Limit: 100})
	if err != nil {
		return nil, err
	}
	entries := make([]export.LeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, export.LeaderboardEntry{
			DisplayName:   row.DisplayName,
			Department:    row.Department,
			Submissions:   row.Submissions,
			Implemented:   row.Implemented,
			VotesReceived: row.VotesReceived,
			ImpactScore:   row.ImpactScore,
		})
	}
	return export.LeaderboardSpreadsheet(entries)
}
