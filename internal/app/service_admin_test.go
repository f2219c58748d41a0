package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"ideahub/api/internal/store"
)

func adminSession() Session {
	return Session{UserID: "usr_admin", UserName: "Dana", Role: "admin"}
}

func TestChangeIdeaStatusWorkflow(t *testing.T) {
	status := "submitted"
	var change store.StatusChange
	var notifications []store.Notification
	fs := &fakeStore{
		getIdeaFn: func(_ context.Context, ideaID string) (store.Idea, error) {
			return store.Idea{ID: ideaID, Title: "Faster CI pipelines", Status: status, SubmitterID: "usr_a"}, nil
		},
		updateIdeaStatusFn: func(_ context.Context, _, next string) error {
			status = next
			return nil
		},
		insertStatusChangeFn: func(_ context.Context, c store.StatusChange) error {
			change = c
			return nil
		},
		listFollowerIDsFn: func(context.Context, string) ([]string, error) {
			return []string{"usr_x", "usr_admin"}, nil
		},
		insertNotificationFn: func(_ context.Context, n store.Notification) error {
			notifications = append(notifications, n)
			return nil
		},
	}
	svc := newTestService(fs, &fakeGit{})

	_, err := svc.ChangeIdeaStatus(context.Background(), adminSession(), "idea_1", StatusChangeInput{Status: "archived"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown status, got %v", err)
	}

	_, err = svc.ChangeIdeaStatus(context.Background(), adminSession(), "idea_1", StatusChangeInput{Status: "submitted"})
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusConflict {
		t.Fatalf("expected 409 for a no-op transition, got %v", err)
	}

	_, err = svc.ChangeIdeaStatus(context.Background(), adminSession(), "idea_1", StatusChangeInput{Status: "merged"})
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusConflict {
		t.Fatalf("expected 409 for submitted to merged, got %v", err)
	}

	if _, err := svc.ChangeIdeaStatus(context.Background(), adminSession(), "idea_1", StatusChangeInput{
		Status: "in-review",
		Note:   "  Picked up by platform  ",
	}); err != nil {
		t.Fatalf("ChangeIdeaStatus() error = %v", err)
	}
	if change.FromStatus != "submitted" || change.ToStatus != "in-review" {
		t.Fatalf("expected a submitted to in-review audit row, got %+v", change)
	}
	if change.Note != "Picked up by platform" {
		t.Fatalf("expected a trimmed note, got %q", change.Note)
	}
	if change.ChangedBy != "usr_admin" {
		t.Fatalf("expected the actor recorded, got %q", change.ChangedBy)
	}

	// Submitter and follower are told; the acting admin is not.
	recipients := map[string]bool{}
	for _, n := range notifications {
		if n.Type != "status" {
			t.Fatalf("expected status notifications, got %+v", n)
		}
		recipients[n.UserID] = true
	}
	if len(recipients) != 2 || !recipients["usr_a"] || !recipients["usr_x"] {
		t.Fatalf("expected usr_a and usr_x notified, got %v", recipients)
	}

	status = "implemented"
	_, err = svc.ChangeIdeaStatus(context.Background(), adminSession(), "idea_1", StatusChangeInput{Status: "parked"})
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusConflict {
		t.Fatalf("expected implemented to be terminal, got %v", err)
	}
}

func TestSetIdeaAssignmentsResolvesSlots(t *testing.T) {
	var saved [3]store.Assignment
	var notifications []store.Notification
	fs := &fakeStore{
		getIdeaFn: func(_ context.Context, ideaID string) (store.Idea, error) {
			return store.Idea{
				ID:          ideaID,
				Title:       "Faster CI pipelines",
				Status:      "in-review",
				SubmitterID: "usr_a",
				Reviewer:    store.Assignment{UserID: "usr_r"},
				Implementer: store.Assignment{UserID: "usr_i"},
			}, nil
		},
		getUserByEmailFn: func(_ context.Context, address string) (store.User, error) {
			if address == "casey@example.com" {
				return store.User{ID: "usr_c", Email: address}, nil
			}
			return store.User{}, sql.ErrNoRows
		},
		updateIdeaAssignmentsFn: func(_ context.Context, _ string, reviewer, transformer, implementer store.Assignment) error {
			saved = [3]store.Assignment{reviewer, transformer, implementer}
			return nil
		},
		insertNotificationFn: func(_ context.Context, n store.Notification) error {
			notifications = append(notifications, n)
			return nil
		},
	}
	svc := newTestService(fs, &fakeGit{})

	if _, err := svc.SetIdeaAssignments(context.Background(), adminSession(), "idea_1", AssignmentsInput{
		Transformer: json.RawMessage(`{"email":"Casey@Example.com"}`),
		Implementer: json.RawMessage(`null`),
	}); err != nil {
		t.Fatalf("SetIdeaAssignments() error = %v", err)
	}

	if saved[0].UserID != "usr_r" {
		t.Fatalf("expected the absent reviewer slot kept, got %+v", saved[0])
	}
	if saved[1].UserID != "usr_c" || saved[1].Email != "" {
		t.Fatalf("expected the email resolved to an account, got %+v", saved[1])
	}
	if !saved[2].Empty() {
		t.Fatalf("expected the null implementer slot cleared, got %+v", saved[2])
	}
	if len(notifications) != 1 || notifications[0].UserID != "usr_c" || notifications[0].Type != "assignment" {
		t.Fatalf("expected one assignment notification for usr_c, got %+v", notifications)
	}
}

func TestSetIdeaAssignmentsPendingInvitation(t *testing.T) {
	var saved store.Assignment
	var notifications []store.Notification
	fs := &fakeStore{
		getIdeaFn: func(_ context.Context, ideaID string) (store.Idea, error) {
			return store.Idea{ID: ideaID, Title: "Faster CI pipelines", SubmitterID: "usr_a"}, nil
		},
		updateIdeaAssignmentsFn: func(_ context.Context, _ string, reviewer, _, _ store.Assignment) error {
			saved = reviewer
			return nil
		},
		insertNotificationFn: func(_ context.Context, n store.Notification) error {
			notifications = append(notifications, n)
			return nil
		},
	}
	svc := newTestService(fs, &fakeGit{})

	if _, err := svc.SetIdeaAssignments(context.Background(), adminSession(), "idea_1", AssignmentsInput{
		Reviewer: json.RawMessage(`{"email":"newhire@example.com"}`),
	}); err != nil {
		t.Fatalf("SetIdeaAssignments() error = %v", err)
	}
	if saved.Email != "newhire@example.com" || saved.UserID != "" {
		t.Fatalf("expected a pending email assignment, got %+v", saved)
	}
	if len(notifications) != 0 {
		t.Fatalf("expected no in-app notification for a pending invitation, got %+v", notifications)
	}
}

func TestSetIdeaAssignmentsRejectsBadSlots(t *testing.T) {
	fs := &fakeStore{
		getIdeaFn: func(_ context.Context, ideaID string) (store.Idea, error) {
			return store.Idea{ID: ideaID, Title: "Faster CI pipelines", SubmitterID: "usr_a"}, nil
		},
	}
	svc := newTestService(fs, &fakeGit{})

	cases := []struct {
		name string
		raw  string
	}{
		{"unknown user", `{"userId":"usr_missing"}`},
		{"invalid email", `{"email":"not-an-email"}`},
		{"empty slot", `{}`},
		{"wrong shape", `"usr_1"`},
	}
	for _, tc := range cases {
		_, err := svc.SetIdeaAssignments(context.Background(), adminSession(), "idea_1", AssignmentsInput{
			Reviewer: json.RawMessage(tc.raw),
		})
		var domainErr *DomainError
		if !errors.As(err, &domainErr) || domainErr.Status != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %v", tc.name, err)
		}
	}
}

func TestAdminUpdateUserRoleGuards(t *testing.T) {
	role := "user"
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, userID string) (store.User, error) {
			return store.User{ID: userID, Username: "bob", DisplayName: "Bob", Role: role}, nil
		},
		updateUserRoleFn: func(_ context.Context, _, next string) error {
			role = next
			return nil
		},
	}
	svc := newTestService(fs, &fakeGit{})

	_, err := svc.AdminUpdateUserRole(context.Background(), adminSession(), "usr_b", UpdateRoleInput{Role: "superuser"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown role, got %v", err)
	}

	_, err = svc.AdminUpdateUserRole(context.Background(), adminSession(), "usr_admin", UpdateRoleInput{Role: "user"})
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusConflict {
		t.Fatalf("expected 409 for a self role change, got %v", err)
	}

	payload, err := svc.AdminUpdateUserRole(context.Background(), adminSession(), "usr_b", UpdateRoleInput{Role: "reviewer"})
	if err != nil {
		t.Fatalf("AdminUpdateUserRole() error = %v", err)
	}
	if payload["role"] != "reviewer" {
		t.Fatalf("expected the new role in the payload, got %v", payload["role"])
	}
}

func TestAdminDeleteUserGuards(t *testing.T) {
	var deleted string
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, userID string) (store.User, error) {
			if userID == "usr_b" {
				return store.User{ID: userID}, nil
			}
			return store.User{}, sql.ErrNoRows
		},
		deleteUserFn: func(_ context.Context, userID string) error {
			deleted = userID
			return nil
		},
	}
	svc := newTestService(fs, &fakeGit{})

	err := svc.AdminDeleteUser(context.Background(), adminSession(), "usr_admin")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusConflict {
		t.Fatalf("expected 409 for self deletion, got %v", err)
	}

	if err := svc.AdminDeleteUser(context.Background(), adminSession(), "usr_missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected a missing-user error, got %v", err)
	}

	if err := svc.AdminDeleteUser(context.Background(), adminSession(), "usr_b"); err != nil {
		t.Fatalf("AdminDeleteUser() error = %v", err)
	}
	if deleted != "usr_b" {
		t.Fatalf("expected usr_b deleted, got %q", deleted)
	}
}

func TestAdminExportIdeasBuildsWorkbook(t *testing.T) {
	cost := 1200.50
	fs := &fakeStore{
		listIdeasFn: func(context.Context, store.IdeaFilter) ([]store.Idea, int, error) {
			return []store.Idea{
				{ID: "idea_1", Title: "Faster CI pipelines", Category: "idea", Status: "implemented", Votes: 12, CostSaved: &cost},
				{ID: "idea_2", Title: "Slow API response times", Category: "pain-point", Status: "in-review", Votes: 4},
			}, 2, nil
		},
	}
	svc := newTestService(fs, &fakeGit{})

	result, err := svc.AdminExportIdeas(context.Background())
	if err != nil {
		t.Fatalf("AdminExportIdeas() error = %v", err)
	}
	if len(result.Data) == 0 {
		t.Fatalf("expected workbook bytes")
	}
	if !strings.HasPrefix(result.Filename, "ideas-") || !strings.HasSuffix(result.Filename, ".xlsx") {
		t.Fatalf("expected a dated .xlsx filename, got %q", result.Filename)
	}
	if result.MimeType != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("unexpected mime type %q", result.MimeType)
	}
}
