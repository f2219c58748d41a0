package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"ideahub/api/internal/store"
)

// wireIdeaWorld gives the fake store enough shared state for idea flows to
// round-trip over HTTP: inserts land in a map, votes count per user.
func wireIdeaWorld(fs *fakeStore) map[string]store.Idea {
	ideas := map[string]store.Idea{}
	votes := map[string]map[string]bool{}
	comments := map[string]store.Comment{}

	fs.insertIdeaFn = func(_ context.Context, idea store.Idea) error {
		ideas[idea.ID] = idea
		return nil
	}
	fs.getIdeaFn = func(_ context.Context, ideaID string) (store.Idea, error) {
		idea, ok := ideas[ideaID]
		if !ok {
			return store.Idea{}, sql.ErrNoRows
		}
		return idea, nil
	}
	fs.listIdeasFn = func(_ context.Context, _ store.IdeaFilter) ([]store.Idea, int, error) {
		items := make([]store.Idea, 0, len(ideas))
		for _, idea := range ideas {
			items = append(items, idea)
		}
		return items, len(items), nil
	}
	fs.deleteIdeaFn = func(_ context.Context, ideaID string) error {
		delete(ideas, ideaID)
		return nil
	}
	fs.addVoteFn = func(_ context.Context, ideaID, userID string) (int, bool, error) {
		set := votes[ideaID]
		if set == nil {
			set = map[string]bool{}
			votes[ideaID] = set
		}
		if set[userID] {
			return len(set), false, nil
		}
		set[userID] = true
		idea := ideas[ideaID]
		idea.Votes = len(set)
		ideas[ideaID] = idea
		return len(set), true, nil
	}
	fs.removeVoteFn = func(_ context.Context, ideaID, userID string) (int, bool, error) {
		set := votes[ideaID]
		if set == nil || !set[userID] {
			return len(set), false, nil
		}
		delete(set, userID)
		idea := ideas[ideaID]
		idea.Votes = len(set)
		ideas[ideaID] = idea
		return len(set), true, nil
	}
	fs.insertCommentFn = func(_ context.Context, comment store.Comment) error {
		comments[comment.ID] = comment
		return nil
	}
	fs.getCommentFn = func(_ context.Context, commentID string) (store.Comment, error) {
		comment, ok := comments[commentID]
		if !ok {
			return store.Comment{}, sql.ErrNoRows
		}
		return comment, nil
	}
	return ideas
}

func registerNamed(t *testing.T, server *HTTPServer, username, address, displayName string) (string, string) {
	t.Helper()
	body := fmt.Sprintf(`{"username":%q,"email":%q,"password":"hunter2hunter2","displayName":%q}`,
		username, address, displayName)
	req := httptest.NewRequest(http.MethodPost, "/api/register", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	token, _ := payload["token"].(string)
	userID, _ := payload["userId"].(string)
	if token == "" || userID == "" {
		t.Fatalf("expected a session from registration, got %v", payload)
	}
	return token, userID
}

func doJSON(t *testing.T, server *HTTPServer, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body == "" {
		reader = bytes.NewBufferString("")
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func parseBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func TestIdeaVoteLifecycle(t *testing.T) {
	fs := &fakeStore{}
	seedUserStore(fs)
	wireIdeaWorld(fs)
	svc := newTestService(fs, &fakeGit{})
	server := NewHTTPServer(svc, svc.cfg, nil)

	aliceToken, _ := registerNamed(t, server, "alice", "alice@example.com", "Alice")
	bobToken, _ := registerNamed(t, server, "bob", "bob@example.com", "Bob")

	rr := doJSON(t, server, http.MethodPost, "/api/ideas", aliceToken,
		`{"title":"Slow API response times","description":"The dashboard API takes seconds to answer during peak hours.","category":"pain-point"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	created := parseBody(t, rr)
	ideaID, _ := created["id"].(string)
	if ideaID == "" {
		t.Fatalf("expected an idea id, got %v", created)
	}
	if created["status"] != "submitted" {
		t.Fatalf("expected status submitted, got %v", created["status"])
	}
	if created["votes"] != float64(0) {
		t.Fatalf("expected zero votes, got %v", created["votes"])
	}

	rr = doJSON(t, server, http.MethodPost, "/api/ideas/"+ideaID+"/vote", bobToken, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	voted := parseBody(t, rr)
	if voted["votes"] != float64(1) || voted["voted"] != true {
		t.Fatalf("expected votes=1 voted=true, got %v", voted)
	}

	// A second vote from the same user does not double count.
	rr = doJSON(t, server, http.MethodPost, "/api/ideas/"+ideaID+"/vote", bobToken, "")
	voted = parseBody(t, rr)
	if voted["votes"] != float64(1) {
		t.Fatalf("expected votes to stay at 1, got %v", voted)
	}

	rr = doJSON(t, server, http.MethodDelete, "/api/ideas/"+ideaID+"/vote", bobToken, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	unvoted := parseBody(t, rr)
	if unvoted["votes"] != float64(0) || unvoted["voted"] != false {
		t.Fatalf("expected votes=0 voted=false, got %v", unvoted)
	}

	rr = doJSON(t, server, http.MethodGet, "/api/ideas", aliceToken, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	list := parseBody(t, rr)
	if list["total"] != float64(1) {
		t.Fatalf("expected one idea listed, got %v", list["total"])
	}
}

func TestIdeaCommentCreatedOverHTTP(t *testing.T) {
	fs := &fakeStore{}
	seedUserStore(fs)
	wireIdeaWorld(fs)
	svc := newTestService(fs, &fakeGit{})
	server := NewHTTPServer(svc, svc.cfg, nil)

	aliceToken, _ := registerNamed(t, server, "alice", "alice@example.com", "Alice")
	bobToken, bobID := registerNamed(t, server, "bob", "bob@example.com", "Bob")

	rr := doJSON(t, server, http.MethodPost, "/api/ideas", aliceToken,
		`{"title":"Slow API response times","description":"The dashboard API takes seconds to answer during peak hours.","category":"pain-point"}`)
	ideaID, _ := parseBody(t, rr)["id"].(string)

	rr = doJSON(t, server, http.MethodPost, "/api/ideas/"+ideaID+"/comments", bobToken,
		`{"body":"Seeing the same from the mobile client."}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	comment := parseBody(t, rr)
	if comment["body"] != "Seeing the same from the mobile client." {
		t.Fatalf("expected the comment body echoed, got %v", comment["body"])
	}
	author, _ := comment["author"].(map[string]any)
	if author["id"] != bobID {
		t.Fatalf("expected author %s, got %v", bobID, comment["author"])
	}
}

func TestDeleteIdeaRequiresAdminRole(t *testing.T) {
	fs := &fakeStore{}
	users := seedUserStore(fs)
	wireIdeaWorld(fs)
	svc := newTestService(fs, &fakeGit{})
	server := NewHTTPServer(svc, svc.cfg, nil)

	aliceToken, _ := registerNamed(t, server, "alice", "alice@example.com", "Alice")
	bobToken, bobID := registerNamed(t, server, "bob", "bob@example.com", "Bob")

	rr := doJSON(t, server, http.MethodPost, "/api/ideas", aliceToken,
		`{"title":"Slow API response times","description":"The dashboard API takes seconds to answer during peak hours.","category":"pain-point"}`)
	ideaID, _ := parseBody(t, rr)["id"].(string)

	rr = doJSON(t, server, http.MethodDelete, "/api/ideas/"+ideaID, bobToken, "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d body=%s", rr.Code, rr.Body.String())
	}
	if parseBody(t, rr)["code"] != "FORBIDDEN" {
		t.Fatalf("expected code FORBIDDEN, got %s", rr.Body.String())
	}

	// Roles are read from the user record on every request.
	users[bobID].Role = "admin"

	rr = doJSON(t, server, http.MethodDelete, "/api/ideas/"+ideaID, bobToken, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodGet, "/api/ideas/"+ideaID, aliceToken, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 after deletion, got %d body=%s", rr.Code, rr.Body.String())
	}
	if parseBody(t, rr)["code"] != "NOT_FOUND" {
		t.Fatalf("expected code NOT_FOUND, got %s", rr.Body.String())
	}
}

func TestSubmitIdeaRejectsUnknownCategory(t *testing.T) {
	fs := &fakeStore{}
	seedUserStore(fs)
	svc := newTestService(fs, &fakeGit{})
	server := NewHTTPServer(svc, svc.cfg, nil)
	aliceToken, _ := registerNamed(t, server, "alice", "alice@example.com", "Alice")

	rr := doJSON(t, server, http.MethodPost, "/api/ideas", aliceToken,
		`{"title":"Slow API response times","description":"The dashboard API takes seconds to answer during peak hours.","category":"rant"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d body=%s", rr.Code, rr.Body.String())
	}
	if parseBody(t, rr)["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected code VALIDATION_ERROR, got %s", rr.Body.String())
	}
}

func TestMethodNotAllowedOnKnownPaths(t *testing.T) {
	fs := &fakeStore{}
	seedUserStore(fs)
	svc := newTestService(fs, &fakeGit{})
	server := NewHTTPServer(svc, svc.cfg, nil)
	aliceToken, _ := registerNamed(t, server, "alice", "alice@example.com", "Alice")

	rr := doJSON(t, server, http.MethodPut, "/api/user", aliceToken, `{}`)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d body=%s", rr.Code, rr.Body.String())
	}
	if parseBody(t, rr)["code"] != "METHOD_NOT_ALLOWED" {
		t.Fatalf("expected code METHOD_NOT_ALLOWED, got %s", rr.Body.String())
	}
}
