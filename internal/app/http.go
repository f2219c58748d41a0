package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"ideahub/api/internal/auth"
	"ideahub/api/internal/config"
	"ideahub/api/internal/rbac"
)

const (
	sessionCookieName = "ideahub_token"
	refreshCookieName = "ideahub_refresh"

	maxSubmissionFiles = 5
)

type HTTPServer struct {
	service *Service
	cfg     config.Config
	logger  *zap.Logger
}

func NewHTTPServer(service *Service, cfg config.Config, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{service: service, cfg: cfg, logger: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

// forbid writes a 403 Forbidden response and logs the denial
func (s *HTTPServer) forbid(w http.ResponseWriter, r *http.Request, session Session, action rbac.Action) {
	s.logger.Debug("denied",
		zap.String("user_id", session.UserID),
		zap.String("role", session.Role),
		zap.String("action", string(action)),
		zap.String("path", r.URL.Path),
	)
	writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Account routes, no session required
	if r.Method == http.MethodPost && r.URL.Path == "/api/register" {
		s.handleRegister(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/login" {
		s.handleLogin(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		s.handleRefresh(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/verify-email" {
		var body struct {
			Token string `json:"token"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.VerifyEmail(r.Context(), body.Token); err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Email verified successfully"})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/password-reset/request" {
		s.handlePasswordResetRequest(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/password-reset/confirm" {
		var body struct {
			Token       string `json:"token"`
			NewPassword string `json:"newPassword"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.ResetPassword(r.Context(), body.Token, body.NewPassword); err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Password reset successfully"})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := s.sessionToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userName":      session.UserName,
			"userId":        session.UserID,
			"role":          session.Role,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/logout" {
		s.handleLogout(w, r)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.URL.Path == "/api/user" {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.UserProfile(r.Context(), session)
			s.respond(w, r, payload, err)
		case http.MethodPatch:
			var input UpdateProfileInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateProfile(r.Context(), session, input)
			s.respond(w, r, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if r.URL.Path == "/api/ideas" {
		switch r.Method {
		case http.MethodGet:
			s.handleListIdeas(w, r, session)
		case http.MethodPost:
			if !s.service.Can(session.Role, rbac.ActionSubmit) {
				s.forbid(w, r, session, rbac.ActionSubmit)
				return
			}
			s.handleSubmitIdea(w, r, session)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/follows" {
		payload, err := s.service.FollowedIdeas(r.Context(), session)
		s.respond(w, r, payload, err)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/assignments" {
		if !s.service.Can(session.Role, rbac.ActionQueue) {
			s.forbid(w, r, session, rbac.ActionQueue)
			return
		}
		payload, err := s.service.AssignmentQueue(r.Context(), session)
		s.respond(w, r, payload, err)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/leaderboard" {
		s.handleLeaderboard(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/metrics" {
		payload, err := s.service.Metrics(r.Context())
		s.respond(w, r, payload, err)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		query := r.URL.Query()
		limit, err := queryInt(query.Get("limit"), 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		offset, err := queryInt(query.Get("offset"), 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "offset must be an integer", nil)
			return
		}
		payload, err := s.service.Search(r.Context(), query.Get("q"), strings.TrimSpace(query.Get("type")), limit, offset)
		s.respond(w, r, payload, err)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/departments" {
		payload, err := s.service.Departments(r.Context())
		s.respond(w, r, payload, err)
		return
	}

	if r.URL.Path == "/api/notifications" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		query := r.URL.Query()
		unreadOnly := query.Get("unread") == "true" || query.Get("unread") == "1"
		limit, err := queryInt(query.Get("limit"), 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		offset, err := queryInt(query.Get("offset"), 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "offset must be an integer", nil)
			return
		}
		payload, err := s.service.Notifications(r.Context(), session, unreadOnly, limit, offset)
		s.respond(w, r, payload, err)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/notifications/unread-count" {
		payload, err := s.service.UnreadNotificationCount(r.Context(), session)
		s.respond(w, r, payload, err)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/notifications/read-all" {
		payload, err := s.service.MarkAllNotificationsRead(r.Context(), session)
		s.respond(w, r, payload, err)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "users":
		if len(parts) == 3 && r.Method == http.MethodGet {
			payload, err := s.service.PublicProfile(r.Context(), parts[2])
			s.respond(w, r, payload, err)
			return
		}
	case "ideas":
		if len(parts) >= 3 {
			s.handleIdea(w, r, session, parts[2], parts[3:])
			return
		}
	case "attachments":
		if len(parts) == 3 && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
			s.handleAttachment(w, r, parts[2])
			return
		}
	case "charts":
		if len(parts) == 3 && r.Method == http.MethodGet {
			s.handleChart(w, r, parts[2])
			return
		}
	case "notifications":
		if len(parts) == 4 && parts[3] == "read" && r.Method == http.MethodPatch {
			if err := s.service.MarkNotificationRead(r.Context(), session, parts[2]); err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	case "admin":
		s.routeAdmin(w, r, session, parts[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleIdea(w http.ResponseWriter, r *http.Request, session Session, ideaID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.GetIdea(r.Context(), session, ideaID)
			s.respond(w, r, payload, err)
		case http.MethodPatch:
			var input UpdateIdeaInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateIdea(r.Context(), session, ideaID, input)
			s.respond(w, r, payload, err)
		case http.MethodDelete:
			if !s.service.Can(session.Role, rbac.ActionAdmin) {
				s.forbid(w, r, session, rbac.ActionAdmin)
				return
			}
			if err := s.service.DeleteIdea(r.Context(), session, ideaID); err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	switch rest[0] {
	case "vote":
		if !s.service.Can(session.Role, rbac.ActionVote) {
			s.forbid(w, r, session, rbac.ActionVote)
			return
		}
		switch r.Method {
		case http.MethodPost:
			payload, err := s.service.Vote(r.Context(), session, ideaID)
			s.respond(w, r, payload, err)
		case http.MethodDelete:
			payload, err := s.service.Unvote(r.Context(), session, ideaID)
			s.respond(w, r, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return

	case "comments":
		if len(rest) == 2 && r.Method == http.MethodDelete {
			if err := s.service.DeleteComment(r.Context(), session, ideaID, rest[1]); err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
		if len(rest) != 1 {
			break
		}
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.IdeaComments(r.Context(), ideaID)
			s.respond(w, r, payload, err)
		case http.MethodPost:
			if !s.service.Can(session.Role, rbac.ActionComment) {
				s.forbid(w, r, session, rbac.ActionComment)
				return
			}
			var input CommentInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.AddComment(r.Context(), session, ideaID, input)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return

	case "follow":
		if !s.service.Can(session.Role, rbac.ActionFollow) {
			s.forbid(w, r, session, rbac.ActionFollow)
			return
		}
		switch r.Method {
		case http.MethodPost:
			payload, err := s.service.FollowIdea(r.Context(), session, ideaID)
			s.respond(w, r, payload, err)
		case http.MethodDelete:
			payload, err := s.service.UnfollowIdea(r.Context(), session, ideaID)
			s.respond(w, r, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return

	case "join":
		if !s.service.Can(session.Role, rbac.ActionParticipate) {
			s.forbid(w, r, session, rbac.ActionParticipate)
			return
		}
		switch r.Method {
		case http.MethodPost:
			payload, err := s.service.JoinChallenge(r.Context(), session, ideaID)
			s.respond(w, r, payload, err)
		case http.MethodDelete:
			payload, err := s.service.LeaveChallenge(r.Context(), session, ideaID)
			s.respond(w, r, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return

	case "participants":
		if len(rest) == 1 && r.Method == http.MethodGet {
			payload, err := s.service.ChallengeParticipants(r.Context(), ideaID)
			s.respond(w, r, payload, err)
			return
		}

	case "history":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		if len(rest) == 1 {
			limit, err := queryInt(r.URL.Query().Get("limit"), 0)
			if err != nil {
				writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be an integer", nil)
				return
			}
			payload, err := s.service.IdeaHistory(r.Context(), ideaID, limit)
			s.respond(w, r, payload, err)
			return
		}
		if len(rest) == 2 {
			payload, err := s.service.IdeaRevision(r.Context(), ideaID, rest[1])
			s.respond(w, r, payload, err)
			return
		}

	case "export":
		if len(rest) == 1 && r.Method == http.MethodGet {
			s.handleExportIdea(w, r, ideaID)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleListIdeas(w http.ResponseWriter, r *http.Request, session Session) {
	query := r.URL.Query()
	limit, err := queryInt(query.Get("limit"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be an integer", nil)
		return
	}
	offset, err := queryInt(query.Get("offset"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "offset must be an integer", nil)
		return
	}
	payload, err := s.service.ListIdeas(r.Context(), session, IdeaListInput{
		Status:     strings.TrimSpace(query.Get("status")),
		Category:   strings.TrimSpace(query.Get("category")),
		Department: query.Get("department"),
		Tag:        query.Get("tag"),
		Submitter:  strings.TrimSpace(query.Get("submitter")),
		Sort:       strings.TrimSpace(query.Get("sort")),
		Limit:      limit,
		Offset:     offset,
	})
	s.respond(w, r, payload, err)
}

func (s *HTTPServer) handleSubmitIdea(w http.ResponseWriter, r *http.Request, session Session) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		s.handleSubmitIdeaMultipart(w, r, session)
		return
	}

	var input SubmitIdeaInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	idea, err := s.service.SubmitIdea(r.Context(), session, input)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	payload, err := s.service.GetIdea(r.Context(), session, idea.ID)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

// Multipart submissions carry the idea JSON in a "payload" field plus up to
// five "attachments" file parts.
func (s *HTTPServer) handleSubmitIdeaMultipart(w http.ResponseWriter, r *http.Request, session Session) {
	maxBytes := maxSubmissionFiles*(s.cfg.MaxUploadMB<<20) + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart form", nil)
		return
	}

	raw := r.FormValue("payload")
	if strings.TrimSpace(raw) == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "payload form field is required", nil)
		return
	}
	var input SubmitIdeaInput
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid JSON in payload field", nil)
		return
	}

	var files []*multipart.FileHeader
	if r.MultipartForm != nil {
		files = r.MultipartForm.File["attachments"]
	}
	if len(files) > maxSubmissionFiles {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR",
			fmt.Sprintf("at most %d attachments per submission", maxSubmissionFiles), nil)
		return
	}

	idea, err := s.service.SubmitIdea(r.Context(), session, input)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}

	// A failed file does not undo the submission.
	for _, header := range files {
		file, err := header.Open()
		if err != nil {
			s.logger.Warn("open uploaded file", zap.String("filename", header.Filename), zap.Error(err))
			continue
		}
		_, err = s.service.AttachFile(r.Context(), session, idea.ID, header.Filename,
			header.Header.Get("Content-Type"), header.Size, file)
		file.Close()
		if err != nil {
			s.logger.Warn("store uploaded file", zap.String("filename", header.Filename), zap.Error(err))
		}
	}

	payload, err := s.service.GetIdea(r.Context(), session, idea.ID)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *HTTPServer) handleAttachment(w http.ResponseWriter, r *http.Request, attachmentID string) {
	att, reader, err := s.service.OpenAttachment(r.Context(), attachmentID)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	defer reader.Close()

	header := w.Header()
	header.Set("Content-Type", att.ContentType)
	header.Set("Content-Length", strconv.FormatInt(att.Size, 10))
	header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Filename))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.Copy(w, reader)
}

func (s *HTTPServer) handleExportIdea(w http.ResponseWriter, r *http.Request, ideaID string) {
	query := r.URL.Query()
	input := ExportIdeaInput{
		Format:          strings.TrimSpace(query.Get("format")),
		Version:         strings.TrimSpace(query.Get("version")),
		IncludeComments: queryBoolDefault(query.Get("comments"), true),
		IncludeHistory:  queryBoolDefault(query.Get("history"), true),
	}
	result, err := s.service.ExportIdea(r.Context(), ideaID, input)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}

	header := w.Header()
	header.Set("Content-Type", result.MimeType)
	header.Set("Content-Length", strconv.Itoa(len(result.Data)))
	header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleChart(w http.ResponseWriter, r *http.Request, kind string) {
	switch kind {
	case "status-breakdown":
		payload, err := s.service.ChartStatusBreakdown(r.Context())
		s.respond(w, r, payload, err)
	case "category-breakdown":
		payload, err := s.service.ChartCategoryBreakdown(r.Context())
		s.respond(w, r, payload, err)
	case "department-activity":
		payload, err := s.service.ChartDepartmentActivity(r.Context())
		s.respond(w, r, payload, err)
	case "submissions-trend":
		days, err := queryInt(r.URL.Query().Get("days"), 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "days must be an integer", nil)
			return
		}
		payload, err := s.service.ChartSubmissionTrend(r.Context(), days)
		s.respond(w, r, payload, err)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	input := LeaderboardInput{
		Category:   strings.TrimSpace(query.Get("category")),
		Department: query.Get("department"),
	}

	limit, err := queryInt(query.Get("limit"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be an integer", nil)
		return
	}
	input.Limit = limit

	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		from, _, err := parseDateParam(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "from must be YYYY-MM-DD or RFC 3339", nil)
			return
		}
		input.From = &from
	}
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		to, dateOnly, err := parseDateParam(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "to must be YYYY-MM-DD or RFC 3339", nil)
			return
		}
		// The window is half-open, so a bare date covers its whole day.
		if dateOnly {
			to = to.Add(24 * time.Hour)
		}
		input.To = &to
	}

	payload, err := s.service.Leaderboard(r.Context(), input)
	s.respond(w, r, payload, err)
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var input RegisterInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.Register(r.Context(), input)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}

	if result.RequiresVerification {
		writeJSON(w, http.StatusCreated, map[string]any{
			"userId":               result.UserID,
			"requiresVerification": true,
			"message":              "Please check your email to verify your account",
		})
		return
	}

	s.setSessionCookies(w, *result.Session)
	payload := sessionPayload(*result.Session)
	payload["requiresVerification"] = false
	writeJSON(w, http.StatusCreated, payload)
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var input LoginInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.Login(r.Context(), input)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	s.setSessionCookies(w, session)
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decodeBody(r, &body)

	token := strings.TrimSpace(body.RefreshToken)
	if token == "" {
		if cookie, err := r.Cookie(refreshCookieName); err == nil {
			token = cookie.Value
		}
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token missing", nil)
		return
	}

	session, err := s.service.Refresh(r.Context(), token)
	if err != nil {
		s.clearSessionCookies(w)
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
		return
	}
	s.setSessionCookies(w, session)
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	session := Session{}
	if token := s.sessionToken(r); token != "" {
		if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
			session = parsed
		}
	}

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decodeBody(r, &body)
	refresh := strings.TrimSpace(body.RefreshToken)
	if refresh == "" {
		if cookie, err := r.Cookie(refreshCookieName); err == nil {
			refresh = cookie.Value
		}
	}

	_ = s.service.Logout(r.Context(), session, refresh)
	s.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	token, err := s.service.RequestPasswordReset(r.Context(), body.Email)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}

	response := map[string]any{
		"message": "If an account exists, a reset email has been sent",
	}
	// Dev bypass: the service only hands the token back when no mailer is
	// configured.
	if token != "" {
		response["devResetToken"] = token
	}
	writeJSON(w, http.StatusOK, response)
}

// respond writes payload or the mapped error, whichever the service produced.
func (s *HTTPServer) respond(w http.ResponseWriter, r *http.Request, payload any, err error) {
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

// sessionToken pulls the access token from the Authorization header first,
// then the session cookie.
func (s *HTTPServer) sessionToken(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return token
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := s.sessionToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) setSessionCookies(w http.ResponseWriter, session Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.Token,
		Path:     "/",
		Domain:   s.cfg.CookieDomain,
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    session.RefreshToken,
		Path:     "/",
		Domain:   s.cfg.CookieDomain,
		Expires:  time.Now().Add(s.cfg.RefreshTTL),
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *HTTPServer) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{sessionCookieName, refreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Domain:   s.cfg.CookieDomain,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   s.cfg.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"role":         session.Role,
		"expiresAt":    session.ExpiresAt.Unix(),
	}
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.cfg.CORSOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
	if corsOrigin != "*" {
		// Cookie sessions need credentialed CORS.
		header.Set("Access-Control-Allow-Credentials", "true")
	}
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":    code,
		"message": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "INTERNAL", "Server error", nil
}

func queryInt(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func queryBoolDefault(raw string, fallback bool) bool {
	switch strings.TrimSpace(raw) {
	case "true", "1":
		return true
	case "false", "0":
		return false
	default:
		return fallback
	}
}

// parseDateParam accepts a bare date or a full RFC 3339 timestamp and
// reports which form it saw.
func parseDateParam(raw string) (time.Time, bool, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	return t, false, err
}
