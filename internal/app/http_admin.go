package app

import (
	"fmt"
	"net/http"
	"strconv"

	"ideahub/api/internal/export"
	"ideahub/api/internal/rbac"
)

// routeAdmin dispatches /api/admin/* paths; parts holds the segments after
// "admin". User management needs the admin action, the idea workflow the
// triage action, and spreadsheet exports the export action.
func (s *HTTPServer) routeAdmin(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[0] {
	case "users":
		if !s.service.Can(session.Role, rbac.ActionAdmin) {
			s.forbid(w, r, session, rbac.ActionAdmin)
			return
		}
		s.routeAdminUsers(w, r, session, parts[1:])
	case "ideas":
		if !s.service.Can(session.Role, rbac.ActionTriage) {
			s.forbid(w, r, session, rbac.ActionTriage)
			return
		}
		s.routeAdminIdeas(w, r, session, parts[1:])
	case "export":
		if !s.service.Can(session.Role, rbac.ActionExport) {
			s.forbid(w, r, session, rbac.ActionExport)
			return
		}
		s.routeAdminExport(w, r, parts[1:])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) routeAdminUsers(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 0 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
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
		payload, err := s.service.AdminListUsers(r.Context(), query.Get("search"), limit, offset)
		s.respond(w, r, payload, err)
		return
	}

	userID := parts[0]
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodPatch:
			var input AdminUpdateUserInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.AdminUpdateUser(r.Context(), userID, input)
			s.respond(w, r, payload, err)
		case http.MethodDelete:
			if err := s.service.AdminDeleteUser(r.Context(), session, userID); err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 2 && parts[1] == "role" {
		if r.Method != http.MethodPatch {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		var input UpdateRoleInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.AdminUpdateUserRole(r.Context(), session, userID, input)
		s.respond(w, r, payload, err)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) routeAdminIdeas(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if r.Method != http.MethodPatch {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	ideaID := parts[0]
	switch parts[1] {
	case "status":
		var input StatusChangeInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.ChangeIdeaStatus(r.Context(), session, ideaID, input)
		s.respond(w, r, payload, err)
	case "assignments":
		var input AssignmentsInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.SetIdeaAssignments(r.Context(), session, ideaID, input)
		s.respond(w, r, payload, err)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) routeAdminExport(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	var result *export.Result
	var err error
	switch parts[0] {
	case "ideas.xlsx":
		result, err = s.service.AdminExportIdeas(r.Context())
	case "leaderboard.xlsx":
		result, err = s.service.AdminExportLeaderboard(r.Context())
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
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
