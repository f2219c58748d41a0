package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"ideahub/api/internal/export"
	"ideahub/api/internal/search"
	"ideahub/api/internal/store"
)

type LeaderboardInput struct {
	From       *time.Time
	To         *time.Time
	Category   string
	Department string
	Limit      int
}

func (s *Service) Leaderboard(ctx context.Context, input LeaderboardInput) (map[string]any, error) {
	if input.Category != "" && !ideaCategories[input.Category] {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "unknown category filter", map[string]any{"category": input.Category})
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := s.store.Leaderboard(ctx, store.LeaderboardFilter{
		From:       input.From,
		To:         input.To,
		Category:   input.Category,
		Department: strings.TrimSpace(input.Department),
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}

	entries := make([]map[string]any, 0, len(rows))
	for i, row := range rows {
		entries = append(entries, map[string]any{
			"rank": i + 1,
			"user": map[string]any{
				"id":         row.UserID,
				"name":       row.DisplayName,
				"department": row.Department,
				"avatarUrl":  row.AvatarURL,
			},
			"submissions":   row.Submissions,
			"implemented":   row.Implemented,
			"votesReceived": row.VotesReceived,
			"impactScore":   row.ImpactScore,
			"byCategory": map[string]any{
				"idea":       row.Ideas,
				"pain-point": row.PainPoints,
				"challenge":  row.Challenges,
			},
		})
	}
	return map[string]any{"entries": entries, "limit": limit}, nil
}

func (s *Service) Metrics(ctx context.Context) (map[string]any, error) {
	metrics, err := s.store.MetricsSummary(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"totalIdeas":       metrics.TotalIdeas,
		"totalUsers":       metrics.TotalUsers,
		"totalVotes":       metrics.TotalVotes,
		"totalComments":    metrics.TotalComments,
		"implemented":      metrics.Implemented,
		"costSaved":        metrics.CostSaved,
		"revenueGenerated": metrics.RevenueGenerated,
		"byStatus":         metrics.ByStatus,
		"byCategory":       metrics.ByCategory,
	}, nil
}

func (s *Service) ChartStatusBreakdown(ctx context.Context) (map[string]any, error) {
	return s.chartCounts(s.store.StatusBreakdown(ctx))
}

func (s *Service) ChartCategoryBreakdown(ctx context.Context) (map[string]any, error) {
	return s.chartCounts(s.store.CategoryBreakdown(ctx))
}

func (s *Service) ChartDepartmentActivity(ctx context.Context) (map[string]any, error) {
	return s.chartCounts(s.store.DepartmentActivity(ctx))
}

func (s *Service) chartCounts(counts []store.CountByLabel, err error) (map[string]any, error) {
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(counts))
	for _, count := range counts {
		items = append(items, map[string]any{"label": count.Label, "count": count.Count})
	}
	return map[string]any{"items": items}, nil
}

func (s *Service) ChartSubmissionTrend(ctx context.Context, days int) (map[string]any, error) {
	if days <= 0 {
		days = 30
	}
	if days > 365 {
		days = 365
	}
	points, err := s.store.SubmissionTrend(ctx, days)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(points))
	for _, point := range points {
		items = append(items, map[string]any{
			"date":  point.Day.Format("2006-01-02"),
			"count": point.Count,
		})
	}
	return map[string]any{"days": days, "items": items}, nil
}

func (s *Service) Departments(ctx context.Context) (map[string]any, error) {
	departments, err := s.store.ListDepartments(ctx)
	if err != nil {
		return nil, err
	}
	if departments == nil {
		departments = []string{}
	}
	return map[string]any{"items": departments}, nil
}

func (s *Service) Search(ctx context.Context, query, kind string, limit, offset int) (any, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "q is required", nil)
	}

	var filterType search.ResultType
	switch kind {
	case "":
	case "ideas":
		filterType = search.ResultIdea
	case "comments":
		filterType = search.ResultComment
	default:
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "type must be ideas or comments", nil)
	}

	limit, offset = clampPage(limit, offset, 20, 100)
	return s.search.Search(search.Query{
		Text:       query,
		FilterType: filterType,
		Limit:      limit,
		Offset:     offset,
	}), nil
}

// AssignmentQueue lists ideas where the caller holds any triage slot,
// annotated with which slots.
func (s *Service) AssignmentQueue(ctx context.Context, session Session) (map[string]any, error) {
	ideas, total, err := s.store.ListIdeas(ctx, store.IdeaFilter{
		AssignedTo: session.UserID,
		Sort:       "active",
		Limit:      100,
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
		item := ideaSummaryPayload(idea, votedSet[idea.ID], followSet[idea.ID])
		slots := make([]string, 0, 3)
		if idea.Reviewer.UserID == session.UserID {
			slots = append(slots, "reviewer")
		}
		if idea.Transformer.UserID == session.UserID {
			slots = append(slots, "transformer")
		}
		if idea.Implementer.UserID == session.UserID {
			slots = append(slots, "implementer")
		}
		if idea.AssigneeID != nil && *idea.AssigneeID == session.UserID {
			slots = append(slots, "assignee")
		}
		item["assignedSlots"] = slots
		items = append(items, item)
	}
	return map[string]any{"items": items, "total": total}, nil
}

type ExportIdeaInput struct {
	Format          string
	Version         string
	IncludeComments bool
	IncludeHistory  bool
}

func (s *Service) ExportIdea(ctx context.Context, ideaID string, input ExportIdeaInput) (*export.Result, error) {
	var format export.Format
	switch input.Format {
	case "pdf":
		format = export.FormatPDF
	case "docx":
		format = export.FormatDOCX
	default:
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "format must be pdf or docx", nil)
	}

	result, err := s.exports.Export(ctx, export.Request{
		IdeaID:          ideaID,
		Version:         input.Version,
		Format:          format,
		IncludeComments: input.IncludeComments,
		IncludeHistory:  input.IncludeHistory,
	})
	if err != nil {
		switch {
		case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
			return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Document rendering is unavailable", nil)
		case errors.Is(err, export.ErrContentUnavailable):
			return nil, sql.ErrNoRows
		default:
			return nil, err
		}
	}
	return result, nil
}
