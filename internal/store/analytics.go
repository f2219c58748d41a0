package store

import (
	"context"
	"fmt"
	"strings"
)

// Leaderboard ranks contributors by impact score: two points per submission,
// five per implemented idea, one per vote received. The score is computed in
// the projection so ORDER BY and the returned value can never disagree.
func (s *PostgresStore) Leaderboard(ctx context.Context, filter LeaderboardFilter) ([]LeaderboardRow, error) {
	where := make([]string, 0, 4)
	args := make([]any, 0, 5)
	add := func(cond string, val any) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.From != nil {
		add("i.created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("i.created_at < $%d", *filter.To)
	}
	if filter.Category != "" {
		add("i.category = $%d", filter.Category)
	}
	if filter.Department != "" {
		add("u.department = $%d", filter.Department)
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT u.id, u.display_name, u.department, u.avatar_url,
			COUNT(i.id) AS submissions,
			COUNT(i.id) FILTER (WHERE i.status = 'implemented') AS implemented,
			COALESCE(SUM(i.votes), 0) AS votes_received,
			COUNT(i.id) FILTER (WHERE i.category = 'idea') AS ideas,
			COUNT(i.id) FILTER (WHERE i.category = 'pain-point') AS pain_points,
			COUNT(i.id) FILTER (WHERE i.category = 'challenge') AS challenges,
			COUNT(i.id) * 2
				+ COUNT(i.id) FILTER (WHERE i.status = 'implemented') * 5
				+ COALESCE(SUM(i.votes), 0) AS impact_score
		FROM users u
		JOIN ideas i ON i.submitter_id = u.id
		%s
		GROUP BY u.id, u.display_name, u.department, u.avatar_url
		ORDER BY impact_score DESC, submissions DESC, u.display_name
		LIMIT $%d
	`, clause, len(args)+1)
	args = append(args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	board := make([]LeaderboardRow, 0)
	for rows.Next() {
		var row LeaderboardRow
		if err := rows.Scan(&row.UserID, &row.DisplayName, &row.Department,
			&row.AvatarURL, &row.Submissions, &row.Implemented, &row.VotesReceived,
			&row.Ideas, &row.PainPoints, &row.Challenges, &row.ImpactScore); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		board = append(board, row)
	}
	return board, rows.Err()
}

func (s *PostgresStore) MetricsSummary(ctx context.Context) (Metrics, error) {
	var m Metrics
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(votes), 0),
			COUNT(*) FILTER (WHERE status = 'implemented'),
			COALESCE(SUM(cost_saved), 0),
			COALESCE(SUM(revenue_generated), 0)
		FROM ideas
	`).Scan(&m.TotalIdeas, &m.TotalVotes, &m.Implemented, &m.CostSaved, &m.RevenueGenerated)
	if err != nil {
		return Metrics{}, fmt.Errorf("query idea totals: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users`).Scan(&m.TotalUsers); err != nil {
		return Metrics{}, fmt.Errorf("count users: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM comments`).Scan(&m.TotalComments); err != nil {
		return Metrics{}, fmt.Errorf("count comments: %w", err)
	}

	byStatus, err := s.StatusBreakdown(ctx)
	if err != nil {
		return Metrics{}, err
	}
	m.ByStatus = make(map[string]int, len(byStatus))
	for _, c := range byStatus {
		m.ByStatus[c.Label] = c.Count
	}

	byCategory, err := s.CategoryBreakdown(ctx)
	if err != nil {
		return Metrics{}, err
	}
	m.ByCategory = make(map[string]int, len(byCategory))
	for _, c := range byCategory {
		m.ByCategory[c.Label] = c.Count
	}
	return m, nil
}

func (s *PostgresStore) countByLabel(ctx context.Context, query string, args ...any) ([]CountByLabel, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query breakdown: %w", err)
	}
	defer rows.Close()

	counts := make([]CountByLabel, 0)
	for rows.Next() {
		var c CountByLabel
		if err := rows.Scan(&c.Label, &c.Count); err != nil {
			return nil, fmt.Errorf("scan breakdown: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (s *PostgresStore) StatusBreakdown(ctx context.Context) ([]CountByLabel, error) {
	return s.countByLabel(ctx,
		`SELECT status, COUNT(*) FROM ideas GROUP BY status ORDER BY COUNT(*) DESC`)
}

func (s *PostgresStore) CategoryBreakdown(ctx context.Context) ([]CountByLabel, error) {
	return s.countByLabel(ctx,
		`SELECT category, COUNT(*) FROM ideas GROUP BY category ORDER BY COUNT(*) DESC`)
}

func (s *PostgresStore) DepartmentActivity(ctx context.Context) ([]CountByLabel, error) {
	return s.countByLabel(ctx, `
		SELECT u.department, COUNT(*)
		FROM ideas i
		JOIN users u ON u.id = i.submitter_id
		WHERE u.department <> ''
		GROUP BY u.department
		ORDER BY COUNT(*) DESC
	`)
}

// SubmissionTrend buckets submissions per day over the trailing window.
// Days with no submissions are absent; the client fills gaps.
func (s *PostgresStore) SubmissionTrend(ctx context.Context, days int) ([]TimeCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date_trunc('day', created_at) AS day, COUNT(*)
		FROM ideas
		WHERE created_at >= NOW() - ($1 || ' days')::interval
		GROUP BY day
		ORDER BY day
	`, days)
	if err != nil {
		return nil, fmt.Errorf("query submission trend: %w", err)
	}
	defer rows.Close()

	trend := make([]TimeCount, 0)
	for rows.Next() {
		var tc TimeCount
		if err := rows.Scan(&tc.Day, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan trend point: %w", err)
		}
		trend = append(trend, tc)
	}
	return trend, rows.Err()
}

// ListDepartments merges departments seen on users and on ideas so filter
// dropdowns cover both.
func (s *PostgresStore) ListDepartments(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT department FROM users WHERE department <> ''
		UNION
		SELECT department FROM ideas WHERE department <> ''
		ORDER BY department
	`)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	defer rows.Close()

	departments := make([]string, 0)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan department: %w", err)
		}
		departments = append(departments, d)
	}
	return departments, rows.Err()
}
