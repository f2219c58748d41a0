package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// ideaVector matches the expression index created by the search migration.
// Changing one without the other turns every search into a sequential scan.
const ideaVector = "to_tsvector('english', i.title || ' ' || i.description || ' ' || i.impact)"

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across ideas and comments using
// plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	// Ideas sub-query
	if q.FilterType == "" || q.FilterType == ResultIdea {
		ideaWhere := ideaVector + " @@ " + tsQuery
		if q.FilterCategory != "" {
			ideaWhere += fmt.Sprintf(" AND i.category = $%d", argN)
			args = append(args, q.FilterCategory)
			argN++
		}
		if q.FilterStatus != "" {
			ideaWhere += fmt.Sprintf(" AND i.status = $%d", argN)
			args = append(args, q.FilterStatus)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'idea'::text AS type, i.id, i.title,
				ts_headline('english', i.description, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				i.id AS idea_id, i.category, i.status,
				ts_rank(%s, %s) AS rank
			FROM ideas i
			WHERE %s`, tsQuery, ideaVector, tsQuery, ideaWhere))
	}

	// Comments sub-query
	if q.FilterType == "" || q.FilterType == ResultComment {
		commentWhere := "to_tsvector('english', c.body) @@ " + tsQuery
		if q.FilterCategory != "" {
			commentWhere += fmt.Sprintf(" AND i.category = $%d", argN)
			args = append(args, q.FilterCategory)
			argN++
		}
		if q.FilterStatus != "" {
			commentWhere += fmt.Sprintf(" AND i.status = $%d", argN)
			args = append(args, q.FilterStatus)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'comment'::text AS type, c.id, i.title,
				ts_headline('english', c.body, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				c.idea_id, i.category, i.status,
				ts_rank(to_tsvector('english', c.body), %s) AS rank
			FROM comments c
			JOIN ideas i ON i.id = c.idea_id
			WHERE %s`, tsQuery, tsQuery, commentWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	// Count query
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	// Data query
	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, idea_id, category, status
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.IdeaID, &r.Category, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]IdeaRecord, []CommentRecord, error) {
	ideaRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, description, impact, category, status, department, tags
		FROM ideas
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load ideas: %w", err)
	}
	defer ideaRows.Close()

	ideas := make([]IdeaRecord, 0)
	for ideaRows.Next() {
		var idea IdeaRecord
		var tags []byte
		if err := ideaRows.Scan(&idea.ID, &idea.Title, &idea.Description, &idea.Impact,
			&idea.Category, &idea.Status, &idea.Department, &tags); err != nil {
			return nil, nil, fmt.Errorf("scan idea: %w", err)
		}
		if err := json.Unmarshal(tags, &idea.Tags); err != nil {
			return nil, nil, fmt.Errorf("decode idea tags: %w", err)
		}
		ideas = append(ideas, idea)
	}
	if err := ideaRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate ideas: %w", err)
	}

	commentRows, err := p.db.QueryContext(ctx, `
		SELECT c.id, c.body, c.idea_id, i.title, i.category, i.status
		FROM comments c
		JOIN ideas i ON i.id = c.idea_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load comments: %w", err)
	}
	defer commentRows.Close()

	comments := make([]CommentRecord, 0)
	for commentRows.Next() {
		var c CommentRecord
		if err := commentRows.Scan(&c.ID, &c.Body, &c.IdeaID, &c.IdeaTitle, &c.Category, &c.Status); err != nil {
			return nil, nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := commentRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate comments: %w", err)
	}

	return ideas, comments, nil
}
