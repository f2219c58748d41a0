package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

const ideaColumns = `i.id, i.title, i.description, i.category, i.department, i.status,
	i.priority, i.votes, i.tags, i.impact, i.inspiration, i.similar_solutions,
	i.admin_notes, i.cost_saved, i.revenue_generated,
	COALESCE(i.reviewer_id, ''), i.reviewer_email,
	COALESCE(i.transformer_id, ''), i.transformer_email,
	COALESCE(i.implementer_id, ''), i.implementer_email,
	i.submitter_id, i.assignee_id, i.created_at, i.updated_at,
	u.display_name, u.department, u.avatar_url,
	(SELECT COUNT(*) FROM comments c WHERE c.idea_id = i.id),
	(SELECT COUNT(*) FROM challenge_participants cp WHERE cp.idea_id = i.id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdea(sc rowScanner) (Idea, error) {
	var idea Idea
	var tags []byte
	err := sc.Scan(&idea.ID, &idea.Title, &idea.Description, &idea.Category,
		&idea.Department, &idea.Status, &idea.Priority, &idea.Votes, &tags,
		&idea.Impact, &idea.Inspiration, &idea.SimilarSolutions, &idea.AdminNotes,
		&idea.CostSaved, &idea.RevenueGenerated,
		&idea.Reviewer.UserID, &idea.Reviewer.Email,
		&idea.Transformer.UserID, &idea.Transformer.Email,
		&idea.Implementer.UserID, &idea.Implementer.Email,
		&idea.SubmitterID, &idea.AssigneeID, &idea.CreatedAt, &idea.UpdatedAt,
		&idea.SubmitterName, &idea.SubmitterDepartment, &idea.SubmitterAvatarURL,
		&idea.CommentCount, &idea.ParticipantCount)
	if err != nil {
		return Idea{}, err
	}
	if err := json.Unmarshal(tags, &idea.Tags); err != nil {
		return Idea{}, fmt.Errorf("decode tags: %w", err)
	}
	return idea, nil
}

func (s *PostgresStore) InsertIdea(ctx context.Context, idea Idea) error {
	tags, err := json.Marshal(idea.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ideas (id, title, description, category, department, status,
			priority, tags, impact, inspiration, similar_solutions, submitter_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, idea.ID, idea.Title, idea.Description, idea.Category, idea.Department,
		idea.Status, idea.Priority, tags, idea.Impact, idea.Inspiration,
		idea.SimilarSolutions, idea.SubmitterID)
	if err != nil {
		return fmt.Errorf("insert idea: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetIdea(ctx context.Context, ideaID string) (Idea, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ideaColumns+`
		FROM ideas i
		JOIN users u ON u.id = i.submitter_id
		WHERE i.id = $1
	`, ideaID)
	return scanIdea(row)
}

func (s *PostgresStore) ListIdeas(ctx context.Context, filter IdeaFilter) ([]Idea, int, error) {
	where := make([]string, 0, 6)
	args := make([]any, 0, 8)
	add := func(cond string, val any) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.Status != "" {
		add("i.status = $%d", filter.Status)
	}
	if filter.Category != "" {
		add("i.category = $%d", filter.Category)
	}
	if filter.Department != "" {
		add("i.department = $%d", filter.Department)
	}
	if filter.Tag != "" {
		add("i.tags ? $%d", filter.Tag)
	}
	if filter.SubmitterID != "" {
		add("i.submitter_id = $%d", filter.SubmitterID)
	}
	if filter.AssignedTo != "" {
		args = append(args, filter.AssignedTo)
		where = append(where, fmt.Sprintf(
			"(i.reviewer_id = $%[1]d OR i.transformer_id = $%[1]d OR i.implementer_id = $%[1]d OR i.assignee_id = $%[1]d)",
			len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ideas i `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count ideas: %w", err)
	}

	order := "i.created_at DESC"
	switch filter.Sort {
	case "top":
		order = "i.votes DESC, i.created_at DESC"
	case "active":
		order = "i.updated_at DESC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM ideas i
		JOIN users u ON u.id = i.submitter_id
		%s
		ORDER BY %s
		LIMIT $%d OFFSET $%d
	`, ideaColumns, clause, order, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list ideas: %w", err)
	}
	defer rows.Close()

	ideas := make([]Idea, 0)
	for rows.Next() {
		idea, err := scanIdea(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan idea: %w", err)
		}
		ideas = append(ideas, idea)
	}
	return ideas, total, rows.Err()
}

func (s *PostgresStore) UpdateIdea(ctx context.Context, ideaID string, upd IdeaUpdate) error {
	sets := make([]string, 0, 12)
	args := []any{ideaID}
	set := func(column string, val any) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if upd.Title != nil {
		set("title", *upd.Title)
	}
	if upd.Description != nil {
		set("description", *upd.Description)
	}
	if upd.Category != nil {
		set("category", *upd.Category)
	}
	if upd.Department != nil {
		set("department", *upd.Department)
	}
	if upd.Priority != nil {
		set("priority", *upd.Priority)
	}
	if upd.Tags != nil {
		tags, err := json.Marshal(*upd.Tags)
		if err != nil {
			return fmt.Errorf("encode tags: %w", err)
		}
		set("tags", tags)
	}
	if upd.Impact != nil {
		set("impact", *upd.Impact)
	}
	if upd.Inspiration != nil {
		set("inspiration", *upd.Inspiration)
	}
	if upd.SimilarSolutions != nil {
		set("similar_solutions", *upd.SimilarSolutions)
	}
	if upd.AdminNotes != nil {
		set("admin_notes", *upd.AdminNotes)
	}
	if upd.CostSaved != nil {
		set("cost_saved", *upd.CostSaved)
	}
	if upd.RevenueGenerated != nil {
		set("revenue_generated", *upd.RevenueGenerated)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at=NOW()")

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE ideas SET %s WHERE id=$1`, strings.Join(sets, ", ")), args...)
	if err != nil {
		return fmt.Errorf("update idea: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateIdeaStatus(ctx context.Context, ideaID, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ideas SET status=$2, updated_at=NOW() WHERE id=$1`, ideaID, status)
	if err != nil {
		return fmt.Errorf("update idea status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateIdeaAssignments writes all three triage slots at once. An empty
// UserID stores NULL so the foreign key stays clean; a bare Email records a
// pending assignment picked up when that address registers.
func (s *PostgresStore) UpdateIdeaAssignments(ctx context.Context, ideaID string, reviewer, transformer, implementer Assignment) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ideas
		SET reviewer_id=NULLIF($2, ''), reviewer_email=$3,
			transformer_id=NULLIF($4, ''), transformer_email=$5,
			implementer_id=NULLIF($6, ''), implementer_email=$7,
			updated_at=NOW()
		WHERE id=$1
	`, ideaID, reviewer.UserID, reviewer.Email, transformer.UserID,
		transformer.Email, implementer.UserID, implementer.Email)
	if err != nil {
		return fmt.Errorf("update idea assignments: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteIdea(ctx context.Context, ideaID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ideas WHERE id=$1`, ideaID)
	if err != nil {
		return fmt.Errorf("delete idea: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// TouchIdea bumps updated_at so activity sorting reflects new comments.
func (s *PostgresStore) TouchIdea(ctx context.Context, ideaID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE ideas SET updated_at=NOW() WHERE id=$1`, ideaID)
	if err != nil {
		return fmt.Errorf("touch idea: %w", err)
	}
	return nil
}

// ClaimPendingAssignments resolves email-only triage slots once the invited
// address registers. Returns the idea IDs whose slots were claimed.
func (s *PostgresStore) ClaimPendingAssignments(ctx context.Context, email, userID string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	claimed := make([]string, 0)
	seen := make(map[string]bool)
	for _, slot := range []string{"reviewer", "transformer", "implementer"} {
		query := fmt.Sprintf(`
			UPDATE ideas SET %[1]s_id=$2, %[1]s_email='', updated_at=NOW()
			WHERE %[1]s_id IS NULL AND LOWER(%[1]s_email)=LOWER($1)
			RETURNING id
		`, slot)
		rows, err := tx.QueryContext(ctx, query, email, userID)
		if err != nil {
			return nil, fmt.Errorf("claim %s assignments: %w", slot, err)
		}
		for rows.Next() {
			var ideaID string
			if err := rows.Scan(&ideaID); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan claimed idea: %w", err)
			}
			if !seen[ideaID] {
				seen[ideaID] = true
				claimed = append(claimed, ideaID)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	return claimed, nil
}

// ============================================================================
// Status history
// ============================================================================

func (s *PostgresStore) InsertStatusChange(ctx context.Context, change StatusChange) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO status_changes (id, idea_id, from_status, to_status, note, changed_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, change.ID, change.IdeaID, change.FromStatus, change.ToStatus, change.Note, change.ChangedBy)
	if err != nil {
		return fmt.Errorf("insert status change: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListStatusChanges(ctx context.Context, ideaID string) ([]StatusChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sc.id, sc.idea_id, sc.from_status, sc.to_status, sc.note, sc.changed_by,
			sc.created_at, COALESCE(u.display_name, '')
		FROM status_changes sc
		LEFT JOIN users u ON u.id = sc.changed_by
		WHERE sc.idea_id = $1
		ORDER BY sc.created_at DESC
	`, ideaID)
	if err != nil {
		return nil, fmt.Errorf("list status changes: %w", err)
	}
	defer rows.Close()

	changes := make([]StatusChange, 0)
	for rows.Next() {
		var change StatusChange
		if err := rows.Scan(&change.ID, &change.IdeaID, &change.FromStatus,
			&change.ToStatus, &change.Note, &change.ChangedBy, &change.CreatedAt,
			&change.ChangedByName); err != nil {
			return nil, fmt.Errorf("scan status change: %w", err)
		}
		changes = append(changes, change)
	}
	return changes, rows.Err()
}

// ============================================================================
// Attachments
// ============================================================================

func (s *PostgresStore) InsertAttachment(ctx context.Context, att Attachment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, idea_id, filename, content_type, size, object_key)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, att.ID, att.IdeaID, att.Filename, att.ContentType, att.Size, att.ObjectKey)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, attachmentID string) (Attachment, error) {
	var att Attachment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, idea_id, filename, content_type, size, object_key, created_at
		FROM attachments WHERE id=$1
	`, attachmentID).Scan(&att.ID, &att.IdeaID, &att.Filename, &att.ContentType,
		&att.Size, &att.ObjectKey, &att.CreatedAt)
	if err != nil {
		return Attachment{}, err
	}
	return att, nil
}

func (s *PostgresStore) ListAttachments(ctx context.Context, ideaID string) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, idea_id, filename, content_type, size, object_key, created_at
		FROM attachments WHERE idea_id=$1
		ORDER BY created_at
	`, ideaID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	atts := make([]Attachment, 0)
	for rows.Next() {
		var att Attachment
		if err := rows.Scan(&att.ID, &att.IdeaID, &att.Filename, &att.ContentType,
			&att.Size, &att.ObjectKey, &att.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		atts = append(atts, att)
	}
	return atts, rows.Err()
}
