package store

import (
	"context"
	"fmt"
)

// ============================================================================
// Votes
// ============================================================================

// AddVote records the (user, idea) pair and bumps the counter in one
// transaction. Voting twice is a no-op: added reports whether this call
// changed anything, and the returned count is current either way.
func (s *PostgresStore) AddVote(ctx context.Context, ideaID, userID string) (int, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin vote tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO user_votes (user_id, idea_id) VALUES ($1, $2)
		ON CONFLICT (user_id, idea_id) DO NOTHING
	`, userID, ideaID)
	if err != nil {
		return 0, false, fmt.Errorf("insert vote: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("insert vote: %w", err)
	}

	var votes int
	if inserted > 0 {
		err = tx.QueryRowContext(ctx, `
			UPDATE ideas SET votes = votes + 1, updated_at = NOW()
			WHERE id = $1
			RETURNING votes
		`, ideaID).Scan(&votes)
	} else {
		err = tx.QueryRowContext(ctx,
			`SELECT votes FROM ideas WHERE id = $1`, ideaID).Scan(&votes)
	}
	if err != nil {
		return 0, false, err
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit vote tx: %w", err)
	}
	return votes, inserted > 0, nil
}

// RemoveVote is the inverse of AddVote and equally idempotent. The counter
// never drops below zero even if it has drifted.
func (s *PostgresStore) RemoveVote(ctx context.Context, ideaID, userID string) (int, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin unvote tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM user_votes WHERE user_id = $1 AND idea_id = $2`, userID, ideaID)
	if err != nil {
		return 0, false, fmt.Errorf("delete vote: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("delete vote: %w", err)
	}

	var votes int
	if deleted > 0 {
		err = tx.QueryRowContext(ctx, `
			UPDATE ideas SET votes = GREATEST(votes - 1, 0), updated_at = NOW()
			WHERE id = $1
			RETURNING votes
		`, ideaID).Scan(&votes)
	} else {
		err = tx.QueryRowContext(ctx,
			`SELECT votes FROM ideas WHERE id = $1`, ideaID).Scan(&votes)
	}
	if err != nil {
		return 0, false, err
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit unvote tx: %w", err)
	}
	return votes, deleted > 0, nil
}

func (s *PostgresStore) HasVoted(ctx context.Context, ideaID, userID string) (bool, error) {
	var voted bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM user_votes WHERE user_id=$1 AND idea_id=$2)
	`, userID, ideaID).Scan(&voted)
	if err != nil {
		return false, fmt.Errorf("check vote: %w", err)
	}
	return voted, nil
}

// ListUserVotes returns the idea IDs the user has voted for, newest first.
func (s *PostgresStore) ListUserVotes(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idea_id FROM user_votes WHERE user_id=$1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ============================================================================
// Comments
// ============================================================================

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, idea_id, author_id, parent_id, body)
		VALUES ($1, $2, $3, $4, $5)
	`, comment.ID, comment.IdeaID, comment.AuthorID, comment.ParentID, comment.Body)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (Comment, error) {
	var comment Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.idea_id, c.author_id, c.parent_id, c.body, c.created_at,
			u.display_name, u.role
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.id = $1
	`, commentID).Scan(&comment.ID, &comment.IdeaID, &comment.AuthorID,
		&comment.ParentID, &comment.Body, &comment.CreatedAt,
		&comment.AuthorName, &comment.AuthorRole)
	if err != nil {
		return Comment{}, err
	}
	return comment, nil
}

func (s *PostgresStore) ListComments(ctx context.Context, ideaID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.idea_id, c.author_id, c.parent_id, c.body, c.created_at,
			u.display_name, u.role
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.idea_id = $1
		ORDER BY c.created_at
	`, ideaID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := make([]Comment, 0)
	for rows.Next() {
		var comment Comment
		if err := rows.Scan(&comment.ID, &comment.IdeaID, &comment.AuthorID,
			&comment.ParentID, &comment.Body, &comment.CreatedAt,
			&comment.AuthorName, &comment.AuthorRole); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, comment)
	}
	return comments, rows.Err()
}

func (s *PostgresStore) DeleteComment(ctx context.Context, commentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id=$1`, commentID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}

// ============================================================================
// Follows
// ============================================================================

func (s *PostgresStore) AddFollow(ctx context.Context, follow Follow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO follows (user_id, item_id, item_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, item_id) DO NOTHING
	`, follow.UserID, follow.ItemID, follow.ItemType)
	if err != nil {
		return fmt.Errorf("insert follow: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveFollow(ctx context.Context, userID, itemID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM follows WHERE user_id=$1 AND item_id=$2`, userID, itemID)
	if err != nil {
		return fmt.Errorf("delete follow: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFollows(ctx context.Context, userID string) ([]Follow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, item_id, item_type, created_at
		FROM follows WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list follows: %w", err)
	}
	defer rows.Close()

	follows := make([]Follow, 0)
	for rows.Next() {
		var follow Follow
		if err := rows.Scan(&follow.UserID, &follow.ItemID, &follow.ItemType,
			&follow.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan follow: %w", err)
		}
		follows = append(follows, follow)
	}
	return follows, rows.Err()
}

func (s *PostgresStore) IsFollowing(ctx context.Context, userID, itemID string) (bool, error) {
	var following bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM follows WHERE user_id=$1 AND item_id=$2)
	`, userID, itemID).Scan(&following)
	if err != nil {
		return false, fmt.Errorf("check follow: %w", err)
	}
	return following, nil
}

// ListFollowerIDs feeds fan-out notifications for activity on an idea.
func (s *PostgresStore) ListFollowerIDs(ctx context.Context, itemID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM follows WHERE item_id=$1`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list followers: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan follower: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ============================================================================
// Challenge participants
// ============================================================================

func (s *PostgresStore) AddParticipant(ctx context.Context, ideaID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO challenge_participants (user_id, idea_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, idea_id) DO NOTHING
	`, userID, ideaID)
	if err != nil {
		return false, fmt.Errorf("insert participant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert participant: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) RemoveParticipant(ctx context.Context, ideaID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM challenge_participants WHERE idea_id=$1 AND user_id=$2`, ideaID, userID)
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsParticipant(ctx context.Context, ideaID, userID string) (bool, error) {
	var joined bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM challenge_participants WHERE idea_id=$1 AND user_id=$2)
	`, ideaID, userID).Scan(&joined)
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return joined, nil
}

func (s *PostgresStore) ListParticipants(ctx context.Context, ideaID string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.display_name, u.department, u.avatar_url, cp.created_at
		FROM challenge_participants cp
		JOIN users u ON u.id = cp.user_id
		WHERE cp.idea_id = $1
		ORDER BY cp.created_at
	`, ideaID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Username, &user.DisplayName,
			&user.Department, &user.AvatarURL, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}
