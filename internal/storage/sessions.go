package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ledgersmith/cellflow/internal/common"
	"github.com/ledgersmith/cellflow/internal/model"
	"github.com/ledgersmith/cellflow/internal/service"
)

// SaveSession upserts the full session aggregate: results, assignments,
// conflicts and unmapped items travel with it.
func (s *SQLiteStorage) SaveSession(ctx context.Context, session *model.MappingSession) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if session == nil || session.ID == "" {
		return fmt.Errorf("session must have an id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Replace the aggregate wholesale; callers serialize writes per session.
	for _, stmt := range []string{
		`DELETE FROM classification_results WHERE session_id = ?`,
		`DELETE FROM assignments WHERE session_id = ?`,
		`DELETE FROM conflicts WHERE session_id = ?`,
		`DELETE FROM unmapped_items WHERE session_id = ?`,
		`DELETE FROM sessions WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, session.ID); err != nil {
			return fmt.Errorf("failed to clear session rows: %w", err)
		}
	}

	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, template_name, ontology_version, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		session.ID, session.TemplateName, session.OntologyVersion, string(session.Status), createdAt,
	); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	for _, r := range session.Results {
		candidates, err := json.Marshal(r.Candidates)
		if err != nil {
			return fmt.Errorf("failed to marshal candidates for %s: %w", r.LineItemID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO classification_results
			 (session_id, line_item_id, category_id, confidence, strategy, rationale, ontology_version, candidates, classified_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			session.ID, r.LineItemID, r.CategoryID, r.Confidence, string(r.WinningStrategy),
			r.Rationale, r.OntologyVersion, string(candidates), r.ClassifiedAt,
		); err != nil {
			return fmt.Errorf("failed to insert classification result: %w", err)
		}
	}

	for _, a := range session.Assignments {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO assignments
			 (id, session_id, line_item_id, source_id, cell_address, value, source_order, discarded, src_page, src_row)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, session.ID, a.LineItemID, a.SourceID, a.CellAddress, a.Value,
			a.SourceOrder, boolToInt(a.Discarded), a.Coordinates.Page, a.Coordinates.Row,
		); err != nil {
			return fmt.Errorf("failed to insert assignment: %w", err)
		}
	}

	for _, c := range session.Conflicts {
		assignmentIDs, err := json.Marshal(c.AssignmentIDs)
		if err != nil {
			return fmt.Errorf("failed to marshal assignment ids for conflict %s: %w", c.ID, err)
		}
		suggestions, err := json.Marshal(c.Suggestions)
		if err != nil {
			return fmt.Errorf("failed to marshal suggestions for conflict %s: %w", c.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conflicts
			 (id, session_id, type, severity, cell_address, assignment_ids, suggestions, state, resolution)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, session.ID, string(c.Type), string(c.Severity), c.CellAddress,
			string(assignmentIDs), string(suggestions), string(c.State), c.Resolution,
		); err != nil {
			return fmt.Errorf("failed to insert conflict: %w", err)
		}
	}

	for _, id := range session.Unmapped {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO unmapped_items (session_id, line_item_id) VALUES (?, ?)`,
			session.ID, id,
		); err != nil {
			return fmt.Errorf("failed to insert unmapped item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

// GetSession loads the full session aggregate by id.
func (s *SQLiteStorage) GetSession(ctx context.Context, id string) (*model.MappingSession, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	session := &model.MappingSession{ID: id}
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT template_name, ontology_version, status, created_at FROM sessions WHERE id = ?`, id,
	).Scan(&session.TemplateName, &session.OntologyVersion, &status, &session.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	session.Status = model.SessionStatus(status)

	if err := s.loadResults(ctx, session); err != nil {
		return nil, err
	}
	if err := s.loadAssignments(ctx, session); err != nil {
		return nil, err
	}
	if err := s.loadConflicts(ctx, session); err != nil {
		return nil, err
	}
	if err := s.loadUnmapped(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

func (s *SQLiteStorage) loadResults(ctx context.Context, session *model.MappingSession) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT line_item_id, category_id, confidence, strategy, rationale, ontology_version, candidates, classified_at
		 FROM classification_results WHERE session_id = ? ORDER BY line_item_id`, session.ID)
	if err != nil {
		return fmt.Errorf("failed to load classification results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var r model.ClassificationResult
		var strategy, candidates string
		var categoryID sql.NullString
		if err := rows.Scan(&r.LineItemID, &categoryID, &r.Confidence, &strategy,
			&r.Rationale, &r.OntologyVersion, &candidates, &r.ClassifiedAt); err != nil {
			return fmt.Errorf("failed to scan classification result: %w", err)
		}
		r.CategoryID = categoryID.String
		r.WinningStrategy = model.Strategy(strategy)
		if candidates != "" {
			if err := json.Unmarshal([]byte(candidates), &r.Candidates); err != nil {
				return fmt.Errorf("failed to unmarshal candidates: %w", err)
			}
		}
		session.Results = append(session.Results, r)
	}
	return rows.Err()
}

func (s *SQLiteStorage) loadAssignments(ctx context.Context, session *model.MappingSession) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, line_item_id, source_id, cell_address, value, source_order, discarded, src_page, src_row
		 FROM assignments WHERE session_id = ? ORDER BY source_order`, session.ID)
	if err != nil {
		return fmt.Errorf("failed to load assignments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var a model.Assignment
		var discarded int
		if err := rows.Scan(&a.ID, &a.LineItemID, &a.SourceID, &a.CellAddress, &a.Value,
			&a.SourceOrder, &discarded, &a.Coordinates.Page, &a.Coordinates.Row); err != nil {
			return fmt.Errorf("failed to scan assignment: %w", err)
		}
		a.Discarded = discarded != 0
		session.Assignments = append(session.Assignments, a)
	}
	return rows.Err()
}

func (s *SQLiteStorage) loadConflicts(ctx context.Context, session *model.MappingSession) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, severity, cell_address, assignment_ids, suggestions, state, resolution
		 FROM conflicts WHERE session_id = ?`, session.ID)
	if err != nil {
		return fmt.Errorf("failed to load conflicts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var c model.Conflict
		var ctype, severity, state, assignmentIDs, suggestions string
		if err := rows.Scan(&c.ID, &ctype, &severity, &c.CellAddress,
			&assignmentIDs, &suggestions, &state, &c.Resolution); err != nil {
			return fmt.Errorf("failed to scan conflict: %w", err)
		}
		c.Type = model.ConflictType(ctype)
		c.Severity = model.Severity(severity)
		c.State = model.ConflictState(state)
		if assignmentIDs != "" {
			if err := json.Unmarshal([]byte(assignmentIDs), &c.AssignmentIDs); err != nil {
				return fmt.Errorf("failed to unmarshal assignment ids: %w", err)
			}
		}
		if suggestions != "" {
			if err := json.Unmarshal([]byte(suggestions), &c.Suggestions); err != nil {
				return fmt.Errorf("failed to unmarshal suggestions: %w", err)
			}
		}
		session.Conflicts = append(session.Conflicts, c)
	}
	return rows.Err()
}

func (s *SQLiteStorage) loadUnmapped(ctx context.Context, session *model.MappingSession) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT line_item_id FROM unmapped_items WHERE session_id = ? ORDER BY line_item_id`, session.ID)
	if err != nil {
		return fmt.Errorf("failed to load unmapped items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan unmapped item: %w", err)
		}
		session.Unmapped = append(session.Unmapped, id)
	}
	return rows.Err()
}

// ListSessions returns summaries of all stored sessions, newest first.
func (s *SQLiteStorage) ListSessions(ctx context.Context) ([]service.SessionSummary, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.template_name, s.ontology_version, s.status, s.created_at,
		        (SELECT COUNT(*) FROM conflicts c WHERE c.session_id = s.id AND c.state = 'open'),
		        (SELECT COUNT(*) FROM assignments a WHERE a.session_id = s.id AND a.discarded = 0)
		 FROM sessions s ORDER BY s.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []service.SessionSummary
	for rows.Next() {
		var sum service.SessionSummary
		var status string
		if err := rows.Scan(&sum.ID, &sum.TemplateName, &sum.OntologyVersion, &status,
			&sum.CreatedAt, &sum.OpenConflicts, &sum.Assignments); err != nil {
			return nil, fmt.Errorf("failed to scan session summary: %w", err)
		}
		sum.Status = model.SessionStatus(status)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// DeleteSession removes a session and all its rows.
func (s *SQLiteStorage) DeleteSession(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`DELETE FROM classification_results WHERE session_id = ?`,
		`DELETE FROM assignments WHERE session_id = ?`,
		`DELETE FROM conflicts WHERE session_id = ?`,
		`DELETE FROM unmapped_items WHERE session_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to delete session rows: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deletion: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: session %s", common.ErrNotFound, id)
	}

	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
