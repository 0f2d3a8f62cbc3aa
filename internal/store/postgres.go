package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, created_at
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email).Scan(&user.ID, &user.Email, &user.DisplayName, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) InsertUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name)
		VALUES ($1, LOWER($2), $3)
		ON CONFLICT (email) DO NOTHING
	`, user.ID, user.Email, user.DisplayName)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, supplier_name, po_ref, first_contact, main_poc, region, is_npi, business_area, status, quantities, last_activity
		FROM projects
		ORDER BY last_activity DESC NULLS LAST, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		item, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, supplier_name, po_ref, first_contact, main_poc, region, is_npi, business_area, status, quantities, last_activity
		FROM projects
		WHERE id=$1
	`, projectID)
	return scanProject(row)
}

func (s *PostgresStore) InsertProject(ctx context.Context, item Project) error {
	encoded, err := encodeQuantities(item.Quantities)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (id, supplier_name, po_ref, first_contact, main_poc, region, is_npi, business_area, status, quantities, last_activity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, NOW())
	`, item.ID, item.SupplierName, item.PORef, item.FirstContact, item.MainPOC, item.Region, item.IsNPI, item.BusinessArea, item.Status, encoded)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// UpdateProject is a merge-write: nil patch fields leave the stored column
// untouched. last_activity always advances to the store's clock.
func (s *PostgresStore) UpdateProject(ctx context.Context, projectID string, patch ProjectPatch) (bool, error) {
	var encoded *string
	if patch.Quantities != nil {
		value, err := encodeQuantities(patch.Quantities)
		if err != nil {
			return false, err
		}
		encoded = &value
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects SET
			supplier_name = COALESCE($2, supplier_name),
			po_ref        = COALESCE($3, po_ref),
			first_contact = COALESCE($4, first_contact),
			main_poc      = COALESCE($5, main_poc),
			region        = COALESCE($6, region),
			is_npi        = COALESCE($7, is_npi),
			business_area = COALESCE($8, business_area),
			status        = COALESCE($9, status),
			quantities    = COALESCE($10::jsonb, quantities),
			last_activity = NOW()
		WHERE id=$1
	`, projectID, patch.SupplierName, patch.PORef, patch.FirstContact, patch.MainPOC, patch.Region, patch.IsNPI, patch.BusinessArea, patch.Status, encoded)
	if err != nil {
		return false, fmt.Errorf("update project: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update project rows: %w", err)
	}
	return affected > 0, nil
}

// TouchProject advances a project's last_activity to the store's clock. Used
// after comment writes so recency order reflects discussion as well as edits.
func (s *PostgresStore) TouchProject(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE projects SET last_activity=NOW() WHERE id=$1`, projectID)
	if err != nil {
		return fmt.Errorf("touch project: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListComments(ctx context.Context, projectID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, body, author_email, created_at
		FROM comments
		WHERE project_id=$1
		ORDER BY created_at ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Text, &item.User, &item.Timestamp); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) (Comment, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO comments (id, project_id, body, author_email)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, comment.ID, comment.ProjectID, comment.Text, comment.User).Scan(&comment.Timestamp)
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return comment, nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, projectID, commentID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM comments WHERE project_id=$1 AND id=$2
	`, projectID, commentID)
	if err != nil {
		return false, fmt.Errorf("delete comment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete comment rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListLookup(ctx context.Context, kind string) ([]LookupEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, name
		FROM lookup_entries
		WHERE kind=$1
		ORDER BY name ASC
	`, kind)
	if err != nil {
		return nil, fmt.Errorf("list lookup %s: %w", kind, err)
	}
	defer rows.Close()

	items := make([]LookupEntry, 0)
	for rows.Next() {
		var item LookupEntry
		if err := rows.Scan(&item.ID, &item.Kind, &item.Name); err != nil {
			return nil, fmt.Errorf("scan lookup entry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lookup entries: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertLookup(ctx context.Context, entry LookupEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lookup_entries (id, kind, name)
		VALUES ($1, $2, $3)
	`, entry.ID, entry.Kind, entry.Name)
	if err != nil {
		return fmt.Errorf("insert lookup entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteLookup(ctx context.Context, kind, entryID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM lookup_entries WHERE kind=$1 AND id=$2
	`, kind, entryID)
	if err != nil {
		return false, fmt.Errorf("delete lookup entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete lookup rows: %w", err)
	}
	return affected > 0, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (Project, error) {
	var item Project
	var firstContact sql.NullTime
	var lastActivity sql.NullTime
	var quantitiesRaw []byte
	if err := row.Scan(
		&item.ID,
		&item.SupplierName,
		&item.PORef,
		&firstContact,
		&item.MainPOC,
		&item.Region,
		&item.IsNPI,
		&item.BusinessArea,
		&item.Status,
		&quantitiesRaw,
		&lastActivity,
	); err != nil {
		return Project{}, err
	}
	if firstContact.Valid {
		t := firstContact.Time
		item.FirstContact = &t
	}
	if lastActivity.Valid {
		t := lastActivity.Time
		item.LastActivity = &t
	}
	item.Quantities = decodeQuantities(quantitiesRaw)
	return item, nil
}

func encodeQuantities(quantities map[string]Quantity) (string, error) {
	if quantities == nil {
		quantities = map[string]Quantity{}
	}
	encoded, err := json.Marshal(quantities)
	if err != nil {
		return "", fmt.Errorf("marshal quantities: %w", err)
	}
	return string(encoded), nil
}

// decodeQuantities never fails: a missing or malformed quantities document
// becomes an empty map so downstream aggregation treats it as zero.
func decodeQuantities(raw []byte) map[string]Quantity {
	if len(raw) == 0 {
		return map[string]Quantity{}
	}
	var quantities map[string]Quantity
	if err := json.Unmarshal(raw, &quantities); err != nil || quantities == nil {
		return map[string]Quantity{}
	}
	return quantities
}
