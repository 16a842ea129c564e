package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openadeia/teesync/pkg/permit"
)

const (
	SOURCE_TEE_SYNC    = "tee_sync"
	SOURCE_TEE_REFRESH = "tee_refresh"
)

// ExistingPermitCodes maps every permit code linked to a local project to
// that project's id.
func (d *DB) ExistingPermitCodes(ctx context.Context) (map[string]int64, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT tee_permit_code, id FROM projects WHERE tee_permit_code IS NOT NULL AND tee_permit_code != ''")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var code string
		var id int64
		if err := rows.Scan(&code, &id); err != nil {
			return nil, err
		}
		out[code] = id
	}
	return out, rows.Err()
}

// ImportProject creates a project for app, with its property row and an
// audit log entry, in one transaction. Importing a permit code that is
// already linked returns the existing project with Created set to false.
func (d *DB) ImportProject(ctx context.Context, app permit.Application, userID int64) (res ImportResult, err error) {
	permitCode := strings.TrimSpace(app.PermitCode)
	if permitCode == "" {
		return res, ErrMissingPermitCode
	}

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return res, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var existingID int64
	var existingStage string
	err = tx.QueryRowContext(ctx, "SELECT id, stage FROM projects WHERE tee_permit_code = ?", permitCode).Scan(&existingID, &existingStage)
	switch {
	case err == nil:
		err = tx.Commit()
		return ImportResult{ID: existingID, Stage: permit.Stage(existingStage)}, err
	case !errors.Is(err, sql.ErrNoRows):
		return res, err
	}

	now := d.now()
	code, err := nextProjectCode(ctx, tx, now.Year())
	if err != nil {
		return res, err
	}

	stage := app.Stage()
	title := strings.TrimSpace(app.Title)
	if title == "" {
		title = permit.DefaultTitle(permitCode)
	}
	notes := fmt.Sprintf("Εισήχθη από ΤΕΕ e-Adeies (%s)", now.Format("2/1/2006"))

	r, err := tx.ExecContext(ctx, `INSERT INTO projects(code, title, type, is_continuation, stage, tee_permit_code, aitisi_type_code, yd_id, dimos_aa, tee_submission_date, tee_sync_at, tee_raw, notes, created_by, created_at, updated_at)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		code, title, string(app.PermitType()), boolToInt(app.IsContinuation), string(stage), permitCode,
		nullIfNil(app.TypeCode), nullIfNil(app.YdID), nullIfNil(app.DimosAA), nullIfEmpty(app.SubmissionDate),
		d.timestamp(), nullIfEmpty(app.Raw), notes, userID, d.timestamp(), d.timestamp())
	if err != nil {
		return res, err
	}
	id, err := r.LastInsertId()
	if err != nil {
		return res, err
	}

	if app.Address != "" || app.ParcelCode != "" {
		_, err = tx.ExecContext(ctx, "INSERT INTO properties(project_id, addr, city, kaek) VALUES(?,?,?,?)",
			id, nullIfEmpty(app.Address), nullIfEmpty(app.City), nullIfEmpty(app.ParcelCode))
		if err != nil {
			return res, err
		}
	}

	err = d.insertLog(ctx, tx, WorkflowLog{
		ProjectID: id,
		Action:    fmt.Sprintf("Εισαγωγή από ΤΕΕ e-Adeies (κωδ. %s)", permitCode),
		ToStage:   stage,
		UserID:    userID,
		Metadata:  map[string]string{"source": SOURCE_TEE_SYNC, "tee_permit_code": permitCode},
	})
	if err != nil {
		return res, err
	}

	if err = tx.Commit(); err != nil {
		return res, err
	}
	return ImportResult{ID: id, Code: code, Stage: stage, Created: true}, nil
}

// nextProjectCode allocates PRJ-<year>-<seq>, seq being one past the number
// of projects, moving further on if that code is already taken.
func nextProjectCode(ctx context.Context, tx *sql.Tx, year int) (string, error) {
	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM projects").Scan(&count); err != nil {
		return "", err
	}
	for seq := count + 1; ; seq++ {
		code := fmt.Sprintf("PRJ-%d-%03d", year, seq)
		var taken int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM projects WHERE code = ?", code).Scan(&taken); err != nil {
			return "", err
		}
		if taken == 0 {
			return code, nil
		}
	}
}

const projectColumns = "id, code, title, type, is_continuation, stage, tee_permit_code, aitisi_type_code, yd_id, dimos_aa, tee_submission_date, tee_sync_at, notes, created_by, created_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProject(row rowScanner) (*Project, error) {
	var (
		p                              Project
		typ, stage, createdAt          string
		isCont                         int
		permitCode, subDate, syncedAt  sql.NullString
		notes                          sql.NullString
		typeCode, ydID, dimosAA, owner sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.Code, &p.Title, &typ, &isCont, &stage, &permitCode, &typeCode, &ydID, &dimosAA, &subDate, &syncedAt, &notes, &owner, &createdAt); err != nil {
		return nil, err
	}
	p.Type = permit.Type(typ)
	p.Stage = permit.Stage(stage)
	p.IsContinuation = isCont == 1
	p.PermitCode = permitCode.String
	p.TypeCode = intPtr(typeCode)
	p.YdID = intPtr(ydID)
	p.DimosAA = intPtr(dimosAA)
	p.SubmissionDate = subDate.String
	if syncedAt.Valid {
		p.SyncedAt = parseTimestamp(syncedAt.String)
	}
	p.Notes = notes.String
	p.CreatedBy = owner.Int64
	p.CreatedAt = parseTimestamp(createdAt)
	return &p, nil
}

func (d *DB) GetProject(ctx context.Context, id int64) (*Project, error) {
	p, err := scanProject(d.sql.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	return p, err
}

// ListOptions controls selection when listing projects.
type ListOptions struct {
	Stage      permit.Stage
	LinkedOnly bool
}

func (d *DB) ListProjects(ctx context.Context, opts ListOptions) ([]Project, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	if opts.Stage != "" {
		where += " AND stage = ?"
		args = append(args, string(opts.Stage))
	}
	if opts.LinkedOnly {
		where += " AND tee_permit_code IS NOT NULL AND tee_permit_code != ''"
	}

	rows, err := d.sql.QueryContext(ctx, "SELECT "+projectColumns+" FROM projects "+where+" ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetProperty returns the property row of a project, or nil if it has none.
func (d *DB) GetProperty(ctx context.Context, projectID int64) (*Property, error) {
	var p Property
	var addr, city, kaek sql.NullString
	err := d.sql.QueryRowContext(ctx, "SELECT id, project_id, addr, city, kaek FROM properties WHERE project_id = ? ORDER BY id LIMIT 1", projectID).
		Scan(&p.ID, &p.ProjectID, &addr, &city, &kaek)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Address, p.City, p.KAEK = addr.String, city.String, kaek.String
	return &p, nil
}

// UpdateStage moves a project to a new stage and records why, atomically.
func (d *DB) UpdateStage(ctx context.Context, projectID int64, to permit.Stage, userID int64, action string, metadata map[string]string) (err error) {
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var from string
	err = tx.QueryRowContext(ctx, "SELECT stage FROM projects WHERE id = ?", projectID).Scan(&from)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrProjectNotFound
		return err
	}
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, "UPDATE projects SET stage = ?, tee_sync_at = ?, updated_at = ? WHERE id = ?", string(to), d.timestamp(), d.timestamp(), projectID); err != nil {
		return err
	}
	err = d.insertLog(ctx, tx, WorkflowLog{
		ProjectID: projectID,
		Action:    action,
		FromStage: permit.Stage(from),
		ToStage:   to,
		UserID:    userID,
		Metadata:  metadata,
	})
	if err != nil {
		return err
	}
	return tx.Commit()
}

// TouchSync records that a project was checked against the portal.
func (d *DB) TouchSync(ctx context.Context, projectID int64) error {
	_, err := d.sql.ExecContext(ctx, "UPDATE projects SET tee_sync_at = ? WHERE id = ?", d.timestamp(), projectID)
	return err
}

func (d *DB) insertLog(ctx context.Context, tx *sql.Tx, l WorkflowLog) error {
	var meta interface{}
	if len(l.Metadata) > 0 {
		b, err := json.Marshal(l.Metadata)
		if err != nil {
			return err
		}
		meta = string(b)
	}
	var user interface{}
	if l.UserID != 0 {
		user = l.UserID
	}
	_, err := tx.ExecContext(ctx, "INSERT INTO workflow_logs(project_id, action, from_stage, to_stage, user_id, metadata, created_at) VALUES(?,?,?,?,?,?,?)",
		l.ProjectID, l.Action, nullIfEmpty(string(l.FromStage)), nullIfEmpty(string(l.ToStage)), user, meta, d.timestamp())
	return err
}

// ListWorkflowLogs returns the most recent log entries, newest first. A zero
// projectID lists entries of every project.
func (d *DB) ListWorkflowLogs(ctx context.Context, projectID int64, limit int) ([]WorkflowLog, error) {
	if limit <= 0 {
		limit = 50
	}
	q := "SELECT id, project_id, action, from_stage, to_stage, user_id, metadata, created_at FROM workflow_logs"
	args := []interface{}{}
	if projectID != 0 {
		q += " WHERE project_id = ?"
		args = append(args, projectID)
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WorkflowLog
	for rows.Next() {
		var (
			l              WorkflowLog
			from, to, meta sql.NullString
			user           sql.NullInt64
			createdAt      string
		)
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.Action, &from, &to, &user, &meta, &createdAt); err != nil {
			return nil, err
		}
		l.FromStage = permit.Stage(from.String)
		l.ToStage = permit.Stage(to.String)
		l.UserID = user.Int64
		l.CreatedAt = parseTimestamp(createdAt)
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &l.Metadata); err != nil {
				return nil, fmt.Errorf("log %d: bad metadata: %w", l.ID, err)
			}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
