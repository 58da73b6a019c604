package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ashureev/taskmarket/internal/domain"
)

// CreateExecutorProfile stores an unverified executor profile and sets the
// executor role in one transaction.
func (s *SQLiteStore) CreateExecutorProfile(ctx context.Context, p *domain.ExecutorProfile) error {
	query := `
	INSERT INTO executor_profiles (
		user_id, name, photo_path, age, profession_id, description, rate,
		experience, contacts, location, verified, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		name = excluded.name,
		photo_path = excluded.photo_path,
		age = excluded.age,
		profession_id = excluded.profession_id,
		description = excluded.description,
		rate = excluded.rate,
		experience = excluded.experience,
		contacts = excluded.contacts,
		location = excluded.location,
		verified = 0,
		updated_at = excluded.updated_at`

	now := time.Now()
	return s.inTx(ctx, "create executor profile", func(tx *sql.Tx) error {
		if err := setRole(ctx, tx, p.UserID, domain.RoleExecutor, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query,
			p.UserID, p.Name, p.PhotoPath, p.Age, p.ProfessionID, p.Description, p.Rate,
			p.Experience, p.Contacts, p.Location, now.Unix(), now.Unix(),
		); err != nil {
			return fmt.Errorf("insert executor profile: %w", err)
		}
		if err := replaceExecutorJobs(ctx, tx, p.UserID, p.JobIDs); err != nil {
			return err
		}
		return replaceExecutorLinks(ctx, tx, p.UserID, p.Links)
	})
}

// ReplaceExecutorJobs swaps the executor's job links atomically.
func (s *SQLiteStore) ReplaceExecutorJobs(ctx context.Context, userID int64, jobIDs []int64) error {
	return s.inTx(ctx, "replace executor jobs", func(tx *sql.Tx) error {
		return replaceExecutorJobs(ctx, tx, userID, jobIDs)
	})
}

func replaceExecutorJobs(ctx context.Context, tx *sql.Tx, userID int64, jobIDs []int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM executor_jobs WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete executor jobs: %w", err)
	}
	for i, id := range jobIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO executor_jobs (user_id, job_id, position) VALUES (?, ?, ?)`, userID, id, i); err != nil {
			return fmt.Errorf("insert executor job %d: %w", id, err)
		}
	}
	return nil
}

func replaceExecutorLinks(ctx context.Context, tx *sql.Tx, userID int64, links []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM executor_links WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete executor links: %w", err)
	}
	for i, url := range links {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO executor_links (user_id, position, url) VALUES (?, ?, ?)`, userID, i, url); err != nil {
			return fmt.Errorf("insert executor link: %w", err)
		}
	}
	return nil
}

const executorColumns = `user_id, name, photo_path, age, profession_id, description, rate,
	experience, contacts, location, verified, created_at, updated_at`

func scanExecutor(row scanner) (*domain.ExecutorProfile, error) {
	var p domain.ExecutorProfile
	var verified int
	var createdAt, updatedAt int64
	if err := row.Scan(
		&p.UserID, &p.Name, &p.PhotoPath, &p.Age, &p.ProfessionID, &p.Description, &p.Rate,
		&p.Experience, &p.Contacts, &p.Location, &verified, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	p.Verified = verified == 1
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}

// GetExecutorProfile retrieves an executor profile with its jobs and links.
func (s *SQLiteStore) GetExecutorProfile(ctx context.Context, userID int64) (*domain.ExecutorProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+executorColumns+` FROM executor_profiles WHERE user_id = ?`, userID)
	p, err := scanExecutor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan executor profile: %w", err)
	}
	if err := s.loadExecutorLists(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListExecutorProfiles lists all executor profiles.
func (s *SQLiteStore) ListExecutorProfiles(ctx context.Context) ([]*domain.ExecutorProfile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+executorColumns+` FROM executor_profiles ORDER BY created_at, user_id`)
	if err != nil {
		return nil, fmt.Errorf("query executor profiles: %w", err)
	}
	var out []*domain.ExecutorProfile
	for rows.Next() {
		p, err := scanExecutor(rows)
		if err != nil {
			closeRows(rows, "executor profiles")
			return nil, fmt.Errorf("scan executor profile: %w", err)
		}
		out = append(out, p)
	}
	closeRows(rows, "executor profiles")
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executor profiles: %w", err)
	}

	for _, p := range out {
		if err := s.loadExecutorLists(ctx, p); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLiteStore) loadExecutorLists(ctx context.Context, p *domain.ExecutorProfile) error {
	jobs, err := s.int64Column(ctx, `SELECT job_id FROM executor_jobs WHERE user_id = ? ORDER BY position`, p.UserID)
	if err != nil {
		return fmt.Errorf("load executor jobs: %w", err)
	}
	links, err := s.stringColumn(ctx, `SELECT url FROM executor_links WHERE user_id = ? ORDER BY position`, p.UserID)
	if err != nil {
		return fmt.Errorf("load executor links: %w", err)
	}
	p.JobIDs = jobs
	p.Links = links
	return nil
}

// CreateClientProfile stores an unverified client profile and sets the
// client role in one transaction.
func (s *SQLiteStore) CreateClientProfile(ctx context.Context, p *domain.ClientProfile) error {
	query := `
	INSERT INTO client_profiles (
		user_id, client_type, company_name, name, description, contacts,
		verified, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		client_type = excluded.client_type,
		company_name = excluded.company_name,
		name = excluded.name,
		description = excluded.description,
		contacts = excluded.contacts,
		verified = 0,
		updated_at = excluded.updated_at`

	now := time.Now()
	return s.inTx(ctx, "create client profile", func(tx *sql.Tx) error {
		if err := setRole(ctx, tx, p.UserID, domain.RoleClient, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query,
			p.UserID, p.ClientType, p.CompanyName, p.Name, p.Description, p.Contacts,
			now.Unix(), now.Unix(),
		); err != nil {
			return fmt.Errorf("insert client profile: %w", err)
		}
		return replaceClientLanguages(ctx, tx, p.UserID, p.LanguageIDs)
	})
}

func replaceClientLanguages(ctx context.Context, tx *sql.Tx, userID int64, ids []int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM client_languages WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete client languages: %w", err)
	}
	for i, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO client_languages (user_id, language_id, position) VALUES (?, ?, ?)`, userID, id, i); err != nil {
			return fmt.Errorf("insert client language %d: %w", id, err)
		}
	}
	return nil
}

const clientColumns = `user_id, client_type, company_name, name, description, contacts,
	verified, created_at, updated_at`

func scanClient(row scanner) (*domain.ClientProfile, error) {
	var p domain.ClientProfile
	var verified int
	var createdAt, updatedAt int64
	if err := row.Scan(
		&p.UserID, &p.ClientType, &p.CompanyName, &p.Name, &p.Description, &p.Contacts,
		&verified, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	p.Verified = verified == 1
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}

// GetClientProfile retrieves a client profile with its languages.
func (s *SQLiteStore) GetClientProfile(ctx context.Context, userID int64) (*domain.ClientProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM client_profiles WHERE user_id = ?`, userID)
	p, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan client profile: %w", err)
	}
	if p.LanguageIDs, err = s.clientLanguages(ctx, userID); err != nil {
		return nil, err
	}
	return p, nil
}

// ListClientProfiles lists all client profiles.
func (s *SQLiteStore) ListClientProfiles(ctx context.Context) ([]*domain.ClientProfile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM client_profiles ORDER BY created_at, user_id`)
	if err != nil {
		return nil, fmt.Errorf("query client profiles: %w", err)
	}
	var out []*domain.ClientProfile
	for rows.Next() {
		p, err := scanClient(rows)
		if err != nil {
			closeRows(rows, "client profiles")
			return nil, fmt.Errorf("scan client profile: %w", err)
		}
		out = append(out, p)
	}
	closeRows(rows, "client profiles")
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate client profiles: %w", err)
	}

	for _, p := range out {
		if p.LanguageIDs, err = s.clientLanguages(ctx, p.UserID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLiteStore) clientLanguages(ctx context.Context, userID int64) ([]int64, error) {
	ids, err := s.int64Column(ctx, `SELECT language_id FROM client_languages WHERE user_id = ? ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("load client languages: %w", err)
	}
	return ids, nil
}

// DiscardProfile removes an unverified profile and its role. It backs out a
// registration whose review could not be submitted.
func (s *SQLiteStore) DiscardProfile(ctx context.Context, userID int64, subject string) (bool, error) {
	table, err := subjectTable(subject)
	if err != nil {
		return false, err
	}
	var removed bool
	err = s.inTx(ctx, "discard profile", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = ? AND verified = 0`, userID)
		if err != nil {
			return fmt.Errorf("delete profile: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		removed = true
		return setRole(ctx, tx, userID, domain.RoleNone, time.Now())
	})
	return removed, err
}

func subjectTable(subject string) (string, error) {
	switch subject {
	case string(domain.RoleExecutor):
		return "executor_profiles", nil
	case string(domain.RoleClient):
		return "client_profiles", nil
	}
	return "", fmt.Errorf("unknown profile subject %q", subject)
}

// ProfileUpdatedAt reports when the subject's profile last changed and
// whether it is verified. A missing profile reports false.
func (s *SQLiteStore) ProfileUpdatedAt(ctx context.Context, userID int64, subject string) (time.Time, bool, error) {
	table, err := subjectTable(subject)
	if err != nil {
		return time.Time{}, false, err
	}

	var updatedAt int64
	var verified int
	err = s.db.QueryRowContext(ctx, `SELECT updated_at, verified FROM `+table+` WHERE user_id = ?`, userID).
		Scan(&updatedAt, &verified)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query profile updated_at: %w", err)
	}
	return time.Unix(updatedAt, 0), verified == 1, nil
}

// applyEdit writes an approved edit payload onto the subject's profile.
// Only keys listed in fields are touched; an empty value clears the field.
func applyEdit(ctx context.Context, tx *sql.Tx, r *domain.Review, now time.Time) error {
	table := "client_profiles"
	columns := clientEditColumns
	if r.Kind == domain.ReviewExecutorEdit {
		table = "executor_profiles"
		columns = executorEditColumns
	}

	for _, key := range r.Fields {
		values := r.Payload[key]
		switch key {
		case domain.FieldJobs:
			ids, err := parseIDs(values)
			if err != nil {
				return err
			}
			if err := replaceExecutorJobs(ctx, tx, r.SubjectID, ids); err != nil {
				return err
			}
		case domain.FieldLinks:
			if err := replaceExecutorLinks(ctx, tx, r.SubjectID, values); err != nil {
				return err
			}
		case domain.FieldLanguages:
			ids, err := parseIDs(values)
			if err != nil {
				return err
			}
			if err := replaceClientLanguages(ctx, tx, r.SubjectID, ids); err != nil {
				return err
			}
		default:
			col, ok := columns[key]
			if !ok {
				return fmt.Errorf("field %q is not editable", key)
			}
			var value any = ""
			if len(values) > 0 {
				value = values[0]
			}
			if col.numeric {
				n, err := strconv.ParseInt(fmt.Sprint(value), 10, 64)
				if err != nil {
					return fmt.Errorf("field %q: %w", key, err)
				}
				value = n
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE `+table+` SET `+col.name+` = ? WHERE user_id = ?`, value, r.SubjectID); err != nil {
				return fmt.Errorf("update %s: %w", col.name, err)
			}
		}
	}

	// Verification only comes from an approved registration.
	res, err := tx.ExecContext(ctx, `UPDATE `+table+` SET updated_at = ? WHERE user_id = ?`, now.Unix(), r.SubjectID)
	if err != nil {
		return fmt.Errorf("touch profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s profile %d not found", r.Kind.Subject(), r.SubjectID)
	}
	return nil
}

type editColumn struct {
	name    string
	numeric bool
}

var executorEditColumns = map[string]editColumn{
	domain.FieldName:        {name: "name"},
	domain.FieldPhoto:       {name: "photo_path"},
	domain.FieldAge:         {name: "age", numeric: true},
	domain.FieldProfession:  {name: "profession_id", numeric: true},
	domain.FieldDescription: {name: "description"},
	domain.FieldRate:        {name: "rate"},
	domain.FieldExperience:  {name: "experience"},
	domain.FieldContacts:    {name: "contacts"},
	domain.FieldLocation:    {name: "location"},
}

var clientEditColumns = map[string]editColumn{
	domain.FieldName:        {name: "name"},
	domain.FieldCompanyName: {name: "company_name"},
	domain.FieldDescription: {name: "description"},
	domain.FieldContacts:    {name: "contacts"},
}

func parseIDs(values []string) ([]int64, error) {
	out := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", v, err)
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *SQLiteStore) int64Column(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows, query)

	out := []int64{}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) stringColumn(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows, query)

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
