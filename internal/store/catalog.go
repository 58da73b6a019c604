package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ashureev/taskmarket/internal/domain"
)

// SeedCatalog upserts the catalog in one transaction. Existing entries keep
// their ids so profiles referencing them stay valid.
func (s *SQLiteStore) SeedCatalog(ctx context.Context, cat *domain.Catalog) error {
	return s.inTx(ctx, "seed catalog", func(tx *sql.Tx) error {
		for _, p := range cat.Professions {
			name := strings.TrimSpace(p.Name)
			if name == "" {
				return fmt.Errorf("profession without a name")
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO professions (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
				return fmt.Errorf("insert profession %q: %w", name, err)
			}
			var pid int64
			if err := tx.QueryRowContext(ctx, `SELECT id FROM professions WHERE name = ?`, name).Scan(&pid); err != nil {
				return fmt.Errorf("lookup profession %q: %w", name, err)
			}
			for _, j := range p.Jobs {
				j = strings.TrimSpace(j)
				if j == "" {
					continue
				}
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO jobs (profession_id, name) VALUES (?, ?) ON CONFLICT(profession_id, name) DO NOTHING`,
					pid, j); err != nil {
					return fmt.Errorf("insert job %q: %w", j, err)
				}
			}
		}
		for _, l := range cat.Languages {
			l = strings.TrimSpace(l)
			if l == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO languages (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, l); err != nil {
				return fmt.Errorf("insert language %q: %w", l, err)
			}
		}
		return nil
	})
}

// ListProfessions lists professions by id.
func (s *SQLiteStore) ListProfessions(ctx context.Context) ([]domain.Profession, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM professions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query professions: %w", err)
	}
	defer closeRows(rows, "professions")

	var out []domain.Profession
	for rows.Next() {
		var p domain.Profession
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("scan profession: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListJobs lists jobs of one profession, or all jobs when professionID is 0.
func (s *SQLiteStore) ListJobs(ctx context.Context, professionID int64) ([]domain.Job, error) {
	query := `SELECT id, profession_id, name FROM jobs`
	var args []any
	if professionID != 0 {
		query += ` WHERE profession_id = ?`
		args = append(args, professionID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer closeRows(rows, "jobs")

	var out []domain.Job
	for rows.Next() {
		var j domain.Job
		if err := rows.Scan(&j.ID, &j.ProfessionID, &j.Name); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ListLanguages lists languages by id.
func (s *SQLiteStore) ListLanguages(ctx context.Context) ([]domain.Language, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM languages ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query languages: %w", err)
	}
	defer closeRows(rows, "languages")

	var out []domain.Language
	for rows.Next() {
		var l domain.Language
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return nil, fmt.Errorf("scan language: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
