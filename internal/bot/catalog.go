package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ashureev/taskmarket/internal/workflow"
)

// Catalog exposes stored reference data as workflow options. Option ids are
// the decimal row ids.
type Catalog struct {
	repo Repository
}

// NewCatalog creates a catalog over the repository.
func NewCatalog(repo Repository) *Catalog {
	return &Catalog{repo: repo}
}

// Professions lists professions.
func (c *Catalog) Professions(ctx context.Context) ([]workflow.Option, error) {
	ps, err := c.repo.ListProfessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list professions: %w", err)
	}
	out := make([]workflow.Option, 0, len(ps))
	for _, p := range ps {
		out = append(out, workflow.Option{ID: formatID(p.ID), Label: p.Name})
	}
	return out, nil
}

// Jobs lists the jobs of a profession.
func (c *Catalog) Jobs(ctx context.Context, professionID string) ([]workflow.Option, error) {
	id, err := strconv.ParseInt(professionID, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("invalid profession id %q", professionID)
	}
	return c.jobs(ctx, id)
}

// AllJobs lists every job.
func (c *Catalog) AllJobs(ctx context.Context) ([]workflow.Option, error) {
	return c.jobs(ctx, 0)
}

func (c *Catalog) jobs(ctx context.Context, professionID int64) ([]workflow.Option, error) {
	js, err := c.repo.ListJobs(ctx, professionID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	out := make([]workflow.Option, 0, len(js))
	for _, j := range js {
		out = append(out, workflow.Option{ID: formatID(j.ID), Label: j.Name})
	}
	return out, nil
}

// Languages lists languages.
func (c *Catalog) Languages(ctx context.Context) ([]workflow.Option, error) {
	ls, err := c.repo.ListLanguages(ctx)
	if err != nil {
		return nil, fmt.Errorf("list languages: %w", err)
	}
	out := make([]workflow.Option, 0, len(ls))
	for _, l := range ls {
		out = append(out, workflow.Option{ID: formatID(l.ID), Label: l.Name})
	}
	return out, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func formatIDs(ids []int64) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, formatID(id))
	}
	return out
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

func labelOf(opts []workflow.Option, id string) string {
	for _, o := range opts {
		if o.ID == id {
			return o.Label
		}
	}
	return "-"
}

func labelsOf(opts []workflow.Option, ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	labels := make([]string, 0, len(ids))
	for _, id := range ids {
		labels = append(labels, labelOf(opts, id))
	}
	return strings.Join(labels, ", ")
}
