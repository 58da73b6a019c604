package domain

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
)

// Profession groups related jobs.
type Profession struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Job is a kind of work an executor offers or an order needs.
type Job struct {
	ID           int64  `json:"id"`
	ProfessionID int64  `json:"profession_id"`
	Name         string `json:"name"`
}

// Language is a working language of a client.
type Language struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Catalog is the seedable reference data.
type Catalog struct {
	Professions []CatalogProfession `json:"professions" validate:"required,min=1,dive"`
	Languages   []string            `json:"languages" validate:"required,min=1,dive,required,max=64"`
}

// CatalogProfession is a profession with its job names.
type CatalogProfession struct {
	Name string   `json:"name" validate:"required,max=64"`
	Jobs []string `json:"jobs" validate:"required,min=1,dive,required,max=64"`
}

var catalogValidator = validator.New(validator.WithRequiredStructEnabled())

// ReadCatalog decodes and validates a JSON catalog.
func ReadCatalog(r io.Reader) (*Catalog, error) {
	var c Catalog
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := catalogValidator.Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return &c, nil
}
