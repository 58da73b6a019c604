package workflow

import (
	"context"
	"fmt"

	"github.com/ashureev/taskmarket/internal/domain"
	"github.com/ashureev/taskmarket/internal/fields"
	"github.com/ashureev/taskmarket/internal/session"
)

// Workflow ids.
const (
	ExecutorRegistration = "executor_registration"
	ClientRegistration   = "client_registration"
	CreateOrder          = "create_order"

	ExecutorEditPrefix = "executor_edit_"
	ClientEditPrefix   = "client_edit_"
)

// Field keys shared by workflows and the committer.
const (
	FieldName        = domain.FieldName
	FieldPhoto       = domain.FieldPhoto
	FieldAge         = domain.FieldAge
	FieldProfession  = domain.FieldProfession
	FieldJobs        = domain.FieldJobs
	FieldDescription = domain.FieldDescription
	FieldRate        = domain.FieldRate
	FieldExperience  = domain.FieldExperience
	FieldLinks       = domain.FieldLinks
	FieldContacts    = domain.FieldContacts
	FieldLocation    = domain.FieldLocation

	FieldClientType  = domain.FieldClientType
	FieldCompanyName = domain.FieldCompanyName
	FieldLanguages   = domain.FieldLanguages

	FieldTitle    = domain.FieldTitle
	FieldBudget   = domain.FieldBudget
	FieldDeadline = domain.FieldDeadline
	FieldFiles    = domain.FieldFiles
)

// Client types.
const (
	ClientIndividual = "individual"
	ClientCompany    = "company"
)

// Selection caps.
const (
	MaxExecutorJobs = 5
	MaxOrderJobs    = 3
	MaxLanguages    = 3
	MaxLinks        = 10
	MaxOrderFiles   = 10
)

// Catalog lists the reference data offered in choice and multiselect steps.
type Catalog interface {
	Professions(ctx context.Context) ([]Option, error)
	Jobs(ctx context.Context, professionID string) ([]Option, error)
	AllJobs(ctx context.Context) ([]Option, error)
	Languages(ctx context.Context) ([]Option, error)
}

// EditableExecutorFields lists the executor edit menu. Profession edits
// also re-collect jobs since jobs depend on the profession.
var EditableExecutorFields = [][]string{
	{FieldName}, {FieldPhoto}, {FieldAge}, {FieldProfession, FieldJobs}, {FieldJobs},
	{FieldDescription}, {FieldRate}, {FieldExperience}, {FieldLinks},
	{FieldContacts}, {FieldLocation},
}

// EditableClientFields lists the client edit menu.
var EditableClientFields = [][]string{
	{FieldName}, {FieldLanguages}, {FieldDescription}, {FieldContacts},
}

// Definitions builds every workflow, including the generated edit workflows.
func Definitions(cat Catalog) ([]*Definition, error) {
	executor := executorRegistration(cat)
	client := clientRegistration(cat)
	defs := []*Definition{executor, client, createOrder(cat)}

	for _, keys := range EditableExecutorFields {
		d, err := Subset(executor, ExecutorEditPrefix+keys[0], keys...)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	for _, keys := range EditableClientFields {
		d, err := Subset(client, ClientEditPrefix+keys[0], keys...)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}

	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("invalid workflow: %w", err)
		}
	}
	return defs, nil
}

func executorRegistration(cat Catalog) *Definition {
	return &Definition{
		ID:                  ExecutorRegistration,
		Purpose:             PurposeRegistration,
		Subject:             "executor",
		KeepOnCommitFailure: true,
		Steps: []Step{
			{Key: FieldName, Kind: KindText, Title: "Name", Prompt: "What is your name?", Validate: fields.Text(64)},
			{Key: FieldPhoto, Kind: KindFile, Title: "Photo", Prompt: "Send a photo for your profile."},
			{Key: FieldAge, Kind: KindText, Title: "Age", Prompt: "How old are you?", Validate: fields.Age},
			{
				Key: FieldProfession, Kind: KindChoice, Title: "Profession", Prompt: "Choose your profession.",
				Options: func(ctx context.Context, _ session.Answers) ([]Option, error) {
					return cat.Professions(ctx)
				},
			},
			{
				Key: FieldJobs, Kind: KindMulti, Title: "Jobs",
				Prompt:        fmt.Sprintf("Pick up to %d kinds of work you take on.", MaxExecutorJobs),
				MaxSelections: MaxExecutorJobs,
				Options: func(ctx context.Context, a session.Answers) ([]Option, error) {
					return cat.Jobs(ctx, a.Get(FieldProfession))
				},
			},
			{Key: FieldDescription, Kind: KindText, Title: "About", Prompt: "Describe yourself and your work (up to 1000 characters).", Validate: fields.Text(1000)},
			{Key: FieldRate, Kind: KindText, Title: "Rate", Prompt: "What is your rate? For example: 2000/hr.", Validate: fields.Text(100)},
			{Key: FieldExperience, Kind: KindText, Title: "Experience", Prompt: "How much experience do you have?", Validate: fields.Text(100)},
			{
				Key: FieldLinks, Kind: KindList, Title: "Portfolio links",
				Prompt:   "Send links to your portfolio, one per message. Press Done when finished.",
				Validate: fields.URL, MaxItems: MaxLinks, Optional: true,
			},
			{Key: FieldContacts, Kind: KindText, Title: "Contacts", Prompt: "How can clients reach you?", Validate: fields.Text(200), Optional: true},
			{Key: FieldLocation, Kind: KindText, Title: "Location", Prompt: "Where are you based?", Validate: fields.Text(100), Optional: true},
			confirmStep(),
		},
	}
}

func clientRegistration(cat Catalog) *Definition {
	return &Definition{
		ID:                  ClientRegistration,
		Purpose:             PurposeRegistration,
		Subject:             "client",
		KeepOnCommitFailure: true,
		Steps: []Step{
			{
				Key: FieldClientType, Kind: KindChoice, Title: "Client type", Prompt: "Are you ordering as a person or as a company?",
				Options: func(context.Context, session.Answers) ([]Option, error) {
					return []Option{{ID: ClientIndividual, Label: "Person"}, {ID: ClientCompany, Label: "Company"}}, nil
				},
				Next: func(a session.Answers) string {
					if a.Get(FieldClientType) == ClientIndividual {
						return FieldLanguages
					}
					return FieldCompanyName
				},
			},
			{Key: FieldCompanyName, Kind: KindText, Title: "Company", Prompt: "What is the company name?", Validate: fields.Text(100)},
			{
				Key: FieldLanguages, Kind: KindMulti, Title: "Languages",
				Prompt:        fmt.Sprintf("Pick up to %d languages you work in.", MaxLanguages),
				MaxSelections: MaxLanguages,
				Options: func(ctx context.Context, _ session.Answers) ([]Option, error) {
					return cat.Languages(ctx)
				},
			},
			{Key: FieldName, Kind: KindText, Title: "Name", Prompt: "What is your name?", Validate: fields.Text(64)},
			{Key: FieldDescription, Kind: KindText, Title: "About", Prompt: "Tell executors about yourself (up to 500 characters).", Validate: fields.Text(500), Optional: true},
			{Key: FieldContacts, Kind: KindText, Title: "Contacts", Prompt: "How can executors reach you?", Validate: fields.Text(200), Optional: true},
			confirmStep(),
		},
	}
}

func createOrder(cat Catalog) *Definition {
	return &Definition{
		ID:                  CreateOrder,
		Purpose:             PurposeOrder,
		Subject:             "order",
		KeepOnCommitFailure: true,
		Steps: []Step{
			{Key: FieldTitle, Kind: KindText, Title: "Title", Prompt: "Give the order a short title.", Validate: fields.Text(100)},
			{Key: FieldDescription, Kind: KindText, Title: "Description", Prompt: "Describe the task (up to 1000 characters).", Validate: fields.Text(1000)},
			{
				Key: FieldJobs, Kind: KindMulti, Title: "Categories",
				Prompt:        fmt.Sprintf("Pick up to %d categories.", MaxOrderJobs),
				MaxSelections: MaxOrderJobs,
				Options: func(ctx context.Context, _ session.Answers) ([]Option, error) {
					return cat.AllJobs(ctx)
				},
			},
			{Key: FieldBudget, Kind: KindText, Title: "Budget", Prompt: "What is the budget? Send a whole number.", Validate: fields.Price},
			{Key: FieldDeadline, Kind: KindText, Title: "Deadline, days", Prompt: "How many days does the executor have?", Validate: fields.DayCount},
			{
				Key: FieldFiles, Kind: KindList, Title: "Files", AcceptFiles: true, Optional: true, MaxItems: MaxOrderFiles,
				Prompt: "Attach reference files, one per message. Press Done when finished.",
			},
			confirmStep(),
		},
	}
}
