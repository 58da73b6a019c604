package domain

import "time"

// Field keys collected by workflows and stored in profiles.
const (
	FieldName        = "name"
	FieldPhoto       = "photo"
	FieldAge         = "age"
	FieldProfession  = "profession"
	FieldJobs        = "jobs"
	FieldDescription = "description"
	FieldRate        = "rate"
	FieldExperience  = "experience"
	FieldLinks       = "links"
	FieldContacts    = "contacts"
	FieldLocation    = "location"

	FieldClientType  = "client_type"
	FieldCompanyName = "company_name"
	FieldLanguages   = "languages"

	FieldTitle    = "title"
	FieldBudget   = "budget"
	FieldDeadline = "deadline"
	FieldFiles    = "files"
)

// ExecutorProfile is a freelancer's public card.
type ExecutorProfile struct {
	UserID       int64     `json:"user_id"`
	Name         string    `json:"name"`
	PhotoPath    string    `json:"photo_path"`
	Age          int       `json:"age"`
	ProfessionID int64     `json:"profession_id"`
	JobIDs       []int64   `json:"job_ids"`
	Description  string    `json:"description"`
	Rate         string    `json:"rate"`
	Experience   string    `json:"experience"`
	Links        []string  `json:"links"`
	Contacts     string    `json:"contacts,omitempty"`
	Location     string    `json:"location,omitempty"`
	Verified     bool      `json:"verified"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ClientProfile is an order poster's card.
type ClientProfile struct {
	UserID      int64     `json:"user_id"`
	ClientType  string    `json:"client_type"`
	CompanyName string    `json:"company_name,omitempty"`
	Name        string    `json:"name"`
	LanguageIDs []int64   `json:"language_ids"`
	Description string    `json:"description,omitempty"`
	Contacts    string    `json:"contacts,omitempty"`
	Verified    bool      `json:"verified"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Order is a task posted by a client.
type Order struct {
	ID           int64     `json:"id"`
	ClientID     int64     `json:"client_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	JobIDs       []int64   `json:"job_ids"`
	Budget       int64     `json:"budget"`
	DeadlineDays int       `json:"deadline_days"`
	Files        []string  `json:"files,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// OrderOpen is the status of a freshly posted order.
const OrderOpen = "open"
