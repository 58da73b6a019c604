// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/taskmarket/internal/domain"
)

// Repository defines the interface for persisting marketplace data.
type Repository interface {
	// UpsertUser creates a user or refreshes their username. The role is
	// never changed here.
	UpsertUser(ctx context.Context, user *domain.User) error

	// GetUser retrieves a user by id. Returns nil, nil when absent.
	GetUser(ctx context.Context, userID int64) (*domain.User, error)

	// ListUsers lists users; an empty role lists everyone and "none" lists
	// users without a role.
	ListUsers(ctx context.Context, role string) ([]*domain.User, error)

	// SeedCatalog upserts professions, jobs and languages.
	SeedCatalog(ctx context.Context, cat *domain.Catalog) error
	ListProfessions(ctx context.Context) ([]domain.Profession, error)
	// ListJobs lists the jobs of a profession, or all jobs when professionID is 0.
	ListJobs(ctx context.Context, professionID int64) ([]domain.Job, error)
	ListLanguages(ctx context.Context) ([]domain.Language, error)

	// CreateExecutorProfile stores an unverified executor profile with its
	// jobs and links and sets the user's role, atomically.
	CreateExecutorProfile(ctx context.Context, p *domain.ExecutorProfile) error
	GetExecutorProfile(ctx context.Context, userID int64) (*domain.ExecutorProfile, error)
	ListExecutorProfiles(ctx context.Context) ([]*domain.ExecutorProfile, error)
	// ReplaceExecutorJobs swaps the executor's job links atomically.
	ReplaceExecutorJobs(ctx context.Context, userID int64, jobIDs []int64) error

	// CreateClientProfile stores an unverified client profile with its
	// languages and sets the user's role, atomically.
	CreateClientProfile(ctx context.Context, p *domain.ClientProfile) error
	GetClientProfile(ctx context.Context, userID int64) (*domain.ClientProfile, error)
	ListClientProfiles(ctx context.Context) ([]*domain.ClientProfile, error)

	// DiscardProfile deletes an unverified profile and clears the role in one
	// transaction. A verified profile is left alone and reports false.
	DiscardProfile(ctx context.Context, userID int64, subject string) (bool, error)

	// ProfileUpdatedAt reports when the profile last changed and whether it
	// is verified. subject is "executor" or "client".
	ProfileUpdatedAt(ctx context.Context, userID int64, subject string) (time.Time, bool, error)

	// CreateOrder stores an order with its jobs and files and returns its id.
	CreateOrder(ctx context.Context, o *domain.Order) (int64, error)
	// ListOrders lists orders of a client, or all orders when clientID is 0.
	ListOrders(ctx context.Context, clientID int64) ([]*domain.Order, error)

	CreateReview(ctx context.Context, r *domain.Review) error
	GetReview(ctx context.Context, id string) (*domain.Review, error)
	UpdateReview(ctx context.Context, r *domain.Review) error
	OpenReview(ctx context.Context, subjectID int64) (*domain.Review, error)
	// ListReviews lists reviews newest first; an empty status lists all.
	ListReviews(ctx context.Context, status string) ([]*domain.Review, error)
	ApproveReview(ctx context.Context, r *domain.Review) error
	RejectReview(ctx context.Context, r *domain.Review, block *domain.Block) error

	GetBlock(ctx context.Context, userID int64) (*domain.Block, error)
	// UpsertBlock stores the block, overwriting any existing one.
	UpsertBlock(ctx context.Context, b *domain.Block) error
	// DeleteBlock lifts a block. Returns false if there was none.
	DeleteBlock(ctx context.Context, userID int64) (bool, error)
	// ListBlocks lists blocks still active at now.
	ListBlocks(ctx context.Context, now time.Time) ([]*domain.Block, error)
	// DeleteExpiredBlocks purges blocks that ended before now.
	DeleteExpiredBlocks(ctx context.Context, now time.Time) (int64, error)

	// Stats returns marketplace counters as of now.
	Stats(ctx context.Context, now time.Time) (*domain.Stats, error)
	// DailyDecisions counts moderation outcomes per UTC day since the given time.
	DailyDecisions(ctx context.Context, since time.Time) ([]domain.DailyDecisions, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
