package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/ashureev/taskmarket/internal/domain"
	"github.com/ashureev/taskmarket/internal/report"
	"github.com/ashureev/taskmarket/internal/store"
)

// withStore opens the database named by the root --db flag for one command.
func withStore(ctx context.Context, command *cli.Command, fn func(store.Repository) error) error {
	repo, err := store.NewSQLite(command.String("db"))
	if err != nil {
		return err
	}
	defer func() {
		_ = repo.Close()
	}()
	if err := repo.Ping(ctx); err != nil {
		return err
	}
	return fn(repo)
}

func newSeedCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Upsert professions, jobs and languages from a JSON catalog",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Catalog JSON file",
				Required: true,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			f, err := os.Open(command.String("file"))
			if err != nil {
				return err
			}
			defer f.Close()
			cat, err := domain.ReadCatalog(f)
			if err != nil {
				return err
			}
			return withStore(ctx, command, func(repo store.Repository) error {
				if err := repo.SeedCatalog(ctx, cat); err != nil {
					return err
				}
				jobs := 0
				for _, p := range cat.Professions {
					jobs += len(p.Jobs)
				}
				_, err := fmt.Fprintf(out, "seeded %d professions, %d jobs, %d languages\n", len(cat.Professions), jobs, len(cat.Languages))
				return err
			})
		},
	}
}

func newExportCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write CSV reports to stdout",
		Commands: []*cli.Command{
			{
				Name:  "metrics",
				Usage: "Dashboard counters and the daily decision series",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "days", Usage: "Days of decision history", Value: 30},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					return withStore(ctx, command, func(repo store.Repository) error {
						now := time.Now()
						stats, err := repo.Stats(ctx, now)
						if err != nil {
							return err
						}
						since := now.AddDate(0, 0, -int(command.Int("days")))
						daily, err := repo.DailyDecisions(ctx, since)
						if err != nil {
							return err
						}
						return report.WriteMetrics(out, stats, daily)
					})
				},
			},
			{
				Name:  "users",
				Usage: "All users with their roles",
				Action: func(ctx context.Context, command *cli.Command) error {
					return withStore(ctx, command, func(repo store.Repository) error {
						users, err := repo.ListUsers(ctx, "")
						if err != nil {
							return err
						}
						return report.WriteUsers(out, users)
					})
				},
			},
		},
	}
}

func newBlocksCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "blocks",
		Usage: "List active blocks",
		Action: func(ctx context.Context, command *cli.Command) error {
			return withStore(ctx, command, func(repo store.Repository) error {
				blocks, err := repo.ListBlocks(ctx, time.Now())
				if err != nil {
					return err
				}
				if len(blocks) == 0 {
					_, err := fmt.Fprintln(out, "no active blocks")
					return err
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "USER\tEXPIRES\tREASONS")
				for _, b := range blocks {
					fmt.Fprintf(tw, "%d\t%s\t%s\n", b.UserID, b.ExpiresAt.UTC().Format(time.RFC3339), strings.Join(b.Reasons, ","))
				}
				return tw.Flush()
			})
		},
	}
}

func newUnblockCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "unblock",
		Usage:     "Lift a user's block",
		ArgsUsage: "<user-id>",
		Action: func(ctx context.Context, command *cli.Command) error {
			userID, err := strconv.ParseInt(command.Args().First(), 10, 64)
			if err != nil || userID <= 0 {
				return fmt.Errorf("unblock: expected a user id, got %q", command.Args().First())
			}
			return withStore(ctx, command, func(repo store.Repository) error {
				deleted, err := repo.DeleteBlock(ctx, userID)
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("user %d is not blocked", userID)
				}
				_, err = fmt.Fprintf(out, "unblocked %d\n", userID)
				return err
			})
		},
	}
}
