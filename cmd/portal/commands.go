package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/alem-hub/schoolportal/internal/database"
	"github.com/alem-hub/schoolportal/internal/domain/enrollment"
	"github.com/alem-hub/schoolportal/internal/domain/student"
	"github.com/alem-hub/schoolportal/internal/elegant"
	"github.com/alem-hub/schoolportal/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/schoolportal/pkg/timeutil"
)

// errNoDatabase - команда требует PostgreSQL.
var errNoDatabase = errors.New("DATABASE_URL is not set")

// ══════════════════════════════════════════════════════════════════════════════
// ВЫБОРКИ
// ══════════════════════════════════════════════════════════════════════════════

// queryFlags - общие флаги команд, строящих запрос.
type queryFlags struct {
	wheres []string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.wheres, "where", "w", nil, "Add a column=value condition (repeatable)")
}

// build создаёт builder модели и применяет условия. Аргументы после имени
// модели - динамический метод и его значения: whereCohortAndActive A true.
func (f *queryFlags) build(app *Application, model string, dynamic []string) (*elegant.Builder, error) {
	b, err := app.Manager.Query(model)
	if err != nil {
		return nil, err
	}

	conditions, err := parseConditions(f.wheres)
	if err != nil {
		return nil, err
	}
	for _, c := range conditions {
		b.Where(c.Key, c.Value)
	}

	if len(dynamic) > 0 {
		args := make([]any, 0, len(dynamic)-1)
		for _, raw := range dynamic[1:] {
			args = append(args, parseValue(raw))
		}
		if _, err := b.DynamicWhere(dynamic[0], args...); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func newGetCommand(s *session) *cobra.Command {
	var flags queryFlags
	var first bool

	cmd := &cobra.Command{
		Use:   "get <model> [whereXAndY values...]",
		Short: "Fetch models matching the conditions",
		Example: `  portal get Student --where Cohort=2024
  portal get Student whereCohortAndStatus 2024 active`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := flags.build(s.app, args[0], args[1:])
			if err != nil {
				return err
			}
			if first {
				m, err := b.First(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), m)
			}
			models, err := b.Get(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), models)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&first, "first", false, "Print only the first model")
	return cmd
}

func newFindCommand(s *session) *cobra.Command {
	var flags queryFlags

	cmd := &cobra.Command{
		Use:   "find <model> <id> [id...]",
		Short: "Fetch models by primary key",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := flags.build(s.app, args[0], nil)
			if err != nil {
				return err
			}

			ids := make([]any, 0, len(args)-1)
			for _, raw := range args[1:] {
				ids = append(ids, parseValue(raw))
			}
			if len(ids) == 1 {
				m, err := b.FindOrFail(cmd.Context(), ids[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), m)
			}
			models, err := b.FindManyOrFail(cmd.Context(), ids)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), models)
		},
	}
	flags.register(cmd)
	return cmd
}

func newPretendCommand(s *session) *cobra.Command {
	var flags queryFlags

	cmd := &cobra.Command{
		Use:   "pretend <model> [whereXAndY values...]",
		Short: "Print the queries a get would run without sending them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := s.app.Connection()
			if err != nil {
				return err
			}
			log, err := conn.Pretend(func(*database.Connection) error {
				b, err := flags.build(s.app, args[0], args[1:])
				if err != nil {
					return err
				}
				_, err = b.Get(cmd.Context())
				return err
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), log)
		},
	}
	flags.register(cmd)
	return cmd
}

func newModelsCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List registered models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			type row struct {
				Name       string `json:"name"`
				Endpoint   string `json:"endpoint"`
				PrimaryKey string `json:"primary_key"`
				Connection string `json:"connection,omitempty"`
			}
			var rows []row
			for _, name := range s.app.Manager.Models() {
				schema, err := s.app.Manager.Schema(name)
				if err != nil {
					return err
				}
				rows = append(rows, row{
					Name:       schema.Name,
					Endpoint:   schema.Endpoint,
					PrimaryKey: schema.PrimaryKey,
					Connection: schema.Connection,
				})
			}
			return printJSON(cmd.OutOrStdout(), rows)
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// СТУДЕНТ
// ══════════════════════════════════════════════════════════════════════════════

func newStudentCommand(s *session) *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "student <id>",
		Short: "Show a student with enrollments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cast.ToInt64E(args[0])
			if err != nil {
				return fmt.Errorf("invalid student id %q", args[0])
			}

			ctx := cmd.Context()
			st, err := student.Find(ctx, s.app.Manager, id)
			if err != nil {
				return err
			}

			var enrollments []*enrollment.Enrollment
			if activeOnly {
				enrollments, err = st.ActiveEnrollments(ctx, timeutil.Now(s.app.Config.App.Location))
			} else {
				enrollments, err = st.Enrollments(ctx)
			}
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), map[string]any{
				"student":     st,
				"full_name":   st.FullName(),
				"enrolled":    st.Status().IsEnrolled(),
				"enrollments": enrollments,
			})
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Show only enrollments active today")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// ЖУРНАЛ ЗАПРОСОВ И МИГРАЦИИ
// ══════════════════════════════════════════════════════════════════════════════

func newLogCommand(s *session) *cobra.Command {
	var (
		limit int
		stats bool
		since time.Duration
		prune time.Duration
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the stored query log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo := s.app.QueryLog
			if repo == nil {
				return errNoDatabase
			}
			ctx := cmd.Context()
			now := timeutil.Now(s.app.Config.App.Location)

			switch {
			case prune > 0:
				n, err := repo.Prune(ctx, now.Add(-prune))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]int64{"pruned": n})
			case stats:
				rows, err := repo.Stats(ctx, now.Add(-since))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rows)
			default:
				entries, err := repo.Recent(ctx, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), entries)
			}
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	cmd.Flags().BoolVar(&stats, "stats", false, "Aggregate per endpoint instead of listing")
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "Window for --stats")
	cmd.Flags().DurationVar(&prune, "prune", 0, "Delete entries older than this")
	return cmd
}

func newMigrateCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage query log migrations",
	}

	migrator := func() (*postgres.Migrator, error) {
		if s.app.DB == nil {
			return nil, errNoDatabase
		}
		return postgres.NewMigrator(s.app.DB), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := migrator()
			if err != nil {
				return err
			}
			if err := m.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := migrator()
			if err != nil {
				return err
			}
			if err := m.Rollback(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "last migration rolled back")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := migrator()
			if err != nil {
				return err
			}
			status, err := m.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), migrationRows(status))
		},
	})

	return cmd
}

type migrationRow struct {
	Version   int        `json:"version"`
	Name      string     `json:"name"`
	Applied   bool       `json:"applied"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

func migrationRows(status []postgres.Migration) []migrationRow {
	rows := make([]migrationRow, 0, len(status))
	for _, m := range status {
		row := migrationRow{Version: m.Version, Name: m.Name, Applied: m.IsApplied}
		if m.IsApplied {
			at := m.AppliedAt
			row.AppliedAt = &at
		}
		rows = append(rows, row)
	}
	return rows
}

// ══════════════════════════════════════════════════════════════════════════════
// СОСТОЯНИЕ
// ══════════════════════════════════════════════════════════════════════════════

func newStatusCommand(s *session) *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the portal client, database and cache health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := s.app
			ctx := cmd.Context()
			if reset {
				app.Client.Reset()
			}

			out := map[string]any{
				"base_url": app.Client.BaseURL(),
				"portal":   app.Client.Status(),
				"events":   app.Bus.Metrics().Snapshot(),
			}
			if app.DB != nil {
				health, err := app.DB.Health(ctx)
				if err != nil {
					return err
				}
				out["database"] = health
			}
			if app.Cache != nil {
				cache := map[string]any{"healthy": true}
				if err := app.Cache.Ping(ctx); err != nil {
					cache["healthy"] = false
					cache["error"] = err.Error()
				}
				out["cache"] = cache
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "Reset the rate limiter and circuit breaker first")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// parseConditions разбирает пары column=value.
func parseConditions(pairs []string) ([]database.Param, error) {
	params := make([]database.Param, 0, len(pairs))
	for _, pair := range pairs {
		column, raw, ok := strings.Cut(pair, "=")
		column = strings.TrimSpace(column)
		if !ok || column == "" {
			return nil, fmt.Errorf("invalid condition %q, want column=value", pair)
		}
		params = append(params, database.Param{Key: column, Value: parseValue(raw)})
	}
	return params, nil
}

// parseValue превращает аргумент командной строки в int64, float64, bool
// или оставляет строкой. Числа с ведущим нулём (коды, логины) остаются строками.
func parseValue(raw string) any {
	digits := strings.TrimPrefix(raw, "-")
	if digits == "" {
		return raw
	}
	if digits == "0" || !strings.HasPrefix(digits, "0") {
		if i, err := cast.ToInt64E(raw); err == nil && !strings.Contains(raw, ".") {
			return i
		}
		if f, err := cast.ToFloat64E(raw); err == nil {
			return f
		}
	}
	switch strings.ToLower(raw) {
	case "true", "false":
		return cast.ToBool(raw)
	}
	return raw
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
