// Package main - точка входа CLI школьного портала.
//
// CLI собирает все слои приложения:
//   - Конфигурация из окружения и .env
//   - Redis: кэш ответов и хранилище сессии (опционально)
//   - PostgreSQL: журнал запросов и миграции (опционально)
//   - Шина событий для QueryExecuted
//   - HTTP-клиент портала с rate limiter и circuit breaker
//   - Менеджер моделей elegant с зарегистрированными моделями
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// Версия и коммит подставляются при сборке.
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Отмена по Ctrl+C / SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCommand().ExecuteContext(ctx)
}

// session хранит приложение, собранное перед выполнением команды.
type session struct {
	envFile string
	app     *Application
}

func newRootCommand() *cobra.Command {
	s := &session{}

	rootCmd := &cobra.Command{
		Use:           "portal",
		Short:         "School portal API client",
		Long:          "portal queries the school portal REST API through the elegant model layer.",
		Version:       fmt.Sprintf("%s (commit: %s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			app, err := bootstrap(cmd.Context(), s.envFile)
			if err != nil {
				return err
			}
			s.app = app
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if s.app != nil {
				s.app.Close()
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&s.envFile, "env-file", "", "Load variables from this file instead of .env")

	rootCmd.AddCommand(newGetCommand(s))
	rootCmd.AddCommand(newFindCommand(s))
	rootCmd.AddCommand(newPretendCommand(s))
	rootCmd.AddCommand(newStudentCommand(s))
	rootCmd.AddCommand(newModelsCommand(s))
	rootCmd.AddCommand(newLogCommand(s))
	rootCmd.AddCommand(newMigrateCommand(s))
	rootCmd.AddCommand(newStatusCommand(s))

	return rootCmd
}
