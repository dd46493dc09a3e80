// Package logger provides structured logging functionality for the application.
//
// It configures a log/slog JSON handler as the process default and carries
// request- and task-scoped loggers through context.Context.
package logger
