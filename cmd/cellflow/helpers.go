package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/viper"

	"github.com/ledgersmith/cellflow/internal/config"
	"github.com/ledgersmith/cellflow/internal/model"
	"github.com/ledgersmith/cellflow/internal/storage"
)

// Shared styles for CLI output.
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	readyStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	pendingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))

	severityStyles = map[model.Severity]lipgloss.Style{
		model.SeverityCritical: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		model.SeverityHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color("202")),
		model.SeverityMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		model.SeverityLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("246")),
	}
)

// parseLogLevel converts a level name to a slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}

// openStorage opens the session database.
func openStorage() (*storage.SQLiteStorage, error) {
	dbPath := config.ExpandPath(viper.GetString("database.path"))
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".local", "share", "cellflow", "cellflow.db")
	}

	return storage.NewSQLiteStorage(dbPath)
}

// statusLabel renders a session status with color.
func statusLabel(status model.SessionStatus) string {
	if status == model.StatusReady {
		return readyStyle.Render(string(status))
	}
	return pendingStyle.Render(string(status))
}

// severityLabel renders a conflict severity with color.
func severityLabel(severity model.Severity) string {
	if style, ok := severityStyles[severity]; ok {
		return style.Render(string(severity))
	}
	return string(severity)
}
