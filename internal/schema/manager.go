package schema

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rohankatakam/ogm/internal/cypher"
	"github.com/rohankatakam/ogm/internal/errors"
	"github.com/rohankatakam/ogm/internal/graph"
)

// Mode selects what Apply does with the definitions
type Mode string

const (
	ModeNone   Mode = "none"
	ModeAssert Mode = "assert"
	ModeDump   Mode = "dump"
	ModeDrop   Mode = "drop"
)

// ParseMode validates a configured mode; empty means none
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeNone, nil
	case ModeNone, ModeAssert, ModeDump, ModeDrop:
		return m, nil
	}
	return "", errors.ConfigErrorf("unknown auto index mode %q", s).
		WithContext("modes", "none,assert,dump,drop")
}

// StatementExecutor runs auto-commit statements; *graph.Client implements it.
// Schema statements cannot run inside a transaction that also writes data.
type StatementExecutor interface {
	Execute(ctx context.Context, operation string, stmt cypher.Statement) (*graph.Result, error)
}

// Report summarizes an Apply call
type Report struct {
	Mode       Mode
	Statements []cypher.Statement
	Counters   graph.Counters
}

// Manager applies schema definitions
type Manager struct {
	exec   StatementExecutor
	logger *slog.Logger
}

// NewManager creates a manager. exec may be nil for modes that do not
// execute (none, dump).
func NewManager(exec StatementExecutor) *Manager {
	return &Manager{
		exec:   exec,
		logger: slog.Default().With("component", "schema"),
	}
}

// Plan renders the statements a mode would run, in definition order.
// Unsupported kinds fail before any statement is produced.
func Plan(mode Mode, defs []Definition) ([]cypher.Statement, error) {
	var render func(Definition) (cypher.Statement, error)
	switch mode {
	case ModeNone:
		return nil, nil
	case ModeAssert, ModeDump:
		render = Definition.CreateStatement
	case ModeDrop:
		render = Definition.DropStatement
	default:
		return nil, errors.ConfigErrorf("unknown auto index mode %q", mode)
	}

	stmts := make([]cypher.Statement, 0, len(defs))
	for _, d := range defs {
		stmt, err := render(d)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

// Apply plans the definitions and, for assert and drop, executes them one
// by one. Dump only returns the statements.
func (m *Manager) Apply(ctx context.Context, mode Mode, defs []Definition) (*Report, error) {
	stmts, err := Plan(mode, defs)
	if err != nil {
		return nil, err
	}
	report := &Report{Mode: mode, Statements: stmts}
	if mode == ModeNone || mode == ModeDump {
		return report, nil
	}
	if m.exec == nil {
		return nil, errors.ConfigErrorf("auto index mode %s needs a database connection", mode)
	}

	for _, stmt := range stmts {
		res, err := m.exec.Execute(ctx, graph.OpSchema, stmt)
		if err != nil {
			return report, err
		}
		report.Counters.IndexesAdded += res.Counters.IndexesAdded
		report.Counters.IndexesRemoved += res.Counters.IndexesRemoved
		report.Counters.ConstraintsAdded += res.Counters.ConstraintsAdded
		report.Counters.ConstraintsRemoved += res.Counters.ConstraintsRemoved
		m.logger.Debug("schema statement applied", "statement", stmt.Text)
	}
	m.logger.Info("schema applied",
		"mode", string(mode),
		"statements", len(stmts),
		"indexes_added", report.Counters.IndexesAdded,
		"constraints_added", report.Counters.ConstraintsAdded,
		"indexes_removed", report.Counters.IndexesRemoved,
		"constraints_removed", report.Counters.ConstraintsRemoved)
	return report, nil
}
