package db

import (
	"context"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// maxArgLen bounds logged argument values. Stored readings are whole JSON
// documents; longer values are logged by size only.
const maxArgLen = 64

// loggingConnector opens sqlite3 connections whose statements are logged.
type loggingConnector struct {
	dsn    string
	logger *slog.Logger
}

type loggingConn struct {
	conn   driver.Conn
	logger *slog.Logger
}

// statementLog describes one SQL statement by the verb and table it touches.
type statementLog struct {
	verb   string
	table  string
	logger *slog.Logger
}

type loggingStmt struct {
	stmt driver.Stmt
	statementLog
}

// NewLoggingConnector returns a driver.Connector whose statements are logged
// at debug level (warn on failure). Use sql.OpenDB(connector) to get a *sql.DB.
// If logger is nil, slog.Default() is used.
func NewLoggingConnector(dsn string, logger *slog.Logger) (driver.Connector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingConnector{dsn: dsn, logger: logger.With("store", "sqlite")}, nil
}

func (c *loggingConnector) Driver() driver.Driver {
	return &loggingDriver{}
}

func (c *loggingConnector) Connect(ctx context.Context) (driver.Conn, error) {
	underlying := &sqlite3.SQLiteDriver{}
	conn, err := underlying.Open(c.dsn)
	if err != nil {
		return nil, err
	}
	return &loggingConn{conn: conn, logger: c.logger}, nil
}

// loggingDriver satisfies Connector.Driver(); opening goes through OpenDB(connector).
type loggingDriver struct{}

func (d *loggingDriver) Open(name string) (driver.Conn, error) {
	return nil, fmt.Errorf("sqlite3-log: use sql.OpenDB(NewLoggingConnector(...)) instead of sql.Open")
}

func (c *loggingConn) describe(query string) statementLog {
	verb, table := describeStatement(query)
	return statementLog{verb: verb, table: table, logger: c.logger}
}

func (c *loggingConn) wrap(stmt driver.Stmt, query string) *loggingStmt {
	return &loggingStmt{stmt: stmt, statementLog: c.describe(query)}
}

// ExecContext runs query on the sqlite connection directly, which executes
// every statement of a multi-statement script.
func (c *loggingConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	execer, ok := c.conn.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	start := time.Now()
	res, err := execer.ExecContext(ctx, query, args)
	if err == driver.ErrSkip {
		return nil, err
	}
	c.describe(query).logExec(ctx, namedValuesToSummary(args), start, res, err)
	return res, err
}

func (c *loggingConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	queryer, ok := c.conn.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	start := time.Now()
	rows, err := queryer.QueryContext(ctx, query, args)
	if err == driver.ErrSkip {
		return nil, err
	}
	c.describe(query).log(ctx, "query", namedValuesToSummary(args), start, err)
	return rows, err
}

func (c *loggingConn) Prepare(query string) (driver.Stmt, error) {
	stmt, err := c.conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	return c.wrap(stmt, query), nil
}

func (c *loggingConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if prep, ok := c.conn.(driver.ConnPrepareContext); ok {
		stmt, err := prep.PrepareContext(ctx, query)
		if err != nil {
			return nil, err
		}
		return c.wrap(stmt, query), nil
	}
	return c.Prepare(query)
}

func (c *loggingConn) Close() error {
	return c.conn.Close()
}

func (c *loggingConn) Begin() (driver.Tx, error) {
	//nolint:staticcheck // SA1019 – required when underlying conn does not implement ConnBeginTx
	return c.conn.Begin()
}

func (c *loggingConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if beginTx, ok := c.conn.(driver.ConnBeginTx); ok {
		return beginTx.BeginTx(ctx, opts)
	}
	//nolint:staticcheck // SA1019 – fallback when underlying conn does not implement ConnBeginTx
	return c.conn.Begin()
}

func (s *loggingStmt) Exec(args []driver.Value) (driver.Result, error) {
	start := time.Now()
	//nolint:staticcheck // SA1019 – required when underlying stmt does not implement StmtExecContext
	res, err := s.stmt.Exec(args)
	s.logExec(context.Background(), valuesToSummary(args), start, res, err)
	return res, err
}

func (s *loggingStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	start := time.Now()
	var (
		res driver.Result
		err error
	)
	if execCtx, ok := s.stmt.(driver.StmtExecContext); ok {
		res, err = execCtx.ExecContext(ctx, args)
	} else {
		//nolint:staticcheck // SA1019 – fallback when underlying stmt does not implement StmtExecContext
		res, err = s.stmt.Exec(namedValuesToValues(args))
	}
	s.logExec(ctx, namedValuesToSummary(args), start, res, err)
	return res, err
}

func (s *loggingStmt) Query(args []driver.Value) (driver.Rows, error) {
	start := time.Now()
	//nolint:staticcheck // SA1019 – required when underlying stmt does not implement StmtQueryContext
	rows, err := s.stmt.Query(args)
	s.log(context.Background(), "query", valuesToSummary(args), start, err)
	return rows, err
}

func (s *loggingStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	start := time.Now()
	var (
		rows driver.Rows
		err  error
	)
	if queryCtx, ok := s.stmt.(driver.StmtQueryContext); ok {
		rows, err = queryCtx.QueryContext(ctx, args)
	} else {
		//nolint:staticcheck // SA1019 – fallback when underlying stmt does not implement StmtQueryContext
		rows, err = s.stmt.Query(namedValuesToValues(args))
	}
	s.log(ctx, "query", namedValuesToSummary(args), start, err)
	return rows, err
}

func (s *loggingStmt) Close() error {
	return s.stmt.Close()
}

// NumInput implements driver.Stmt; -1 means unknown.
func (s *loggingStmt) NumInput() int {
	if n, ok := s.stmt.(interface{ NumInput() int }); ok {
		return n.NumInput()
	}
	return -1
}

func (s statementLog) logExec(ctx context.Context, args []string, start time.Time, res driver.Result, err error) {
	extra := []any{}
	if err == nil && res != nil {
		if n, rerr := res.RowsAffected(); rerr == nil {
			extra = append(extra, "rows_affected", n)
		}
	}
	s.log(ctx, "exec", args, start, err, extra...)
}

func (s statementLog) log(ctx context.Context, op string, args []string, start time.Time, err error, extra ...any) {
	attrs := []any{
		"op", op,
		"stmt", s.verb,
		"table", s.table,
		"args", args,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	attrs = append(attrs, extra...)
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, "error", err)
	}
	s.logger.Log(ctx, level, "sql", attrs...)
}

// describeStatement returns the lower-cased verb of query and the table it
// reads or writes, or "" when there is none (SELECT 1, PRAGMA).
func describeStatement(query string) (verb, table string) {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "", ""
	}
	verb = strings.ToLower(fields[0])
	switch verb {
	case "insert", "replace":
		table = tokenAfter(fields, "into")
	case "select", "delete":
		table = tokenAfter(fields, "from")
	case "update":
		if len(fields) > 1 {
			table = cleanIdent(fields[1])
		}
	case "create", "drop":
		if tokenAfter(fields, "index") != "" {
			table = tokenAfter(fields, "on")
		} else {
			table = tokenAfter(fields, "table")
		}
	}
	return verb, table
}

func tokenAfter(fields []string, keyword string) string {
	for i := 0; i < len(fields)-1; i++ {
		if !strings.EqualFold(fields[i], keyword) {
			continue
		}
		rest := fields[i+1:]
		for len(rest) > 0 && isClauseWord(rest[0]) {
			rest = rest[1:]
		}
		if len(rest) == 0 {
			return ""
		}
		return cleanIdent(rest[0])
	}
	return ""
}

func isClauseWord(s string) bool {
	switch strings.ToLower(s) {
	case "if", "not", "exists":
		return true
	}
	return false
}

func cleanIdent(s string) string {
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = s[:i]
	}
	return strings.Trim(s, "`\";")
}

func valuesToSummary(args []driver.Value) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = formatArg(a)
	}
	return out
}

func namedValuesToSummary(args []driver.NamedValue) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if a.Name != "" {
			out[i] = a.Name + "=" + formatArg(a.Value)
		} else {
			out[i] = formatArg(a.Value)
		}
	}
	return out
}

func namedValuesToValues(args []driver.NamedValue) []driver.Value {
	out := make([]driver.Value, len(args))
	for i := range args {
		out[i] = args[i].Value
	}
	return out
}

func formatArg(v any) string {
	var s string
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		s = string(t)
	case string:
		s = t
	default:
		return fmt.Sprint(t)
	}
	if len(s) > maxArgLen {
		return fmt.Sprintf("<%d bytes>", len(s))
	}
	return s
}
