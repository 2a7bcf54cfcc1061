package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/itrack/internal/models"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

const issueColumns = `id, subject, category, status, severity, reporter, assignee, description, close_reason, created_date, last_update`

// dateLayout is the accepted format for list date filters.
const dateLayout = "2006-01-02"

// dialect holds the few statements that differ between engines.
type dialect struct {
	name            string
	migrationsTable string
}

// SQLStore implements Store over database/sql. The same statements run on
// SQLite and MySQL; only connection setup and schema files differ.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	loc     *time.Location
	clock   func() time.Time
}

func newSQLStore(db *sql.DB, d dialect, loc *time.Location) *SQLStore {
	if loc == nil {
		loc = time.Local
	}
	return &SQLStore{db: db, dialect: d, loc: loc, clock: time.Now}
}

// now returns the current wall-clock time in the store's location.
func (s *SQLStore) now() models.CivilTime {
	return models.NewCivilTime(s.clock(), s.loc)
}

// Location returns the civil timezone used for timestamps.
func (s *SQLStore) Location() *time.Location {
	return s.loc
}

// Migrate applies the embedded schema files for the store's dialect in order.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.migrationsTable); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	dir := "migrations/" + s.dialect.name
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile(dir + "/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename, applied_at) VALUES (?, ?)", name, s.now().String()); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// --- Issues ---

func (s *SQLStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	now := s.now()
	issue.CreatedDate = &now
	issue.LastUpdate = &now
	issue.CloseReason = nil

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO issues (subject, category, status, severity, reporter, assignee, description, created_date, last_update)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.Subject, issue.Category, issue.Status, issue.Severity, issue.Reporter, issue.Assignee, issue.Description,
		now.String(), now.String(),
	)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("create issue: read id: %w", err)
	}
	issue.ID = id
	return nil
}

func (s *SQLStore) GetIssue(ctx context.Context, id int64) (*models.Issue, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)
	issue, err := s.scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return issue, nil
}

// buildListQuery turns a filter into a parameterized SELECT. Every
// caller-supplied value is bound, never interpolated.
func buildListQuery(filter IssueListFilter) (string, []any, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE 1=1`
	var args []any

	if search := strings.TrimSpace(filter.Search); search != "" {
		if isDigits(search) {
			id, err := strconv.ParseInt(search, 10, 64)
			if err != nil {
				// Too large for any id.
				query += " AND 1=0"
			} else {
				query += " AND id = ?"
				args = append(args, id)
			}
		} else {
			query += " AND subject LIKE ?"
			args = append(args, "%"+search+"%")
		}
	}

	if strings.TrimSpace(filter.Status) != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	if strings.TrimSpace(filter.Category) != "" {
		query += " AND category = ?"
		args = append(args, filter.Category)
	}

	if from := strings.TrimSpace(filter.FromDate); from != "" {
		if _, err := time.Parse(dateLayout, from); err != nil {
			return "", nil, fmt.Errorf("%w: from_date %q", ErrInvalidDate, from)
		}
		query += " AND created_date >= ?"
		args = append(args, from+" 00:00:00")
	}

	if to := strings.TrimSpace(filter.ToDate); to != "" {
		if _, err := time.Parse(dateLayout, to); err != nil {
			return "", nil, fmt.Errorf("%w: to_date %q", ErrInvalidDate, to)
		}
		query += " AND created_date <= ?"
		args = append(args, to+" 23:59:59")
	}

	query += " ORDER BY created_date DESC"
	return query, args, nil
}

func (s *SQLStore) ListIssues(ctx context.Context, filter IssueListFilter) ([]*models.Issue, error) {
	query, args, err := buildListQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	issues := []*models.Issue{}
	for rows.Next() {
		issue, err := s.scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func (s *SQLStore) UpdateIssue(ctx context.Context, id int64, update *models.IssueUpdate) (int64, error) {
	update.Normalize()
	now := s.now()

	result, err := s.db.ExecContext(ctx,
		`UPDATE issues SET status=?, category=?, severity=?, assignee=?, description=?, close_reason=?, last_update=?
		WHERE id=?`,
		update.Status, update.Category, update.Severity, update.Assignee, update.Description, update.CloseReason,
		now.String(), id,
	)
	if err != nil {
		return 0, fmt.Errorf("update issue: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

func (s *SQLStore) DeleteIssue(ctx context.Context, id int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM issues WHERE id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("delete issue: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// --- Reports ---

// reportQueries maps each report key to its grouping statement. Column
// names are fixed here and never come from input.
var reportQueries = []struct {
	field string
	query string
}{
	{models.ReportStatus, `SELECT status, COUNT(*) AS count FROM issues GROUP BY status`},
	{models.ReportCategory, `SELECT category, COUNT(*) AS count FROM issues GROUP BY category`},
	{models.ReportSeverity, `SELECT severity, COUNT(*) AS count FROM issues GROUP BY severity`},
	{models.ReportAssignee, `SELECT assignee, COUNT(*) AS count FROM issues GROUP BY assignee`},
	{models.ReportCloseReason, `SELECT close_reason, COUNT(*) AS count FROM issues
		WHERE status = 'Closed' AND close_reason IS NOT NULL
		GROUP BY close_reason`},
}

// Reports runs the grouping queries inside one transaction so the counts
// come from a single snapshot where the engine provides one.
func (s *SQLStore) Reports(ctx context.Context) (*models.Reports, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	groups := make(map[string][]models.GroupCount, len(reportQueries))
	for _, rq := range reportQueries {
		counts, err := groupCounts(ctx, tx, rq.field, rq.query)
		if err != nil {
			return nil, err
		}
		groups[rq.field] = counts
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &models.Reports{
		Status:      groups[models.ReportStatus],
		Category:    groups[models.ReportCategory],
		Severity:    groups[models.ReportSeverity],
		Assignee:    groups[models.ReportAssignee],
		CloseReason: groups[models.ReportCloseReason],
	}, nil
}

func groupCounts(ctx context.Context, tx *sql.Tx, field, query string) ([]models.GroupCount, error) {
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", field, err)
	}
	defer func() { _ = rows.Close() }()

	counts := []models.GroupCount{}
	for rows.Next() {
		var value sql.NullString
		g := models.GroupCount{Field: field}
		if err := rows.Scan(&value, &g.Count); err != nil {
			return nil, fmt.Errorf("scan report %s: %w", field, err)
		}
		g.Value = nullString(value)
		counts = append(counts, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("report %s: %w", field, err)
	}
	return counts, nil
}

// --- Scanning ---

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLStore) scanIssue(row rowScanner) (*models.Issue, error) {
	issue := &models.Issue{}
	var subject, category, status, severity, reporter, assignee, description, closeReason sql.NullString
	var createdDate, lastUpdate sql.NullString

	if err := row.Scan(&issue.ID, &subject, &category, &status, &severity, &reporter, &assignee,
		&description, &closeReason, &createdDate, &lastUpdate); err != nil {
		return nil, err
	}

	issue.Subject = nullString(subject)
	issue.Category = nullString(category)
	issue.Status = nullString(status)
	issue.Severity = nullString(severity)
	issue.Reporter = nullString(reporter)
	issue.Assignee = nullString(assignee)
	issue.Description = nullString(description)
	issue.CloseReason = nullString(closeReason)

	var err error
	if issue.CreatedDate, err = s.civilTime(createdDate); err != nil {
		return nil, err
	}
	if issue.LastUpdate, err = s.civilTime(lastUpdate); err != nil {
		return nil, err
	}
	return issue, nil
}

func (s *SQLStore) civilTime(ns sql.NullString) (*models.CivilTime, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	ct, err := models.ParseCivilTime(ns.String, s.loc)
	if err != nil {
		return nil, err
	}
	return &ct, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return models.String(ns.String)
}

// isDigits reports whether s is non-empty and made only of ASCII digits.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
