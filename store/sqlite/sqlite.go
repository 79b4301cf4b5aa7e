/*
Package sqlite implements the local cache store: an embedded mirror of the
warehouse tables plus per-source refresh metadata.

PURPOSE:
  Holds the locally-read-optimized copy of requests, approval steps, the
  current user profile, the account directory, final-approver config, and
  the cache metadata the staleness oracle compares against.

OWNERSHIP MODEL:
  The warehouse is the system of record. Mirrored tables are replaced
  wholesale on refresh (Replace* methods run DELETE + INSERT in one
  transaction); optimistic local writes use the keyed Save/Delete methods
  and are superseded by the next replace.

WRITE ORDERING:
  Writes are immediately visible to readers in-process but are not atomic
  across tables. Callers order multi-table writes so a reader never sees
  a request whose status implies steps that are not there yet: steps are
  written before the parent request's status change, and deleted after a
  status reset. ReplaceRequestsAndSteps does both inside one transaction.

TEMPORARY IDENTIFIERS:
  NextTempID hands out negative request ids (one below the smallest
  negative in the table, or -1) so optimistic rows never collide with
  warehouse-assigned positive ids.

CONCURRENCY:
  Guarded by a sync.RWMutex; SQLite runs in WAL mode for reader/writer
  concurrency across connections.

SEE ALSO:
  - mirror: refresh orchestration that drives the Replace* methods
  - governance: the value types persisted here
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/vantage/governance-mirror/governance"
)

// Store is the embedded mirror database.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (and migrates) the cache database. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	// A single connection keeps :memory: databases coherent and serializes
	// writers the same way the production file database does.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate cache database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_metadata (
		data_source TEXT PRIMARY KEY,
		remote_modified TEXT,
		local_refreshed TEXT
	);

	CREATE TABLE IF NOT EXISTS cached_current_user (
		username TEXT PRIMARY KEY,
		employee_id INTEGER,
		display_name TEXT,
		title TEXT,
		role TEXT,
		theater TEXT,
		industry_segment TEXT,
		manager_id INTEGER,
		manager_name TEXT,
		approval_level INTEGER,
		is_final_approver INTEGER
	);

	CREATE TABLE IF NOT EXISTS cached_requests (
		request_id INTEGER PRIMARY KEY,
		request_title TEXT,
		account_id TEXT,
		account_name TEXT,
		investment_type TEXT,
		requested_amount TEXT,
		investment_quarter TEXT,
		business_justification TEXT,
		expected_outcome TEXT,
		risk_assessment TEXT,
		created_by TEXT,
		created_by_name TEXT,
		created_by_employee_id INTEGER,
		created_at TEXT,
		theater TEXT,
		industry_segment TEXT,
		status TEXT,
		current_approval_level INTEGER,
		next_approver_id INTEGER,
		next_approver_name TEXT,
		next_approver_title TEXT,
		dm_approved_by TEXT, dm_approved_by_title TEXT, dm_approved_at TEXT, dm_comments TEXT,
		rd_approved_by TEXT, rd_approved_by_title TEXT, rd_approved_at TEXT, rd_comments TEXT,
		avp_approved_by TEXT, avp_approved_by_title TEXT, avp_approved_at TEXT, avp_comments TEXT,
		gvp_approved_by TEXT, gvp_approved_by_title TEXT, gvp_approved_at TEXT, gvp_comments TEXT,
		updated_at TEXT,
		withdrawn_by TEXT,
		withdrawn_by_name TEXT,
		withdrawn_at TEXT,
		withdrawn_comment TEXT,
		submitted_comment TEXT,
		submitted_by_name TEXT,
		submitted_at TEXT,
		draft_comment TEXT,
		draft_by_name TEXT,
		draft_at TEXT,
		on_behalf_of_employee_id INTEGER,
		on_behalf_of_name TEXT,
		opportunity_link TEXT,
		expected_roi TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_requests_status ON cached_requests(status);
	CREATE INDEX IF NOT EXISTS idx_requests_theater ON cached_requests(theater);
	CREATE INDEX IF NOT EXISTS idx_requests_quarter ON cached_requests(investment_quarter);

	CREATE TABLE IF NOT EXISTS cached_approval_steps (
		step_id INTEGER PRIMARY KEY,
		request_id INTEGER NOT NULL,
		step_order INTEGER NOT NULL,
		approver_employee_id INTEGER,
		approver_name TEXT,
		approver_title TEXT,
		status TEXT DEFAULT 'PENDING',
		approved_at TEXT,
		comments TEXT,
		is_final_step INTEGER DEFAULT 0,
		created_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_steps_request ON cached_approval_steps(request_id);

	CREATE TABLE IF NOT EXISTS cached_final_approvers (
		theater TEXT PRIMARY KEY,
		approver_employee_id INTEGER NOT NULL,
		approver_name TEXT NOT NULL,
		approver_title TEXT
	);

	CREATE TABLE IF NOT EXISTS cached_accounts (
		account_id TEXT,
		account_name TEXT PRIMARY KEY,
		theater TEXT,
		industry_segment TEXT
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// REQUESTS
// =============================================================================

const requestColumns = `request_id, request_title, account_id, account_name, investment_type,
	requested_amount, investment_quarter, business_justification, expected_outcome, risk_assessment,
	created_by, created_by_name, created_by_employee_id, created_at, theater, industry_segment,
	status, current_approval_level, next_approver_id, next_approver_name, next_approver_title,
	dm_approved_by, dm_approved_by_title, dm_approved_at, dm_comments,
	rd_approved_by, rd_approved_by_title, rd_approved_at, rd_comments,
	avp_approved_by, avp_approved_by_title, avp_approved_at, avp_comments,
	gvp_approved_by, gvp_approved_by_title, gvp_approved_at, gvp_comments,
	updated_at, withdrawn_by, withdrawn_by_name, withdrawn_at, withdrawn_comment,
	submitted_comment, submitted_by_name, submitted_at,
	draft_comment, draft_by_name, draft_at,
	on_behalf_of_employee_id, on_behalf_of_name, opportunity_link, expected_roi`

var requestPlaceholders = "?" + strings.Repeat(", ?", 51)

func requestArgs(r governance.Request) []any {
	return []any{
		r.ID, r.Title, r.AccountID, r.AccountName, r.InvestmentType,
		r.Amount.String(), r.Quarter, r.Justification, r.ExpectedOutcome, r.RiskAssessment,
		r.CreatedBy, r.CreatedByName, r.CreatedByEmployeeID, fmtTime(r.CreatedAt), r.Theater, r.IndustrySegment,
		string(r.Status), r.CurrentLevel, r.NextApproverID, r.NextApproverName, r.NextApproverTitle,
		r.DM.By, r.DM.ByTitle, fmtTimePtr(r.DM.At), r.DM.Comments,
		r.RD.By, r.RD.ByTitle, fmtTimePtr(r.RD.At), r.RD.Comments,
		r.AVP.By, r.AVP.ByTitle, fmtTimePtr(r.AVP.At), r.AVP.Comments,
		r.GVP.By, r.GVP.ByTitle, fmtTimePtr(r.GVP.At), r.GVP.Comments,
		fmtTime(r.UpdatedAt), r.WithdrawnBy, r.WithdrawnByName, fmtTimePtr(r.WithdrawnAt), r.WithdrawnComment,
		r.SubmittedComment, r.SubmittedByName, fmtTimePtr(r.SubmittedAt),
		r.DraftComment, r.DraftByName, fmtTimePtr(r.DraftAt),
		r.OnBehalfOfEmployeeID, r.OnBehalfOfName, r.OpportunityLink, r.ExpectedROI,
	}
}

// SaveRequest inserts or replaces a single request row.
func (s *Store) SaveRequest(ctx context.Context, r governance.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf("INSERT OR REPLACE INTO cached_requests (%s) VALUES (%s)",
		requestColumns, requestPlaceholders)
	_, err := s.db.ExecContext(ctx, query, requestArgs(r)...)
	return err
}

// GetRequest returns a request by id, or nil when absent.
func (s *Store) GetRequest(ctx context.Context, id int64) (*governance.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf("SELECT %s FROM cached_requests WHERE request_id = ?", requestColumns)
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	r, err := scanRequest(rows)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRequests returns mirrored requests matching the filter, newest first.
func (s *Store) ListRequests(ctx context.Context, f governance.RequestFilter) ([]governance.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf("SELECT %s FROM cached_requests WHERE 1=1", requestColumns)
	var args []any
	if f.Theater != "" {
		query += " AND theater = ?"
		args = append(args, f.Theater)
	}
	if f.IndustrySegment != "" {
		query += " AND industry_segment = ?"
		args = append(args, f.IndustrySegment)
	}
	if f.Quarter != "" {
		query += " AND investment_quarter = ?"
		args = append(args, f.Quarter)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []governance.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRequest removes a request and its steps.
func (s *Store) DeleteRequest(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM cached_requests WHERE request_id = ?", id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM cached_approval_steps WHERE request_id = ?", id)
	return err
}

// NextTempID returns the next free negative placeholder id: one below the
// smallest negative id in the table, or -1 when there is none.
func (s *Store) NextTempID(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MIN(request_id), 0) - 1 FROM cached_requests WHERE request_id < 0",
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	if id >= 0 {
		id = -1
	}
	return id, nil
}

// ReplaceRequests replaces the full requests table with the authoritative
// warehouse rows, leaving steps untouched.
func (s *Store) ReplaceRequests(ctx context.Context, requests []governance.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM cached_requests"); err != nil {
		return err
	}
	insert := fmt.Sprintf("INSERT OR REPLACE INTO cached_requests (%s) VALUES (%s)",
		requestColumns, requestPlaceholders)
	for _, r := range requests {
		if _, err := tx.ExecContext(ctx, insert, requestArgs(r)...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ReplaceAllSteps replaces the full approval-steps table.
func (s *Store) ReplaceAllSteps(ctx context.Context, steps []governance.ApprovalStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM cached_approval_steps"); err != nil {
		return err
	}
	for _, st := range steps {
		if err := insertStep(ctx, tx, st); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ReplaceRequestsAndSteps atomically replaces the full requests and
// approval-steps tables with the authoritative warehouse rows.
func (s *Store) ReplaceRequestsAndSteps(ctx context.Context, requests []governance.Request, steps []governance.ApprovalStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM cached_requests"); err != nil {
		return err
	}
	insert := fmt.Sprintf("INSERT OR REPLACE INTO cached_requests (%s) VALUES (%s)",
		requestColumns, requestPlaceholders)
	for _, r := range requests {
		if _, err := tx.ExecContext(ctx, insert, requestArgs(r)...); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM cached_approval_steps"); err != nil {
		return err
	}
	for _, st := range steps {
		if err := insertStep(ctx, tx, st); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// =============================================================================
// APPROVAL STEPS
// =============================================================================

const stepColumns = `step_id, request_id, step_order, approver_employee_id, approver_name,
	approver_title, status, approved_at, comments, is_final_step, created_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertStep(ctx context.Context, db execer, st governance.ApprovalStep) error {
	query := fmt.Sprintf("INSERT OR REPLACE INTO cached_approval_steps (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", stepColumns)
	_, err := db.ExecContext(ctx, query,
		st.ID, st.RequestID, st.Ordinal, st.ApproverEmployeeID, st.ApproverName,
		st.ApproverTitle, string(st.Status), fmtTimePtr(st.ApprovedAt), st.Comments,
		boolInt(st.IsFinal), fmtTime(st.CreatedAt),
	)
	return err
}

// SetSteps replaces one request's chain: delete-then-insert, so a
// resubmission regenerates the chain wholesale.
func (s *Store) SetSteps(ctx context.Context, requestID int64, steps []governance.ApprovalStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM cached_approval_steps WHERE request_id = ?", requestID); err != nil {
		return err
	}
	for _, st := range steps {
		if err := insertStep(ctx, tx, st); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteSteps removes every step for a request.
func (s *Store) DeleteSteps(ctx context.Context, requestID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM cached_approval_steps WHERE request_id = ?", requestID)
	return err
}

// StepsForRequest returns a request's chain ordered by ordinal.
func (s *Store) StepsForRequest(ctx context.Context, requestID int64) ([]governance.ApprovalStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf("SELECT %s FROM cached_approval_steps WHERE request_id = ? ORDER BY step_order", stepColumns)
	rows, err := s.db.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []governance.ApprovalStep
	for rows.Next() {
		var (
			st                  governance.ApprovalStep
			status              string
			approvedAt, created sql.NullString
			comments            sql.NullString
			isFinal             int
		)
		if err := rows.Scan(&st.ID, &st.RequestID, &st.Ordinal, &st.ApproverEmployeeID,
			&st.ApproverName, &st.ApproverTitle, &status, &approvedAt, &comments,
			&isFinal, &created); err != nil {
			return nil, err
		}
		st.Status = governance.StepStatus(status)
		st.ApprovedAt = parseTimePtr(approvedAt)
		st.Comments = comments.String
		st.IsFinal = isFinal != 0
		if t := parseTimePtr(created); t != nil {
			st.CreatedAt = *t
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ApproveStep marks the step at the given ordinal APPROVED in place.
func (s *Store) ApproveStep(ctx context.Context, requestID int64, ordinal int, at time.Time, comments string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE cached_approval_steps
		SET status = ?, approved_at = ?, comments = ?
		WHERE request_id = ? AND step_order = ?`,
		string(governance.StepApproved), fmtTime(at), comments, requestID, ordinal)
	return err
}

// =============================================================================
// CURRENT USER
// =============================================================================

// CurrentUser returns the cached authenticated profile, or nil when the
// cache is cold.
func (s *Store) CurrentUser(ctx context.Context) (*governance.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		u         governance.UserProfile
		managerID sql.NullInt64
		mgrName   sql.NullString
		isFinal   int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT username, employee_id, display_name, title, role, theater, industry_segment,
		       manager_id, manager_name, approval_level, is_final_approver
		FROM cached_current_user LIMIT 1`).Scan(
		&u.Username, &u.EmployeeID, &u.DisplayName, &u.Title, &u.Role, &u.Theater,
		&u.IndustrySegment, &managerID, &mgrName, &u.ApprovalLevel, &isFinal)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if managerID.Valid {
		u.ManagerID = &managerID.Int64
	}
	u.ManagerName = mgrName.String
	u.IsFinalApprover = isFinal != 0
	return &u, nil
}

// SetCurrentUser replaces the cached profile (single-row table).
func (s *Store) SetCurrentUser(ctx context.Context, u governance.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM cached_current_user"); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO cached_current_user
		(username, employee_id, display_name, title, role, theater, industry_segment,
		 manager_id, manager_name, approval_level, is_final_approver)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Username, u.EmployeeID, u.DisplayName, u.Title, u.Role, u.Theater,
		u.IndustrySegment, u.ManagerID, u.ManagerName, u.ApprovalLevel, boolInt(u.IsFinalApprover))
	if err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// FINAL APPROVERS
// =============================================================================

// ReplaceFinalApprovers replaces the per-theater final approver config.
func (s *Store) ReplaceFinalApprovers(ctx context.Context, fas []governance.FinalApprover) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM cached_final_approvers"); err != nil {
		return err
	}
	for _, fa := range fas {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO cached_final_approvers
			(theater, approver_employee_id, approver_name, approver_title)
			VALUES (?, ?, ?, ?)`,
			fa.Theater, fa.EmployeeID, fa.Name, fa.Title); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// FinalApproverFor returns the theater's final approver, or nil.
func (s *Store) FinalApproverFor(ctx context.Context, theater string) (*governance.FinalApprover, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var fa governance.FinalApprover
	var title sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT theater, approver_employee_id, approver_name, approver_title
		FROM cached_final_approvers WHERE theater = ?`, theater).Scan(
		&fa.Theater, &fa.EmployeeID, &fa.Name, &title)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	fa.Title = title.String
	return &fa, nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// ReplaceAccounts replaces the mirrored account directory.
func (s *Store) ReplaceAccounts(ctx context.Context, accounts []governance.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM cached_accounts"); err != nil {
		return err
	}
	for _, a := range accounts {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO cached_accounts (account_id, account_name, theater, industry_segment)
			VALUES (?, ?, ?, ?)`,
			a.ID, a.Name, a.Theater, a.IndustrySegment); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CountAccounts reports directory size; zero means the cache is cold.
func (s *Store) CountAccounts(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cached_accounts").Scan(&n)
	return n, err
}

// SearchAccounts finds accounts by case-insensitive name substring.
// Returns up to limit matches plus the total match count.
func (s *Store) SearchAccounts(ctx context.Context, q string, limit int) ([]governance.Account, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pattern := "%" + q + "%"

	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM cached_accounts WHERE UPPER(account_name) LIKE UPPER(?)", pattern).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, account_name, theater, industry_segment
		FROM cached_accounts
		WHERE UPPER(account_name) LIKE UPPER(?)
		ORDER BY account_name
		LIMIT ?`, pattern, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []governance.Account
	for rows.Next() {
		var a governance.Account
		var id, theater, segment sql.NullString
		if err := rows.Scan(&id, &a.Name, &theater, &segment); err != nil {
			return nil, 0, err
		}
		a.ID = id.String
		a.Theater = theater.String
		a.IndustrySegment = segment.String
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// TheaterIndustryLookup returns the distinct classification dimensions
// present in the account directory.
func (s *Store) TheaterIndustryLookup(ctx context.Context) (theaters, industries []string, byTheater map[string][]string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	theaters, err = s.distinctColumn(ctx, "theater")
	if err != nil {
		return nil, nil, nil, err
	}
	industries, err = s.distinctColumn(ctx, "industry_segment")
	if err != nil {
		return nil, nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT theater, industry_segment FROM cached_accounts
		WHERE theater IS NOT NULL AND theater != ''
		  AND industry_segment IS NOT NULL AND industry_segment != ''
		ORDER BY theater, industry_segment`)
	if err != nil {
		return nil, nil, nil, err
	}
	defer rows.Close()

	byTheater = make(map[string][]string)
	for rows.Next() {
		var t, i string
		if err := rows.Scan(&t, &i); err != nil {
			return nil, nil, nil, err
		}
		byTheater[t] = append(byTheater[t], i)
	}
	return theaters, industries, byTheater, rows.Err()
}

func (s *Store) distinctColumn(ctx context.Context, col string) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT %s FROM cached_accounts
		WHERE %s IS NOT NULL AND %s != '' ORDER BY %s`, col, col, col, col)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// =============================================================================
// CACHE METADATA
// =============================================================================

// CachedTimestamps returns the last-known remote modification timestamp per
// data source, as recorded by the refresh orchestrator.
func (s *Store) CachedTimestamps(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT data_source, remote_modified FROM cache_metadata")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var source string
		var modified sql.NullString
		if err := rows.Scan(&source, &modified); err != nil {
			return nil, err
		}
		out[source] = modified.String
	}
	return out, rows.Err()
}

// SetSourceTimestamp records a successful pull of one data source.
func (s *Store) SetSourceTimestamp(ctx context.Context, source, remoteModified string, refreshedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cache_metadata (data_source, remote_modified, local_refreshed)
		VALUES (?, ?, ?)`,
		source, remoteModified, fmtTime(refreshedAt))
	return err
}

// =============================================================================
// SUMMARY
// =============================================================================

// Summary aggregates the mirrored requests for the dashboard.
// currentUserName counts requests awaiting that user's approval.
func (s *Store) Summary(ctx context.Context, currentUserName string) (*governance.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := &governance.Summary{}

	counts := []struct {
		dest  *int
		query string
	}{
		{&sum.Total, "SELECT COUNT(*) FROM cached_requests"},
		{&sum.Draft, "SELECT COUNT(*) FROM cached_requests WHERE status = 'DRAFT'"},
		{&sum.InReview, "SELECT COUNT(*) FROM cached_requests WHERE status IN ('SUBMITTED', 'DM_APPROVED', 'RD_APPROVED', 'AVP_APPROVED')"},
		{&sum.Approved, "SELECT COUNT(*) FROM cached_requests WHERE status = 'FINAL_APPROVED'"},
		{&sum.Rejected, "SELECT COUNT(*) FROM cached_requests WHERE status = 'REJECTED'"},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}

	if currentUserName != "" {
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM cached_requests WHERE next_approver_name = ?", currentUserName,
		).Scan(&sum.PendingMyApproval)
		if err != nil {
			return nil, err
		}
	}

	var requested, approved float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CAST(requested_amount AS REAL)), 0),
		       COALESCE(SUM(CASE WHEN status = 'FINAL_APPROVED' THEN CAST(requested_amount AS REAL) ELSE 0 END), 0)
		FROM cached_requests`).Scan(&requested, &approved)
	if err != nil {
		return nil, err
	}
	sum.TotalRequested = decimal.NewFromFloat(requested)
	sum.TotalApproved = decimal.NewFromFloat(approved)
	return sum, nil
}

// =============================================================================
// SCANNING HELPERS
// =============================================================================

func scanRequest(rows *sql.Rows) (governance.Request, error) {
	var (
		r governance.Request

		amount, status                                 sql.NullString
		createdAt, updatedAt                           sql.NullString
		nextID, onBehalfID, createdByEmp               sql.NullInt64
		title, acctID, acctName, invType, quarter      sql.NullString
		just, outcome, risk                            sql.NullString
		createdBy, createdByName                       sql.NullString
		theater, segment                               sql.NullString
		level                                          sql.NullInt64
		nextName, nextTitle                            sql.NullString
		dmBy, dmTitle, dmAt, dmC                       sql.NullString
		rdBy, rdTitle, rdAt, rdC                       sql.NullString
		avpBy, avpTitle, avpAt, avpC                   sql.NullString
		gvpBy, gvpTitle, gvpAt, gvpC                   sql.NullString
		wBy, wByName, wAt, wComment                    sql.NullString
		subComment, subByName, subAt                   sql.NullString
		draftComment, draftByName, draftAt, behalfName sql.NullString
		oppLink, roi                                   sql.NullString
	)

	err := rows.Scan(
		&r.ID, &title, &acctID, &acctName, &invType,
		&amount, &quarter, &just, &outcome, &risk,
		&createdBy, &createdByName, &createdByEmp, &createdAt, &theater, &segment,
		&status, &level, &nextID, &nextName, &nextTitle,
		&dmBy, &dmTitle, &dmAt, &dmC,
		&rdBy, &rdTitle, &rdAt, &rdC,
		&avpBy, &avpTitle, &avpAt, &avpC,
		&gvpBy, &gvpTitle, &gvpAt, &gvpC,
		&updatedAt, &wBy, &wByName, &wAt, &wComment,
		&subComment, &subByName, &subAt,
		&draftComment, &draftByName, &draftAt,
		&onBehalfID, &behalfName, &oppLink, &roi,
	)
	if err != nil {
		return r, fmt.Errorf("failed to scan request: %w", err)
	}

	r.Title = title.String
	r.AccountID = acctID.String
	r.AccountName = acctName.String
	r.InvestmentType = invType.String
	r.Amount = parseDecimal(amount.String)
	r.Quarter = quarter.String
	r.Justification = just.String
	r.ExpectedOutcome = outcome.String
	r.RiskAssessment = risk.String
	r.CreatedBy = createdBy.String
	r.CreatedByName = createdByName.String
	r.CreatedByEmployeeID = createdByEmp.Int64
	if t := parseTimePtr(createdAt); t != nil {
		r.CreatedAt = *t
	}
	r.Theater = theater.String
	r.IndustrySegment = segment.String
	r.Status = governance.Status(status.String)
	r.CurrentLevel = int(level.Int64)
	if nextID.Valid {
		r.NextApproverID = &nextID.Int64
	}
	r.NextApproverName = nextName.String
	r.NextApproverTitle = nextTitle.String

	r.DM = scanFact(dmBy, dmTitle, dmAt, dmC)
	r.RD = scanFact(rdBy, rdTitle, rdAt, rdC)
	r.AVP = scanFact(avpBy, avpTitle, avpAt, avpC)
	r.GVP = scanFact(gvpBy, gvpTitle, gvpAt, gvpC)

	if t := parseTimePtr(updatedAt); t != nil {
		r.UpdatedAt = *t
	}
	r.WithdrawnBy = wBy.String
	r.WithdrawnByName = wByName.String
	r.WithdrawnAt = parseTimePtr(wAt)
	r.WithdrawnComment = wComment.String
	r.SubmittedComment = subComment.String
	r.SubmittedByName = subByName.String
	r.SubmittedAt = parseTimePtr(subAt)
	r.DraftComment = draftComment.String
	r.DraftByName = draftByName.String
	r.DraftAt = parseTimePtr(draftAt)
	if onBehalfID.Valid {
		r.OnBehalfOfEmployeeID = &onBehalfID.Int64
	}
	r.OnBehalfOfName = behalfName.String
	r.OpportunityLink = oppLink.String
	r.ExpectedROI = roi.String
	return r, nil
}

func scanFact(by, title, at, comments sql.NullString) governance.ApprovalFact {
	return governance.ApprovalFact{
		By:       by.String,
		ByTitle:  title.String,
		At:       parseTimePtr(at),
		Comments: comments.String,
	}
}

func fmtTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
