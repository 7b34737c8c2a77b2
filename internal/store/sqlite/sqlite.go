package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/teaminfosharing/tis-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function after the
// schema is applied. Useful for tests to seed fixture rows.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	s, err := New(dbPath)
	if err != nil {
		return nil, err
	}

	if setup != nil {
		if err := setup(s.db); err != nil {
			s.db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	display_name  TEXT NOT NULL,
	role          INTEGER NOT NULL DEFAULT 2,
	flow_id       INTEGER REFERENCES flows(id) ON DELETE SET NULL,
	unread_count  INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS flows (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	owner_id   INTEGER NOT NULL REFERENCES users(id),
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS flow_recipients (
	flow_id  INTEGER NOT NULL REFERENCES flows(id) ON DELETE CASCADE,
	user_id  INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	PRIMARY KEY (flow_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	from_id    INTEGER NOT NULL,
	type       TEXT NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	file_url   TEXT NOT NULL DEFAULT '',
	file_name  TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS message_recipients (
	message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	user_id    INTEGER NOT NULL,
	position   INTEGER NOT NULL,
	PRIMARY KEY (message_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);
`

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

const userColumns = `id, username, password_hash, display_name, role, flow_id, unread_count, created_at`

func scanUser(row interface{ Scan(...any) error }) (*store.User, error) {
	var u store.User
	var flowID sql.NullInt64
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.DisplayName,
		&u.Role,
		&flowID,
		&u.UnreadCount,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if flowID.Valid {
		u.FlowID = &flowID.Int64
	}
	return &u, nil
}

// CreateUser creates a new user.
func (s *SQLiteStore) CreateUser(ctx context.Context, u *store.User) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash, display_name, role, flow_id)
		VALUES (?, ?, ?, ?, ?)
	`
	var flowID any
	if u.FlowID != nil {
		flowID = *u.FlowID
	}
	result, err := s.db.ExecContext(ctx, query, u.Username, u.PasswordHash, u.DisplayName, u.Role, flowID)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", username, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

// ListUsers lists all users ordered by id.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*store.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUser updates display name, role and flow assignment.
func (s *SQLiteStore) UpdateUser(ctx context.Context, u *store.User) error {
	query := `
		UPDATE users SET display_name = ?, role = ?, flow_id = ?
		WHERE id = ?
	`
	var flowID any
	if u.FlowID != nil {
		flowID = *u.FlowID
	}
	result, err := s.db.ExecContext(ctx, query, u.DisplayName, u.Role, flowID, u.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d: %w", u.ID, store.ErrNotFound)
	}
	return nil
}

// DeleteUser removes a user record.
func (s *SQLiteStore) DeleteUser(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// IncrementUnread adds delta to a user's unread counter.
func (s *SQLiteStore) IncrementUnread(ctx context.Context, userID int64, delta int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET unread_count = unread_count + ? WHERE id = ?`, delta, userID)
	if err != nil {
		return fmt.Errorf("increment unread: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d: %w", userID, store.ErrNotFound)
	}
	return nil
}

// IncrementUnreadByRole adds delta to the unread counter of users with the
// given role. With firstOnly only the lowest user id is updated.
func (s *SQLiteStore) IncrementUnreadByRole(ctx context.Context, role store.Role, delta int, firstOnly bool) error {
	query := `UPDATE users SET unread_count = unread_count + ? WHERE role = ?`
	if firstOnly {
		query = `
			UPDATE users SET unread_count = unread_count + ?
			WHERE id = (SELECT MIN(id) FROM users WHERE role = ?)
		`
	}
	if _, err := s.db.ExecContext(ctx, query, delta, role); err != nil {
		return fmt.Errorf("increment unread by role: %w", err)
	}
	return nil
}

// ResetUnread sets a user's unread counter to zero.
func (s *SQLiteStore) ResetUnread(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET unread_count = 0 WHERE id = ?`, userID); err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	return nil
}

// ==== FlowStore implementation ====

// CreateFlow creates a flow with its ordered recipient set.
func (s *SQLiteStore) CreateFlow(ctx context.Context, f *store.Flow) (*store.Flow, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO flows (name, owner_id) VALUES (?, ?)`, f.Name, f.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("insert flow: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	if err := insertFlowRecipients(ctx, tx, id, f.Recipients); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.GetFlowByID(ctx, id)
}

func insertFlowRecipients(ctx context.Context, tx *sql.Tx, flowID int64, recipients []int64) error {
	for i, userID := range recipients {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO flow_recipients (flow_id, user_id, position) VALUES (?, ?, ?)`,
			flowID, userID, i); err != nil {
			return fmt.Errorf("insert flow recipient: %w", err)
		}
	}
	return nil
}

// GetFlowByID retrieves a flow and its recipients.
func (s *SQLiteStore) GetFlowByID(ctx context.Context, id int64) (*store.Flow, error) {
	var f store.Flow
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, created_at FROM flows WHERE id = ?`, id).
		Scan(&f.ID, &f.Name, &f.OwnerID, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("flow %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query flow: %w", err)
	}

	f.Recipients, err = s.flowRecipients(ctx, id)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *SQLiteStore) flowRecipients(ctx context.Context, flowID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM flow_recipients WHERE flow_id = ? ORDER BY position`, flowID)
	if err != nil {
		return nil, fmt.Errorf("query flow recipients: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan flow recipient: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListFlows lists all flows.
func (s *SQLiteStore) ListFlows(ctx context.Context) ([]*store.Flow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, owner_id, created_at FROM flows ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query flows: %w", err)
	}
	defer rows.Close()

	var flows []*store.Flow
	for rows.Next() {
		var f store.Flow
		if err := rows.Scan(&f.ID, &f.Name, &f.OwnerID, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan flow: %w", err)
		}
		flows = append(flows, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, f := range flows {
		if f.Recipients, err = s.flowRecipients(ctx, f.ID); err != nil {
			return nil, err
		}
	}
	return flows, nil
}

// UpdateFlow replaces a flow's name and recipient set.
func (s *SQLiteStore) UpdateFlow(ctx context.Context, f *store.Flow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE flows SET name = ? WHERE id = ?`, f.Name, f.ID)
	if err != nil {
		return fmt.Errorf("update flow: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("flow %d: %w", f.ID, store.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM flow_recipients WHERE flow_id = ?`, f.ID); err != nil {
		return fmt.Errorf("clear flow recipients: %w", err)
	}
	if err := insertFlowRecipients(ctx, tx, f.ID, f.Recipients); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteFlow removes a flow. Users referencing it are detached via
// ON DELETE SET NULL; message recipient snapshots are untouched.
func (s *SQLiteStore) DeleteFlow(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM flows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete flow: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("flow %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// ==== MessageStore implementation ====

// CreateMessage persists a message together with its recipient snapshot.
func (s *SQLiteStore) CreateMessage(ctx context.Context, m *store.Message) (*store.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO messages (from_id, type, content, file_url, file_name)
		VALUES (?, ?, ?, ?, ?)
	`, m.FromID, m.Type, m.Content, m.FileURL, m.FileName)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	for i, userID := range m.Recipients {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO message_recipients (message_id, user_id, position) VALUES (?, ?, ?)`,
			id, userID, i); err != nil {
			return nil, fmt.Errorf("insert message recipient: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.getMessageRow(ctx, id)
}

func (s *SQLiteStore) getMessageRow(ctx context.Context, id int64) (*store.Message, error) {
	var m store.Message
	err := s.db.QueryRowContext(ctx, `
		SELECT id, from_id, type, content, file_url, file_name, created_at
		FROM messages WHERE id = ?
	`, id).Scan(&m.ID, &m.FromID, &m.Type, &m.Content, &m.FileURL, &m.FileName, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}

	m.Recipients, err = s.messageRecipients(ctx, id)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLiteStore) messageRecipients(ctx context.Context, messageID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM message_recipients WHERE message_id = ? ORDER BY position`, messageID)
	if err != nil {
		return nil, fmt.Errorf("query message recipients: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan message recipient: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetMessage retrieves a message with sender and recipients populated.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*store.PopulatedMessage, error) {
	m, err := s.getMessageRow(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.populate(ctx, m)
}

func (s *SQLiteStore) populate(ctx context.Context, m *store.Message) (*store.PopulatedMessage, error) {
	pm := &store.PopulatedMessage{Message: *m}

	from, err := s.GetUserByID(ctx, m.FromID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	pm.From = from

	for _, rid := range m.Recipients {
		u, err := s.GetUserByID(ctx, rid)
		if err != nil {
			// Recipient accounts may have been deleted since the send;
			// skip them rather than failing the whole populate.
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		pm.RecipientUsers = append(pm.RecipientUsers, u)
	}
	return pm, nil
}

// MarkMessageDeleted overwrites the message to the deleted shape and returns
// the record as it was before the overwrite.
func (s *SQLiteStore) MarkMessageDeleted(ctx context.Context, id int64) (*store.Message, error) {
	prior, err := s.getMessageRow(ctx, id)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE messages SET type = ?, content = ?, file_url = '', file_name = ''
		WHERE id = ?
	`, store.MessageTypeDeleted, store.DeletedPlaceholder, id); err != nil {
		return nil, fmt.Errorf("mark message deleted: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM message_recipients WHERE message_id = ?`, id); err != nil {
		return nil, fmt.Errorf("clear message recipients: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return prior, nil
}

// ListMessages returns up to limit most recent messages, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, limit int) ([]*store.PopulatedMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_id, type, content, file_url, file_name, created_at
		FROM (
			SELECT * FROM messages ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var m store.Message
		if err := rows.Scan(&m.ID, &m.FromID, &m.Type, &m.Content, &m.FileURL, &m.FileName, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	populated := make([]*store.PopulatedMessage, 0, len(messages))
	for _, m := range messages {
		if m.Recipients, err = s.messageRecipients(ctx, m.ID); err != nil {
			return nil, err
		}
		pm, err := s.populate(ctx, m)
		if err != nil {
			return nil, err
		}
		populated = append(populated, pm)
	}
	return populated, nil
}
