package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens the SQLite database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Tests use it with ":memory:" and Migrate.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// ==== UserStore implementation ====

const userColumns = `id, uuid, username, password_hash, is_active, created_at, deleted_at`

func scanUser(row rowScanner) (*store.User, error) {
	var user store.User
	var deletedAt sql.NullTime
	err := row.Scan(
		&user.ID,
		&user.UUID,
		&user.Username,
		&user.PasswordHash,
		&user.Active,
		&user.CreatedAt,
		&deletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	if deletedAt.Valid {
		user.DeletedAt = &deletedAt.Time
	}
	return &user, nil
}

// CreateUser creates a new active user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (uuid, username, password_hash, is_active)
		VALUES (?, ?, ?, 1)
	`
	result, err := s.db.ExecContext(ctx, query, uuid.NewString(), username, passwordHash)
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
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUUID retrieves a user by public identifier.
func (s *SQLiteStore) GetUserByUUID(ctx context.Context, id string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE uuid = ?`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUsername retrieves an active user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = ? COLLATE NOCASE AND is_active = 1`
	return scanUser(s.db.QueryRowContext(ctx, query, username))
}

// DeleteUser deactivates the account and drops its friendships.
// The username is released so it can be registered again.
func (s *SQLiteStore) DeleteUser(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE users
		SET is_active = 0,
		    deleted_at = CURRENT_TIMESTAMP,
		    password_hash = '',
		    username = 'deleted_' || uuid
		WHERE id = ? AND is_active = 1
	`, id)
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user: %w", store.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM friends WHERE user_id = ? OR friend_id = ?`, id, id); err != nil {
		return fmt.Errorf("delete friendships: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ==== MessageStore implementation ====

const messageColumns = `id, uuid, sender_id, recipient_id, content, read, created_at`

func scanMessage(row rowScanner) (*store.Message, error) {
	var msg store.Message
	err := row.Scan(
		&msg.ID,
		&msg.UUID,
		&msg.SenderID,
		&msg.RecipientID,
		&msg.Content,
		&msg.Read,
		&msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("scan message: %w", err)
	}
	return &msg, nil
}

// CreateMessage persists an unread message.
func (s *SQLiteStore) CreateMessage(ctx context.Context, senderID, recipientID int64, content string) (*store.Message, error) {
	query := `
		INSERT INTO messages (uuid, sender_id, recipient_id, content, read)
		VALUES (?, ?, ?, ?, 0)
	`
	result, err := s.db.ExecContext(ctx, query, uuid.NewString(), senderID, recipientID, content)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.getMessageByID(ctx, id)
}

func (s *SQLiteStore) getMessageByID(ctx context.Context, id int64) (*store.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`
	return scanMessage(s.db.QueryRowContext(ctx, query, id))
}

// MarkMessageRead is a single guarded write; a second caller for the same message gets zero rows.
func (s *SQLiteStore) MarkMessageRead(ctx context.Context, messageID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE messages SET read = 1 WHERE id = ? AND read = 0`, messageID)
	if err != nil {
		return 0, fmt.Errorf("mark message read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return rows, nil
}

// MarkConversationRead marks every unread message from senderID to recipientID as read.
func (s *SQLiteStore) MarkConversationRead(ctx context.Context, senderID, recipientID int64) (int64, error) {
	query := `
		UPDATE messages
		SET read = 1
		WHERE sender_id = ? AND recipient_id = ? AND read = 0
	`
	result, err := s.db.ExecContext(ctx, query, senderID, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return rows, nil
}

// ListConversation returns messages between two users with pagination, newest first.
func (s *SQLiteStore) ListConversation(ctx context.Context, userID, otherID int64, limit int, beforeID *int64) ([]*store.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE ((sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?))
	`
	args := []any{userID, otherID, otherID, userID}
	if beforeID != nil {
		query += ` AND id < ?`
		args = append(args, *beforeID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// ListRecentChats returns the latest message per counterpart with the viewer's unread count.
func (s *SQLiteStore) ListRecentChats(ctx context.Context, userID int64) ([]*store.RecentChat, error) {
	query := `
		SELECT m.id, m.uuid, m.sender_id, m.recipient_id, m.content, m.read, m.created_at,
		       (SELECT COUNT(*) FROM messages u
		        WHERE u.recipient_id = ? AND u.read = 0
		          AND u.sender_id = CASE WHEN m.sender_id = ? THEN m.recipient_id ELSE m.sender_id END)
		FROM messages m
		WHERE m.id IN (
			SELECT MAX(id) FROM messages
			WHERE sender_id = ? OR recipient_id = ?
			GROUP BY CASE WHEN sender_id = ? THEN recipient_id ELSE sender_id END
		)
		ORDER BY m.id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, userID, userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query recent chats: %w", err)
	}
	defer rows.Close()

	var chats []*store.RecentChat
	for rows.Next() {
		var chat store.RecentChat
		msg := &chat.LastMessage
		if err := rows.Scan(&msg.ID, &msg.UUID, &msg.SenderID, &msg.RecipientID, &msg.Content, &msg.Read, &msg.CreatedAt, &chat.UnreadCount); err != nil {
			return nil, fmt.Errorf("scan recent chat: %w", err)
		}
		chat.CounterpartID = msg.OtherUserID(userID)
		chats = append(chats, &chat)
	}

	return chats, rows.Err()
}

// ==== FriendStore implementation ====

func scanFriend(row rowScanner) (*store.Friend, error) {
	var friend store.Friend
	var status string
	err := row.Scan(
		&friend.ID,
		&friend.UserID,
		&friend.FriendID,
		&status,
		&friend.CreatedAt,
		&friend.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("friendship: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("scan friend: %w", err)
	}
	friend.Status = store.FriendStatus(status)
	return &friend, nil
}

// CreateFriendRequest creates a new friend request (pending status). The existence check
// and the insert are one statement, so crossed requests cannot both succeed.
func (s *SQLiteStore) CreateFriendRequest(ctx context.Context, userID, friendID int64) (*store.Friend, error) {
	query := `
		INSERT INTO friends (user_id, friend_id, status)
		SELECT ?, ?, 'pending'
		WHERE NOT EXISTS (
			SELECT 1 FROM friends
			WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)
		)
	`
	result, err := s.db.ExecContext(ctx, query, userID, friendID, userID, friendID, friendID, userID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("friend request: %w", store.ErrConflict)
		}
		return nil, fmt.Errorf("insert friend request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("friend request: %w", store.ErrConflict)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.getFriendByID(ctx, id)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// getFriendByID is a helper to retrieve a friend record by ID.
func (s *SQLiteStore) getFriendByID(ctx context.Context, id int64) (*store.Friend, error) {
	query := `
		SELECT id, user_id, friend_id, status, created_at, updated_at
		FROM friends
		WHERE id = ?
	`
	return scanFriend(s.db.QueryRowContext(ctx, query, id))
}

// UpdateFriendStatus moves a friendship to status. It fails with store.ErrNotFound when the row
// is missing or already has that status, so only one of two racing callers succeeds.
func (s *SQLiteStore) UpdateFriendStatus(ctx context.Context, userID, friendID int64, status store.FriendStatus) error {
	query := `
		UPDATE friends
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND friend_id = ? AND status != ?
	`
	result, err := s.db.ExecContext(ctx, query, string(status), userID, friendID, string(status))
	if err != nil {
		return fmt.Errorf("update friend status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("friendship: %w", store.ErrNotFound)
	}
	return nil
}

// GetFriendship retrieves a friendship between two users (in either direction).
func (s *SQLiteStore) GetFriendship(ctx context.Context, userID, friendID int64) (*store.Friend, error) {
	query := `
		SELECT id, user_id, friend_id, status, created_at, updated_at
		FROM friends
		WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)
	`
	return scanFriend(s.db.QueryRowContext(ctx, query, userID, friendID, friendID, userID))
}

// ListFriends lists friendships for a user, optionally filtered by status.
func (s *SQLiteStore) ListFriends(ctx context.Context, userID int64, status *store.FriendStatus) ([]*store.Friend, error) {
	query := `
		SELECT id, user_id, friend_id, status, created_at, updated_at
		FROM friends
		WHERE (user_id = ? OR friend_id = ?)
	`
	args := []any{userID, userID}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY updated_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query friends: %w", err)
	}
	defer rows.Close()

	var friends []*store.Friend
	for rows.Next() {
		friend, err := scanFriend(rows)
		if err != nil {
			return nil, err
		}
		friends = append(friends, friend)
	}

	return friends, rows.Err()
}

// IsFriend checks if two users are friends (accepted status in either direction).
func (s *SQLiteStore) IsFriend(ctx context.Context, userID, friendID int64) (bool, error) {
	query := `
		SELECT 1 FROM friends
		WHERE ((user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?))
		AND status = 'accepted'
	`
	var exists int
	err := s.db.QueryRowContext(ctx, query, userID, friendID, friendID, userID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query friendship: %w", err)
	}
	return true, nil
}

// DeleteFriendship removes the row from userID to friendID while it still has status.
// A missing row or one that moved to another status yields store.ErrNotFound.
func (s *SQLiteStore) DeleteFriendship(ctx context.Context, userID, friendID int64, status store.FriendStatus) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM friends WHERE user_id = ? AND friend_id = ? AND status = ?`,
		userID, friendID, string(status))
	if err != nil {
		return fmt.Errorf("delete friendship: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("friendship: %w", store.ErrNotFound)
	}
	return nil
}
