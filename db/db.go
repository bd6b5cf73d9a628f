package db

import (
	"database/sql"
	"errors"
	"strings"

	"chatd/models"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrDuplicateUser = errors.New("username already taken")
	ErrNoRows        = errors.New("no rows found")
)

type DB struct {
	conn *sql.DB
}

func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	// A single connection serializes every check-then-act sequence that
	// isn't already wrapped in a transaction.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS friends (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner TEXT NOT NULL,
			friend TEXT NOT NULL,
			UNIQUE(owner, friend)
		)`,
		`CREATE TABLE IF NOT EXISTS offline_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			addressee TEXT NOT NULL,
			body TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_friends_owner ON friends(owner)`,
		`CREATE INDEX IF NOT EXISTS idx_offline_addressee ON offline_messages(addressee, id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

// User methods

// CreateUser inserts a new user with a bcrypt-hashed credential. The UNIQUE
// constraint on username resolves concurrent registrations of the same name:
// exactly one insert wins, the rest get ErrDuplicateUser.
func (db *DB) CreateUser(username, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = db.conn.Exec(
		"INSERT INTO users (username, password) VALUES (?, ?)",
		username, string(hashed),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrDuplicateUser
	}
	return err
}

func (db *DB) UserExists(username string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AuthenticateUser reports whether the username exists and, if so, whether
// the credential matches. The stored hash never leaves this package.
func (db *DB) AuthenticateUser(username, password string) (found, valid bool, err error) {
	var hashedPassword string
	err = db.conn.QueryRow("SELECT password FROM users WHERE username = ?", username).Scan(&hashedPassword)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}

	err = bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	return true, err == nil, nil
}

// Friend edge methods

// AddFriend creates the directed edge owner->friend. Returns false without
// error if the edge already exists.
func (db *DB) AddFriend(owner, friend string) (bool, error) {
	_, err := db.conn.Exec("INSERT INTO friends (owner, friend) VALUES (?, ?)", owner, friend)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (db *DB) RemoveFriend(owner, friend string) error {
	result, err := db.conn.Exec("DELETE FROM friends WHERE owner = ? AND friend = ?", owner, friend)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNoRows
	}

	return nil
}

func (db *DB) FriendExists(owner, friend string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM friends WHERE owner = ? AND friend = ?", owner, friend).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (db *DB) GetFriends(owner string) ([]string, error) {
	rows, err := db.conn.Query("SELECT friend FROM friends WHERE owner = ? ORDER BY friend", owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var friends []string
	for rows.Next() {
		var friend string
		if err := rows.Scan(&friend); err != nil {
			return nil, err
		}
		friends = append(friends, friend)
	}

	return friends, rows.Err()
}

// Offline message methods

func (db *DB) EnqueueOffline(addressee, body string) error {
	_, err := db.conn.Exec(
		"INSERT INTO offline_messages (addressee, body) VALUES (?, ?)",
		addressee, body,
	)
	return err
}

// DrainOffline returns every queued message for addressee in persistence
// order and deletes them inside the same transaction. At-most-once: rows are
// gone before any of them reach the socket.
func (db *DB) DrainOffline(addressee string) ([]models.OfflineMessage, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		"SELECT id, addressee, body FROM offline_messages WHERE addressee = ? ORDER BY id ASC",
		addressee,
	)
	if err != nil {
		return nil, err
	}

	var messages []models.OfflineMessage
	for rows.Next() {
		var m models.OfflineMessage
		if err := rows.Scan(&m.ID, &m.Addressee, &m.Body); err != nil {
			rows.Close()
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if _, err := tx.Exec("DELETE FROM offline_messages WHERE addressee = ?", addressee); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return messages, nil
}
