package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Connect opens the database and runs migrations.
func Connect(driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if driver == DriverSQLite {
		// in-memory databases are per connection
		db.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// Migrate creates the chat schema if it does not exist yet. The classes and
// enrollments tables belong to the platform and are only created so the
// service can run on its own.
func Migrate(db *sqlx.DB) error {
	migrations := postgresMigrations
	if db.DriverName() == DriverSQLite {
		migrations = sqliteMigrations
	}
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS classes (
            id BIGSERIAL PRIMARY KEY,
            university_id BIGINT NOT NULL DEFAULT 0,
            name TEXT NOT NULL DEFAULT '',
            teacher_id BIGINT NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS enrollments (
            class_id BIGINT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
            student_id BIGINT NOT NULL,
            status TEXT NOT NULL,
            PRIMARY KEY(class_id, student_id)
        );`,
	`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            class_id BIGINT NOT NULL,
            sender_id BIGINT NOT NULL,
            sender_role TEXT NOT NULL,
            sender_name TEXT NOT NULL,
            sender_ref TEXT NOT NULL DEFAULT '',
            body TEXT NOT NULL,
            kind TEXT NOT NULL DEFAULT 'text',
            attachment_url TEXT NOT NULL DEFAULT '',
            attachment_name TEXT NOT NULL DEFAULT '',
            deleted BOOLEAN NOT NULL DEFAULT FALSE,
            edited_at TIMESTAMPTZ NULL,
            created_at TIMESTAMPTZ NOT NULL
        );`,
	`CREATE INDEX IF NOT EXISTS messages_class_created_idx ON messages (class_id, created_at DESC, id DESC);`,
	`CREATE TABLE IF NOT EXISTS message_reads (
            message_id BIGINT NOT NULL REFERENCES messages(id),
            reader_id BIGINT NOT NULL,
            read_at TIMESTAMPTZ NOT NULL,
            PRIMARY KEY(message_id, reader_id)
        );`,
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS classes (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            university_id INTEGER NOT NULL DEFAULT 0,
            name TEXT NOT NULL DEFAULT '',
            teacher_id INTEGER NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS enrollments (
            class_id INTEGER NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
            student_id INTEGER NOT NULL,
            status TEXT NOT NULL,
            PRIMARY KEY(class_id, student_id)
        );`,
	`CREATE TABLE IF NOT EXISTS messages (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            class_id INTEGER NOT NULL,
            sender_id INTEGER NOT NULL,
            sender_role TEXT NOT NULL,
            sender_name TEXT NOT NULL,
            sender_ref TEXT NOT NULL DEFAULT '',
            body TEXT NOT NULL,
            kind TEXT NOT NULL DEFAULT 'text',
            attachment_url TEXT NOT NULL DEFAULT '',
            attachment_name TEXT NOT NULL DEFAULT '',
            deleted BOOLEAN NOT NULL DEFAULT FALSE,
            edited_at TIMESTAMP NULL,
            created_at TIMESTAMP NOT NULL
        );`,
	`CREATE INDEX IF NOT EXISTS messages_class_created_idx ON messages (class_id, created_at DESC, id DESC);`,
	`CREATE TABLE IF NOT EXISTS message_reads (
            message_id INTEGER NOT NULL REFERENCES messages(id),
            reader_id INTEGER NOT NULL,
            read_at TIMESTAMP NOT NULL,
            PRIMARY KEY(message_id, reader_id)
        );`,
}
