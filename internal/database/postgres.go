package database

import (
	"database/sql"
)

type PgDreamletRepository struct {
	conn *sql.DB
}

func NewPgDreamletRepository(dsn string) (*PgDreamletRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgDreamletRepository{conn: db}, nil
}

func (db *PgDreamletRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgDreamletRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
