package bootstrap

import "errors"

var (
	errDatabaseRequired = errors.New("DATABASE_URL is required")
	errIndexRequired    = errors.New("INDEX_API_URL is required")
)
