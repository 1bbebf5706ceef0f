// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package memory

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/teradata-labs/treadle/internal/sqlitedriver"
)

// DBConfig holds database configuration including optional encryption.
type DBConfig struct {
	// Path to the SQLite database file.
	Path string

	// EncryptDatabase enables SQLCipher encryption at rest.
	// When true, requires EncryptionKey to be set. Only available in
	// cgo builds; pure-Go builds reject encrypted configurations.
	EncryptDatabase bool

	// EncryptionKey is the encryption key for SQLCipher.
	// Can be provided directly or via the TREADLE_DB_KEY environment
	// variable. Required when EncryptDatabase is true.
	EncryptionKey string
}

// OpenDB opens a SQLite database with optional encryption support.
//
// Example without encryption (default):
//
//	db, err := OpenDB(DBConfig{Path: "treadle.db"})
//
// Example with encryption:
//
//	db, err := OpenDB(DBConfig{
//	    Path:            "treadle.db",
//	    EncryptDatabase: true,
//	    EncryptionKey:   os.Getenv("TREADLE_DB_KEY"),
//	})
func OpenDB(config DBConfig) (*sql.DB, error) {
	if config.EncryptDatabase && !sqlitedriver.EncryptionSupported {
		return nil, fmt.Errorf("database encryption requires a cgo build (pure-Go SQLite driver has no SQLCipher support)")
	}

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// PRAGMA key and foreign_keys apply per connection, so the pool is
	// capped at one connection to keep them in effect for every query.
	db.SetMaxOpenConns(1)

	if config.EncryptDatabase {
		key := config.EncryptionKey
		if key == "" {
			key = os.Getenv("TREADLE_DB_KEY")
		}
		if key == "" {
			db.Close()
			return nil, fmt.Errorf("encryption enabled but no key provided (set EncryptionKey or TREADLE_DB_KEY env var)")
		}

		// Must be the first statement on the connection.
		if _, err := db.Exec(fmt.Sprintf("PRAGMA key = '%s'", key)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set encryption key: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		if config.EncryptDatabase {
			return nil, fmt.Errorf("failed to verify encryption key (wrong key or corrupted database): %w", err)
		}
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return db, nil
}
