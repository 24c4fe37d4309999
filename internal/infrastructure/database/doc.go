// Package database provides SQLite connectivity for the handset agent.
//
// The agent keeps a small local database: the lifecycle journal that records
// every attach, detach and provisioning outcome. Device records themselves are
// owned by the master; nothing here is a second source of truth for them.
//
// This package manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Embedded, versioned schema migrations
//   - Health checks for the startup sequence
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
