// Package database provides SQLite connectivity for Gray Logic Sim.
//
// The simulator persists two things locally: the decision log (every
// automation, rule, manual and mode event) and device state history.
// Both live in a single SQLite file opened here.
//
// This package manages:
//   - Database connection with WAL mode for concurrent reads
//   - Embedded, versioned schema migrations
//   - In-memory databases for repository tests
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
