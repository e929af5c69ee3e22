// Package database provides SQLite connectivity for the observatory controller.
//
// This package manages:
//   - Database connection with WAL mode so API readers do not block the control loop
//   - Forward-only schema migrations read from an fs.FS
//   - Connection lifecycle
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
