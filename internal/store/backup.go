package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrBackupExists is returned when the backup destination already exists.
var ErrBackupExists = errors.New("backup file already exists")

// Backup writes a consistent copy of the database to dst, which must not
// exist. Pending rows and tombstones are copied as they are.
func (s *SQLiteStore) Backup(ctx context.Context, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("%w: %s", ErrBackupExists, dst)
	}
	if dir := filepath.Dir(dst); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create backup directory: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dst); err != nil {
		return fmt.Errorf("backup database: %w", err)
	}
	return nil
}
