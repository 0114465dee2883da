package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperengineering/fitsync/internal/backup"
	"github.com/hyperengineering/fitsync/internal/config"
	"github.com/hyperengineering/fitsync/internal/identity"
	"github.com/hyperengineering/fitsync/internal/store"
	"github.com/spf13/cobra"
)

var backupOut string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Copy the device database and upload it when a bucket is configured",
	Args:  cobra.NoArgs,
	RunE:  runBackup,
}

func init() {
	backupCmd.Flags().StringVarP(&backupOut, "out", "o", "", "Write the copy here instead of a temporary file")
}

type backupResult struct {
	Path      string     `json:"path,omitempty"`
	Uploaded  bool       `json:"uploaded"`
	URL       string     `json:"url,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func runBackup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	uploader, err := backup.NewUploader(cfg.Backup)
	if err != nil {
		return err
	}
	_, remoteBackup := uploader.(*backup.S3Uploader)
	if remoteBackup && cfg.Auth.UserID == "" {
		return fmt.Errorf("backup upload: %w", identity.ErrNotAuthenticated)
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	dst := backupOut
	if dst == "" {
		dir, err := os.MkdirTemp("", "fitsync-backup-")
		if err != nil {
			return fmt.Errorf("create temp dir: %w", err)
		}
		defer os.RemoveAll(dir)
		dst = filepath.Join(dir, "fitsync.db")
	}

	if err := st.Backup(ctx, dst); err != nil {
		return err
	}
	res := backupResult{}
	if backupOut != "" {
		res.Path = backupOut
	}

	if err := uploader.Upload(ctx, cfg.Auth.UserID, dst); err != nil {
		return err
	}
	link, expiry, err := uploader.PresignedURL(ctx, cfg.Auth.UserID)
	switch {
	case errors.Is(err, backup.ErrNotConfigured):
	case err != nil:
		return err
	default:
		res.Uploaded = true
		res.URL = link
		res.ExpiresAt = &expiry
		slog.Info("backup uploaded", "component", "backup", "user_id", cfg.Auth.UserID)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), res)
	}

	out := cmd.OutOrStdout()
	if res.Path != "" {
		fmt.Fprintf(out, "Backup written to %s\n", res.Path)
	}
	if res.Uploaded {
		fmt.Fprintf(out, "Uploaded. Download link (valid until %s):\n%s\n", res.ExpiresAt.Format(time.RFC3339), res.URL)
	} else if res.Path == "" {
		fmt.Fprintln(out, "No backup bucket configured and no --out path given; nothing kept.")
	}
	return nil
}
