package main

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"gptedit/internal/backup"
	"gptedit/internal/session"
)

const envPrefix = "GPTEDIT"

// Configuration keys, shared by the flags, the environment (GPTEDIT_*) and
// viper.
const (
	keyBackupDir         = "backup-dir"
	keyBackupCompression = "backup-compression"
	keyHistoryFile       = "history-file"
	keyReadOnly          = "read-only"
	keyYes               = "yes"
	keyList              = "list"
)

type config struct {
	BackupDir   string
	Compression string
	HistoryFile string
	ReadOnly    bool
	Yes         bool
}

// dataDir is where backups and history go unless configured otherwise.
func dataDir() string {
	home, err := homedir.Dir()
	if err != nil {
		return ".gptedit"
	}
	return filepath.Join(home, ".gptedit")
}

func loadConfig() (config, error) {
	cfg := config{
		BackupDir:   viper.GetString(keyBackupDir),
		Compression: viper.GetString(keyBackupCompression),
		HistoryFile: viper.GetString(keyHistoryFile),
		ReadOnly:    viper.GetBool(keyReadOnly),
		Yes:         viper.GetBool(keyYes),
	}
	var err error
	if cfg.BackupDir, err = homedir.Expand(cfg.BackupDir); err != nil {
		return cfg, fmt.Errorf("--%s: %w", keyBackupDir, err)
	}
	if cfg.HistoryFile, err = homedir.Expand(cfg.HistoryFile); err != nil {
		return cfg, fmt.Errorf("--%s: %w", keyHistoryFile, err)
	}
	if cfg.Compression == "" {
		cfg.Compression = backup.CompressionNone
	}
	if !slices.Contains(backup.Compressions, cfg.Compression) {
		return cfg, fmt.Errorf("--%s: %w: %q", keyBackupCompression, backup.ErrUnsupportedCompression, cfg.Compression)
	}
	return cfg, nil
}

func (c config) session() session.Config {
	return session.Config{BackupDir: c.BackupDir, Compression: c.Compression}
}
