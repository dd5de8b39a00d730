package creds

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	_ "modernc.org/sqlite"
)

// authStatusKey is the ItemTable row the IDE stores its auth status under.
const authStatusKey = "windsurf.authStatus"

// stateDBPath returns the IDE's global storage database per platform.
func stateDBPath() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Windsurf", "User", "globalStorage", "state.vscdb")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Windsurf", "User", "globalStorage", "state.vscdb")
	default:
		return filepath.Join(home, ".config", "Windsurf", "User", "globalStorage", "state.vscdb")
	}
}

// legacyConfigPath is the pre-Windsurf Codeium config, the API key fallback.
func legacyConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".codeium", "config.json")
}

// readAPIKey pulls the API key from the IDE's state database, falling back
// to the legacy Codeium config file.
func readAPIKey(ctx context.Context) (string, error) {
	if key, err := readStateDBKey(ctx, stateDBPath()); err == nil && key != "" {
		return key, nil
	}
	if key := readLegacyKey(legacyConfigPath()); key != "" {
		return key, nil
	}
	return "", errors.New("no api key in state.vscdb or ~/.codeium/config.json")
}

// readStateDBKey opens the sqlite state database read-only and extracts
// .apiKey from the auth status JSON. The IDE holds the database open, so the
// connection must be immutable to avoid lock contention.
func readStateDBKey(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", err
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&immutable=1")
	if err != nil {
		return "", fmt.Errorf("open state db: %w", err)
	}
	defer db.Close()

	var value string
	err = db.QueryRowContext(ctx, `SELECT value FROM ItemTable WHERE key = ?`, authStatusKey).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("query auth status: %w", err)
	}

	var status struct {
		APIKey string `json:"apiKey"`
	}
	if err := json.Unmarshal([]byte(value), &status); err != nil {
		return "", fmt.Errorf("parse auth status: %w", err)
	}
	return status.APIKey, nil
}

func readLegacyKey(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var cfg struct {
		APIKey string `json:"apiKey"`
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return ""
	}
	return cfg.APIKey
}
