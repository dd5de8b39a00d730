// Package discovery locates the Windsurf extension's bundled javascript and
// recovers protobuf layout facts the bridge cannot hard-code: the Metadata
// message field numbers (which move between releases) and the model enum
// (used for registry upkeep).
package discovery

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// FieldMap holds the Metadata message field numbers for the six fields the
// bridge sends by symbolic name. Values are discovered from the extension
// asset; the zero value is never used directly — call Default.
type FieldMap struct {
	APIKey           int
	IDEName          int
	IDEVersion       int
	ExtensionVersion int
	SessionID        int
	Locale           int
}

// Default is the layout every Windsurf release so far has shipped. Used when
// the asset cannot be found or parsed; the only risk of a stale default is a
// vendor-side decode error on the next call.
func Default() FieldMap {
	return FieldMap{
		APIKey:           1,
		IDEName:          2,
		IDEVersion:       3,
		ExtensionVersion: 4,
		SessionID:        5,
		Locale:           6,
	}
}

var (
	loadOnce  sync.Once
	loadedMap FieldMap
)

// Load returns the discovered field map, falling back to Default. The asset
// is read at most once per process.
func Load() FieldMap {
	loadOnce.Do(func() {
		loadedMap = Default()
		for _, path := range AssetPaths() {
			src, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			if fm, ok := ParseFieldMap(string(src)); ok {
				slog.Debug("metadata field map discovered", "asset", path)
				loadedMap = fm
				return
			}
		}
		slog.Debug("extension asset not found, using default field map")
	})
	return loadedMap
}

// AssetPaths lists where the extension bundle lives per platform, most
// likely location first.
func AssetPaths() []string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/Windsurf.app/Contents/Resources/app/extensions/windsurf/dist/extension.js",
			filepath.Join(home, "Applications/Windsurf.app/Contents/Resources/app/extensions/windsurf/dist/extension.js"),
		}
	case "windows":
		return []string{
			filepath.Join(os.Getenv("LOCALAPPDATA"), "Programs", "Windsurf", "resources", "app", "extensions", "windsurf", "dist", "extension.js"),
			filepath.Join(os.Getenv("ProgramFiles"), "Windsurf", "resources", "app", "extensions", "windsurf", "dist", "extension.js"),
		}
	default:
		return []string{
			filepath.Join(home, ".local/share/windsurf/resources/app/extensions/windsurf/dist/extension.js"),
			"/usr/share/windsurf/resources/app/extensions/windsurf/dist/extension.js",
			"/opt/windsurf/resources/app/extensions/windsurf/dist/extension.js",
		}
	}
}

var fieldListStart = regexp.MustCompile(`newFieldList\(\(\)\s*=>\s*\[`)

var fieldPair = regexp.MustCompile(`\{\s*no:\s*(\d+)\s*,\s*name:\s*"([^"]+)"`)

// ParseFieldMap extracts the Metadata field numbers from minified extension
// source. The right newFieldList block is the first one that names both
// "api_key" and "ide_name" but not "event_name" — the latter is the
// telemetry message, which shares the first two names.
func ParseFieldMap(src string) (FieldMap, bool) {
	for _, loc := range fieldListStart.FindAllStringIndex(src, -1) {
		block, ok := bracketSpan(src, loc[1]-1)
		if !ok {
			continue
		}
		if !strings.Contains(block, `"api_key"`) || !strings.Contains(block, `"ide_name"`) || strings.Contains(block, `"event_name"`) {
			continue
		}

		fm := Default()
		for _, m := range fieldPair.FindAllStringSubmatch(block, -1) {
			no, err := strconv.Atoi(m[1])
			if err != nil || no < 1 {
				continue
			}
			switch m[2] {
			case "api_key":
				fm.APIKey = no
			case "ide_name":
				fm.IDEName = no
			case "ide_version":
				fm.IDEVersion = no
			case "extension_version":
				fm.ExtensionVersion = no
			case "session_id":
				fm.SessionID = no
			case "locale":
				fm.Locale = no
			}
		}
		return fm, true
	}
	return FieldMap{}, false
}

// bracketSpan returns the substring of src starting at the "[" at open and
// ending at its matching "]", inclusive.
func bracketSpan(src string, open int) (string, bool) {
	depth := 0
	for i := open; i < len(src); i++ {
		switch src[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return src[open : i+1], true
			}
		}
	}
	return "", false
}
