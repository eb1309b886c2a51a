package skeleton

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// DefaultExcludes lists version control and editor metadata directories
// that sometimes live alongside a host agent's per-user storage root.
// DetectStorageLocations does not apply these patterns; its fixed-depth
// "<root>/*/*/tasks" glob is the only filter discovery uses.
var DefaultExcludes = []string{"**/.git/**", "**/node_modules/**"}

// rawFileNames in the §3 reference-timestamp precedence order.
var rawFileNames = []string{"task_metadata.json", "api_conversation_history.json", "ui_messages.json"}

// DetectStorageLocations probes OS-conventional per-user storage roots for
// directories literally named "tasks" (§6). workspaceRootOverride, when
// non-empty (ROO_EXTENSIONS_PATH), replaces the OS-conventional candidate
// list entirely.
func DetectStorageLocations(fs afero.Fs, workspaceRootOverride string) ([]string, error) {
	var candidates []string
	if workspaceRootOverride != "" {
		candidates = []string{workspaceRootOverride}
	} else {
		candidates = conventionalStorageCandidates()
	}
	var found []string
	for _, root := range candidates {
		matches, err := findTasksDirs(fs, root)
		if err != nil {
			continue
		}
		found = append(found, matches...)
	}
	return dedupe(found), nil
}

// conventionalStorageCandidates enumerates the per-OS host-agent storage
// roots this core knows how to probe. These mirror the globalStorage
// layout conventions of VS Code-family extension hosts.
func conventionalStorageCandidates() []string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return nil
	}
	switch runtime.GOOS {
	case "darwin":
		return []string{
			filepath.Join(home, "Library", "Application Support", "Code", "User", "globalStorage"),
			filepath.Join(home, "Library", "Application Support", "Code - Insiders", "User", "globalStorage"),
		}
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return []string{
			filepath.Join(appData, "Code", "User", "globalStorage"),
			filepath.Join(appData, "Code - Insiders", "User", "globalStorage"),
		}
	default:
		return []string{
			filepath.Join(home, ".config", "Code", "User", "globalStorage"),
			filepath.Join(home, ".config", "Code - Insiders", "User", "globalStorage"),
		}
	}
}

// findTasksDirs walks root looking for directories named "tasks", bounded
// to a shallow depth since globalStorage layouts nest extension
// publisher/name directories above "tasks".
func findTasksDirs(fs afero.Fs, root string) ([]string, error) {
	info, err := fs.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", root)
	}
	pattern := filepath.ToSlash(filepath.Join(root, "*", "*", "tasks"))
	matches, err := doublestar.Glob(afero.NewIOFS(fs), pattern)
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// TaskDirectories lists every immediate child directory of a storage
// location's "tasks" directory -- one per raw task directory.
func TaskDirectories(fs afero.Fs, storageLocation string) ([]string, error) {
	entries, err := afero.ReadDir(fs, storageLocation)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(storageLocation, e.Name()))
		}
	}
	return dirs, nil
}

// ReferenceFile returns the name of the first raw file (in §3's precedence
// order) present in taskDir. A directory with none of the three files is
// invalid. It does not report the file's modification time; the scanner
// decides whether a skeleton is stale by comparing source checksums.
func ReferenceFile(fs afero.Fs, taskDir string) (name string, valid bool, err error) {
	for _, f := range rawFileNames {
		p := filepath.Join(taskDir, f)
		info, statErr := fs.Stat(p)
		if statErr == nil && !info.IsDir() {
			return f, true, nil
		}
	}
	return "", false, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// MatchesWorkspaceFilter implements §4.A's case-insensitive substring
// match on the detected workspace root.
func MatchesWorkspaceFilter(workspace, filter string) bool {
	if filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(workspace), strings.ToLower(filter))
}
