package transfer

import (
	"path"
	"regexp"
	"strings"

	"github.com/alessio/shellescape"
)

// DeleteCommands returns the best-effort cleanup sequence for a remote path: the path itself,
// its immediate contents, then the directory.
func DeleteCommands(destination string) []string {
	q := shellescape.Quote(destination)
	return []string{
		"rm " + q,
		"rm " + q + "/*",
		"rmdir " + q,
	}
}

// MkdirCommand returns a mkdir -p for a remote directory
func MkdirCommand(dir string) string {
	return "mkdir -p " + shellescape.Quote(dir)
}

var slashRun = regexp.MustCompile(`/{2,}`)

// NormalizeRemote turns a joined path into the form the remote expects: backslashes become
// slashes, runs of slashes collapse, and "." segments are dropped.
func NormalizeRemote(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = slashRun.ReplaceAllString(p, "/")
	if p == "" {
		return p
	}
	abs := strings.HasPrefix(p, "/")
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, s := range parts {
		if s == "." || s == "" {
			continue
		}
		out = append(out, s)
	}
	joined := strings.Join(out, "/")
	if abs {
		return "/" + joined
	}
	if joined == "" {
		return "."
	}
	return joined
}

// JoinRemote joins a remote root and a relative path and normalizes the result
func JoinRemote(root, rel string) string {
	return NormalizeRemote(root + "/" + rel)
}

// parentRemote strips the final segment, keeping "/" for top level entries
func parentRemote(p string) string {
	dir := path.Dir(strings.TrimSuffix(p, "/"))
	if dir == "." {
		return ""
	}
	return dir
}
