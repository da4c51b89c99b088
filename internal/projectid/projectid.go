// Package projectid computes a stable identifier for the repository a hook
// is invoked from, and derives the on-disk data root for that project inside
// the user's config directory. Autonomous state, checkpoints, cascades, and
// memory events are all partitioned by this identifier so that one Claude
// Code installation can serve many repositories without cross-contaminating
// their state.
package projectid

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const defaultGitTimeout = 5 * time.Second

// Resolve returns a stable, filesystem-safe identifier for the repository
// rooted at (or above) dir: the sha256 of the canonicalized origin remote
// URL when one is configured, otherwise of the repository's absolute root
// path, truncated to 16 hex characters. Keying on the remote makes clones
// and worktrees of the same repository share one memory store; the
// root-path fallback keeps remoteless repositories stable per checkout.
//
// When dir is not inside a git repository at all, Resolve hashes the
// absolute path of dir itself, so the toolkit still functions (with
// project-local rather than repo-wide scoping) outside of git.
func Resolve(dir string) string {
	key := ""
	if remote, err := remoteURL(dir); err == nil && remote != "" {
		key = remote
	} else if root, err := repoRoot(dir); err == nil {
		key = filepath.Clean(root)
	} else {
		abs, err := filepath.Abs(dir)
		if err != nil {
			abs = dir
		}
		key = filepath.Clean(abs)
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

// remoteURL returns the canonicalized origin remote: lowercased, with any
// trailing slash or ".git" suffix stripped, so the https and ssh spellings
// of the same remote hash identically as often as possible.
func remoteURL(dir string) (string, error) {
	out, err := runGit(dir, "remote", "get-url", "origin")
	if err != nil {
		return "", err
	}
	url := strings.ToLower(strings.TrimSpace(out))
	url = strings.TrimSuffix(url, "/")
	url = strings.TrimSuffix(url, ".git")
	return url, nil
}

// repoRoot shells out to git to find the top-level directory of the
// repository containing dir.
func repoRoot(dir string) (string, error) {
	out, err := runGit(dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", ErrNotGitRepo
	}
	return strings.TrimSpace(out), nil
}

func runGit(dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultGitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("git %s timed out after %s", strings.Join(args, " "), defaultGitTimeout)
		}
		return "", err
	}
	return string(out), nil
}

// DataRoot returns the directory under userConfigRoot where memory state
// for project id lives: userConfigRoot/memory/<id>. Events, the manifest,
// the core-assertions log, and the promotion sidecar all live below it.
func DataRoot(userConfigRoot, id string) string {
	return filepath.Join(userConfigRoot, "memory", id)
}
