// Package fetch resolves remote chigraph modules: a module full name like
// `github.com/user/repo/mymod` is split into a repository URL and a path
// inside it, the repository is cloned (or pulled) into the workspace, and
// the contained .chimod files land under <workspace>/src.
package fetch

import (
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"

	"chi/graph"
	"chi/report"
)

// Fetcher clones module repositories into a workspace.  It implements
// graph.Fetcher.
type Fetcher struct {
	workspacePath string

	// remoteURL maps a `host/user/repo` prefix to the URL it is cloned
	// from.  Tests point it at local repositories.
	remoteURL func(repo string) string
}

// New creates a fetcher for a workspace.
func New(workspacePath string) *Fetcher {
	return &Fetcher{
		workspacePath: workspacePath,
		remoteURL:     func(repo string) string { return "https://" + repo },
	}
}

// Fetch resolves a module full name to its serialized JSON, cloning or
// updating the backing repository as needed.
func (f *Fetcher) Fetch(fullName string) ([]byte, *report.Result) {
	res := &report.Result{}
	defer res.AddContext(map[string]any{"Requested Module Name": fullName})()

	if f.workspacePath == "" {
		res.AddEntry("E30", "Cannot fetch modules without a workspace", nil)
		return nil, res
	}

	repoPath, err := f.fetchRepository(fullName)
	if err != nil {
		res.AddEntry("E30", "Failed to fetch module repository", map[string]any{
			"Error": err.Error(),
		})
		return nil, res
	}

	// the module file sits at the sub-path of the full name inside the
	// repository
	subPath := strings.TrimPrefix(strings.TrimPrefix(fullName, repoName(fullName)), "/")
	modFile := filepath.Join(repoPath, filepath.FromSlash(subPath)+graph.ModuleFileExtension)

	raw, err := os.ReadFile(modFile)
	if err != nil {
		res.AddEntry("E30", "Fetched repository does not contain the module", map[string]any{
			"Expected Path": modFile,
		})
		return nil, res
	}

	return raw, res
}

// fetchRepository clones (or pulls) the repository backing a module name
// into <workspace>/src/<repo name> and returns its path.
func (f *Fetcher) fetchRepository(fullName string) (string, error) {
	repo := repoName(fullName)
	dest := filepath.Join(f.workspacePath, "src", filepath.FromSlash(repo))

	if _, err := os.Stat(filepath.Join(dest, ".git")); err == nil {
		gitRepo, err := git.PlainOpen(dest)
		if err != nil {
			return "", err
		}

		wt, err := gitRepo.Worktree()
		if err != nil {
			return "", err
		}

		err = wt.Pull(&git.PullOptions{})
		if err != nil && err != git.NoErrAlreadyUpToDate {
			return "", err
		}
		return dest, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}

	_, err := git.PlainClone(dest, false, &git.CloneOptions{
		URL: f.remoteURL(repo),
	})
	if err != nil {
		return "", err
	}

	return dest, nil
}

// repoName returns the `host/user/repo` prefix of a module full name.
func repoName(fullName string) string {
	parts := strings.Split(fullName, "/")
	if len(parts) <= 3 {
		return fullName
	}
	return strings.Join(parts[:3], "/")
}
