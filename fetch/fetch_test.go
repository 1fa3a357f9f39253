package fetch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chi/graph"
)

func TestRepoName(t *testing.T) {
	tests := []struct {
		fullName string
		repo     string
	}{
		{"github.com/user/repo", "github.com/user/repo"},
		{"github.com/user/repo/mymod", "github.com/user/repo"},
		{"github.com/user/repo/deeply/nested/mod", "github.com/user/repo"},
		{"example.com/solo", "example.com/solo"},
		{"lonely", "lonely"},
	}

	for _, test := range tests {
		assert.Equal(t, test.repo, repoName(test.fullName), test.fullName)
	}
}

// moduleJSON is a minimal valid serialized module.
const moduleJSON = `{"dependencies": [], "types": {}, "graphs": {}}`

// initOriginRepo creates a local git repository holding the given .chimod
// files (paths relative to the repository root).
func initOriginRepo(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		_, err = wt.Add(name)
		require.NoError(t, err)
	}

	_, err = wt.Commit("add modules", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "tester",
			Email: "tester@example.com",
			When:  time.Now(),
		},
	})
	require.NoError(t, err)

	return dir
}

// localFetcher creates a fetcher whose clones come from origin instead of
// the network.
func localFetcher(workspace, origin string) *Fetcher {
	f := New(workspace)
	f.remoteURL = func(string) string { return origin }
	return f
}

func TestFetchClonesAndReadsModule(t *testing.T) {
	origin := initOriginRepo(t, map[string]string{
		"mymod.chimod":       moduleJSON,
		"sub/other.chimod":   moduleJSON,
	})

	workspace := t.TempDir()
	f := localFetcher(workspace, origin)

	raw, res := f.Fetch("example.com/user/repo/mymod")
	require.True(t, res.Success(), res.Dump())

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "graphs")

	// the clone landed under <workspace>/src/<repo>
	_, err := os.Stat(filepath.Join(workspace, "src", "example.com", "user", "repo", ".git"))
	assert.NoError(t, err)

	// a nested module resolves inside the already-cloned repository; the
	// second fetch goes through the pull branch
	raw, res = f.Fetch("example.com/user/repo/sub/other")
	require.True(t, res.Success(), res.Dump())
	require.NoError(t, json.Unmarshal(raw, &decoded))
}

func TestFetchMissingModuleInRepo(t *testing.T) {
	origin := initOriginRepo(t, map[string]string{"mymod.chimod": moduleJSON})

	f := localFetcher(t.TempDir(), origin)

	_, res := f.Fetch("example.com/user/repo/nosuchmod")
	require.False(t, res.Success())
	assert.Equal(t, "E30", res.Entries[0].Code)
}

func TestFetchWithoutWorkspace(t *testing.T) {
	f := New("")

	_, res := f.Fetch("example.com/user/repo/mymod")
	require.False(t, res.Success())
	assert.Equal(t, "E30", res.Entries[0].Code)
}

func TestLoadModuleThroughFetcher(t *testing.T) {
	origin := initOriginRepo(t, map[string]string{"mymod.chimod": moduleJSON})

	workspace := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(workspace, graph.WorkspaceMarkerFileName), []byte{}, 0o644))

	ctx := graph.NewContext(workspace)
	ctx.SetFetcher(localFetcher(workspace, origin))

	mod, res := ctx.LoadModule("example.com/user/repo/mymod")
	require.True(t, res.Success(), res.Dump())
	require.NotNil(t, mod)
	assert.Equal(t, "example.com/user/repo/mymod", mod.FullName())
	assert.Equal(t, "mymod", mod.ShortName())

	// after the clone the module also resolves straight from the
	// workspace in a fresh context, without a fetcher
	ctx2 := graph.NewContext(workspace)
	again, res := ctx2.LoadModule("example.com/user/repo/mymod")
	require.True(t, res.Success(), res.Dump())
	require.NotNil(t, again)
}
