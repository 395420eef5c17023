package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/resourcebind/pkg/cliconfig"
	"github.com/getmockd/resourcebind/pkg/fetch"
	"github.com/getmockd/resourcebind/pkg/fetch/fetchtest"
	"github.com/getmockd/resourcebind/pkg/resource"
)

// --- Helpers ---

// testApp returns an app isolated from the user's config files and environment.
func testApp(t *testing.T, env map[string]string) *app {
	t.Helper()
	return &app{loadOpts: cliconfig.LoadOptions{
		LocalDir:  t.TempDir(),
		GlobalDir: t.TempDir(),
		Getenv:    func(k string) string { return env[k] },
	}}
}

func run(t *testing.T, a *app, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(a)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func branchesBody() map[string]any {
	return map[string]any{
		"stat": "ok",
		"branches": []any{
			map[string]any{"commit": "859d4e148ce3ce60bbda6622cdbe5c2c2f8d9817", "default": true, "name": "master"},
			map[string]any{"commit": "92463764015ef463b4b6d1a1825fee7aeec8cb15", "default": false, "name": "release-1.7.x"},
			map[string]any{"commit": "a15d0e635064a2e1929ce1bf3bc8d4aa65738b64", "default": false, "name": "release-1.6.x"},
		},
	}
}

func attachmentBody(caption string) map[string]any {
	return map[string]any{
		"stat": "ok",
		"user_file_attachment": map[string]any{
			"id": 42, "caption": caption, "filename": "shot.png", "absolute_url": "http://h/shot.png",
		},
	}
}

// --- branches ---

func TestBranches_Table(t *testing.T) {
	a := testApp(t, nil)
	a.client = fetchtest.New().On(http.MethodGet, "/api/repositories/123/branches/", fetchtest.JSON(branchesBody()))

	out, err := run(t, a, "", "branches", "123")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "NAME")
	assert.Contains(t, lines[1], "master")
	assert.True(t, strings.HasSuffix(lines[1], "*"))
	assert.Contains(t, lines[3], "release-1.6.x")
}

func TestBranches_JSON(t *testing.T) {
	a := testApp(t, nil)
	a.client = fetchtest.New().On(http.MethodGet, "/api/repositories/123/branches/", fetchtest.JSON(branchesBody()))

	out, err := run(t, a, "", "branches", "123", "--json")
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 3)
	assert.Equal(t, "92463764015ef463b4b6d1a1825fee7aeec8cb15", got[1]["commit"])
	assert.Equal(t, true, got[0]["isDefault"])
	assert.NotContains(t, got[0], "default")
}

func TestBranches_BadArgs(t *testing.T) {
	_, err := run(t, testApp(t, nil), "", "branches", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a number")

	_, err = run(t, testApp(t, nil), "", "branches")
	require.Error(t, err)
}

func TestBranches_HTTPEndToEnd(t *testing.T) {
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if r.URL.Path != "/api/repositories/7/branches/" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]any{"stat": "fail", "err": map[string]any{"code": 100, "msg": "Object does not exist"}})
			return
		}
		_ = json.NewEncoder(w).Encode(branchesBody())
	}))
	defer ts.Close()

	a := testApp(t, map[string]string{cliconfig.EnvToken: "sekrit"})
	out, err := run(t, a, "", "branches", "7", "--url", ts.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "release-1.7.x")
	assert.Equal(t, "token sekrit", auth)

	_, err = run(t, testApp(t, nil), "", "branches", "8", "--url", ts.URL)
	require.Error(t, err)
	assert.True(t, fetch.IsNotFound(err))
	assert.Contains(t, FormatError(err), "Hint: Check the resource ID")
}

// --- attachment ---

func TestAttachmentGet(t *testing.T) {
	a := testApp(t, map[string]string{cliconfig.EnvUsername: "admin"})
	a.client = fetchtest.New().On(http.MethodGet, "/api/users/admin/user-file-attachments/42/", fetchtest.JSON(attachmentBody("Screenshot")))

	out, err := run(t, a, "", "attachment", "get", "42")
	require.NoError(t, err)
	assert.Contains(t, out, "Screenshot")
	assert.Contains(t, out, "http://h/shot.png")
}

func TestAttachmentGet_UserFlagWins(t *testing.T) {
	a := testApp(t, map[string]string{cliconfig.EnvUsername: "admin"})
	a.client = fetchtest.New().On(http.MethodGet, "/api/users/dev/user-file-attachments/42/", fetchtest.JSON(attachmentBody("x")))

	out, err := run(t, a, "", "attachment", "get", "42", "--user", "dev", "--json")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "http://h/shot.png", got["downloadURL"])
}

func TestAttachmentGet_NoUser(t *testing.T) {
	a := testApp(t, nil)
	a.client = fetchtest.New()

	_, err := run(t, a, "", "attachment", "get", "42")
	assert.ErrorIs(t, err, ErrNoUsername)
}

func TestAttachmentUpdate_CaptionOnly(t *testing.T) {
	client := fetchtest.New().
		On(http.MethodGet, "/api/users/admin/user-file-attachments/42/", fetchtest.JSON(attachmentBody("old"))).
		On(http.MethodPut, "/api/users/admin/user-file-attachments/42/", fetchtest.JSON(attachmentBody("new")))
	a := testApp(t, nil)
	a.client = client

	out, err := run(t, a, "", "attachment", "update", "42", "--user", "admin", "--caption", "new")
	require.NoError(t, err)
	assert.Contains(t, out, "new")

	reqs := client.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, map[string]any{"caption": "new"}, reqs[1].Body)
}

func TestAttachmentUpdate_WithFile(t *testing.T) {
	client := fetchtest.New().
		On(http.MethodGet, "/api/users/admin/user-file-attachments/42/", fetchtest.JSON(attachmentBody("old"))).
		On(http.MethodPut, "/api/users/admin/user-file-attachments/42/", fetchtest.JSON(attachmentBody("old")))
	a := testApp(t, nil)
	a.client = client

	_, err := run(t, a, "", "attachment", "update", "42", "--user", "admin", "--file", "/tmp/new.png")
	require.NoError(t, err)

	reqs := client.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, map[string]any{"caption": "old", "path": "/tmp/new.png"}, reqs[1].Body)
}

func TestAttachmentUpdate_NothingToSave(t *testing.T) {
	a := testApp(t, nil)
	a.client = fetchtest.New()
	_, err := run(t, a, "", "attachment", "update", "42", "--user", "admin")
	assert.ErrorIs(t, err, ErrNothingToSave)
}

func TestAttachmentCreate(t *testing.T) {
	client := fetchtest.New().
		On(http.MethodPost, "/api/users/admin/user-file-attachments/", fetchtest.Reply{Status: http.StatusCreated, Body: attachmentBody("shot")})
	a := testApp(t, nil)
	a.client = client

	out, err := run(t, a, "", "attachment", "create", "--user", "admin", "--file", "/tmp/shot.png", "--caption", "shot", "--json")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, float64(42), got["id"])

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, map[string]any{"caption": "shot", "path": "/tmp/shot.png"}, reqs[0].Body)
}

// --- diff-file ---

const diffFilesJSON = `{
  "files": [
    {
      "id": 38, "index": 0, "binary": false, "deleted": false, "newfile": false,
      "filediff": {"id": 38, "revision": 2}, "interfilediff": null,
      "base_filediff_id": null, "comment_counts": [],
      "orig_filename": "a.js", "orig_revision": "abc",
      "modified_filename": "b.js", "modified_revision": "New Change"
    }
  ]
}`

func TestDiffFileParse_Stdin(t *testing.T) {
	out, err := run(t, testApp(t, nil), diffFilesJSON, "diff-file", "parse", "--json")
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "a.js", got[0]["origFilename"])
	assert.Equal(t, true, got[0]["isRename"])
	assert.Equal(t, map[string]any{"id": float64(38), "revision": float64(2)}, got[0]["filediff"])
}

func TestDiffFileParse_FileTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "files.json")
	require.NoError(t, os.WriteFile(path, []byte(diffFilesJSON), 0o600))

	out, err := run(t, testApp(t, nil), "", "diff-file", "parse", path)
	require.NoError(t, err)
	assert.Contains(t, out, "38@r2")
	assert.Contains(t, out, "true")
}

func TestParseDiffFiles_Shapes(t *testing.T) {
	single := `{"id": 1, "orig_filename": "a", "modified_filename": "a"}`
	files, err := parseDiffFiles(strings.NewReader(single))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, false, files[0].Get("isRename"))

	files, err = parseDiffFiles(strings.NewReader("[" + single + "," + single + "]"))
	require.NoError(t, err)
	assert.Len(t, files, 2)

	_, err = parseDiffFiles(strings.NewReader(`"nope"`))
	require.Error(t, err)

	_, err = parseDiffFiles(strings.NewReader(`{"files": [{"id": "x"}]}`))
	var pe *resource.ParseError
	require.True(t, errors.As(err, &pe))
}

// --- config ---

func TestConfigShow(t *testing.T) {
	a := testApp(t, map[string]string{cliconfig.EnvToken: "abcdef123456"})
	out, err := run(t, a, "", "config", "show", "--url", "https://reviews.example.com")
	require.NoError(t, err)

	assert.Contains(t, out, "url: https://reviews.example.com")
	assert.Contains(t, out, "****3456")
	assert.NotContains(t, out, "abcdef123456")
	assert.Contains(t, out, "#   url: flag")
	assert.Contains(t, out, "#   token: env")
}

func TestConfigShow_JSONFromLocalFile(t *testing.T) {
	a := testApp(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(a.loadOpts.LocalDir, ".rbindrc.yaml"),
		[]byte("url: http://local.example.com\njson: true\n"), 0o600))

	out, err := run(t, a, "", "config", "show")
	require.NoError(t, err)

	var got configView
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "http://local.example.com", got.URL)
	assert.Equal(t, cliconfig.SourceLocal, got.Sources["url"])
	assert.Equal(t, cliconfig.SourceLocal, got.Sources["json"])
}

func TestInvalidConfig(t *testing.T) {
	_, err := run(t, testApp(t, nil), "", "config", "show", "--url", "ftp://nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestFormatError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantHint string
	}{
		{"unauthorized", &fetch.TransportError{StatusCode: http.StatusUnauthorized}, "--token"},
		{"forbidden", &fetch.TransportError{StatusCode: http.StatusForbidden}, "does not grant access"},
		{"unreachable", &fetch.TransportError{Err: errors.New("connection refused")}, "reachable"},
		{"timeout", &fetch.TransportError{Err: context.DeadlineExceeded}, "--timeout"},
		{"parse", &resource.ParseError{Resource: "X", Field: "id", Reason: "bad"}, "carries"},
		{"superseded", resource.ErrSuperseded, "run the command again"},
		{"plain", errors.New("boom"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := FormatError(tt.err)
			assert.True(t, strings.HasPrefix(msg, "Error: "))
			if tt.wantHint == "" {
				assert.NotContains(t, msg, "Hint:")
				return
			}
			assert.Contains(t, msg, tt.wantHint)
		})
	}
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "****", maskToken("abc"))
	assert.Equal(t, "****7890", maskToken("1234567890"))
}
