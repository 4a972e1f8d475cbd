package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platform-sync-service/internal/store"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestDecide(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	before := base.Add(-time.Hour)
	after := base.Add(time.Hour)

	file := func(hash string, mod time.Time) *store.Item {
		return &store.Item{Path: "/data/f.txt", Hash: hash, ModifiedAt: mod}
	}
	lf := func(hash string, mod time.Time) *localFile {
		return &localFile{fsPath: "/tmp/f.txt", hash: hash, modTime: mod}
	}

	tests := []struct {
		name       string
		direction  store.SyncDirection
		remote     *store.Item
		local      *localFile
		lastSynced *time.Time
		want       action
	}{
		{"remote only downloads", store.DirectionBidirectional, file("h", base), nil, nil, actionDownload},
		{"remote only skipped on upload-only", store.DirectionUpload, file("h", base), nil, nil, actionSkip},
		{"local only uploads", store.DirectionBidirectional, nil, lf("h", base), nil, actionUpload},
		{"local only skipped on download-only", store.DirectionDownload, nil, lf("h", base), nil, actionSkip},
		{"identical hashes are equal", store.DirectionBidirectional, file("h", base), lf("h", after), timePtr(before), actionEqual},
		{"divergence without history conflicts", store.DirectionBidirectional, file("a", base), lf("b", base), nil, actionConflict},
		{"both changed since last sync conflicts", store.DirectionBidirectional, file("a", after), lf("b", after), timePtr(base), actionConflict},
		{"remote newer downloads", store.DirectionBidirectional, file("a", after), lf("b", before), timePtr(base), actionDownload},
		{"remote newer skipped on upload-only", store.DirectionUpload, file("a", after), lf("b", before), timePtr(base), actionSkip},
		{"local newer uploads", store.DirectionBidirectional, file("a", before), lf("b", after), timePtr(base), actionUpload},
		{"local newer skipped on download-only", store.DirectionDownload, file("a", before), lf("b", after), timePtr(base), actionSkip},
		{"stale divergence conflicts", store.DirectionBidirectional, file("a", before), lf("b", before), timePtr(base), actionConflict},
		{"directories are equal", store.DirectionBidirectional, &store.Item{Path: "/data/d", IsDir: true}, &localFile{isDir: true}, nil, actionEqual},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := decide(tc.direction, tc.remote, tc.local, tc.lastSynced)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestIncludePath(t *testing.T) {
	conn := &store.Connection{
		ExcludePaths:      []string{"/data/tmp", "*.bak"},
		IncludeExtensions: []string{"txt", ".md"},
		ExcludeExtensions: []string{"log"},
	}

	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{"/data/notes.txt", false, true},
		{"/data/README.md", false, true},
		{"/data/image.png", false, false},   // not in include list
		{"/data/app.log", false, false},     // excluded extension
		{"/data/tmp/notes.txt", false, false}, // under excluded path
		{"/data/tmp", true, false},
		{"/data/old.bak", false, false}, // glob exclusion
		{"/data/docs", true, true},      // dirs skip extension filters
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, includePath(conn, tc.path, tc.isDir), tc.path)
	}
}

func TestIncludePathNoFilters(t *testing.T) {
	conn := &store.Connection{}
	assert.True(t, includePath(conn, "/anything/at/all.bin", false))
}

func TestScanLocal(t *testing.T) {
	root := t.TempDir()
	writeLocalFile(t, root, "a.txt", "alpha")
	writeLocalFile(t, root, "docs/b.txt", "beta")

	conn := &store.Connection{RootPath: "/data", LocalPath: root}
	inv, err := scanLocal(context.Background(), conn)
	require.NoError(t, err)
	require.Len(t, inv, 3) // two files plus the docs directory

	a := inv["/data/a.txt"]
	require.NotNil(t, a)
	assert.False(t, a.isDir)
	assert.Equal(t, int64(5), a.size)
	assert.NotEmpty(t, a.hash)

	d := inv["/data/docs"]
	require.NotNil(t, d)
	assert.True(t, d.isDir)
	assert.Empty(t, d.hash)
}

func TestScanLocalMissingRoot(t *testing.T) {
	conn := &store.Connection{RootPath: "/data", LocalPath: "/nonexistent/sync/root"}
	inv, err := scanLocal(context.Background(), conn)
	require.NoError(t, err)
	assert.Empty(t, inv)
}

func TestLocalTarget(t *testing.T) {
	conn := &store.Connection{RootPath: "/data", LocalPath: "/srv/mirror"}
	assert.Equal(t, "/srv/mirror/docs/a.txt", localTarget(conn, "/data/docs/a.txt"))
	assert.Equal(t, "/srv/mirror", localTarget(conn, "/data"))
}

func TestRenamedPath(t *testing.T) {
	ts := time.Date(2026, 8, 23, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, "/data/report (conflict 20260823-093000).pdf", renamedPath("/data/report.pdf", ts))
	assert.Equal(t, "/data/Makefile (conflict 20260823-093000)", renamedPath("/data/Makefile", ts))
}
