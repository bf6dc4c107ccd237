package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("ftp://host/a.shp"))
	assert.True(t, IsRemote("HTTPS://host/a.geojson"))
	assert.True(t, IsRemote("http://host/a.csv"))
	assert.False(t, IsRemote("/data/a.shp"))
	assert.False(t, IsRemote("a.geojson"))
}

func TestForURL(t *testing.T) {
	f, err := ForURL("ftp://host/a.shp", Options{})
	require.NoError(t, err)
	assert.IsType(t, &FTPFetcher{}, f)

	f, err = ForURL("https://host/a.shp", Options{})
	require.NoError(t, err)
	assert.IsType(t, &HTTPFetcher{}, f)

	_, err = ForURL("s3://bucket/a.shp", Options{})
	assert.Error(t, err)
}

func TestFetch_LocalPassthrough(t *testing.T) {
	local, err := Fetch(context.Background(), "/data/points.geojson", Options{})
	require.NoError(t, err)
	assert.Equal(t, "/data/points.geojson", local.Path)
	local.Cleanup()
}

func TestFetch_LocalZIP(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"wells/wells.shp": "shp",
		"wells/wells.shx": "shx",
		"wells/wells.dbf": "dbf",
	})

	local, err := Fetch(context.Background(), zipPath, Options{TempDir: t.TempDir()})
	require.NoError(t, err)
	defer local.Cleanup()

	assert.Equal(t, "wells.shp", filepath.Base(local.Path))
	_, err = os.Stat(filepath.Join(filepath.Dir(local.Path), "wells.dbf"))
	assert.NoError(t, err)
}

func TestFetch_ZIPWithTwoLayers(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"a.geojson": "{}",
		"b.csv":     "x,y",
	})

	_, err := Fetch(context.Background(), zipPath, Options{TempDir: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "holds 2 layer files")
}

func TestFetch_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/export/points.csv" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("x,y\n1,2\n"))
	}))
	defer srv.Close()

	local, err := Fetch(context.Background(), srv.URL+"/export/points.csv", Options{
		Timeout: 5 * time.Second,
		TempDir: t.TempDir(),
	})
	require.NoError(t, err)
	defer local.Cleanup()

	assert.Equal(t, "points.csv", filepath.Base(local.Path))
	data, err := os.ReadFile(local.Path)
	require.NoError(t, err)
	assert.Equal(t, "x,y\n1,2\n", string(data))
}

func TestFetch_NoFileName(t *testing.T) {
	_, err := Fetch(context.Background(), "https://example.com/", Options{TempDir: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no file name")
}
