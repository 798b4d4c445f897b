package crossboot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gnu/gmp/gmp-6.3.0.tar.xz" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("tarball"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "downloads", "gmp-6.3.0.tar.xz")
	url := srv.URL + "/gnu/gmp/gmp-6.3.0.tar.xz"
	require.NoError(t, downloadFile(context.Background(), url, url, dest, downloadOptions{Quiet: true}))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "tarball", string(data))
	assert.NoFileExists(t, dest+".part")
	assert.FileExists(t, dest+".lock")

	missing := filepath.Join(t.TempDir(), "nope.tar.xz")
	err = downloadFile(context.Background(), srv.URL+"/nope", srv.URL+"/nope", missing, downloadOptions{Quiet: true})
	require.Error(t, err)
	assert.NoFileExists(t, missing)
}

func TestFetchNativeRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := fetchNative(context.Background(), srv.URL, filepath.Join(t.TempDir(), "x"), downloadOptions{Quiet: true})
	assert.ErrorContains(t, err, "403")
}

func TestR2ClientNeedsCredentials(t *testing.T) {
	_, err := NewR2Client(context.Background(), map[string]string{"R2_BUCKET_NAME": "tools"})
	assert.ErrorIs(t, err, errNoR2)

	c, err := NewR2Client(context.Background(), map[string]string{
		"R2_ACCOUNT_ID":        "acct",
		"R2_ACCESS_KEY_ID":     "key",
		"R2_SECRET_ACCESS_KEY": "secret",
		"R2_BUCKET_NAME":       "tools",
	})
	require.NoError(t, err)
	assert.Equal(t, "tools", c.BucketName)
}
