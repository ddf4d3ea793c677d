package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReportServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/report.csv", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("id,amt,date\n1001,25.50,2024-03-01\n"))
	})
	mux.HandleFunc("/signed", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok", Path: "/"})
		http.Redirect(w, r, "/needs-cookie", http.StatusFound)
	})
	mux.HandleFunc("/needs-cookie", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err != nil || c.Value != "ok" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("id,amt\n7,1\n"))
	})
	mux.HandleFunc("/expired", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/landing", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<!DOCTYPE html><html><body>Your link has expired</body></html>"))
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
	})
	mux.HandleFunc("/latin1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("id,name\n1001,Caf\xe9\n"))
	})
	mux.HandleFunc("/latin1-declared", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv; charset=iso-8859-1")
		_, _ = w.Write([]byte("id,name\n1002,Na\xefve\n"))
	})
	mux.HandleFunc("/x-csv", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-csv")
		_, _ = w.Write([]byte("id,amt\n9,3.00\n"))
	})
	mux.HandleFunc("/force-download", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/force-download")
		_, _ = w.Write([]byte("id,amt\n10,4.00\n"))
	})
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("id,amt\n11,5.00\n"))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte("id\n1\n"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDownloadSuccess(t *testing.T) {
	srv := newReportServer(t)
	text, err := NewDownloadService(5*time.Second).Download(context.Background(), srv.URL+"/report.csv")
	require.NoError(t, err)
	assert.Equal(t, "id,amt,date\n1001,25.50,2024-03-01\n", text)
}

func TestDownloadFollowsRedirectWithCookies(t *testing.T) {
	srv := newReportServer(t)
	text, err := NewDownloadService(5*time.Second).Download(context.Background(), srv.URL+"/signed")
	require.NoError(t, err)
	assert.Equal(t, "id,amt\n7,1\n", text)
}

func TestDownloadClassifiesStatus(t *testing.T) {
	srv := newReportServer(t)
	svc := NewDownloadService(5 * time.Second)

	tests := []struct {
		path   string
		status int
		msg    string
	}{
		{"/expired", http.StatusForbidden, "access forbidden (link may have expired)"},
		{"/missing", http.StatusNotFound, "file not found"},
		{"/boom", http.StatusBadGateway, "HTTP 502"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := svc.Download(context.Background(), srv.URL+tt.path)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDownloadFailed)

			var derr *DownloadError
			require.ErrorAs(t, err, &derr)
			assert.Equal(t, tt.status, derr.StatusCode)
			assert.Equal(t, tt.msg, derr.Error())
		})
	}
}

func TestDownloadRejectsNonReportContent(t *testing.T) {
	srv := newReportServer(t)
	svc := NewDownloadService(5 * time.Second)

	for _, path := range []string{"/landing", "/empty", "/json"} {
		_, err := svc.Download(context.Background(), srv.URL+path)
		assert.ErrorIs(t, err, ErrDownloadFailed, path)
	}
}

func TestDownloadAcceptsCSVVariants(t *testing.T) {
	srv := newReportServer(t)
	svc := NewDownloadService(5 * time.Second)

	tests := []struct {
		path string
		want string
	}{
		{"/latin1", "id,name\n1001,Café\n"},
		{"/latin1-declared", "id,name\n1002,Naïve\n"},
		{"/x-csv", "id,amt\n9,3.00\n"},
		{"/force-download", "id,amt\n10,4.00\n"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			text, err := svc.Download(context.Background(), srv.URL+tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, text)
		})
	}
}

func TestDownloadTimeout(t *testing.T) {
	srv := newReportServer(t)
	_, err := NewDownloadService(50*time.Millisecond).Download(context.Background(), srv.URL+"/slow")
	assert.ErrorIs(t, err, ErrDownloadFailed)
}

func TestDownloadInvalidURL(t *testing.T) {
	svc := NewDownloadService(time.Second)
	for _, u := range []string{"", "ftp://example.com/a.csv", "::not a url"} {
		_, err := svc.Download(context.Background(), u)
		assert.ErrorIs(t, err, ErrDownloadFailed, u)
	}
}
