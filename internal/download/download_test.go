package download

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestClient() *Client {
	return NewClient(5 * time.Second).WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGet(t *testing.T) {
	payload := []byte("orbit state vectors")
	sum := md5.Sum(payload)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write(payload)
		case "/html":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte("<html>login</html>"))
		case "/boom":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	tests := []struct {
		name    string
		path    string
		md5     string
		wantErr error
		anyErr  bool
	}{
		{name: "plain", path: "/ok"},
		{name: "verified", path: "/ok", md5: hex.EncodeToString(sum[:])},
		{name: "checksum mismatch", path: "/ok", md5: "00000000000000000000000000000000", anyErr: true},
		{name: "not found", path: "/missing", wantErr: ErrNotFound},
		{name: "login page", path: "/html", anyErr: true},
		{name: "server error", path: "/boom", anyErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "nested", "file.EOF")
			n, err := newTestClient().Get(context.Background(), Request{URL: server.URL + tt.path, Dest: dest, MD5: tt.md5})

			if tt.wantErr != nil || tt.anyErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
					t.Error("destination must not exist after a failed download")
				}
				if _, statErr := os.Stat(dest + PartSuffix); !os.IsNotExist(statErr) {
					t.Error("partial file must be removed after a failed download")
				}
				return
			}

			if err != nil {
				t.Fatalf("Get() error: %v", err)
			}
			if n != int64(len(payload)) {
				t.Errorf("Get() = %d bytes, want %d", n, len(payload))
			}
			data, _ := os.ReadFile(dest)
			if string(data) != string(payload) {
				t.Errorf("file contents = %q", data)
			}
		})
	}
}

func TestGetValidation(t *testing.T) {
	c := newTestClient()
	if _, err := c.Get(context.Background(), Request{Dest: "x"}); err == nil {
		t.Error("expected error for empty URL")
	}
	if _, err := c.Get(context.Background(), Request{URL: "http://example.invalid"}); err == nil {
		t.Error("expected error for empty destination")
	}
}

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/index" {
			w.Write([]byte("0123456789"))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	body, err := newTestClient().Fetch(context.Background(), server.URL+"/index", 4)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if string(body) != "0123" {
		t.Errorf("Fetch() = %q, want limited body", body)
	}

	if _, err := newTestClient().Fetch(context.Background(), server.URL+"/nope", 4); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHostRequiresAuth(t *testing.T) {
	tests := map[string]bool{
		"datapool.asf.alaska.edu":  true,
		"asf.alaska.edu":           true,
		"urs.earthdata.nasa.gov":   true,
		"step.esa.int":             false,
		"evilasf.alaska.edu.x.com": false,
	}
	for host, want := range tests {
		if got := hostRequiresAuth(host); got != want {
			t.Errorf("hostRequiresAuth(%q) = %v, want %v", host, got, want)
		}
	}
}

func TestGetSendsTokenOnlyToAuthHosts(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte("x"))
	}))
	defer server.Close()

	c := newTestClient().WithToken("secret")
	if _, err := c.Get(context.Background(), Request{URL: server.URL + "/f", Dest: filepath.Join(t.TempDir(), "f")}); err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if auth != "" {
		t.Errorf("token leaked to non-auth host: %q", auth)
	}
}
