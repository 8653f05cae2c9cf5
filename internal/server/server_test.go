package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/mudra/internal/filter"
	"github.com/ayusman/mudra/internal/session"
)

func TestServer_Health(t *testing.T) {
	reg := session.NewRegistry(filter.DefaultConfig(), nil)
	s := New(Config{Registry: reg})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		reg.Open("127.0.0.1:5000")

		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}

		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}

		if response["sessions"] != float64(1) {
			t.Errorf("expected 1 session, got %v", response["sessions"])
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_NotFound(t *testing.T) {
	s := New(Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/nonexistent", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestServer_RootWithoutStaticDir(t *testing.T) {
	s := New(Config{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestServer_StaticFiles(t *testing.T) {
	tmpDir := t.TempDir()

	testContent := "<html><body>Test</body></html>"
	testFile := filepath.Join(tmpDir, "index.html")
	if err := os.WriteFile(testFile, []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	s := New(Config{StaticDir: tmpDir})

	t.Run("serves static files", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		// FileServer redirects /index.html to /
		if rec.Code != http.StatusOK && rec.Code != http.StatusMovedPermanently {
			t.Errorf("expected status 200 or 301, got %d", rec.Code)
		}
	})

	t.Run("serves root path", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		if rec.Body.String() != testContent {
			t.Errorf("expected body %q, got %q", testContent, rec.Body.String())
		}
	})
}

func TestServer_Defaults(t *testing.T) {
	s := New(Config{})

	if s.Registry() == nil {
		t.Fatal("expected default registry")
	}
	if s.config.PingTimeout != DefaultPingTimeout {
		t.Errorf("PingTimeout = %v, want %v", s.config.PingTimeout, DefaultPingTimeout)
	}
	if _, err := s.config.OpenCamera(); err == nil {
		t.Error("expected default camera factory to fail")
	}
	if _, err := s.config.OpenDetector(); err == nil {
		t.Error("expected default detector factory to fail")
	}
}

func TestHandleControl(t *testing.T) {
	s := New(Config{})
	h := &TrackingHandler{srv: s}
	sess := s.Registry().Open("127.0.0.1:6000")

	tests := []struct {
		name string
		msg  controlMessage
		want bool
	}{
		{"disable", controlMessage{Type: controlSetFilter, Value: json.RawMessage(`false`)}, false},
		{"non-boolean ignored", controlMessage{Type: controlSetFilter, Value: json.RawMessage(`"yes"`)}, false},
		{"enable", controlMessage{Type: controlSetFilter, Value: json.RawMessage(`true`)}, true},
		{"unknown type ignored", controlMessage{Type: "RESET", Value: json.RawMessage(`false`)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.handleControl(sess, tt.msg, s.logger)
			if got := sess.Pipeline.Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}
