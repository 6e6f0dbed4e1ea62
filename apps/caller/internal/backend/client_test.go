package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"DoorbellCall/config"
	"DoorbellCall/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var initLoggerOnce sync.Once

func initTestLogger() {
	initLoggerOnce.Do(func() {
		logger.ReplaceGlobal(zap.NewNop())
	})
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	initTestLogger()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := config.DefaultBackendConfig()
	cfg.BaseURL = srv.URL + "/api"
	cfg.RequestTimeout = 2 * time.Second
	return New(cfg, WithHTTPClient(srv.Client()), WithMetrics(NewMetrics(prometheus.NewRegistry())))
}

func TestStartSession(t *testing.T) {
	t.Run("nested_envelope", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/anonymous-sessions/iniciar", r.URL.Path)
			assert.Empty(t, r.Header.Get("Authorization"), "session start must not send a token")

			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "AA:BB:CC:DD:EE:FF", body["mac"])
			assert.NotEmpty(t, body["idProcess"])
			assert.Equal(t, body["idProcess"], r.Header.Get("X-Request-ID"))

			_, _ = io.WriteString(w, `{"status":200,"processResponse":{"sessionId":"s-1","token":"t-1","expiresIn":120}}`)
		}))
		c.SetTokenSource(func() string { return "stale" })

		grant, err := c.StartSession(context.Background(), "AA:BB:CC:DD:EE:FF")
		require.NoError(t, err)
		assert.Equal(t, "s-1", grant.SessionID)
		assert.Equal(t, "t-1", grant.Token)
		assert.Equal(t, 2*time.Minute, grant.ExpiresIn)
	})

	t.Run("top_level_fallback_without_expiry", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"sessionId":"s-2","token":"t-2"}`)
		}))
		grant, err := c.StartSession(context.Background(), "AA:BB:CC:DD:EE:FF")
		require.NoError(t, err)
		assert.Equal(t, "t-2", grant.Token)
		assert.Zero(t, grant.ExpiresIn)
	})

	t.Run("missing_token", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"processResponse":{"sessionId":"s-3"}}`)
		}))
		_, err := c.StartSession(context.Background(), "AA:BB:CC:DD:EE:FF")
		require.ErrorIs(t, err, ErrBadResponse)
	})

	t.Run("server_error", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"status":500,"code":30001,"message":"boom"}`)
		}))
		_, err := c.StartSession(context.Background(), "AA:BB:CC:DD:EE:FF")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 500, apiErr.Status)
		assert.EqualValues(t, 30001, apiErr.Code)
		assert.Equal(t, "boom", apiErr.Message)
	})
}

func TestUnreachable(t *testing.T) {
	initTestLogger()
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	cfg := config.DefaultBackendConfig()
	cfg.BaseURL = base
	cfg.RequestTimeout = time.Second
	c := New(cfg)

	_, err := c.StartSession(context.Background(), "AA:BB:CC:DD:EE:FF")
	require.ErrorIs(t, err, ErrConnectivity)
}

func TestBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	for i := 0; i < 5; i++ {
		_, err := c.GetDoorbell(context.Background(), "FRONT")
		require.Error(t, err)
	}
	_, err := c.GetDoorbell(context.Background(), "FRONT")
	require.ErrorIs(t, err, ErrConnectivity)
	assert.EqualValues(t, 5, hits.Load(), "open breaker must short-circuit")
}

func TestUnauthorizedHook(t *testing.T) {
	t.Run("auth_endpoint_triggers_logout", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusUnauthorized)
		}))
		c.SetTokenSource(func() string { return "tok" })
		var calls atomic.Int32
		c.OnUnauthorized(func(ctx context.Context) { calls.Add(1) })

		err := c.UpdateSessionPhoto(context.Background(), "s-1", "http://img")
		require.ErrorIs(t, err, ErrUnauthorized)
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("public_endpoint_does_not", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		var calls atomic.Int32
		c.OnUnauthorized(func(ctx context.Context) { calls.Add(1) })

		_, err := c.StartSession(context.Background(), "AA:BB:CC:DD:EE:FF")
		require.ErrorIs(t, err, ErrUnauthorized)
		assert.Zero(t, calls.Load())
	})
}

func TestCompleteAndUpdate(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch r.URL.Path {
		case "/api/anonymous-sessions":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "http://img/1", body["imgUrl"])
			assert.Equal(t, "s-1", body["sessionId"])
			assert.Equal(t, "AA:BB:CC:DD:EE:FF", body["mac"])
			_, _ = io.WriteString(w, `{"processResponse":{"sessionId":"s-1","token":"t-new"}}`)
		case "/api/anonymous-sessions/upload-mediafile/s-1":
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, "http://img/2", body["imgUrl"])
			assert.NotContains(t, body, "mac")
			_, _ = io.WriteString(w, `{"status":200}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	c.SetTokenSource(func() string { return "tok" })

	grant, err := c.CompleteSession(context.Background(), "AA:BB:CC:DD:EE:FF", "http://img/1", "s-1")
	require.NoError(t, err)
	assert.Equal(t, "t-new", grant.Token)

	require.NoError(t, c.UpdateSessionPhoto(context.Background(), "s-1", "http://img/2"))
}

func TestUploadMedia(t *testing.T) {
	t.Run("multipart_parts", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseMultipartForm(1<<20))
			file, hdr, err := r.FormFile("file")
			require.NoError(t, err)
			defer file.Close()
			data, _ := io.ReadAll(file)
			assert.Equal(t, "photo.jpg", hdr.Filename)
			assert.Equal(t, []byte("jpegdata"), data)

			var meta map[string]string
			require.NoError(t, json.Unmarshal([]byte(r.FormValue("request")), &meta))
			assert.NotEmpty(t, meta["idProcess"])

			_, _ = io.WriteString(w, `{"processResponse":{"downloadUrl":"http://files/1","file_id":"77"}}`)
		}))

		file, err := c.UploadMedia(context.Background(), "photo.jpg", []byte("jpegdata"))
		require.NoError(t, err)
		assert.Equal(t, "http://files/1", file.URL)
		assert.Equal(t, "77", file.FileID)
	})

	t.Run("no_url", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"processResponse":{"fileId":"1"}}`)
		}))
		_, err := c.UploadMedia(context.Background(), "photo.jpg", []byte("x"))
		require.ErrorIs(t, err, ErrBadResponse)
	})
}

func TestGetDoorbell(t *testing.T) {
	t.Run("members", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/public/doorbells/FRONT", r.URL.Path)
			_, _ = io.WriteString(w, `{"processResponse":{"memberStreamIds":["a","b"]}}`)
		}))
		bell, err := c.GetDoorbell(context.Background(), "FRONT")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, bell.MemberStreamIDs)
	})

	t.Run("missing_members", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"processResponse":{"code":"FRONT"}}`)
		}))
		bell, err := c.GetDoorbell(context.Background(), "FRONT")
		require.NoError(t, err)
		assert.NotNil(t, bell.MemberStreamIDs)
		assert.Empty(t, bell.MemberStreamIDs)
	})
}
