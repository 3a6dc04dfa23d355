package form

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	srv        *httptest.Server
	transforms atomic.Int64
	lastStyle  atomic.Value
	fail       atomic.Bool
}

func newFakeBackend(t *testing.T, styles ...string) *fakeBackend {
	t.Helper()
	b := &fakeBackend{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /model_list", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"all_models": styles})
	})
	mux.HandleFunc("POST /transform/{style}", func(w http.ResponseWriter, r *http.Request) {
		b.transforms.Add(1)
		b.lastStyle.Store(r.PathValue("style"))
		if b.fail.Load() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"message":"unknown style: \"x\"","type":"error"}}`))
			return
		}
		f, _, err := r.FormFile("image_data")
		if err != nil {
			http.Error(w, "missing image_data", http.StatusBadRequest)
			return
		}
		defer f.Close()
		io.Copy(io.Discard, f)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("JPEG-BYTES"))
	})
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func submit(t *testing.T, style string, image []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if style != "" {
		require.NoError(t, mw.WriteField("style", style))
	}
	if image != nil {
		fw, err := mw.CreateFormFile("image", "photo.png")
		require.NoError(t, err)
		fw.Write(image)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// ─── Client ─────────────────────────────────────────────────────────────────

func TestClient_ListStyles(t *testing.T) {
	b := newFakeBackend(t, "mosaic", "candy")

	styles, err := NewClient(b.srv.URL + "/").ListStyles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"mosaic", "candy"}, styles)
}

func TestClient_Transform(t *testing.T) {
	b := newFakeBackend(t, "mosaic")

	out, err := NewClient(b.srv.URL).Transform(context.Background(), "mosaic", "a.jpg", []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, []byte("JPEG-BYTES"), out)
	assert.Equal(t, "mosaic", b.lastStyle.Load())
}

func TestClient_TransformErrorMessage(t *testing.T) {
	b := newFakeBackend(t, "mosaic")
	b.fail.Store(true)

	_, err := NewClient(b.srv.URL).Transform(context.Background(), "x", "a.jpg", []byte("img"))
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "unknown style")
}

func TestClient_Unreachable(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:1").ListStyles(context.Background())
	assert.Error(t, err)
}

// ─── Server ─────────────────────────────────────────────────────────────────

func TestNewServer_NoBackend(t *testing.T) {
	_, err := NewServer(context.Background(), NewClient("http://127.0.0.1:1"), nil)
	assert.Error(t, err)
}

func TestNewServer_NoStyles(t *testing.T) {
	b := newFakeBackend(t)

	_, err := NewServer(context.Background(), NewClient(b.srv.URL), nil)
	assert.Error(t, err)
}

func TestServer_Index(t *testing.T) {
	b := newFakeBackend(t, "mosaic", "candy")
	s, err := NewServer(context.Background(), NewClient(b.srv.URL), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"mosaic", "candy"}, s.Styles())

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	html := w.Body.String()
	assert.Contains(t, html, `value="mosaic" checked`)
	assert.Contains(t, html, `value="candy"`)
	assert.NotContains(t, html, `value="candy" checked`)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "img-src 'self' data:")
}

func TestServer_Submit(t *testing.T) {
	b := newFakeBackend(t, "mosaic", "candy")
	s, err := NewServer(context.Background(), NewClient(b.srv.URL), nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, submit(t, "candy", pngBytes(t)))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "data:image/jpeg;base64,SlBFRy1CWVRFUw==")
	assert.Contains(t, w.Body.String(), `value="candy" checked`)
	assert.EqualValues(t, 1, b.transforms.Load())
	assert.Equal(t, "candy", b.lastStyle.Load())
}

func TestServer_SubmitWithoutImage(t *testing.T) {
	b := newFakeBackend(t, "mosaic")
	s, err := NewServer(context.Background(), NewClient(b.srv.URL), nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, submit(t, "mosaic", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, b.transforms.Load())
}

func TestServer_SubmitTooLarge(t *testing.T) {
	b := newFakeBackend(t, "mosaic")
	s, err := NewServer(context.Background(), NewClient(b.srv.URL), nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, submit(t, "mosaic", make([]byte, maxUploadBytes+1024)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "too large")
	assert.NotContains(t, w.Body.String(), "Please choose an image.")
	assert.Zero(t, b.transforms.Load())
}

func TestServer_SubmitNotAnImage(t *testing.T) {
	b := newFakeBackend(t, "mosaic")
	s, err := NewServer(context.Background(), NewClient(b.srv.URL), nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, submit(t, "mosaic", []byte("plain text")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "not a supported image")
	assert.Zero(t, b.transforms.Load())
}

func TestServer_BackendFailure(t *testing.T) {
	b := newFakeBackend(t, "mosaic")
	s, err := NewServer(context.Background(), NewClient(b.srv.URL), nil)
	require.NoError(t, err)
	b.fail.Store(true)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, submit(t, "mosaic", pngBytes(t)))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "Style transfer failed"))
	assert.EqualValues(t, 1, b.transforms.Load(), "no retries")
}

func TestServer_UnknownStyleFallsBackToFirst(t *testing.T) {
	b := newFakeBackend(t, "mosaic", "candy")
	s, err := NewServer(context.Background(), NewClient(b.srv.URL), nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, submit(t, "starry-night", pngBytes(t)))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mosaic", b.lastStyle.Load())
}
