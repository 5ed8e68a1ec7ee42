package main

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webcampics/webcampics/server/core/audit"
	"github.com/webcampics/webcampics/server/core/config"
	"github.com/webcampics/webcampics/server/core/images"
)

const (
	uploadToken = "upload-token"
	adminToken  = "admin-token"
)

type testServer struct {
	router *gin.Engine
	cfg    *config.Config
}

func setupServer(t *testing.T, mutate func(cfg *config.Config)) *testServer {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.ImagesDir = filepath.Join(dir, "images")
	cfg.CamerasFile = filepath.Join(dir, "cameras.json")
	cfg.AuditDir = filepath.Join(dir, "logs")
	cfg.AuthTokens = []string{uploadToken}
	cfg.AdminTokens = []string{adminToken}
	cfg.UploadMaxSizeMB = 1
	cfg.Locations = map[string]config.Location{"garden": {Title: "Garden", Description: "Back of the house"}}
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	svc, err := newServices(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	return &testServer{router: newRouter(cfg, nil, svc), cfg: cfg}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func modernUpload(deviceID string, body []byte, token string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader(body))
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("X-Device-ID", deviceID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func legacyUpload(t *testing.T, token, cam string, pic []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("auth", token))
	require.NoError(t, mw.WriteField("cam", cam))
	part, err := mw.CreateFormFile("pic", "snapshot.jpg")
	require.NoError(t, err)
	_, err = part.Write(pic)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload.php", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func adminRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+adminToken)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	srv := setupServer(t, nil)

	w := srv.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestUpload_Modern(t *testing.T) {
	srv := setupServer(t, nil)

	req := modernUpload("AA:BB:CC:DD:EE:FF", testJPEG(t, 64, 48), uploadToken)
	req.Header.Set("X-Timestamp", "2024-06-01 08:15:00")
	w := srv.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode(t, w)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", resp["device_id"])
	assert.Equal(t, "2024-06-01_08-15-00.jpg", resp["filename"])
	assert.Equal(t, "2024-06-01 08:15:00", resp["timestamp"])

	_, err := os.Stat(filepath.Join(srv.cfg.ImagesDir, "AA-BB-CC-DD-EE-FF", "2024-06-01_08-15-00.jpg"))
	assert.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(srv.cfg.AuditDir, audit.UploadLogName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Image received from AA:BB:CC:DD:EE:FF")
}

func TestUpload_Legacy(t *testing.T) {
	srv := setupServer(t, nil)

	w := srv.do(legacyUpload(t, uploadToken, "shed", testJPEG(t, 32, 32)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "shed", decode(t, w)["device_id"])

	w = srv.do(legacyUpload(t, "wrong", "shed", testJPEG(t, 32, 32)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpload_Rejections(t *testing.T) {
	srv := setupServer(t, nil)
	jpg := testJPEG(t, 16, 16)
	wordStamp := modernUpload("cam", jpg, uploadToken)
	wordStamp.Header.Set("X-Timestamp", "later")

	cases := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"no token", modernUpload("cam", jpg, ""), http.StatusUnauthorized},
		{"bad token", modernUpload("cam", jpg, "nope"), http.StatusUnauthorized},
		{"no device id", modernUpload("", jpg, uploadToken), http.StatusBadRequest},
		{"empty body", modernUpload("cam", nil, uploadToken), http.StatusBadRequest},
		{"not a jpeg", modernUpload("cam", []byte("GIF89a-not-really"), uploadToken), http.StatusBadRequest},
		{"too large", modernUpload("cam", append(jpg, make([]byte, 1<<20)...), uploadToken), http.StatusRequestEntityTooLarge},
		{"unparseable timestamp", wordStamp, http.StatusBadRequest},
		{"wrong method", httptest.NewRequest(http.MethodGet, "/upload", nil), http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := srv.do(tc.req)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
			assert.Contains(t, decode(t, w), "error")
		})
	}

	_, err := os.Stat(filepath.Join(srv.cfg.ImagesDir, "cam"))
	assert.True(t, os.IsNotExist(err), "rejected uploads never create a directory")
}

func TestCamerasAPI_OnlyEnabledCamerasArePublic(t *testing.T) {
	srv := setupServer(t, nil)

	w := srv.do(modernUpload("porch", testJPEG(t, 64, 48), uploadToken))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	filename := decode(t, w)["filename"].(string)

	// new cameras start hidden
	w = srv.do(httptest.NewRequest(http.MethodGet, "/api/cameras", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
	assert.Equal(t, http.StatusNotFound, srv.do(httptest.NewRequest(http.MethodGet, "/images/porch/"+filename, nil)).Code)
	assert.Equal(t, http.StatusOK, srv.do(adminRequest(http.MethodGet, "/api/admin/images/porch/"+filename, "")).Code)

	w = srv.do(adminRequest(http.MethodPut, "/api/admin/cameras/porch", `{"status":"enabled","location":"garden","title":"Porch"}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = srv.do(httptest.NewRequest(http.MethodGet, "/api/cameras", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var cams []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cams))
	require.Len(t, cams, 1)
	assert.Equal(t, "Porch", cams[0]["title"])
	latest := cams[0]["latest"].(map[string]any)
	assert.Equal(t, "/images/porch/"+filename, latest["url"])

	w = srv.do(httptest.NewRequest(http.MethodGet, latest["url"].(string), nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))

	w = srv.do(httptest.NewRequest(http.MethodGet, latest["thumb_url"].(string), nil))
	assert.Equal(t, http.StatusOK, w.Code)
	_, err := jpeg.Decode(bytes.NewReader(w.Body.Bytes()))
	assert.NoError(t, err)

	thumbName := images.ThumbnailName(filename)
	w = srv.do(httptest.NewRequest(http.MethodGet, "/images/porch/"+thumbName+"/thumb", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code, "thumbnails have no thumbnails")
	_, err = os.Stat(filepath.Join(srv.cfg.ImagesDir, "porch", images.ThumbnailName(thumbName)))
	assert.True(t, os.IsNotExist(err))

	w = srv.do(httptest.NewRequest(http.MethodGet, "/api/locations", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var locations []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &locations))
	require.Len(t, locations, 1)
	assert.Equal(t, "Garden", locations[0]["title"])

	w = srv.do(httptest.NewRequest(http.MethodGet, "/api/cameras/PORCH/images?days=3", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode(t, w)["images"], 1)

	assert.Equal(t, http.StatusBadRequest, srv.do(httptest.NewRequest(http.MethodGet, "/api/cameras/porch/images?days=zero", nil)).Code)
	assert.Equal(t, http.StatusNotFound, srv.do(httptest.NewRequest(http.MethodGet, "/api/cameras/nobody", nil)).Code)
	assert.Equal(t, http.StatusBadRequest, srv.do(httptest.NewRequest(http.MethodGet, "/images/porch/notes.txt", nil)).Code)
}

func TestAdminAPI(t *testing.T) {
	srv := setupServer(t, nil)

	assert.Equal(t, http.StatusUnauthorized, srv.do(httptest.NewRequest(http.MethodGet, "/api/admin/cameras", nil)).Code)

	w := srv.do(adminRequest(http.MethodPut, "/api/admin/cameras/yard", `{"status":"sideways","rotation":45}`))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, decode(t, w)["problems"], 2)

	w = srv.do(adminRequest(http.MethodPut, "/api/admin/cameras/yard", `{"rotation":180}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = srv.do(adminRequest(http.MethodGet, "/api/admin/cameras", ""))
	require.Equal(t, http.StatusOK, w.Code)
	var cams []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cams))
	require.Len(t, cams, 1)
	assert.EqualValues(t, 180, cams[0]["rotation"])

	w = srv.do(adminRequest(http.MethodDelete, "/api/admin/cameras/yard", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["removed"])

	w = srv.do(adminRequest(http.MethodDelete, "/api/admin/cameras/yard", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["removed"])

	w = srv.do(adminRequest(http.MethodPost, "/api/admin/purge", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["removed"])
}

func TestAdminAPI_DisabledWithoutTokens(t *testing.T) {
	srv := setupServer(t, func(cfg *config.Config) { cfg.AdminTokens = nil })

	w := srv.do(adminRequest(http.MethodGet, "/api/admin/cameras", ""))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpload_SQLiteRegistry(t *testing.T) {
	srv := setupServer(t, func(cfg *config.Config) {
		cfg.RegistryBackend = config.RegistryBackendSQLite
		cfg.DatabasePath = filepath.Join(filepath.Dir(cfg.CamerasFile), "webcampics.db")
	})

	w := srv.do(modernUpload("aa:bb:cc:dd:ee:ff", testJPEG(t, 16, 16), uploadToken))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = srv.do(modernUpload("AABBCCDDEEFF", testJPEG(t, 16, 16), uploadToken))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = srv.do(adminRequest(http.MethodGet, "/api/admin/cameras", ""))
	require.Equal(t, http.StatusOK, w.Code)
	var cams []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cams))
	assert.Len(t, cams, 1)
}
