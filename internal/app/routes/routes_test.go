package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"smarthome-index-service/internal/domain/index"
	"smarthome-index-service/internal/domain/models"
	"smarthome-index-service/internal/domain/services"
	"smarthome-index-service/internal/domain/services/container"
	"smarthome-index-service/internal/error/code"
	"smarthome-index-service/internal/infrastructure/config"
	"smarthome-index-service/internal/infrastructure/database"
)

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router    *gin.Engine
	container *container.ServiceContainer
	token     string
	orgID     string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open("sqlite", ":memory:", logger.Silent)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db, "auto"))

	admin, err := database.EnsureDefaultAdmin(db, "acme", "admin123")
	require.NoError(t, err)

	cfg := &config.Config{JWTSecretKey: "test-secret", IndexCacheBackend: "memory", IndexFanoutLimit: 4}
	c := container.NewServiceContainer(db, cfg, nil, nil)
	s := &testServer{router: SetupRouter(c), container: c, orgID: admin.OrganizationID}

	w := s.do(t, http.MethodPost, "/api/auth/login", gin.H{"username": "admin", "password": "admin123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login services.LoginResult
	s.decode(t, w, &login)
	s.token = login.Token
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	return s.doAs(t, s.token, method, path, body)
}

func (s *testServer) doAs(t *testing.T, token, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, code.ErrSuccess, resp.Code, resp.Message)
	require.NoError(t, json.Unmarshal(resp.Data, out))
}

func (s *testServer) errorCode(t *testing.T, w *httptest.ResponseRecorder) int {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Code
}

func (s *testServer) createHome(t *testing.T, uniqueID string) *models.Home {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/homes", gin.H{"unique_id": uniqueID, "name": uniqueID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res services.HomeResult
	s.decode(t, w, &res)
	return res.Home
}

func (s *testServer) createDevice(t *testing.T, uniqueID, homeID string) *models.Device {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/devices", gin.H{"unique_id": uniqueID, "home_id": homeID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res services.DeviceResult
	s.decode(t, w, &res)
	return res.Device
}

func (s *testServer) homeDevices(t *testing.T, homeID string) services.HomeDevicesView {
	t.Helper()
	w := s.do(t, http.MethodGet, "/api/homes/"+homeID+"/devices", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var view services.HomeDevicesView
	s.decode(t, w, &view)
	return view
}

func TestPublicRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.doAs(t, "", http.MethodGet, "/api/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.doAs(t, "", http.MethodGet, "/api/health/status", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.doAs(t, "", http.MethodPost, "/api/auth/login", gin.H{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.doAs(t, "", http.MethodGet, "/api/homes", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDisableAndEnableHomeOverHTTP(t *testing.T) {
	s := newTestServer(t)
	home := s.createHome(t, "abc")
	d1 := s.createDevice(t, "dev-1", home.ID)
	d2 := s.createDevice(t, "dev-2", home.ID)

	view := s.homeDevices(t, home.ID)
	assert.ElementsMatch(t, []string{d1.ID, d2.ID}, view.DeviceIDs)
	assert.ElementsMatch(t, []string{"dev-1", "dev-2"}, view.DeviceUniqueIDs)

	w := s.do(t, http.MethodPost, "/api/homes/"+home.ID+"/disable", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var disabled services.HomeResult
	s.decode(t, w, &disabled)
	assert.True(t, disabled.Home.Disabled)
	assert.True(t, disabled.Index.Converged)

	view = s.homeDevices(t, home.ID)
	assert.True(t, view.Disabled)
	assert.Empty(t, view.DeviceIDs)
	assert.Empty(t, view.DeviceUniqueIDs)

	w = s.do(t, http.MethodPost, "/api/homes/"+home.ID+"/enable", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	view = s.homeDevices(t, home.ID)
	assert.ElementsMatch(t, []string{d1.ID, d2.ID}, view.DeviceIDs)
}

func TestBulkLinkAndUserHomesOverHTTP(t *testing.T) {
	s := newTestServer(t)
	h1 := s.createHome(t, "h1")
	h2 := s.createHome(t, "h2")

	w := s.do(t, http.MethodPost, "/api/users", gin.H{"name": "alice"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var user models.User
	s.decode(t, w, &user)

	w = s.do(t, http.MethodPost, "/api/links/bulk", gin.H{
		"home_ids":        []string{h1.ID, h2.ID},
		"attach_user_ids": []string{user.ID},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/homes/bulk/disable", gin.H{"home_ids": []string{h2.ID}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/users/"+user.ID+"/homes", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var view services.UserHomesView
	s.decode(t, w, &view)
	assert.Equal(t, []string{h1.ID}, view.HomeIDs)
	assert.ElementsMatch(t, []string{h1.ID, h2.ID}, view.LinkedHomeIDs)

	w = s.do(t, http.MethodDelete, "/api/users/"+user.ID+"/homes/"+h1.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var unlinked services.LinkResult
	s.decode(t, w, &unlinked)
	assert.True(t, unlinked.Changed)

	w = s.do(t, http.MethodPost, "/api/links/bulk", gin.H{"home_ids": []string{h1.ID}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeviceRoutesMapErrors(t *testing.T) {
	s := newTestServer(t)
	h1 := s.createHome(t, "h1")
	h2 := s.createHome(t, "h2")
	device := s.createDevice(t, "dev-1", h1.ID)

	w := s.do(t, http.MethodPost, "/api/devices", gin.H{"unique_id": "dev-1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, code.ErrDeviceAlreadyExist, s.errorCode(t, w))

	w = s.do(t, http.MethodGet, "/api/devices/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, code.ErrDeviceNotFound, s.errorCode(t, w))

	w = s.do(t, http.MethodPut, "/api/devices/"+device.ID+"/home", gin.H{"home_id": h2.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, s.homeDevices(t, h1.ID).DeviceIDs)
	assert.Equal(t, []string{device.ID}, s.homeDevices(t, h2.ID).DeviceIDs)

	w = s.do(t, http.MethodDelete, "/api/devices/"+device.ID+"/home", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, s.homeDevices(t, h2.ID).DeviceIDs)

	w = s.do(t, http.MethodDelete, "/api/devices/"+device.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/homes", gin.H{"unique_id": "h1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, code.ErrHomeAlreadyExist, s.errorCode(t, w))
}

func TestCrossOrganizationAccessDenied(t *testing.T) {
	s := newTestServer(t)
	home := s.createHome(t, "abc")

	other := models.Organization{Name: "other"}
	require.NoError(t, s.container.GetDB().Create(&other).Error)
	jwtService := s.container.GetService("jwt").(services.InterfaceJWTService)
	token, err := jwtService.GenerateToken("intruder", other.ID, "admin")
	require.NoError(t, err)

	w := s.doAs(t, token, http.MethodPost, "/api/homes/"+home.ID+"/disable", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, code.ErrAccessDenied, s.errorCode(t, w))

	w = s.doAs(t, token, http.MethodGet, "/api/homes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), home.ID)

	var stored models.Home
	require.NoError(t, s.container.GetDB().Where("id = ?", home.ID).First(&stored).Error)
	assert.False(t, stored.Disabled)
}

func TestMetricsEndpoint(t *testing.T) {
	require.NoError(t, index.RegisterMetrics(prometheus.DefaultRegisterer))
	s := newTestServer(t)
	home := s.createHome(t, "abc")
	s.createDevice(t, "dev-1", home.ID)

	w := s.doAs(t, "", http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "smarthome_index_cache_operations_total"))
}

func TestAdminRoutesScopedToOrganization(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/admins", gin.H{"username": "ops", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var created models.Admin
	s.decode(t, w, &created)
	assert.Equal(t, s.orgID, created.OrganizationID)
	assert.NotContains(t, w.Body.String(), "secret1")

	w = s.do(t, http.MethodPost, "/api/admins", gin.H{"username": "ops", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/api/admins", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), created.ID)

	w = s.do(t, http.MethodDelete, "/api/admins/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(t, http.MethodGet, "/api/admins/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
