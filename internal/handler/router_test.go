package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/sma-print-api/internal/dto"
	"github.com/noah-isme/sma-print-api/internal/models"
	appErrors "github.com/noah-isme/sma-print-api/pkg/errors"
)

type tokenTable map[string]*models.JWTClaims

func (t tokenTable) ValidateToken(token string) (*models.JWTClaims, error) {
	claims, ok := t[token]
	if !ok {
		return nil, appErrors.ErrUnauthorized
	}
	return claims, nil
}

type authServiceMock struct{}

func (authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if req.Password != "secret" {
		return nil, appErrors.ErrInvalidCredentials
	}
	return &models.LoginResponse{AccessToken: "teacher-token"}, nil
}

type reservationServiceMock struct {
	createErr error
	principal *models.JWTClaims
}

func (m *reservationServiceMock) Create(ctx context.Context, userID string, req dto.CreateReservationRequest) (*models.Reservation, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &models.Reservation{ID: "r-1", UserID: userID, ResourceID: req.ResourceID, Slot: req.Slot, Status: models.ReservationActive}, nil
}

func (m *reservationServiceMock) Cancel(ctx context.Context, id string, principal *models.JWTClaims) (*models.Reservation, error) {
	m.principal = principal
	return &models.Reservation{ID: id, Status: models.ReservationCancelled}, nil
}

func (m *reservationServiceMock) List(ctx context.Context, query dto.ReservationQuery, principal *models.JWTClaims) ([]models.ReservationDetail, error) {
	return []models.ReservationDetail{}, nil
}

func (m *reservationServiceMock) Options(ctx context.Context) (*dto.ReservationOptions, error) {
	return &dto.ReservationOptions{Shifts: []models.Shift{}, Resources: []models.Resource{}}, nil
}

func (m *reservationServiceMock) ActiveResources(ctx context.Context) ([]models.Resource, error) {
	return []models.Resource{{ID: "res-1", Name: "Projetor", Active: true}}, nil
}

type teacherServiceMock struct{}

func (teacherServiceMock) List(ctx context.Context) ([]dto.TeacherSummary, error) {
	return []dto.TeacherSummary{}, nil
}

func (teacherServiceMock) Create(ctx context.Context, req dto.CreateTeacherRequest) (*dto.TeacherSummary, error) {
	return &dto.TeacherSummary{ID: "t-new", FullName: req.FullName, Email: req.Email}, nil
}

func (teacherServiceMock) UpdateLoad(ctx context.Context, id string, req dto.UpdateTeacherLoadRequest) (*models.TeacherLoad, error) {
	return &models.TeacherLoad{UserID: id, WeeklyLessons: req.WeeklyLessons}, nil
}

type resourceServiceMock struct{}

func (resourceServiceMock) List(ctx context.Context) ([]models.Resource, error) {
	return []models.Resource{}, nil
}

func (resourceServiceMock) Create(ctx context.Context, req dto.CreateResourceRequest) (*models.Resource, error) {
	return &models.Resource{ID: "res-2", Name: req.Name, Type: req.Type, Active: true}, nil
}

func (resourceServiceMock) SetActive(ctx context.Context, id string, active bool) (*models.Resource, error) {
	return &models.Resource{ID: id, Active: active}, nil
}

type routerFixture struct {
	engine       *gin.Engine
	reservations *reservationServiceMock
	audit        *observer.ObservedLogs
}

func newRouterFixture() *routerFixture {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	reservations := &reservationServiceMock{}

	engine := gin.New()
	RegisterRoutes(engine.Group("/api/v1"), Handlers{
		Auth:         NewAuthHandler(authServiceMock{}),
		PrintJobs:    NewPrintJobHandler(&printJobServiceMock{}, 0),
		Quotas:       NewQuotaHandler(&quotaServiceMock{}),
		Reservations: NewReservationHandler(reservations),
		Admin:        NewAdminHandler(teacherServiceMock{}, resourceServiceMock{}),
		AuditLog:     zap.New(core),
	}, tokenTable{
		"teacher-token": {UserID: "t1", Role: models.RoleTeacher},
		"admin-token":   {UserID: "a1", Role: models.RoleAdmin},
	})
	return &routerFixture{engine: engine, reservations: reservations, audit: logs}
}

func (f *routerFixture) do(method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func TestRouterLoginIsPublic(t *testing.T) {
	f := newRouterFixture()

	w := f.do(http.MethodPost, "/api/v1/auth/login", "", []byte(`{"email":"ana@escola.local","password":"secret"}`))
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/api/v1/auth/login", "", []byte(`{"email":"ana@escola.local","password":"nope"}`))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouterRequiresToken(t *testing.T) {
	f := newRouterFixture()

	for _, path := range []string{"/api/v1/quotas/me", "/api/v1/print-jobs/mine", "/api/v1/reservations", "/api/v1/admin/print-jobs/queue"} {
		w := f.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)

		w = f.do(http.MethodGet, path, "forged", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestRouterAdminRoutesRejectTeachers(t *testing.T) {
	f := newRouterFixture()

	w := f.do(http.MethodGet, "/api/v1/admin/print-jobs/queue", "teacher-token", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPost, "/api/v1/admin/print-jobs/j1/cancel", "teacher-token", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, f.audit.All())

	w = f.do(http.MethodGet, "/api/v1/admin/print-jobs/queue", "admin-token", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []models.PrintJob `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, models.PrintJobPrinting, body.Data[0].Status)
}

func TestRouterAuditsAdminMutations(t *testing.T) {
	f := newRouterFixture()

	w := f.do(http.MethodPut, "/api/v1/admin/resources/res-1/status", "admin-token", []byte(`{"active":false}`))
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/api/v1/admin/resources", "admin-token", nil)
	require.Equal(t, http.StatusOK, w.Code)

	entries := f.audit.FilterMessage("audit").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "resource.status.update", fields["action"])
	assert.Equal(t, "res-1", fields["resource_id"])
	assert.Equal(t, "a1", fields["user_id"])
}

func TestRouterReservationFlow(t *testing.T) {
	f := newRouterFixture()

	payload := []byte(`{"resourceId":"res-1","date":"2024-05-02","shift":"MATUTINO","slot":2,"className":"1A"}`)
	w := f.do(http.MethodPost, "/api/v1/reservations", "teacher-token", payload)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Data models.Reservation `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "t1", created.Data.UserID)
	assert.Equal(t, 2, created.Data.Slot)

	f.reservations.createErr = appErrors.Clone(appErrors.ErrConflict, "slot already reserved")
	w = f.do(http.MethodPost, "/api/v1/reservations", "teacher-token", payload)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodPost, "/api/v1/reservations", "teacher-token", []byte(`{`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/v1/reservations/r-1/cancel", "teacher-token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, f.reservations.principal)
	assert.Equal(t, "t1", f.reservations.principal.UserID)

	w = f.do(http.MethodGet, "/api/v1/reservations/options", "teacher-token", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.do(http.MethodGet, "/api/v1/reservations/resources", "teacher-token", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
