package app

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"campusride/internal/config"
	"campusride/internal/handler"
	"campusride/internal/middleware"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(io.Discard)

	return NewRouter(RouterDeps{
		RideHandler:        handler.NewRideHandler(nil, nil),
		RideRequestHandler: handler.NewRideRequestHandler(nil),
		UserHandler:        handler.NewUserHandler(nil),
		SettlementHandler:  handler.NewSettlementHandler(nil),
		Auth: config.AuthConfig{
			TrustedHeaders:   true,
			UniversityDomain: "cornell.edu",
			AdminUserIDs:     []string{"ops-1"},
		},
		Logger: log,
	})
}

func TestRouter_HealthIsPublic(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestRouter_APIRequiresAuthentication(t *testing.T) {
	router := newTestRouter()

	for _, path := range []string{"/v1/rides", "/v1/users/me"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, w.Code)
		}
	}
}

func TestRouter_SweepRequiresOperator(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/settlement/sweep", nil)
	req.Header.Set(middleware.HeaderUserID, "student-1")
	req.Header.Set(middleware.HeaderUserEmail, "student-1@cornell.edu")
	w := httptest.NewRecorder()

	newTestRouter().ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}
