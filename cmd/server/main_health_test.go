// Package main provides tests for the health check endpoints
package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stuartshay/gridplan/internal/api"
	"github.com/stuartshay/gridplan/internal/planner"
	"github.com/stuartshay/gridplan/internal/plans"
)

func TestHealthzEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	planService := plans.NewService(planner.NewService(), plans.Config{Workers: 1, Capacity: 1})
	defer func() { _ = planService.Shutdown(time.Second) }()

	handler := api.NewServer(api.Config{ServiceName: "gridplan"}, planService, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	expected := `{"service":"gridplan","status":"healthy"}`
	if rec.Body.String() != expected {
		t.Errorf("Expected body %s, got %s", expected, rec.Body.String())
	}

	contentType := rec.Header().Get("Content-Type")
	if contentType != "application/json; charset=utf-8" {
		t.Errorf("Expected Content-Type application/json; charset=utf-8, got %s", contentType)
	}
}

func TestReadyzWithoutStore(t *testing.T) {
	gin.SetMode(gin.TestMode)

	planService := plans.NewService(planner.NewService(), plans.Config{Workers: 1, Capacity: 1})
	defer func() { _ = planService.Shutdown(time.Second) }()

	handler := api.NewServer(api.Config{ServiceName: "gridplan"}, planService, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
}
