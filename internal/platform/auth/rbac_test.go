package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func requestWithRoles(roles ...string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	ctx := WithActor(req.Context(), Actor{ID: "u1", Roles: roles})
	c.SetRequest(req.WithContext(ctx))
	return c
}

func TestRequireRole_Allows(t *testing.T) {
	mw := RequireRole(RoleDoctor, RoleJrDoctor)
	called := false
	h := mw(func(c echo.Context) error {
		called = true
		return nil
	})

	if err := h(requestWithRoles(RoleJrDoctor)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	mw := RequireRole(RoleDoctor)
	h := mw(func(c echo.Context) error { return nil })

	if err := h(requestWithRoles(RoleAdmin)); err != nil {
		t.Errorf("expected admin to pass, got %v", err)
	}
}

func TestRequireRole_Denies(t *testing.T) {
	mw := RequireRole(RoleDoctor)
	h := mw(func(c echo.Context) error { return nil })

	err := h(requestWithRoles(RoleClinic))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", httpErr.Code)
	}
}

func TestActorFromContext_Zero(t *testing.T) {
	c := requestWithRoles()
	actor := ActorFromContext(c.Request().Context())
	if actor.HasRole(RoleDoctor) {
		t.Error("expected no roles")
	}
	if actor.ID != "u1" {
		t.Errorf("expected u1, got %s", actor.ID)
	}
}
