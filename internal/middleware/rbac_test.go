package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/portal-notify-api/internal/access"
	"github.com/noah-isme/portal-notify-api/internal/service"
)

type profileRoles map[string]access.Role

func (p profileRoles) Resolve(_ context.Context, uid string) (access.Viewer, error) {
	role, ok := p[uid]
	if !ok {
		return access.Viewer{}, service.ErrViewerNotFound
	}
	return access.Viewer{UID: uid, Role: role}, nil
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, string) (access.Viewer, error) {
	return access.Viewer{}, errors.New("profile store down")
}

func newRBACApp(viewers ViewerResolver, uid, tokenRole string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if uid != "" {
			c.Locals("user_id", uid)
		}
		if tokenRole != "" {
			c.Locals("user_role", tokenRole)
		}
		return c.Next()
	})
	app.Use(RequireRole(viewers, access.RoleAdmin, access.RoleStaff))
	app.Get("/admin", func(c *fiber.Ctx) error {
		viewer, _ := c.Locals("viewer").(access.Viewer)
		return c.SendString(string(viewer.Role))
	})
	return app
}

func rbacStatus(t *testing.T, app *fiber.App) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.NoError(t, err)
	return resp.StatusCode
}

func TestRequireRoleAllowsAuthorizedRoles(t *testing.T) {
	viewers := profileRoles{"root": access.RoleAdmin, "ana": access.RoleStaff}

	require.Equal(t, fiber.StatusOK, rbacStatus(t, newRBACApp(viewers, "root", "")))
	require.Equal(t, fiber.StatusOK, rbacStatus(t, newRBACApp(viewers, "ana", "")))
}

func TestRequireRoleRejectsUnauthorizedRoles(t *testing.T) {
	viewers := profileRoles{"mia": access.RoleMember}

	require.Equal(t, fiber.StatusForbidden, rbacStatus(t, newRBACApp(viewers, "mia", "")))
	require.Equal(t, fiber.StatusForbidden, rbacStatus(t, newRBACApp(viewers, "ghost", "")))
	require.Equal(t, fiber.StatusUnauthorized, rbacStatus(t, newRBACApp(viewers, "", "")))
	require.Equal(t, fiber.StatusForbidden, rbacStatus(t, newRBACApp(nil, "mia", "")))
	require.Equal(t, fiber.StatusInternalServerError, rbacStatus(t, newRBACApp(failingResolver{}, "mia", "")))
}

func TestRequireRoleIgnoresTokenRoleClaim(t *testing.T) {
	viewers := profileRoles{"demoted": access.RoleMember, "root": access.RoleAdmin}

	require.Equal(t, fiber.StatusForbidden, rbacStatus(t, newRBACApp(viewers, "demoted", "admin")))
	require.Equal(t, fiber.StatusOK, rbacStatus(t, newRBACApp(viewers, "root", "member")))
}
