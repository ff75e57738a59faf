package middleware

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/portal-notify-api/internal/access"
	"github.com/noah-isme/portal-notify-api/internal/service"
	"github.com/noah-isme/portal-notify-api/internal/utils"
)

// ViewerResolver resolves the authenticated uid into its portal viewer.
type ViewerResolver interface {
	Resolve(ctx context.Context, uid string) (access.Viewer, error)
}

// RequireRole ensures that the authenticated user's portal profile holds one of the allowed
// roles. Role claims carried by the token are ignored.
func RequireRole(viewers ViewerResolver, roles ...access.Role) fiber.Handler {
	allowed := make(map[access.Role]struct{}, len(roles))
	for _, role := range roles {
		if role != access.RoleUnknown {
			allowed[role] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		uid, _ := c.Locals("user_id").(string)
		if uid == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
		}
		if viewers == nil {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}

		ctx := c.UserContext()
		if ctx == nil {
			ctx = context.Background()
		}
		viewer, err := viewers.Resolve(ctx, uid)
		if err != nil {
			if errors.Is(err, service.ErrViewerNotFound) {
				return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
			}
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to resolve viewer")
		}

		if _, ok := allowed[viewer.Role]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		c.Locals("viewer", viewer)
		return c.Next()
	}
}
