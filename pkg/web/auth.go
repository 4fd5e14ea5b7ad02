package web

import (
	"github.com/gofiber/fiber/v3"
)

// Identity headers set by the authenticating proxy in front of the API.
const (
	UserHeader    = "X-Ticketd-User"
	ProjectHeader = "X-Ticketd-Project"
)

const (
	userLocal    = "user_id"
	projectLocal = "project_id"
)

// RequireUser rejects requests missing the user identity header and stashes
// the identity in the request locals.
func RequireUser() fiber.Handler {
	return func(c fiber.Ctx) error {
		user := c.Get(UserHeader)
		if user == "" {
			return unauthorized(c, "missing "+UserHeader+" header")
		}

		c.Locals(userLocal, user)
		c.Locals(projectLocal, c.Get(ProjectHeader))

		return c.Next()
	}
}

func currentUser(c fiber.Ctx) string {
	user, _ := c.Locals(userLocal).(string)

	return user
}

func currentProject(c fiber.Ctx) string {
	project, _ := c.Locals(projectLocal).(string)

	return project
}
