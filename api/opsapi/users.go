package opsapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/defensechain/defensechain/storage/model"
)

// registerUsers mounts the operator account management. Only admins may use
// it, except for /me.
func registerUsers(r fiber.Router, users model.UsersStore) {
	r.Get(
		"/me", func(c *fiber.Ctx) error {
			return c.JSON(c.Locals(localsOperator))
		},
	)

	g := r.Group("/users", requireRole(model.OperatorAdmin))

	g.Get(
		"/", func(c *fiber.Ctx) error {
			list, err := users.List()
			if err != nil {
				return writeError(c, err)
			}
			return c.JSON(list)
		},
	)

	type createReq struct {
		Username    string `json:"username"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
		Role        string `json:"role"`
	}
	g.Post(
		"/", func(c *fiber.Ctx) error {
			var req createReq
			if err := c.BodyParser(&req); err != nil {
				return badRequest(c, "invalid body")
			}
			nu := model.NewUser{
				Username:    req.Username,
				Password:    req.Password,
				DisplayName: req.DisplayName,
			}
			if req.Role != "" {
				role, err := model.ParseOperatorRole(req.Role)
				if err != nil {
					return writeError(c, err)
				}
				nu.Role = role
			}
			u, err := users.Create(nu)
			if err != nil {
				return writeError(c, err)
			}
			return c.Status(fiber.StatusCreated).JSON(u)
		},
	)

	type updateReq struct {
		DisplayName *string `json:"display_name"`
		Password    *string `json:"password"`
		Role        *string `json:"role"`
		Disabled    *bool   `json:"disabled"`
	}
	g.Put(
		"/:username", func(c *fiber.Ctx) error {
			var req updateReq
			if err := c.BodyParser(&req); err != nil {
				return badRequest(c, "invalid body")
			}
			update := model.UserUpdate{
				DisplayName: req.DisplayName,
				Password:    req.Password,
				Disabled:    req.Disabled,
			}
			if req.Role != nil {
				role, err := model.ParseOperatorRole(*req.Role)
				if err != nil {
					return writeError(c, err)
				}
				update.Role = &role
			}
			u, err := users.Update(c.Params("username"), update)
			if err != nil {
				return writeError(c, err)
			}
			return c.JSON(u)
		},
	)

	g.Get(
		"/:username", func(c *fiber.Ctx) error {
			u, err := users.Get(c.Params("username"))
			if err != nil {
				return writeError(c, err)
			}
			return c.JSON(u)
		},
	)

	g.Delete(
		"/:username", func(c *fiber.Ctx) error {
			if err := users.Delete(c.Params("username")); err != nil {
				return writeError(c, err)
			}
			return c.SendStatus(fiber.StatusNoContent)
		},
	)
}
