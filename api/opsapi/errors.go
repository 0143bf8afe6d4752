package opsapi

import (
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/defensechain/defensechain/storage/model"
)

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// writeError maps err to a status code through its model.Kind
func writeError(c *fiber.Ctx, err error) error {
	kind := model.KindOf(err)
	body := errorBody{
		Error:       kind.String(),
		Description: err.Error(),
	}
	if kind == model.KindInternal {
		log.WithError(err).WithField("path", c.Path()).Error("ops api request failed")
		body.Description = "internal error"
	}
	return c.Status(kind.HTTPStatus()).JSON(body)
}

func badRequest(c *fiber.Ctx, description string) error {
	return c.Status(fiber.StatusBadRequest).JSON(
		errorBody{
			Error:       model.KindValidation.String(),
			Description: description,
		},
	)
}
