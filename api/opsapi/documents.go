package opsapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/defensechain/defensechain"
	"github.com/defensechain/defensechain/storage/model"
)

// registerDocuments mounts read-only views of the document workflow and the
// anchoring controls
func registerDocuments(r fiber.Router, wf *defensechain.Workflow) {
	viewer := requireRole(model.OperatorViewer)
	operator := requireRole(model.OperatorOperator)

	r.Get(
		"/documents/:id", viewer, func(c *fiber.Ctx) error {
			overview, err := wf.DocumentOverview(c.UserContext(), c.Params("id"))
			if err != nil {
				return writeError(c, err)
			}
			return c.JSON(overview)
		},
	)
	r.Post(
		"/documents/:id/anchor", operator, func(c *fiber.Ctx) error {
			outcome, err := wf.AnchorDocument(c.UserContext(), c.Params("id"))
			if err != nil {
				return writeError(c, err)
			}
			return c.JSON(fiber.Map{"outcome": outcome})
		},
	)
	r.Get(
		"/defenses/:id/documents", viewer, func(c *fiber.Ctx) error {
			history, err := wf.VersionHistory(c.UserContext(), c.Params("id"))
			if err != nil {
				return writeError(c, err)
			}
			return c.JSON(history)
		},
	)
	r.Get(
		"/defenses/:id/documents/active", viewer, func(c *fiber.Ctx) error {
			doc, err := wf.ActiveDocument(c.UserContext(), c.Params("id"))
			if err != nil {
				return writeError(c, err)
			}
			return c.JSON(doc)
		},
	)
	r.Get(
		"/approvals/:id/events", viewer, func(c *fiber.Ctx) error {
			events, err := wf.ApprovalHistory(c.UserContext(), c.Params("id"))
			if err != nil {
				return writeError(c, err)
			}
			return c.JSON(events)
		},
	)
	r.Post(
		"/anchoring/reconcile", operator, func(c *fiber.Ctx) error {
			n, err := wf.ReconcileAnchoring(c.UserContext())
			if err != nil {
				return writeError(c, err)
			}
			return c.JSON(fiber.Map{"scheduled": n})
		},
	)
	r.Get(
		"/verify/:address", viewer, func(c *fiber.Ctx) error {
			v, err := wf.VerifyDocument(c.UserContext(), c.Query("user"), c.Params("address"))
			if err != nil {
				return writeError(c, err)
			}
			return c.JSON(v)
		},
	)
}
