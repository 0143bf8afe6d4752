package opsapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/defensechain/defensechain"
	"github.com/defensechain/defensechain/storage/model"
)

// registerFailedWork mounts the inspection and manual retry endpoints for
// upload jobs, outbox tasks and notifications
func registerFailedWork(r fiber.Router, wf *defensechain.Workflow) {
	backends := wf.Backends()

	viewer := requireRole(model.OperatorViewer)
	operator := requireRole(model.OperatorOperator)

	r.Get(
		"/failed", viewer, func(c *fiber.Ctx) error {
			failed, err := wf.Failed(c.UserContext())
			if err != nil {
				return writeError(c, err)
			}
			return c.JSON(failed)
		},
	)

	uploads := r.Group("/uploads")
	uploads.Get(
		"/", viewer, func(c *fiber.Ctx) error {
			var status model.UploadJobStatus
			if s := c.Query("status"); s != "" {
				var err error
				if status, err = model.ParseUploadJobStatus(s); err != nil {
					return badRequest(c, err.Error())
				}
			}
			jobs, err := wf.Uploads().Jobs().List(status)
			if err != nil {
				return writeError(c, err)
			}
			return c.JSON(jobs)
		},
	)
	uploads.Post(
		"/:id/retry", operator, func(c *fiber.Ctx) error {
			if err := wf.RetryUpload(c.UserContext(), c.Params("id")); err != nil {
				return writeError(c, err)
			}
			return c.SendStatus(fiber.StatusAccepted)
		},
	)

	tasks := r.Group("/tasks")
	tasks.Get(
		"/", viewer, func(c *fiber.Ctx) error {
			var status model.TaskStatus
			if s := c.Query("status"); s != "" {
				var err error
				if status, err = model.ParseTaskStatus(s); err != nil {
					return badRequest(c, err.Error())
				}
			}
			list, err := backends.Tasks.List(status)
			if err != nil {
				return writeError(c, err)
			}
			return c.JSON(list)
		},
	)
	tasks.Get(
		"/:id", viewer, func(c *fiber.Ctx) error {
			task, err := backends.Tasks.Get(c.Params("id"))
			if err != nil {
				return writeError(c, err)
			}
			return c.JSON(task)
		},
	)
	tasks.Post(
		"/:id/retry", operator, func(c *fiber.Ctx) error {
			if err := wf.RetryTask(c.UserContext(), c.Params("id")); err != nil {
				return writeError(c, err)
			}
			return c.SendStatus(fiber.StatusAccepted)
		},
	)

	notifications := r.Group("/notifications")
	notifications.Get(
		"/", viewer, func(c *fiber.Ctx) error {
			var status model.NotificationStatus
			if s := c.Query("status"); s != "" {
				var err error
				if status, err = model.ParseNotificationStatus(s); err != nil {
					return badRequest(c, err.Error())
				}
			}
			list, err := backends.Notifications.List(status)
			if err != nil {
				return writeError(c, err)
			}
			return c.JSON(list)
		},
	)
	notifications.Post(
		"/:id/retry", operator, func(c *fiber.Ctx) error {
			if err := wf.RetryNotification(c.UserContext(), c.Params("id")); err != nil {
				return writeError(c, err)
			}
			return c.SendStatus(fiber.StatusAccepted)
		},
	)
}
