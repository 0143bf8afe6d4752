package opsapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/defensechain/defensechain"
)

type dependencyHealth struct {
	Status string `json:"status"`
	PeerID  string `json:"peer_id,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type healthResponse struct {
	Status       string                      `json:"status"`
	Dependencies map[string]dependencyHealth `json:"dependencies"`
}

// registerHealth reports the state of the database, the storage network and
// the ledger gateway. Only an unreachable database makes the service
// unhealthy; the other dependencies are worked around by the queues.
func registerHealth(r fiber.Router, wf *defensechain.Workflow, ping func() error) {
	r.Get(
		"/health", func(c *fiber.Ctx) error {
			ctx := c.UserContext()
			res := healthResponse{
				Status:       "ok",
				Dependencies: make(map[string]dependencyHealth, 3),
			}
			status := fiber.StatusOK
			if ping != nil {
				if err := ping(); err != nil {
					res.Dependencies["database"] = dependencyHealth{Status: "unavailable", Error: err.Error()}
					res.Status = "unavailable"
					status = fiber.StatusServiceUnavailable
				} else {
					res.Dependencies["database"] = dependencyHealth{Status: "ok"}
				}
			}
			if h, err := wf.Uploads().HealthCheck(ctx); err != nil {
				res.Dependencies["storage_network"] = dependencyHealth{Status: "unavailable", Error: err.Error()}
				if res.Status == "ok" {
					res.Status = "degraded"
				}
			} else {
				res.Dependencies["storage_network"] = dependencyHealth{Status: h.Status, PeerID: h.PeerID}
			}
			if h, err := wf.Ledger().HealthCheck(ctx); err != nil {
				res.Dependencies["ledger"] = dependencyHealth{Status: "unavailable", Error: err.Error()}
				if res.Status == "ok" {
					res.Status = "degraded"
				}
			} else {
				res.Dependencies["ledger"] = dependencyHealth{
					Status:  h.Status,
					Message: h.Message,
				}
			}
			return c.Status(status).JSON(res)
		},
	)
}
