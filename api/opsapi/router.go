// Package opsapi is the operational HTTP API: dependency health, inspection
// of work that ran out of attempts, manual retries and read-only views of the
// document workflow.
package opsapi

import (
	"embed"
	"net"
	neturl "net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/defensechain/defensechain"
)

//go:embed openapi.yaml
var assets embed.FS

// Options controls optional features of the ops API registration.
type Options struct {
	// UsersEnabled controls whether the operator management API is mounted.
	UsersEnabled bool
	// Port, when > 0, is used to adapt the serverURL to the ops API port for docs.
	Port int
	// Ping checks the database connection for the health endpoint
	Ping func() error
}

// Register mounts all ops API routes under the provided group.
func Register(r fiber.Router, serverURL string, wf *defensechain.Workflow, opts *Options) error {
	if opts == nil {
		opts = &Options{UsersEnabled: true}
	}
	if opts.Port > 0 {
		serverURL = adaptServerURLPort(serverURL, opts.Port)
	}

	openapiRaw, err := assets.ReadFile("openapi.yaml")
	if err != nil {
		return errors.Wrap(err, "opsapi: failed to read openapi.yaml")
	}
	openapiData := updateOpenAPIServers(openapiRaw, serverURL)
	r.Get(
		"/openapi.yaml", func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderContentType, "application/yaml")
			return c.Send(openapiData)
		},
	)

	users := wf.Backends().Users
	r.Use(authMiddleware(users))

	registerHealth(r, wf, opts.Ping)
	registerFailedWork(r, wf)
	registerDocuments(r, wf)
	if opts.UsersEnabled {
		registerUsers(r, users)
	}
	return nil
}

func updateOpenAPIServers(doc []byte, serverURL string) []byte {
	if len(serverURL) == 0 {
		return doc
	}
	var full map[string]any
	if err := yaml.Unmarshal(doc, &full); err != nil {
		return doc
	}
	full["servers"] = []map[string]any{
		{
			"url":         serverURL,
			"description": "This instance",
		},
	}
	res, err := yaml.Marshal(full)
	if err != nil {
		return doc
	}
	return res
}

// adaptServerURLPort updates or adds the port to the provided serverURL.
// If the input is invalid, it returns the original serverURL.
func adaptServerURLPort(serverURL string, port int) string {
	if len(serverURL) == 0 || port <= 0 {
		return serverURL
	}
	u, err := neturl.Parse(serverURL)
	if err != nil || u.Host == "" {
		return serverURL
	}
	name, _, err := net.SplitHostPort(u.Host)
	if err != nil {
		name = u.Host
	}
	u.Host = net.JoinHostPort(name, strconv.Itoa(port))
	return u.String()
}
