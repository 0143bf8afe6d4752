package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/defensechain/defensechain"
	"github.com/defensechain/defensechain/api/opsapi"
	"github.com/defensechain/defensechain/cmd/defensechain/config"
	"github.com/defensechain/defensechain/internal/version"
)

const opsAPIPrefix = "/api/v1/ops"

// fiberServerConfig returns the fiber.Config that is used to init the http fiber.App
func fiberServerConfig() fiber.Config {
	return fiber.Config{
		ReadTimeout:    3 * time.Second,
		WriteTimeout:   20 * time.Second,
		IdleTimeout:    150 * time.Second,
		ReadBufferSize: 8192,
		ErrorHandler:   handleError,
		Network:        "tcp",
		AppName:        version.UserAgent(),
	}
}

func handleError(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	errorCode := "invalid_request"
	description := err.Error()
	if code >= fiber.StatusInternalServerError {
		log.WithError(err).WithField("path", ctx.Path()).Error("request failed")
		errorCode = "server_error"
		description = "internal server error"
	}
	return ctx.Status(code).JSON(
		fiber.Map{
			"error":             errorCode,
			"error_description": description,
		},
	)
}

type server struct {
	conf config.ServerConf
	app  *fiber.App
	ops  *fiber.App
	port int
}

func newApp(conf config.ServerConf) *fiber.App {
	fc := fiberServerConfig()
	if len(conf.TrustedProxies) > 0 {
		fc.TrustedProxies = conf.TrustedProxies
		fc.EnableTrustedProxyCheck = true
	}
	fc.ProxyHeader = conf.ForwardedIPHeader
	app := fiber.New(fc)
	app.Use(recover.New())
	app.Use(compress.New())
	app.Use(logger.New())
	app.Use(requestid.New())
	return app
}

func newServer(c config.Config, wf *defensechain.Workflow, ping func() error) (*server, error) {
	s := &server{
		conf: c.Server,
		app:  newApp(c.Server),
	}
	s.app.Get(
		"/version", func(ctx *fiber.Ctx) error {
			return ctx.JSON(fiber.Map{"version": version.VERSION})
		},
	)
	if !c.API.Ops.Enabled {
		return s, nil
	}
	router := fiber.Router(s.app)
	if c.API.Ops.Port > 0 && c.API.Ops.Port != c.Server.Port {
		s.ops = newApp(c.Server)
		s.port = c.API.Ops.Port
		router = s.ops
	}
	scheme := "http"
	if c.Server.TLS.Enabled {
		scheme = "https"
	}
	serverURL := fmt.Sprintf("%s://localhost:%d%s", scheme, c.Server.Port, opsAPIPrefix)
	err := opsapi.Register(
		router.Group(opsAPIPrefix), serverURL, wf, &opsapi.Options{
			UsersEnabled: c.API.Ops.UsersEnabled,
			Port:         s.port,
			Ping:         ping,
		},
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *server) addr(port int) string {
	return fmt.Sprintf("%s:%d", s.conf.IPListen, port)
}

// Start starts the http servers; it blocks until the main server stops
func (s *server) Start() {
	if s.ops != nil {
		go func() {
			log.WithField("port", s.port).Info("starting ops api server")
			if err := s.ops.Listen(s.addr(s.port)); err != nil {
				log.WithError(err).Error("ops api server stopped")
			}
		}()
	}
	conf := s.conf
	if !conf.TLS.Enabled {
		log.WithField("port", conf.Port).Info("TLS is disabled starting http server")
		if err := s.app.Listen(s.addr(conf.Port)); err != nil {
			log.WithError(err).Fatal()
		}
		return
	}
	if conf.TLS.RedirectHTTP {
		httpServer := fiber.New(fiberServerConfig())
		httpServer.All(
			"*", func(ctx *fiber.Ctx) error {
				//goland:noinspection HttpUrlsUsage
				return ctx.Redirect(
					strings.Replace(ctx.Request().URI().String(), "http://", "https://", 1),
					fiber.StatusPermanentRedirect,
				)
			},
		)
		log.Info("TLS and http redirect enabled, starting redirect server on port 80")
		go func() {
			log.WithError(httpServer.Listen(s.addr(80))).Error("redirect server stopped")
		}()
	}
	log.WithField("port", conf.Port).Info("TLS enabled, starting https server")
	if err := s.app.ListenTLS(s.addr(conf.Port), conf.TLS.Cert, conf.TLS.Key); err != nil {
		log.WithError(err).Fatal()
	}
}

// Shutdown gracefully stops all servers
func (s *server) Shutdown() error {
	if s.ops != nil {
		if err := s.ops.Shutdown(); err != nil {
			return err
		}
	}
	return s.app.Shutdown()
}
