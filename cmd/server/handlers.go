package main

import (
	"github.com/taskforge/api/internal/config"
	"github.com/taskforge/api/internal/infra/http/handler"
	"github.com/taskforge/api/internal/infra/http/routes"
	"github.com/taskforge/api/internal/infra/postgres"
	"github.com/taskforge/api/internal/infra/redis"
	"github.com/taskforge/api/internal/infra/websocket"
	"github.com/taskforge/api/pkg/logger"
)

// HandlerDeps contains dependencies needed to create handlers.
type HandlerDeps struct {
	Config      *config.Config
	Log         *logger.Logger
	Version     string
	DB          *postgres.DB
	RedisClient *redis.Client
	TicketStore *redis.SocketTicketStore
	Services    *Services
}

// NewHandlers creates all HTTP handlers.
func NewHandlers(deps *HandlerDeps) routes.Handlers {
	log := deps.Log
	svc := deps.Services

	health := handler.NewHealthHandler(
		handler.WithVersion(deps.Version),
		handler.WithDependency("database", handler.PingerFunc(deps.DB.HealthCheck)),
		handler.WithDependency("redis", deps.RedisClient),
	)

	return routes.Handlers{
		Health:       health,
		Organization: handler.NewOrganizationHandler(svc.Organization, deps.TicketStore, log),
		Team:         handler.NewTeamHandler(svc.Team, log),
		Project:      handler.NewProjectHandler(svc.Project, log),
		Task:         handler.NewTaskHandler(svc.Task, log),
		Invitation:   handler.NewInvitationHandler(svc.Invitation, log),
		Audit:        handler.NewAuditHandler(svc.Audit, log),
		WebSocket:    websocket.NewHandler(svc.WebSocketHub, deps.TicketStore, deps.Config.Websocket, log),
	}
}
