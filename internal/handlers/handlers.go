package handlers

import (
	"time"

	"github.com/arogya-labs/teleconsult/internal/appointments"
	"github.com/arogya-labs/teleconsult/internal/config"
	"github.com/arogya-labs/teleconsult/internal/push"
	"github.com/arogya-labs/teleconsult/internal/signaling"
	"github.com/arogya-labs/teleconsult/internal/turn"

	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

type Handlers struct {
	config     *config.Config
	db         *gorm.DB
	appts      *appointments.Service
	hub        *signaling.Hub
	push       *push.Service
	turnServer *turn.Server

	wsUpgrader websocket.Upgrader
	nowFn      func() time.Time
}

func New(
	cfg *config.Config,
	db *gorm.DB,
	appts *appointments.Service,
	hub *signaling.Hub,
	pushService *push.Service,
	turnServer *turn.Server,
	wsUpgrader websocket.Upgrader,
) *Handlers {
	return &Handlers{
		config:     cfg,
		db:         db,
		appts:      appts,
		hub:        hub,
		push:       pushService,
		turnServer: turnServer,
		wsUpgrader: wsUpgrader,
		nowFn:      time.Now,
	}
}
