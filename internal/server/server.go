package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/sem2mqtt/internal/config"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
)

type Server struct {
	port        uint
	httpLog     bool
	rootContext *actor.RootContext
	masterActor *actor.PID
	hub         *readingsHub
	logger      *zap.Logger
}

func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *http.Server {
	NewServer := newServer(cfg, rootContext, masterActor, eventStream, logger)

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	server.RegisterOnShutdown(NewServer.hub.Close)

	return server
}

func newServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *Server {
	logger = logger.With(zap.String("component", "http"))
	return &Server{
		port:        cfg.Port,
		rootContext: rootContext,
		masterActor: masterActor,
		httpLog:     cfg.HttpLog,
		hub:         newReadingsHub(eventStream, logger),
		logger:      logger,
	}
}
