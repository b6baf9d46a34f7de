package main

import (
	"log"

	"care-support-backend/internal/api"
	"care-support-backend/internal/api/router"
	"care-support-backend/internal/assistant"
	"care-support-backend/internal/database"
	"care-support-backend/internal/env"
	"care-support-backend/internal/queue"
	supportservice "care-support-backend/internal/service/support"
	"care-support-backend/internal/websocket"
)

func main() {
	env.MustHaveRequired()

	// Two pools: endpoints run on requestQueue and block there until their
	// assistant job finishes, so assistant jobs need workers of their own.
	requestQueue := queue.NewRequestQueueManager(10, 10)
	assistantQueue := queue.NewRequestQueueManager(10, 10)

	db, err := database.NewDatabase()
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}

	backend := assistant.NewClient(assistant.Config{
		APIKey:      env.Get(env.OpenAIAPIKey),
		Model:       env.Get(env.OpenAIModel),
		VisionModel: env.Get(env.OpenAIVisionModel),
	})

	// One service for every surface, so the per-session guards cover
	// widget, console and websocket callers alike.
	service := supportservice.New(db, backend, assistantQueue)

	hub := websocket.NewHub()
	go hub.Run()
	wsHandler := websocket.NewHandler(hub)

	server := api.NewAPIServer(
		":80",
		requestQueue,
		wsHandler,
		router.UtilsRoutes("/api/widget/v1"),
		router.WidgetRoutes("/api/widget/v1", service),
		router.ConsoleRoutes("/api/console/v1", service),
		router.WebsocketRoutes("/ws/v1", service),
	)

	server.Run()
}
