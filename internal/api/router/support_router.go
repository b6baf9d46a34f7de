package router

import (
	"net/http"
	"strings"

	"care-support-backend/internal/api"
	"care-support-backend/internal/api/endpoints"
	"care-support-backend/internal/api/middleware"
	supportservice "care-support-backend/internal/service/support"
)

// All route groups share the one Service instance built in main, so the
// per-session guards serialize widget, console and websocket callers
// against each other, not just callers of the same surface.

// WidgetRoutes serves the embedded support widget: session lifecycle,
// conversation turns, and escalation. Widget routes carry no tokens; the
// widget identifies its user by id.
func WidgetRoutes(prefix string, service *supportservice.Service) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		supportEndpoints := endpoints.NewSupportEndpoints(service, s.Handler(), prefix)

		mux.HandleFunc(prefix+"/sessions", s.MakeHTTPHandleFunc(supportEndpoints.Sessions))
		mux.HandleFunc(prefix+"/sessions/", s.MakeHTTPHandleFunc(supportEndpoints.SessionActions))
	}
}

// ConsoleRoutes serves the handler console behind the handler JWT.
func ConsoleRoutes(prefix string, service *supportservice.Service) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		consoleEndpoints := endpoints.NewConsoleEndpoints(service, prefix)

		mux.HandleFunc(prefix+"/tickets", s.MakeHTTPHandleFunc(consoleEndpoints.Tickets, middleware.ValidateHandlerJWT))
		mux.HandleFunc(prefix+"/tickets/", s.MakeHTTPHandleFunc(consoleEndpoints.TicketActions, middleware.ValidateHandlerJWT))
		mux.HandleFunc(prefix+"/sessions/", s.MakeHTTPHandleFunc(consoleEndpoints.SessionMessages, middleware.ValidateHandlerJWT))
	}
}

// WebsocketRoutes serves the session event streams.
func WebsocketRoutes(prefix string, service *supportservice.Service) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		paths := endpoints.SupportPaths{
			WebsocketPrefix: strings.TrimRight(prefix, "/") + "/sessions/",
		}
		supportEndpoints := endpoints.NewSupportEndpointsWithPaths(service, s.Handler(), paths)

		mux.HandleFunc(prefix+"/sessions/", s.MakeHTTPHandleFunc(supportEndpoints.Websocket))
	}
}
