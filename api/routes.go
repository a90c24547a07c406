package api

import (
	"net/http"
	"net/http/pprof"

	"mirrorbox/handlers"

	"github.com/gorilla/mux"
)

// localhostOnlyMiddleware restricts access to localhost requests only
func localhostOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		// Strip port if present
		for i := len(host) - 1; i >= 0; i-- {
			if host[i] == ':' {
				host = host[:i]
				break
			}
		}
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			http.Error(w, "Debug endpoints only accessible from localhost", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Register mounts API endpoints onto the provided router.
func Register(
	r *mux.Router,
	catalogHandler *handlers.CatalogHandler,
	streamHandler *handlers.StreamHandler,
	statusHandler *handlers.StatusHandler,
) {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)

	api.HandleFunc("/search", catalogHandler.Search).Methods(http.MethodGet)
	api.HandleFunc("/search", catalogHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/subject", catalogHandler.Subject).Methods(http.MethodGet)
	api.HandleFunc("/subject", catalogHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/downloads", catalogHandler.Downloads).Methods(http.MethodGet)
	api.HandleFunc("/downloads", catalogHandler.Options).Methods(http.MethodOptions)

	api.HandleFunc("/stream", streamHandler.Serve).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/stream", streamHandler.Options).Methods(http.MethodOptions)

	api.HandleFunc("/status/mirrors", statusHandler.Mirrors).Methods(http.MethodGet)
	api.HandleFunc("/status/mirrors", statusHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/status/streams", statusHandler.Streams).Methods(http.MethodGet)
	api.HandleFunc("/status/streams", statusHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/version", statusHandler.Version).Methods(http.MethodGet)
	api.HandleFunc("/version", statusHandler.Options).Methods(http.MethodOptions)

	// Debug endpoints, localhost only
	pprofRouter := api.PathPrefix("/debug/pprof").Subrouter()
	pprofRouter.Use(localhostOnlyMiddleware)
	pprofRouter.HandleFunc("/", pprof.Index)
	pprofRouter.HandleFunc("/cmdline", pprof.Cmdline)
	pprofRouter.HandleFunc("/profile", pprof.Profile)
	pprofRouter.HandleFunc("/symbol", pprof.Symbol)
	pprofRouter.HandleFunc("/trace", pprof.Trace)
	pprofRouter.HandleFunc("/allocs", pprof.Handler("allocs").ServeHTTP)
	pprofRouter.HandleFunc("/goroutine", pprof.Handler("goroutine").ServeHTTP)
	pprofRouter.HandleFunc("/heap", pprof.Handler("heap").ServeHTTP)
}
