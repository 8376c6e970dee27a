package main

import (
	"flag"
	"mdcollab/handlers/api/documents"
	"mdcollab/handlers/auth"
	"mdcollab/handlers/websocket"
	authMiddleware "mdcollab/middleware"
	"mdcollab/stores"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

var startedAt = time.Now()

func setupRouter(store stores.Store, coordinator *websocket.Coordinator) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "X-CSRF-Token", "Origin", "Host", "Connection", "Accept-Encoding", "Accept-Language", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", auth.HandleRegister(store))
		r.Post("/auth/login", auth.HandleLogin(store))
		r.Get("/health", handleHealth)
		r.Get("/sessions", handleSessions(coordinator))

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.AuthJWT)
			r.Route("/documents", func(r chi.Router) {
				r.Get("/", documents.HandleList(store))
				r.Post("/", documents.HandleCreate(store))
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", documents.HandleGet(store))
					r.Put("/", documents.HandleUpdate(store))
					r.Delete("/", documents.HandleDelete(store))
					r.Get("/versions", documents.HandleVersions(store))
				})
			})
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"success": true,
		"message": "Server is healthy",
		"data": map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
			"uptime":    time.Since(startedAt).Seconds(),
		},
	})
}

// handleSessions exposes the live room membership snapshot.
func handleSessions(coordinator *websocket.Coordinator) http.HandlerFunc {
	type session struct {
		DocumentID string   `json:"documentId"`
		Users      []string `json:"users"`
		UserCount  int      `json:"userCount"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := coordinator.ActiveSessions()
		sessions := make([]session, 0, len(snapshot))
		for documentID, users := range snapshot {
			sessions = append(sessions, session{
				DocumentID: documentID,
				Users:      users,
				UserCount:  len(users),
			})
		}
		sort.Slice(sessions, func(i, j int) bool {
			return sessions[i].DocumentID < sessions[j].DocumentID
		})
		render.JSON(w, r, sessions)
	}
}

func waitForShutdown(ioo *socketio.Server) {
	exit := make(chan struct{})
	signalC := make(chan os.Signal, 1)

	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range signalC {
			switch s {
			case os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				close(exit)
				return
			}
		}
	}()

	<-exit
	logrus.Info("Shutting down...")
	ioo.Close(nil)
	os.Exit(0)
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	listenAddress := flag.String("listen", ":3001", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	auth.InitAuth()
	store := stores.GetStore()
	coordinator := websocket.NewCoordinator(store)

	r := setupRouter(store, coordinator)

	ioo := websocket.SetupSocketIO(coordinator)
	r.Mount("/socket.io/", ioo.ServeHandler(nil))

	logrus.WithField("addr", *listenAddress).Info("starting server")
	go func() {
		if err := http.ListenAndServe(*listenAddress, r); err != nil {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	waitForShutdown(ioo)
}
