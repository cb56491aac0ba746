package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fiffu/cardnotify/config"
	"github.com/fiffu/cardnotify/lib"
	"github.com/fiffu/cardnotify/lib/live"
	"github.com/fiffu/cardnotify/lib/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewAPI(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, svc *lib.Service, hub *live.Hub) *http.Server {
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{Addr: addr, Handler: router(cfg, log, svc, hub)}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Sugar().Infow("HTTP server listening", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Sugar().Errorw("HTTP server stopped", "err", err)
				}
			}()
			return nil
		},
		OnStop: srv.Shutdown,
	})

	return srv
}

func router(cfg *config.Config, log *zap.Logger, svc *lib.Service, hub *live.Hub) http.Handler {
	ctrl := &controller{log, svc, hub}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth([]byte(cfg.Auth.JWTSecret)))

		// Long-lived, so kept clear of the request timeout.
		r.Get("/notifications/live", ctrl.live)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", ctrl.listNotifications)
				r.Patch("/read-all", ctrl.markAllRead)
				r.Patch("/{id}/read", ctrl.markRead)
				r.Delete("/{id}", ctrl.deleteNotification)
			})
			r.Route("/push/registrations", func(r chi.Router) {
				r.Post("/", ctrl.registerPush)
				r.Delete("/", ctrl.unregisterPush)
			})
		})
	})

	r.Route("/admin", func(r chi.Router) {
		if creds := cfg.GetCreds(); len(creds) > 0 {
			r.Use(middleware.BasicAuth("cardnotify", creds))
		} else {
			log.Sugar().Info("Admin auth is disabled since no credentials are defined")
		}
		r.Post("/maintenance", ctrl.runMaintenance)
	})

	return r
}

type controller struct {
	log *zap.Logger
	svc *lib.Service
	hub *live.Hub
}

func (ctrl *controller) reject(w http.ResponseWriter, status int, err error) {
	if err != nil {
		http.Error(w, err.Error(), status)
	} else {
		w.WriteHeader(status)
	}
}

// fail maps a service error onto an HTTP status.
func (ctrl *controller) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		ctrl.reject(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInvalid):
		ctrl.reject(w, http.StatusBadRequest, err)
	default:
		ctrl.log.Sugar().Errorw("Request failed", "path", r.URL.Path, "err", err)
		ctrl.reject(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func (ctrl *controller) resolve(w http.ResponseWriter, status int, body any) {
	if b, err := json.Marshal(body); err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		ctrl.log.Sugar().Errorw("Request failed", "err", err)
		return
	} else {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(b)
	}
}

func (ctrl *controller) listNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := lib.ListOptions{}
	var err error

	if v := q.Get("limit"); v != "" {
		if opts.Limit, err = strconv.Atoi(v); err != nil {
			ctrl.reject(w, http.StatusBadRequest, errors.New("limit must be an integer"))
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if opts.Offset, err = strconv.Atoi(v); err != nil {
			ctrl.reject(w, http.StatusBadRequest, errors.New("offset must be an integer"))
			return
		}
	}
	if v := q.Get("unread_only"); v != "" {
		if opts.UnreadOnly, err = strconv.ParseBool(v); err != nil {
			ctrl.reject(w, http.StatusBadRequest, errors.New("unread_only must be a boolean"))
			return
		}
	}

	list, err := ctrl.svc.ListNotifications(r.Context(), userID(r), opts)
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, NotificationListView{}.From(list))
}

func (ctrl *controller) markRead(w http.ResponseWriter, r *http.Request) {
	id, ok := ctrl.idParam(w, r)
	if !ok {
		return
	}
	n, err := ctrl.svc.MarkRead(r.Context(), userID(r), id)
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, NotificationView{}.From(*n))
}

func (ctrl *controller) markAllRead(w http.ResponseWriter, r *http.Request) {
	count, err := ctrl.svc.MarkAllRead(r.Context(), userID(r))
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"updated": count})
}

func (ctrl *controller) deleteNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := ctrl.idParam(w, r)
	if !ok {
		return
	}
	if err := ctrl.svc.Delete(r.Context(), userID(r), id); err != nil {
		ctrl.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ctrl *controller) live(w http.ResponseWriter, r *http.Request) {
	ctrl.hub.ServeWS(w, r, userID(r))
}

func (ctrl *controller) registerPush(w http.ResponseWriter, r *http.Request) {
	req := PushRegistrationRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctrl.reject(w, http.StatusBadRequest, errors.Wrap(err, "malformed push subscription"))
		return
	}

	reg := req.Entity()
	if err := ctrl.svc.RegisterPush(r.Context(), userID(r), reg); err != nil {
		ctrl.fail(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusCreated, map[string]any{"id": reg.ID})
}

func (ctrl *controller) unregisterPush(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Endpoint string `json:"endpoint"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		ctrl.reject(w, http.StatusBadRequest, errors.New("endpoint is required"))
		return
	}

	if err := ctrl.svc.UnregisterPush(r.Context(), userID(r), req.Endpoint); err != nil {
		ctrl.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ctrl *controller) runMaintenance(w http.ResponseWriter, r *http.Request) {
	report, err := ctrl.svc.RunDailyMaintenance(r.Context())
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, MaintenanceView{}.From(report))
}

func (ctrl *controller) idParam(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		ctrl.reject(w, http.StatusBadRequest, errors.New("id must be a positive integer"))
		return 0, false
	}
	return uint(id), true
}
