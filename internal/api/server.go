// Copyright (C) 2020  Lukas Dietrich <lukas@lukasdietrich.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package api is the HTTP facade of the newsletter. It exposes the subscriber store, imports,
// exports and newsletter sends as a json api.
package api

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/lukasdietrich/newsletter/internal/compose"
	"github.com/lukasdietrich/newsletter/internal/delivery"
	"github.com/lukasdietrich/newsletter/internal/log"
	"github.com/lukasdietrich/newsletter/internal/metrics"
	"github.com/lukasdietrich/newsletter/internal/migration"
	"github.com/lukasdietrich/newsletter/internal/models"
	"github.com/lukasdietrich/newsletter/internal/spool"
	"github.com/lukasdietrich/newsletter/internal/store"
)

const (
	serviceName     = "newsletter-api"
	shutdownTimeout = 10 * time.Second
)

func init() {
	viper.SetDefault("api.host", "127.0.0.1")
	viper.SetDefault("api.port", 3001)
	viper.SetDefault("api.key", "")
	viper.SetDefault("api.cors", true)
	viper.SetDefault("api.rate_limit", 100)
}

// Version is reported by the health endpoint.
var Version = "dev"

// Options configure the server.
type Options struct {
	Host      string
	Port      int
	APIKey    string
	CORS      bool
	RateLimit int

	// TLS enables https, if set.
	TLS *tls.Config
}

// OptionsFromViper reads the server options.
//
// `api.host` and `api.port` is the address to listen on.
// `api.key` is required on every request except health checks, if set.
// `api.cors` allows cross origin requests from any origin.
// `api.rate_limit` is the number of requests per minute and client. 0 disables the limit.
func OptionsFromViper() Options {
	return Options{
		Host:      viper.GetString("api.host"),
		Port:      viper.GetInt("api.port"),
		APIKey:    viper.GetString("api.key"),
		CORS:      viper.GetBool("api.cors"),
		RateLimit: viper.GetInt("api.rate_limit"),
	}
}

// Address returns "host:port".
func (o Options) Address() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// Dispatcher sends newsletters. Check validates the configuration without sending anything.
type Dispatcher interface {
	Check() error
	Send(ctx context.Context, newsletter *models.Newsletter, progress delivery.ProgressFunc) (*delivery.Report, error)
	SendTest(ctx context.Context, newsletter *models.Newsletter, address string) error
}

// Server serves the api.
type Server struct {
	options    Options
	store      *store.Store
	importer   *migration.Importer
	spool      *spool.Spool
	composer   *compose.Composer
	posts      compose.PostProvider
	dispatcher Dispatcher
	validate   *validator.Validate

	// sendMu is held while a background send is running.
	sendMu     sync.Mutex
	background sync.WaitGroup
	baseCtx    context.Context
}

// NewServer creates a new api server.
func NewServer(
	options Options,
	store *store.Store,
	importer *migration.Importer,
	spool *spool.Spool,
	composer *compose.Composer,
	posts compose.PostProvider,
	dispatcher Dispatcher,
) *Server {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(jsonFieldName)

	return &Server{
		options:    options,
		store:      store,
		importer:   importer,
		spool:      spool,
		composer:   composer,
		posts:      posts,
		dispatcher: dispatcher,
		validate:   validate,
		baseCtx:    log.WithOrigin(context.Background(), "api"),
	}
}

func jsonFieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "-" || name == "" {
		return field.Name
	}

	return name
}

// Handler returns the router of the api.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observe)

	if s.options.CORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if s.options.APIKey != "" {
			r.Use(requireKey(s.options.APIKey))
		}

		if s.options.RateLimit > 0 {
			r.Use(newClientLimiter(s.options.RateLimit).middleware)
		}

		r.Route("/subscribers", func(r chi.Router) {
			r.Get("/", s.listSubscribers)
			r.Post("/", s.createSubscriber)
			r.Get("/{email}", s.getSubscriber)
			r.Put("/{email}", s.updateSubscriber)
			r.Delete("/{email}", s.deleteSubscriber)
		})

		r.Route("/newsletter", func(r chi.Router) {
			r.Post("/send", s.sendNewsletter)
			r.Post("/send-latest", s.sendLatest)
			r.Post("/preview", s.previewNewsletter)
		})

		r.Post("/import", s.importSubscribers)
		r.Get("/export", s.exportSubscribers)
		r.Get("/stats", s.stats)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, "not found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

// ListenAndServe serves until ctx is cancelled. Running sends are awaited on shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := http.Server{
		Addr:              s.options.Address(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         s.options.TLS,
		BaseContext: func(net.Listener) context.Context {
			return s.baseCtx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		log.Info().
			Str("address", server.Addr).
			Bool("auth", s.options.APIKey != "").
			Bool("tls", s.options.TLS != nil).
			Msg("api server listening")

		if s.options.TLS != nil {
			errCh <- server.ListenAndServeTLS("", "")
		} else {
			errCh <- server.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		return err

	case <-ctx.Done():
		log.Info().Msg("shutting down api server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		s.Wait()

		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	}
}

// Wait blocks until every background send finished.
func (s *Server) Wait() {
	s.background.Wait()
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": serviceName,
		"version": Version,
	})
}
