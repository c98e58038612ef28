package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"prism/internal/http/handlers"
	"prism/internal/infra"
	"prism/internal/middleware"
)

// Options configures the edge middleware and static media.
type Options struct {
	Logger         infra.Logger
	AllowedOrigins []string
	EdgeRate       float64
	EdgeBurst      int
	DefaultLocale  string
	// VideoDir is served under /static/videos/ when set.
	VideoDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.Recoverer,
		middleware.ClientIdentity,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/healthz", app.Health)
	r.Method(http.MethodGet, "/metrics", app.MetricsHandler())
	if opts.VideoDir != "" {
		r.Handle("/static/videos/*", http.StripPrefix("/static/videos/", http.FileServer(http.Dir(opts.VideoDir))))
	}

	r.Route("/v1/t2v", func(r chi.Router) {
		r.Use(middleware.Throttle(opts.EdgeRate, opts.EdgeBurst), middleware.Locale(opts.DefaultLocale))
		r.Post("/generate", app.Generate)
		r.Route("/jobs/{id}", func(r chi.Router) {
			r.Get("/", app.GetJob)
			r.Get("/transitions", app.Transitions)
			r.Post("/revise", app.Revise)
			r.Post("/finalize", app.Finalize)
		})
	})

	return r
}
