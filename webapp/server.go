// Package webapp serves the scorecard dashboard: the upload page and the JSON
// API used to submit workbooks, follow their processing and download results.
package webapp

import (
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/tomyedwab/scorecard/config"
	"github.com/tomyedwab/scorecard/jobs"
	logger "github.com/tomyedwab/scorecard/log"
	"github.com/tomyedwab/scorecard/tokens"
)

//go:embed templates/index.html
var templateFS embed.FS

const (
	recentJobs      = 10
	multipartMemory = 8 << 20
)

// Server holds the dependencies of the dashboard handlers.
type Server struct {
	conf    *config.Config
	runner  *jobs.Runner
	issuer  *tokens.Issuer
	version string
	page    *template.Template
	log     *logrus.Entry
	now     func() time.Time
}

func filteredFuncs() template.FuncMap {
	tmp := sprig.GenericFuncMap()
	delete(tmp, "env")
	delete(tmp, "expandenv")

	return template.FuncMap(tmp)
}

func New(conf *config.Config, runner *jobs.Runner, issuer *tokens.Issuer, version string) (*Server, error) {
	page, err := template.New("index.html").Funcs(filteredFuncs()).ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, err
	}
	return &Server{
		conf:    conf,
		runner:  runner,
		issuer:  issuer,
		version: version,
		page:    page,
		log:     logger.Component("webapp"),
		now:     time.Now,
	}, nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("Handled request")
	})
}

// Handler returns the dashboard routes, wrapped in CORS handling when allowed
// origins are configured.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/jobs", s.handleListJobs).Methods(http.MethodGet)
	r.HandleFunc("/api/jobs", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/api/jobs/{id}", s.handleGetJob).Methods(http.MethodGet)
	r.HandleFunc("/api/jobs/{id}/logs", s.handleLogs).Methods(http.MethodGet)
	r.HandleFunc("/api/jobs/{id}/preview", s.handlePreview).Methods(http.MethodGet)
	r.HandleFunc("/api/jobs/{id}/downloads", s.handleCreateDownload).Methods(http.MethodPost)
	r.HandleFunc("/download/{token}", s.handleDownload).Methods(http.MethodGet)

	if len(s.conf.CORS.AllowedOrigins) == 0 {
		return r
	}
	s.log.Debug("CORS ENABLED")
	c := cors.New(cors.Options{
		AllowedOrigins: s.conf.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		ExposedHeaders: []string{"Content-Disposition"},
	})
	return c.Handler(r)
}

// HTTPServer returns an http.Server listening on the configured address.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:        s.conf.Server.Listen(),
		Handler:     s.Handler(),
		ReadTimeout: s.conf.Server.ReadTimeout,
	}
}
