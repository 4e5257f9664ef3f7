package httpx

import (
	"net/http"

	"github.com/talkingphoto/pipeline/internal/core"
	"github.com/talkingphoto/pipeline/internal/service"
)

// RouterServices holds the services needed by the HTTP router.
type RouterServices struct {
	Orchestrator *service.Orchestrator
	Jobs         core.JobRepository
	Ledger       core.CreditLedger
	Cache        core.CacheRepository

	// ArtifactDir, when set, serves stored renders under /artifacts/.
	ArtifactDir string
}

// NewRouter creates and configures a new HTTP router for the generation API.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	h := &GenerationHandlers{
		Orchestrator: services.Orchestrator,
		Jobs:         services.Jobs,
		Ledger:       services.Ledger,
	}

	mux.HandleFunc("POST /api/generations", h.CreateGeneration)
	mux.HandleFunc("GET /api/generations", h.ListGenerations)
	mux.HandleFunc("GET /api/generations/{id}", h.GetGeneration)
	mux.HandleFunc("POST /api/generations/{id}/cancel", h.CancelGeneration)
	mux.HandleFunc("GET /api/users/{id}/credits", h.GetBalance)

	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(services.Cache))

	if services.ArtifactDir != "" {
		mux.Handle("GET /artifacts/",
			http.StripPrefix("/artifacts/", http.FileServer(http.Dir(services.ArtifactDir))))
	}

	return mux
}
