package providers

import (
	"log/slog"
	"net/http"
)

// ClientConfig carries the per-vendor connection settings supplied by config.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// Veo3Descriptor is the routing profile for the Veo3 vendor.
var Veo3Descriptor = Descriptor{
	Name:              "veo3",
	CostPerSecond:     0.15,
	QualityScore:      8.0,
	AvgLatencySeconds: 12.5,
}

// NewVeo3 constructs the Veo3 provider adapter.
func NewVeo3(cfg ClientConfig, logger *slog.Logger) (Provider, error) {
	return newVendorClient(VendorClientOptions{
		Descriptor: Veo3Descriptor,
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		SubmitPath: "/v1/videos/generate",
		StatusPath: "/v1/videos/%s",
		Mapping: responseMapping{
			JobIDExpr:     "operation.id",
			StateExpr:     "operation.state",
			ProgressExpr:  "operation.progress_percent",
			ResultURLExpr: "operation.result.video_uri",
			DetailExpr:    "operation.error.message",
			States: map[string]RenderState{
				"pending":   RenderQueued,
				"running":   RenderProcessing,
				"succeeded": RenderSucceeded,
				"failed":    RenderFailed,
			},
		},
		BuildSubmitBody: func(req SubmitRequest) any {
			return map[string]any{
				"source_file_id": req.SourceFileID,
				"script":         req.ScriptText,
				"voice": map[string]any{
					"language": req.VoiceSettings.Language,
					"name":     req.VoiceSettings.Voice,
					"speed":    req.VoiceSettings.Speed,
				},
				"duration_seconds": req.DurationSeconds,
				"quality":          string(req.Quality),
				"aspect_ratio":     string(req.AspectRatio),
				"client_ref":       req.JobID,
			}
		},
		HTTPClient: cfg.HTTPClient,
		Logger:     logger,
	})
}
