package providers

import "log/slog"

// NanoBananaDescriptor is the routing profile for the NanoBanana vendor.
// Cheapest and fastest of the fleet, with the lowest quality score.
var NanoBananaDescriptor = Descriptor{
	Name:              "nanobanana",
	CostPerSecond:     0.08,
	QualityScore:      7.2,
	AvgLatencySeconds: 8.0,
}

// NewNanoBanana constructs the NanoBanana provider adapter.
func NewNanoBanana(cfg ClientConfig, logger *slog.Logger) (Provider, error) {
	return newVendorClient(VendorClientOptions{
		Descriptor: NanoBananaDescriptor,
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		SubmitPath: "/api/generate",
		StatusPath: "/api/jobs/%s",
		Mapping: responseMapping{
			JobIDExpr:     "job_id",
			StateExpr:     "state",
			ProgressExpr:  "percent_complete",
			ResultURLExpr: "result.url",
			DetailExpr:    "error",
			States: map[string]RenderState{
				"queued":     RenderQueued,
				"processing": RenderProcessing,
				"done":       RenderSucceeded,
				"error":      RenderFailed,
			},
		},
		BuildSubmitBody: func(req SubmitRequest) any {
			return map[string]any{
				"photo_id":   req.SourceFileID,
				"text":       req.ScriptText,
				"lang":       req.VoiceSettings.Language,
				"voice":      req.VoiceSettings.Voice,
				"speed":      req.VoiceSettings.Speed,
				"duration":   req.DurationSeconds,
				"quality":    string(req.Quality),
				"aspect":     string(req.AspectRatio),
				"client_tag": req.JobID,
			}
		},
		HTTPClient: cfg.HTTPClient,
		Logger:     logger,
	})
}
