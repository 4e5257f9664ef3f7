package providers

import "log/slog"

// RunwayDescriptor is the routing profile for the Runway vendor.
var RunwayDescriptor = Descriptor{
	Name:              "runway",
	CostPerSecond:     0.20,
	QualityScore:      8.8,
	AvgLatencySeconds: 15.2,
}

// NewRunway constructs the Runway provider adapter.
func NewRunway(cfg ClientConfig, logger *slog.Logger) (Provider, error) {
	return newVendorClient(VendorClientOptions{
		Descriptor: RunwayDescriptor,
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		SubmitPath: "/v2/tasks",
		StatusPath: "/v2/tasks/%s",
		Mapping: responseMapping{
			JobIDExpr:     "id",
			StateExpr:     "status",
			ProgressExpr:  "progress",
			ResultURLExpr: "output[0]",
			DetailExpr:    "failure_reason",
			States: map[string]RenderState{
				"pending":   RenderQueued,
				"throttled": RenderQueued,
				"running":   RenderProcessing,
				"succeeded": RenderSucceeded,
				"failed":    RenderFailed,
				"cancelled": RenderFailed,
			},
		},
		BuildSubmitBody: func(req SubmitRequest) any {
			return map[string]any{
				"task_type": "lip_sync_video",
				"input": map[string]any{
					"image_asset_id": req.SourceFileID,
					"script":         req.ScriptText,
					"voice_language": req.VoiceSettings.Language,
					"voice_id":       req.VoiceSettings.Voice,
					"duration":       req.DurationSeconds,
					"quality":        string(req.Quality),
					"ratio":          string(req.AspectRatio),
				},
				"external_id": req.JobID,
			}
		},
		HTTPClient: cfg.HTTPClient,
		Logger:     logger,
	})
}
