package config

// ArtifactConfig contains storage configuration for rendered videos.
type ArtifactConfig struct {
	// Dir is the local directory rendered videos are stored under.
	Dir string `env:"ARTIFACT_DIR" envDefault:"./data/artifacts"`

	// PublicBaseURL is the URL prefix stored artifacts are served from.
	PublicBaseURL string `env:"ARTIFACT_PUBLIC_BASE_URL" envDefault:"http://localhost:8080/artifacts"`
}

// MediaConfig contains configuration for the local media pipeline stages.
type MediaConfig struct {
	// WorkDir is the scratch directory for intermediate audio, lip-sync,
	// and thumbnail assets.
	WorkDir string `env:"MEDIA_WORK_DIR" envDefault:"./data/media"`
}
