package data

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"path/filepath"

	"github.com/talkingphoto/pipeline/internal/core"
)

// LocalMediaProcessor implements core.MediaProcessor with deterministic
// in-process stand-ins for the media stages. Analysis scores derive from a
// hash of the file id so the same photo always scores identically; the
// produced paths are stable per job. Production deployments swap this for
// GPU-backed services behind the same port.
type LocalMediaProcessor struct {
	workDir string
	logger  *slog.Logger
}

// NewLocalMediaProcessor constructs a LocalMediaProcessor rooted at workDir.
func NewLocalMediaProcessor(workDir string, logger *slog.Logger) *LocalMediaProcessor {
	if logger != nil {
		logger = logger.With("component", "media_processor")
	}
	return &LocalMediaProcessor{workDir: workDir, logger: logger}
}

// AnalyzePhoto scores the photo deterministically from its id.
func (m *LocalMediaProcessor) AnalyzePhoto(_ context.Context, fileID string) (*core.PhotoAnalysis, error) {
	if fileID == "" {
		return nil, fmt.Errorf("photo file id is required")
	}
	h := hashOf(fileID)
	analysis := &core.PhotoAnalysis{
		FileSizeBytes:        int64(1<<20 + h%(4<<20)),
		Width:                1280 + int(h%640),
		Height:               720 + int(h/7%360),
		FaceCount:            1 + int(h%2),
		BackgroundComplexity: float64(h%100) / 100,
		LightingQuality:      0.4 + float64(h/3%60)/100,
		QualityScore:         0.3 + float64(h/11%70)/100,
	}
	return analysis, nil
}

// EnhancePhoto returns the id of the enhanced copy.
func (m *LocalMediaProcessor) EnhancePhoto(_ context.Context, fileID string) (string, error) {
	if fileID == "" {
		return "", fmt.Errorf("photo file id is required")
	}
	return fileID + "-enhanced", nil
}

// SynthesizeSpeech renders the narration audio and returns its path.
func (m *LocalMediaProcessor) SynthesizeSpeech(_ context.Context, req core.SpeechRequest) (string, error) {
	if req.Script == "" {
		return "", fmt.Errorf("script is required")
	}
	return filepath.Join(m.workDir, "audio", req.JobID+".wav"), nil
}

// PrepareLipSync aligns audio and photo and returns the prepared asset path.
func (m *LocalMediaProcessor) PrepareLipSync(_ context.Context, req core.LipSyncRequest) (string, error) {
	if req.PhotoFileID == "" || req.AudioPath == "" {
		return "", fmt.Errorf("photo and audio are required for lip sync")
	}
	return filepath.Join(m.workDir, "lipsync", req.JobID+".pkg"), nil
}

// GenerateThumbnail produces a preview image path for the rendered video.
func (m *LocalMediaProcessor) GenerateThumbnail(_ context.Context, jobID, videoPath string) (string, error) {
	if videoPath == "" {
		return "", fmt.Errorf("video path is required")
	}
	return filepath.Join(m.workDir, "thumbs", jobID+".jpg"), nil
}

func hashOf(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
