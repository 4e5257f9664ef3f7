// Package service implements the workflow orchestration business logic:
// the orchestrator state machine, the provider router, the recovery engine,
// and the pre-flight optimizer.
package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/talkingphoto/pipeline/internal/domain/model"
)

// fingerprintInput is the canonical identity of a generation. Field order is
// fixed so the marshaled form is stable across processes.
type fingerprintInput struct {
	Script   string              `json:"script"`
	Duration float64             `json:"duration"`
	Quality  model.QualityTier   `json:"quality"`
	Aspect   model.AspectRatio   `json:"aspect"`
	FileHash string              `json:"file_hash"`
	Voice    model.VoiceSettings `json:"voice"`
}

// Fingerprint returns the content-addressed identity of a request: the
// SHA-256 of its canonical JSON form. Two requests with the same fingerprint
// produce byte-identical videos, so the router may serve one from cache.
func Fingerprint(req *model.GenerationRequest) (string, error) {
	in := fingerprintInput{
		Script:   req.ScriptText,
		Duration: req.DurationSeconds,
		Quality:  req.Quality,
		Aspect:   req.AspectRatio,
		FileHash: req.SourceFileHash,
		Voice:    req.VoiceSettings,
	}
	b, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal fingerprint input: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
