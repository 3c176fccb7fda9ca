package sink

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/jo25425/dona-sub000/internal/core"
)

type resultFile struct {
	AnonymizedConversations      []core.Conversation `json:"anonymizedConversations"`
	ChatMappingToShow            map[string][]string `json:"chatMappingToShow"`
	ParticipantNamesToPseudonyms map[string]string   `json:"participantNamesToPseudonyms,omitempty"`
}

// ResultPath is the file name watch mode uses for a run.
func ResultPath(dir, runID string) string {
	return filepath.Join(dir, "dona-"+runID+".json")
}

// MarshalResult encodes res the way WriteResult stores it. The participant
// mapping holds real names and is included only when includeMapping is set.
func MarshalResult(res core.AnonymizationResult, includeMapping bool) ([]byte, error) {
	out := resultFile{
		AnonymizedConversations: res.AnonymizedConversations,
		ChatMappingToShow:       res.ChatMappingToShow,
	}
	if out.AnonymizedConversations == nil {
		out.AnonymizedConversations = []core.Conversation{}
	}
	if includeMapping {
		out.ParticipantNamesToPseudonyms = res.ParticipantNamesToPseudonyms
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encode result")
	}
	return append(data, '\n'), nil
}

// WriteResult writes res as indented JSON. The file appears atomically.
func WriteResult(path string, res core.AnonymizationResult, includeMapping bool) error {
	data, err := MarshalResult(res, includeMapping)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create result dir")
	}
	tmp, err := os.CreateTemp(dir, ".dona-*.json")
	if err != nil {
		return errors.Wrap(err, "create temp result")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write result")
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "chmod result")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close result")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "publish result")
}
