package repository

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/alexanderramin/kanban/internal/domain"
)

// encodeDoc writes the two-space indented layout the board UI reads and
// writes, so diffs between the two stay small.
func encodeDoc(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeBoard(team string, data []byte) (*domain.Board, error) {
	if data == nil {
		return domain.NewBoard(team), nil
	}
	var b domain.Board
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decoding board %s: %w", team, err)
	}
	if b.Team == "" {
		b.Team = team
	}
	return &b, nil
}

func decodeManifest(releaseID string, data []byte) (*domain.Manifest, error) {
	if data == nil {
		return nil, nil
	}
	var m domain.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest %s: %w", releaseID, err)
	}
	if m.Items == nil {
		m.Items = []domain.ManifestEntry{}
	}
	return &m, nil
}
