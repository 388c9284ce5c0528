package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manifest describes a container in human-readable form.
type Manifest struct {
	Version   uint16          `yaml:"version"`
	Container string          `yaml:"container"`
	Pairs     []ManifestEntry `yaml:"pairs"`
}

// ManifestEntry describes one pair.
type ManifestEntry struct {
	Name       string `yaml:"name"`
	Dry        string `yaml:"dry"`
	Wet        string `yaml:"wet"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	DryFrames  int    `yaml:"dry_frames"`
	WetFrames  int    `yaml:"wet_frames"`
}

// NewManifest describes ds, whose pairs were read from dry and wet.
func NewManifest(container string, dry, wet []string, ds *Dataset) Manifest {
	m := Manifest{
		Version:   CurrentVersion,
		Container: filepath.Base(container),
		Pairs:     make([]ManifestEntry, len(ds.Pairs)),
	}
	for i, p := range ds.Pairs {
		m.Pairs[i] = ManifestEntry{
			Name:       p.Name,
			Dry:        dry[i],
			Wet:        wet[i],
			SampleRate: p.Dry.SampleRate,
			Channels:   p.Dry.NumChannels(),
			DryFrames:  p.Dry.Len(),
			WetFrames:  p.Wet.Len(),
		}
	}
	return m
}

// WriteManifest stores m as YAML.
func WriteManifest(path string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, fileMode); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return m, nil
}
