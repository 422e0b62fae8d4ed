package packs

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Manifest is the signed metadata carried inside a template pack.
type Manifest struct {
	Version          string         `yaml:"version"`
	Name             string         `yaml:"name"`
	CreatedAt        time.Time      `yaml:"created_at"`
	Signer           string         `yaml:"signer,omitempty"`
	SigningPublicKey string         `yaml:"signing_public_key,omitempty"`
	Signature        string         `yaml:"signature,omitempty"`
	Templates        []PackTemplate `yaml:"templates"`
}

// SigningBytes marshals the manifest without its signature for signing/verification.
func (m Manifest) SigningBytes() ([]byte, error) {
	clone := m
	clone.Signature = ""
	return yaml.Marshal(clone)
}

// PackTemplate describes a single file within a pack.
type PackTemplate struct {
	Path   string `yaml:"path"`
	Kind   string `yaml:"kind"`
	Size   int64  `yaml:"size"`
	SHA256 string `yaml:"sha256"`
}
