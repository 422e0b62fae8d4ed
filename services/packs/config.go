package packs

import (
	"io"
	"time"
)

// BuildConfig configures pack creation.
type BuildConfig struct {
	TemplatesDir string
	Name         string
	Output       string
	Signer       *Signer
	Now          func() time.Time
	Stdout       io.Writer
}

// InstallConfig configures pack installation.
type InstallConfig struct {
	PackPath     string
	TemplatesDir string
	Signer       *Signer
	Now          func() time.Time
	Stdout       io.Writer
}
