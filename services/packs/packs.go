package packs

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

const (
	manifestFileName   = "manifest.yaml"
	templatesTarPrefix = "templates"
)

// Build assembles a signed template pack from the provided directory and
// writes the tar.zst archive to Output.
func Build(ctx context.Context, cfg BuildConfig) (*Manifest, error) {
	if cfg.TemplatesDir == "" {
		return nil, errors.New("templates directory is required")
	}
	if cfg.Output == "" {
		return nil, errors.New("output path is required")
	}
	if cfg.Signer == nil {
		return nil, errors.New("signer is required")
	}
	if cfg.Name == "" {
		cfg.Name = filepath.Base(cfg.TemplatesDir)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(cfg.TemplatesDir)
	if err != nil {
		return nil, fmt.Errorf("stat templates dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("templates dir %q is not a directory", cfg.TemplatesDir)
	}

	entries, err := collectTemplates(ctx, cfg.TemplatesDir)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.New("no templates found to pack")
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})

	manifest := &Manifest{
		Version:          "1",
		Name:             cfg.Name,
		CreatedAt:        cfg.Now().UTC().Truncate(time.Second),
		Signer:           cfg.Signer.Recipient(),
		SigningPublicKey: cfg.Signer.PublicKeyBase64(),
		Templates:        entries,
	}

	payload, err := manifest.SigningBytes()
	if err != nil {
		return nil, fmt.Errorf("marshal manifest for signing: %w", err)
	}
	sig, err := cfg.Signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("sign manifest: %w", err)
	}
	manifest.Signature = sig

	manifestBytes, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	if err := writePack(cfg.Output, manifestBytes, cfg.TemplatesDir, entries); err != nil {
		return nil, err
	}

	fmt.Fprintf(cfg.Stdout, "wrote pack %s (%d templates)\n", cfg.Output, len(entries))
	return manifest, nil
}

func collectTemplates(ctx context.Context, root string) ([]PackTemplate, error) {
	var templates []PackTemplate
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relative path for %q: %w", path, err)
		}
		rel = filepath.ToSlash(rel)

		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %q: %w", path, err)
		}
		hash := sha256.New()
		size, err := io.Copy(hash, file)
		file.Close()
		if err != nil {
			return fmt.Errorf("hash %q: %w", path, err)
		}

		templates = append(templates, PackTemplate{
			Path:   rel,
			Kind:   inferKind(rel),
			Size:   size,
			SHA256: hex.EncodeToString(hash.Sum(nil)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return templates, nil
}

func writePack(output string, manifest []byte, templatesDir string, entries []PackTemplate) error {
	dir := filepath.Dir(output)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer file.Close()

	encoder, err := zstd.NewWriter(file)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	defer encoder.Close()

	tw := tar.NewWriter(encoder)
	defer tw.Close()

	manifestHeader := &tar.Header{
		Name:     manifestFileName,
		Mode:     0o644,
		Size:     int64(len(manifest)),
		ModTime:  time.Now().UTC(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(manifestHeader); err != nil {
		return fmt.Errorf("write manifest header: %w", err)
	}
	if _, err := tw.Write(manifest); err != nil {
		return fmt.Errorf("write manifest body: %w", err)
	}

	for _, entry := range entries {
		fullPath := filepath.Join(templatesDir, filepath.FromSlash(entry.Path))
		info, err := os.Stat(fullPath)
		if err != nil {
			return fmt.Errorf("stat %q: %w", entry.Path, err)
		}
		file, err := os.Open(fullPath)
		if err != nil {
			return fmt.Errorf("open %q: %w", entry.Path, err)
		}

		header := &tar.Header{
			Name:     filepath.ToSlash(filepath.Join(templatesTarPrefix, entry.Path)),
			Mode:     int64(info.Mode().Perm()),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(header); err != nil {
			file.Close()
			return fmt.Errorf("write header for %q: %w", entry.Path, err)
		}
		if _, err := io.Copy(tw, file); err != nil {
			file.Close()
			return fmt.Errorf("copy %q: %w", entry.Path, err)
		}
		file.Close()
	}

	return nil
}

func inferKind(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".tmpl"):
		return "template"
	case strings.HasSuffix(lower, ".docx"),
		strings.HasSuffix(lower, ".xlsx"),
		strings.HasSuffix(lower, ".pptx"),
		strings.HasSuffix(lower, ".odt"),
		strings.HasSuffix(lower, ".ods"),
		strings.HasSuffix(lower, ".odp"),
		strings.HasSuffix(lower, ".pdf"):
		return "document"
	case strings.HasSuffix(lower, ".zip"), strings.HasSuffix(lower, ".jar"):
		return "archive"
	default:
		return "file"
	}
}

// Install verifies a pack and unpacks its templates into the templates
// directory. The manifest signature is checked before any file leaves the
// staging area, and every template must match its recorded digest.
func Install(ctx context.Context, cfg InstallConfig) (*Manifest, error) {
	if cfg.PackPath == "" {
		return nil, errors.New("pack file is required")
	}
	if cfg.TemplatesDir == "" {
		return nil, errors.New("templates directory is required")
	}
	if cfg.Signer == nil {
		return nil, errors.New("signer is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	packFile, err := os.Open(cfg.PackPath)
	if err != nil {
		return nil, fmt.Errorf("open pack: %w", err)
	}
	defer packFile.Close()

	decoder, err := zstd.NewReader(packFile)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer decoder.Close()

	tr := tar.NewReader(decoder)
	tempDir, err := os.MkdirTemp("", "phantomd-pack-*")
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	var (
		manifestBytes []byte
		files         = map[string]string{}
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar entry: %w", err)
		}

		name := filepath.Clean(header.Name)
		if header.Typeflag == tar.TypeDir {
			target := filepath.Join(tempDir, name)
			if !strings.HasPrefix(target, tempDir) {
				return nil, fmt.Errorf("invalid directory entry %q", name)
			}
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, fmt.Errorf("mkdir %q: %w", name, err)
			}
			continue
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		if name == manifestFileName {
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("read manifest: %w", err)
			}
			manifestBytes = data
			continue
		}

		targetPath := filepath.Join(tempDir, name)
		if !strings.HasPrefix(targetPath, tempDir) {
			return nil, fmt.Errorf("invalid entry path %q", name)
		}
		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %q: %w", filepath.Dir(targetPath), err)
		}
		file, err := os.Create(targetPath)
		if err != nil {
			return nil, fmt.Errorf("create staging file for %q: %w", name, err)
		}
		if _, err := io.Copy(file, tr); err != nil {
			file.Close()
			return nil, fmt.Errorf("write staging file for %q: %w", name, err)
		}
		file.Close()

		files[name] = targetPath
	}

	if len(manifestBytes) == 0 {
		return nil, errors.New("pack missing manifest.yaml")
	}

	var manifest Manifest
	if err := yaml.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	if manifest.Version != "1" {
		return nil, fmt.Errorf("unsupported manifest version %q", manifest.Version)
	}
	if manifest.Signature == "" {
		return nil, errors.New("manifest missing signature")
	}

	payload, err := manifest.SigningBytes()
	if err != nil {
		return nil, fmt.Errorf("marshal manifest for verification: %w", err)
	}
	if err := cfg.Signer.Verify(payload, manifest.Signature, manifest.SigningPublicKey); err != nil {
		return nil, fmt.Errorf("verify manifest signature: %w", err)
	}

	fmt.Fprintf(cfg.Stdout, "verified pack %q signed at %s\n", manifest.Name, manifest.CreatedAt.Format(time.RFC3339))

	destRoot := filepath.Clean(cfg.TemplatesDir)
	if err := os.MkdirAll(destRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create templates dir: %w", err)
	}

	for _, tpl := range manifest.Templates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		relative := filepath.ToSlash(filepath.Clean(tpl.Path))
		tarPath := filepath.ToSlash(filepath.Join(templatesTarPrefix, relative))
		stagePath, ok := files[tarPath]
		if !ok {
			return nil, fmt.Errorf("template %q missing from archive", relative)
		}

		if err := validateTemplate(stagePath, tpl); err != nil {
			return nil, err
		}

		target := filepath.Join(destRoot, filepath.FromSlash(relative))
		if !strings.HasPrefix(target, destRoot) {
			return nil, fmt.Errorf("template %q escapes the templates dir", relative)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir for %q: %w", relative, err)
		}
		if err := copyFile(stagePath, target); err != nil {
			return nil, fmt.Errorf("install %q: %w", relative, err)
		}

		fmt.Fprintf(cfg.Stdout, "installed %s (%d bytes)\n", relative, tpl.Size)
	}

	fmt.Fprintf(cfg.Stdout, "pack %q installed into %s (%d templates)\n", manifest.Name, destRoot, len(manifest.Templates))
	return &manifest, nil
}

func validateTemplate(path string, tpl PackTemplate) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %q: %w", tpl.Path, err)
	}
	defer file.Close()

	hash := sha256.New()
	size, err := io.Copy(hash, file)
	if err != nil {
		return fmt.Errorf("hash %q: %w", tpl.Path, err)
	}
	if size != tpl.Size {
		return fmt.Errorf("size mismatch for %q: expected %d got %d", tpl.Path, tpl.Size, size)
	}
	computed := hex.EncodeToString(hash.Sum(nil))
	if !strings.EqualFold(computed, tpl.SHA256) {
		return fmt.Errorf("sha256 mismatch for %q", tpl.Path)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
