package archive

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"mongo-blob-backup/internal/config"
	apperrors "mongo-blob-backup/internal/errors"
)

// ArchiveModeTar packs each unit dump directory into one tar artifact
const ArchiveModeTar = "tar"

// ArchiveModeNone uploads dump files as the dump tool produced them
const ArchiveModeNone = "none"

// Packer turns a unit dump directory into a single artifact and back. The
// artifact is a tar stream, optionally compressed and optionally sealed.
type Packer struct {
	enabled     bool
	compression CompressionType
	level       int
	manager     *CompressionManager
	encryptor   *Encryptor
}

// NewPacker creates a packer from the archive configuration
func NewPacker(cfg *config.ArchiveConfig) (*Packer, error) {
	if cfg == nil {
		return NewOpener(nil), nil
	}
	if cfg.Mode == "" || cfg.Mode == ArchiveModeNone {
		return NewOpener(&cfg.Encryption), nil
	}
	if cfg.Mode != ArchiveModeTar {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("unsupported archive mode: %s", cfg.Mode), nil)
	}

	compression, err := ParseCompressionType(cfg.Compression)
	if err != nil {
		return nil, err
	}

	return &Packer{
		enabled:     true,
		compression: compression,
		level:       cfg.Level,
		manager:     NewCompressionManager(),
		encryptor:   NewEncryptor(&cfg.Encryption),
	}, nil
}

// NewOpener returns a packer that only opens artifacts. Restore uses it so
// snapshots written under other archive settings still load; the artifact
// name decides the pipeline, the key is needed only for sealed artifacts.
func NewOpener(cfg *config.EncryptionConfig) *Packer {
	return &Packer{
		manager:   NewCompressionManager(),
		encryptor: NewEncryptor(cfg),
	}
}

// Enabled reports whether units are packed before upload
func (p *Packer) Enabled() bool {
	return p.enabled
}

// ArtifactName returns the artifact file name for a unit, e.g. c1.tar.zst.enc
func (p *Packer) ArtifactName(base string) string {
	name := base + ".tar" + Extension(p.compression)
	if p.encryptor.Enabled() {
		name += EncryptedExtension
	}
	return name
}

// Pack archives srcDir into a single artifact file
func (p *Packer) Pack(srcDir, artifactPath string) (*CompressionStats, error) {
	tarData, err := tarDirectory(srcDir)
	if err != nil {
		return nil, err
	}

	packed, stats, err := p.manager.Compress(tarData, p.compression, p.level)
	if err != nil {
		return nil, err
	}

	sealed, err := p.encryptor.Encrypt(packed)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(artifactPath, sealed, 0o644); err != nil {
		return nil, apperrors.NewArchiveError(
			fmt.Sprintf("failed to write artifact %s", artifactPath), err)
	}

	return stats, nil
}

// Unpack restores an artifact into destDir. The pipeline is derived from the
// artifact name so snapshots written with different settings still open.
func (p *Packer) Unpack(artifactPath, destDir string) error {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return apperrors.NewArchiveError(
			fmt.Sprintf("failed to read artifact %s", artifactPath), err)
	}

	name := filepath.Base(artifactPath)
	if strings.HasSuffix(name, EncryptedExtension) {
		if !p.encryptor.Enabled() {
			return apperrors.NewEncryptionError(
				fmt.Sprintf("artifact %s is encrypted but no key is configured", name), nil)
		}
		if data, err = p.encryptor.Decrypt(data); err != nil {
			return err
		}
		name = strings.TrimSuffix(name, EncryptedExtension)
	}

	compression := compressionForName(name)
	if data, err = p.manager.Decompress(data, compression); err != nil {
		return err
	}

	return untar(data, destDir)
}

// IsArtifact reports whether a file name looks like a packed unit
func IsArtifact(name string) bool {
	name = strings.TrimSuffix(name, EncryptedExtension)
	for _, t := range []CompressionType{CompressionGzip, CompressionLZ4, CompressionZstd} {
		name = strings.TrimSuffix(name, Extension(t))
	}
	return strings.HasSuffix(name, ".tar")
}

func compressionForName(name string) CompressionType {
	for _, t := range []CompressionType{CompressionGzip, CompressionLZ4, CompressionZstd} {
		if strings.HasSuffix(name, Extension(t)) {
			return t
		}
	}
	return CompressionNone
}

// tarDirectory archives every regular file below dir with slash-separated
// relative names
func tarDirectory(dir string) ([]byte, error) {
	var buf bytes.Buffer
	writer := tar.NewWriter(&buf)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)

		if err := writer.WriteHeader(header); err != nil {
			return err
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		_, err = io.Copy(writer, file)
		return err
	})
	if err != nil {
		return nil, apperrors.NewArchiveError(
			fmt.Sprintf("failed to archive %s", dir), err)
	}

	if err := writer.Close(); err != nil {
		return nil, apperrors.NewArchiveError("failed to finalize tar stream", err)
	}

	return buf.Bytes(), nil
}

// untar extracts a tar stream below destDir, rejecting entries that would
// escape it
func untar(data []byte, destDir string) error {
	reader := tar.NewReader(bytes.NewReader(data))

	for {
		header, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return apperrors.NewArchiveError("failed to read tar stream", err)
		}

		name := filepath.FromSlash(header.Name)
		target := filepath.Join(destDir, name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return apperrors.NewArchiveError(
				fmt.Sprintf("tar entry %s escapes the target directory", header.Name), nil)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return apperrors.NewArchiveError(
					fmt.Sprintf("failed to create directory %s", target), err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return apperrors.NewArchiveError(
					fmt.Sprintf("failed to create directory for %s", target), err)
			}
			file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(header.Mode))
			if err != nil {
				return apperrors.NewArchiveError(
					fmt.Sprintf("failed to create %s", target), err)
			}
			if _, err := io.Copy(file, reader); err != nil {
				file.Close()
				return apperrors.NewArchiveError(
					fmt.Sprintf("failed to extract %s", target), err)
			}
			file.Close()
		}
	}
}
