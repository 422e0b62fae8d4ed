package factory

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
)

// zipExtensions lists container formats whose archive comment can carry the
// marker without disturbing the payload.
var zipExtensions = map[string]bool{
	".docx": true,
	".xlsx": true,
	".pptx": true,
	".odt":  true,
	".ods":  true,
	".odp":  true,
	".zip":  true,
	".jar":  true,
}

// createBinaryTrap copies a binary lure into place, embeds a unique marker
// and backdates the copy. The marker makes every clone hash differently, so
// exfiltrated copies can be told apart.
func (f *Factory) createBinaryTrap(sourcePath, outputPath string, meta Metadata) error {
	if err := copyFile(sourcePath, outputPath); err != nil {
		return fmt.Errorf("copy binary: %w", err)
	}

	marker := meta.TrapID
	if marker == "" {
		marker = uuid.NewString()
	}

	if err := f.watermark(outputPath, marker); err != nil {
		return fmt.Errorf("watermark: %w", err)
	}

	f.stompTimestamp(outputPath)

	f.log.Info("planted binary trap",
		zap.String("path", outputPath),
		zap.String("category", meta.Category),
		zap.String("trap_id", meta.TrapID))
	return nil
}

// watermark embeds the marker. Valid ZIP containers get it as the archive
// comment, leaving every entry byte for byte intact so documents keep
// opening. Anything else gets a trailing marker line; formats with their own
// end marker, PDF included, ignore trailing bytes.
func (f *Factory) watermark(path, marker string) error {
	if zipExtensions[strings.ToLower(filepath.Ext(path))] {
		r, err := zip.OpenReader(path)
		if err == nil {
			r.Close()
			return setZipComment(path, marker)
		}
		f.log.Debug("zip extension without zip structure, appending marker instead",
			zap.String("path", path))
	}
	return appendMarker(path, marker)
}

// End of central directory record layout, per the ZIP specification.
const (
	eocdSignature  = 0x06054b50
	eocdFixedSize  = 22
	maxCommentSize = 0xFFFF
)

// setZipComment rewrites the end of central directory comment in place and
// truncates anything after it. The central directory and entry data are not
// touched.
func setZipComment(path, comment string) error {
	if len(comment) > maxCommentSize {
		return fmt.Errorf("comment too long: %d bytes", len(comment))
	}

	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	offset, err := findEOCD(file, info.Size())
	if err != nil {
		return err
	}

	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(comment)))
	if _, err := file.WriteAt(lenBuf[:], offset+20); err != nil {
		return err
	}
	if _, err := file.WriteAt([]byte(comment), offset+eocdFixedSize); err != nil {
		return err
	}
	return file.Truncate(offset + eocdFixedSize + int64(len(comment)))
}

// findEOCD scans backward for the end of central directory signature. The
// record sits within the trailing 64KiB window plus its own fixed size.
func findEOCD(r io.ReaderAt, size int64) (int64, error) {
	window := int64(maxCommentSize + eocdFixedSize)
	if window > size {
		window = size
	}
	if window < eocdFixedSize {
		return 0, errors.New("file too small for a zip archive")
	}

	buf := make([]byte, window)
	start := size - window
	if _, err := r.ReadAt(buf, start); err != nil {
		return 0, err
	}

	for i := len(buf) - eocdFixedSize; i >= 0; i-- {
		if binary.LittleEndian.Uint32(buf[i:i+4]) != eocdSignature {
			continue
		}
		commentLen := int(binary.LittleEndian.Uint16(buf[i+20 : i+22]))
		if i+eocdFixedSize+commentLen <= len(buf) {
			return start + int64(i), nil
		}
	}
	return 0, errors.New("end of central directory not found")
}

func appendMarker(path, marker string) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(file, "\n%s\n", marker); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
