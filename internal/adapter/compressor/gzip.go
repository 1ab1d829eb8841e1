package compressor

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
)

type GzipCompressor struct {
	level int
}

// NewGzip returns a compressor at the given gzip level (1-9).
func NewGzip(level int) (*GzipCompressor, error) {
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		return nil, fmt.Errorf("invalid compression level %d", level)
	}
	return &GzipCompressor{level: level}, nil
}

// Compress drains src into a gzip file at destPath. The destination file is
// synced before return so callers can treat it as durable.
func (g *GzipCompressor) Compress(src io.Reader, destPath string) error {
	destFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create dest file: %w", err)
	}
	defer destFile.Close()

	gzipWriter, err := gzip.NewWriterLevel(destFile, g.level)
	if err != nil {
		return fmt.Errorf("failed to create gzip writer: %w", err)
	}

	if _, err := io.Copy(gzipWriter, src); err != nil {
		gzipWriter.Close()
		return fmt.Errorf("failed to compress: %w", err)
	}

	if err := gzipWriter.Close(); err != nil {
		return fmt.Errorf("failed to flush gzip stream: %w", err)
	}

	if err := destFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync dest file: %w", err)
	}

	return nil
}

func (g *GzipCompressor) Decompress(sourcePath, destPath string) error {
	sourceFile, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer sourceFile.Close()

	gzipReader, err := gzip.NewReader(sourceFile)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	destFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create dest file: %w", err)
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, gzipReader); err != nil {
		return fmt.Errorf("failed to decompress: %w", err)
	}

	return nil
}

// Verify reads the whole gzip stream, discarding output. A truncated file or
// a corrupted block fails here even when the header is intact.
func (g *GzipCompressor) Verify(sourcePath string) error {
	sourceFile, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer sourceFile.Close()

	gzipReader, err := gzip.NewReader(sourceFile)
	if err != nil {
		return fmt.Errorf("invalid gzip container: %w", err)
	}
	defer gzipReader.Close()

	if _, err := io.Copy(io.Discard, gzipReader); err != nil {
		return fmt.Errorf("corrupted gzip stream: %w", err)
	}

	return nil
}

// Open returns a streaming reader over the decompressed content.
func (g *GzipCompressor) Open(sourcePath string) (io.ReadCloser, error) {
	sourceFile, err := os.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file: %w", err)
	}

	gzipReader, err := gzip.NewReader(sourceFile)
	if err != nil {
		sourceFile.Close()
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}

	return &decompressReader{file: sourceFile, gz: gzipReader}, nil
}

type decompressReader struct {
	file *os.File
	gz   *gzip.Reader
}

func (r *decompressReader) Read(p []byte) (int, error) { return r.gz.Read(p) }

func (r *decompressReader) Close() error {
	gzErr := r.gz.Close()
	fileErr := r.file.Close()
	if gzErr != nil {
		return gzErr
	}
	return fileErr
}
