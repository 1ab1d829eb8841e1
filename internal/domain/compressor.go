package domain

import "io"

// Compressor writes and reads the compressed artifact container.
type Compressor interface {
	// Compress drains src into a compressed file at destPath.
	Compress(src io.Reader, destPath string) error
	Decompress(sourcePath, destPath string) error
	// Verify performs a full decompression read of the container,
	// discarding the output. A truncated or corrupted file fails.
	Verify(sourcePath string) error
	// Open returns a streaming reader over the decompressed content.
	Open(sourcePath string) (io.ReadCloser, error)
}
