package compressor

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNewGzip(t *testing.T) {
	Convey("Given gzip compression levels", t, func() {
		Convey("Levels 1 through 9 are accepted", func() {
			for level := 1; level <= 9; level++ {
				_, err := NewGzip(level)
				So(err, ShouldBeNil)
			}
		})

		Convey("Levels outside the range are rejected", func() {
			for _, level := range []int{0, 10, -1} {
				_, err := NewGzip(level)
				So(err, ShouldNotBeNil)
			}
		})
	})
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	Convey("Given a dump stream", t, func() {
		comp, err := NewGzip(6)
		So(err, ShouldBeNil)

		dir := t.TempDir()
		content := strings.Repeat("CREATE TABLE trades (id int);\n", 1000)
		compressed := filepath.Join(dir, "dump.sql.gz")

		So(comp.Compress(strings.NewReader(content), compressed), ShouldBeNil)

		Convey("The compressed file is smaller than the input", func() {
			info, err := os.Stat(compressed)
			So(err, ShouldBeNil)
			So(info.Size(), ShouldBeGreaterThan, 0)
			So(info.Size(), ShouldBeLessThan, int64(len(content)))
		})

		Convey("Decompress restores the original content", func() {
			restored := filepath.Join(dir, "dump.sql")
			So(comp.Decompress(compressed, restored), ShouldBeNil)

			data, err := os.ReadFile(restored)
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, content)
		})

		Convey("Open streams the decompressed content", func() {
			reader, err := comp.Open(compressed)
			So(err, ShouldBeNil)
			defer reader.Close()

			var buf bytes.Buffer
			_, err = io.Copy(&buf, reader)
			So(err, ShouldBeNil)
			So(buf.String(), ShouldEqual, content)
		})
	})
}

func TestVerify(t *testing.T) {
	Convey("Given a compressed backup", t, func() {
		comp, err := NewGzip(6)
		So(err, ShouldBeNil)

		dir := t.TempDir()
		path := filepath.Join(dir, "dump.sql.gz")
		So(comp.Compress(strings.NewReader("some dump content for verification"), path), ShouldBeNil)

		Convey("An intact file verifies", func() {
			So(comp.Verify(path), ShouldBeNil)
		})

		Convey("A file with a corrupted tail fails verification", func() {
			data, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			data[len(data)-3] ^= 0xFF
			So(os.WriteFile(path, data, 0644), ShouldBeNil)

			So(comp.Verify(path), ShouldNotBeNil)
		})

		Convey("A truncated file fails verification", func() {
			data, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			So(os.WriteFile(path, data[:len(data)/2], 0644), ShouldBeNil)

			So(comp.Verify(path), ShouldNotBeNil)
		})

		Convey("A file that is not gzip at all fails verification", func() {
			plain := filepath.Join(dir, "plain.sql.gz")
			So(os.WriteFile(plain, []byte("-- plain SQL, no container"), 0644), ShouldBeNil)

			So(comp.Verify(plain), ShouldNotBeNil)
		})
	})
}
