package media

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/user-none/emzx/disk"
)

// testTAP is a single three-byte data block.
var testTAP = []byte{0x03, 0x00, 0xFF, 0x42, 0xBD}

func writeTestFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func makeTestZip(t *testing.T, files ...[2]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f[0])
		if err != nil {
			t.Fatalf("zip Create: %v", err)
		}
		w.Write([]byte(f[1]))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip Close: %v", err)
	}
	return buf.Bytes()
}

func TestDetectKind(t *testing.T) {
	tests := []struct {
		name string
		want Kind
	}{
		{"48.rom", KindROM},
		{"plus3-0.BIN", KindROM},
		{"manic.tap", KindTape},
		{"Disk.DSK", KindDisk},
		{"readme.txt", KindUnknown},
		{"noext", KindUnknown},
	}
	for _, tt := range tests {
		if got := DetectKind(tt.name); got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.name, tt.want, got)
		}
	}
}

func TestLoad_Plain(t *testing.T) {
	path := writeTestFile(t, "game.tap", testTAP)
	img, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.Name != "game.tap" || img.Kind != KindTape {
		t.Errorf("unexpected image %q kind %s", img.Name, img.Kind)
	}
	blocks, err := img.Tape()
	if err != nil {
		t.Fatalf("Tape: %v", err)
	}
	if len(blocks) != 1 || !blocks[0].ChecksumValid() {
		t.Errorf("expected one valid block, got %+v", blocks)
	}
}

func TestLoad_Gzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write(testTAP)
	zw.Close()

	img, err := Load(writeTestFile(t, "game.tap.gz", buf.Bytes()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.Name != "game.tap" || img.Kind != KindTape {
		t.Errorf("unexpected image %q kind %s", img.Name, img.Kind)
	}
	if !bytes.Equal(img.Data, testTAP) {
		t.Errorf("payload mismatch: %x", img.Data)
	}
}

func TestLoad_GzipHeaderName(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Name = "inner.dsk"
	zw.Write([]byte("x"))
	zw.Close()

	img, err := Load(writeTestFile(t, "blob.gz", buf.Bytes()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.Name != "inner.dsk" || img.Kind != KindDisk {
		t.Errorf("unexpected image %q kind %s", img.Name, img.Kind)
	}
}

func TestLoad_ZipPrefersKnownExtension(t *testing.T) {
	data := makeTestZip(t,
		[2]string{"docs/", ""},
		[2]string{"readme.txt", "hello"},
		[2]string{"games/jetpac.tap", string(testTAP)},
	)
	img, err := Load(writeTestFile(t, "bundle.zip", data))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.Name != "jetpac.tap" || img.Kind != KindTape {
		t.Errorf("unexpected image %q kind %s", img.Name, img.Kind)
	}
	if !bytes.Equal(img.Data, testTAP) {
		t.Errorf("payload mismatch: %x", img.Data)
	}
}

func TestLoad_ZipFallsBackToFirstFile(t *testing.T) {
	data := makeTestZip(t, [2]string{"a.txt", "first"}, [2]string{"b.txt", "second"})
	img, err := Load(writeTestFile(t, "bundle.zip", data))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(img.Data) != "first" || img.Kind != KindUnknown {
		t.Errorf("expected first unknown file, got %q kind %s", img.Data, img.Kind)
	}
}

func TestLoad_EmptyZip(t *testing.T) {
	_, err := Load(writeTestFile(t, "empty.zip", makeTestZip(t)))
	if !errors.Is(err, ErrEmptyArchive) {
		t.Errorf("expected ErrEmptyArchive, got %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.tap")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
	if _, err := Load(writeTestFile(t, "bad.zip", []byte("not a zip"))); err == nil {
		t.Error("expected error for corrupt zip")
	}
	if _, err := Load(writeTestFile(t, "bad.7z", []byte("not a 7z"))); err == nil {
		t.Error("expected error for corrupt 7z")
	}
}

func TestImage_WrongKind(t *testing.T) {
	img := &Image{Name: "game.tap", Kind: KindTape, Data: testTAP}
	if _, err := img.Disk(); !errors.Is(err, ErrKind) {
		t.Errorf("expected ErrKind, got %v", err)
	}
	img = &Image{Name: "disk.dsk", Kind: KindDisk, Data: []byte("garbage")}
	if _, err := img.Tape(); !errors.Is(err, ErrKind) {
		t.Errorf("expected ErrKind, got %v", err)
	}
	if _, err := img.Disk(); !errors.Is(err, disk.ErrSignature) {
		t.Errorf("expected disk.ErrSignature, got %v", err)
	}
}

func TestFingerprint(t *testing.T) {
	a := &Image{Data: testTAP}
	b := &Image{Name: "other", Data: append([]byte(nil), testTAP...)}
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical payloads should share a fingerprint")
	}
	if Fingerprint(testTAP) == Fingerprint(testTAP[:4]) {
		t.Error("different payloads should not share a fingerprint")
	}
}
