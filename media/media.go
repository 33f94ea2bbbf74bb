// Package media loads tape, disk and ROM images from the host filesystem,
// unwrapping .zip, .gz and .7z containers.
package media

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/cespare/xxhash"

	"github.com/user-none/emzx/disk"
	"github.com/user-none/emzx/emu"
)

var (
	// ErrEmptyArchive is returned for an archive with no regular files.
	ErrEmptyArchive = errors.New("media: archive is empty")
	// ErrKind is returned when an image is used as the wrong kind.
	ErrKind = errors.New("media: wrong image kind")
)

// Kind identifies what an image holds.
type Kind int

const (
	KindUnknown Kind = iota
	KindROM
	KindTape
	KindDisk
)

func (k Kind) String() string {
	switch k {
	case KindROM:
		return "rom"
	case KindTape:
		return "tape"
	case KindDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// DetectKind guesses the kind from a file name's extension.
func DetectKind(name string) Kind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".rom", ".bin":
		return KindROM
	case ".tap":
		return KindTape
	case ".dsk":
		return KindDisk
	default:
		return KindUnknown
	}
}

// Image is a loaded, decompressed media file.
type Image struct {
	// Name is the base name of the payload, inside the archive if any.
	Name string
	Kind Kind
	Data []byte
}

// Fingerprint returns the xxhash of the payload. It identifies an image
// independently of its container and file name.
func (img *Image) Fingerprint() uint64 {
	return Fingerprint(img.Data)
}

// Fingerprint hashes raw image data.
func Fingerprint(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// Tape parses the payload as a .tap block list.
func (img *Image) Tape() ([]emu.TapeBlock, error) {
	if img.Kind != KindTape {
		return nil, fmt.Errorf("%w: %s is %s, not tape", ErrKind, img.Name, img.Kind)
	}
	blocks, err := emu.ParseTAP(img.Data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", img.Name, err)
	}
	return blocks, nil
}

// Disk parses the payload as a CPC disk image.
func (img *Image) Disk() (*disk.Disk, error) {
	if img.Kind != KindDisk {
		return nil, fmt.Errorf("%w: %s is %s, not disk", ErrKind, img.Name, img.Kind)
	}
	d, err := disk.Parse(img.Data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", img.Name, err)
	}
	return d, nil
}

// Load reads path and unwraps it if it is a container. Archives yield
// their first entry with a recognised extension, or their first regular
// file when none is recognised.
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading media: %w", err)
	}
	img, err := decode(filepath.Base(path), data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return img, nil
}

func decode(name string, data []byte) (*Image, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz":
		return decodeGzip(name, data)
	case ".zip":
		return decodeZip(data)
	case ".7z":
		return decode7z(data)
	}
	return &Image{Name: name, Kind: DetectKind(name), Data: data}, nil
}

func decodeGzip(name string, data []byte) (*Image, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	inner := zr.Name
	if inner == "" {
		inner = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return &Image{Name: inner, Kind: DetectKind(inner), Data: out}, nil
}

// entry is the part of an archive member needed to pick and read it.
type entry struct {
	name string
	dir  bool
	open func() (io.ReadCloser, error)
}

func decodeZip(data []byte) (*Image, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	entries := make([]entry, 0, len(zr.File))
	for _, f := range zr.File {
		entries = append(entries, entry{name: f.Name, dir: f.FileInfo().IsDir(), open: f.Open})
	}
	return readEntry(entries)
}

func decode7z(data []byte) (*Image, error) {
	r, err := sevenzip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	entries := make([]entry, 0, len(r.File))
	for _, f := range r.File {
		entries = append(entries, entry{name: f.Name, dir: f.FileInfo().IsDir(), open: f.Open})
	}
	return readEntry(entries)
}

func readEntry(entries []entry) (*Image, error) {
	var pick *entry
	for i := range entries {
		e := &entries[i]
		if e.dir {
			continue
		}
		if pick == nil {
			pick = e
		}
		if DetectKind(e.name) != KindUnknown {
			pick = e
			break
		}
	}
	if pick == nil {
		return nil, ErrEmptyArchive
	}

	rc, err := pick.open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	out, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(pick.name)
	return &Image{Name: name, Kind: DetectKind(name), Data: out}, nil
}
