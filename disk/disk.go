// Package disk decodes CPC and CPC-Extended floppy disk images (.dsk) into
// typed header, track and sector structures for the floppy disk controller.
//
// Image layout (all offsets relative to the start of a block):
//
//	Disk-Info block, 256 bytes
//	  0x00  signature ("MV - CPC..." or "EXTENDED CPC DSK File\r\nDisk-Info\r\n")
//	  0x22  creator, 14 bytes
//	  0x30  number of tracks
//	  0x31  number of sides
//	  0x32  track size, little-endian (CPC only)
//	  0x34  track size high bytes, one per track and side (Extended only)
//
//	Track-Info block, 256 bytes, followed by sector data
//	  0x00  "Track-Info\r\n"
//	  0x10  track number
//	  0x11  side number
//	  0x12  data rate (Extended)
//	  0x13  recording mode (Extended)
//	  0x14  sector size code
//	  0x15  number of sectors
//	  0x16  gap#3 length
//	  0x17  filler byte
//	  0x18  sector info list, 8 bytes per sector:
//	        C, H, R, N, ST1, ST2, data length (Extended, little-endian)
package disk

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Format identifies which disk image layout was decoded.
type Format int

const (
	FormatUnknown Format = iota
	FormatCPC
	FormatCPCExtended
)

func (f Format) String() string {
	switch f {
	case FormatCPC:
		return "CPC"
	case FormatCPCExtended:
		return "CPC-Extended"
	default:
		return "unknown"
	}
}

var (
	// ErrSignature is returned when the image carries no known signature.
	ErrSignature = errors.New("dsk: unrecognized signature")
	// ErrTruncated is returned when the image ends before a declared block.
	ErrTruncated = errors.New("dsk: truncated image")
	// ErrGeometry is returned for impossible track or side counts.
	ErrGeometry = errors.New("dsk: invalid geometry")
)

const (
	infoBlockSize      = 0x100
	sectorInfoOffset   = 0x18
	sectorInfoSize     = 8
	maxSectorsPerTrack = (infoBlockSize - sectorInfoOffset) / sectorInfoSize
	maxTrackEntries    = infoBlockSize - 0x34
	maxSizeCode        = 8
)

var (
	sigCPC         = []byte("MV - CPC")
	sigExtended    = []byte("EXTENDED CPC DSK File\r\n")
	sigTrackInfo   = []byte("Track-Info")
	identEnd       = 0x22
	creatorEnd     = 0x30
	trackSizeTable = 0x34
)

// Header is the decoded Disk-Info block.
type Header struct {
	Format         Format
	Ident          string
	Creator        string
	NumberOfTracks int
	NumberOfSides  int
	// TrackSizes holds the stored size of every track in image order
	// (track*sides + side). A zero entry is an unformatted track.
	TrackSizes []int
}

// Disk is a parsed floppy disk image.
type Disk struct {
	Header Header
	Tracks []*Track
}

// New returns an empty, unparsed disk.
func New() *Disk {
	return &Disk{}
}

// Parse decodes raw into a new Disk.
func Parse(raw []byte) (*Disk, error) {
	hdr, tracks, err := parse(raw)
	if err != nil {
		return nil, err
	}
	return &Disk{Header: hdr, Tracks: tracks}, nil
}

// ParseDisk decodes raw into d. On failure it returns false and leaves d
// untouched, so callers must check the result before using the disk.
func (d *Disk) ParseDisk(raw []byte) bool {
	hdr, tracks, err := parse(raw)
	if err != nil {
		return false
	}
	d.Header = hdr
	d.Tracks = tracks
	return true
}

// GetTrackCount returns the number of track entries (tracks x sides).
func (d *Disk) GetTrackCount() int {
	return len(d.Tracks)
}

// Track returns the track at image index i, or nil when out of range.
func (d *Disk) Track(i int) *Track {
	if i < 0 || i >= len(d.Tracks) {
		return nil
	}
	return d.Tracks[i]
}

// TrackAt returns the track for a cylinder and side, or nil.
func (d *Disk) TrackAt(cylinder, side int) *Track {
	if side < 0 || side >= d.Header.NumberOfSides || cylinder < 0 {
		return nil
	}
	return d.Track(cylinder*d.Header.NumberOfSides + side)
}

// TrackSectorData returns the sector data of track i, or nil when the
// track does not exist.
func (d *Disk) TrackSectorData(i int) []byte {
	t := d.Track(i)
	if t == nil {
		return nil
	}
	return t.Data()
}

// DetectFormat inspects the signature of raw.
func DetectFormat(raw []byte) Format {
	switch {
	case bytes.HasPrefix(raw, sigExtended):
		return FormatCPCExtended
	case bytes.HasPrefix(raw, sigCPC):
		return FormatCPC
	default:
		return FormatUnknown
	}
}

func parse(raw []byte) (Header, []*Track, error) {
	var hdr Header

	hdr.Format = DetectFormat(raw)
	if hdr.Format == FormatUnknown {
		return hdr, nil, ErrSignature
	}
	if len(raw) < infoBlockSize {
		return hdr, nil, fmt.Errorf("%w: disk info block needs %d bytes, have %d", ErrTruncated, infoBlockSize, len(raw))
	}

	hdr.Ident = cString(raw[:identEnd])
	hdr.Creator = cString(raw[identEnd:creatorEnd])
	hdr.NumberOfTracks = int(raw[0x30])
	hdr.NumberOfSides = int(raw[0x31])
	if hdr.NumberOfTracks == 0 || hdr.NumberOfSides < 1 || hdr.NumberOfSides > 2 {
		return hdr, nil, fmt.Errorf("%w: %d tracks, %d sides", ErrGeometry, hdr.NumberOfTracks, hdr.NumberOfSides)
	}

	entries := hdr.NumberOfTracks * hdr.NumberOfSides
	hdr.TrackSizes = make([]int, entries)
	if hdr.Format == FormatCPC {
		size := int(binary.LittleEndian.Uint16(raw[0x32:]))
		for i := range hdr.TrackSizes {
			hdr.TrackSizes[i] = size
		}
	} else {
		if entries > maxTrackEntries {
			return hdr, nil, fmt.Errorf("%w: %d track entries exceed the size table", ErrGeometry, entries)
		}
		for i := range hdr.TrackSizes {
			hdr.TrackSizes[i] = int(raw[trackSizeTable+i]) << 8
		}
	}

	tracks := make([]*Track, entries)
	offset := infoBlockSize
	for i := 0; i < entries; i++ {
		size := hdr.TrackSizes[i]
		if size == 0 {
			tracks[i] = &Track{
				Number:      i / hdr.NumberOfSides,
				Side:        i % hdr.NumberOfSides,
				Unformatted: true,
			}
			continue
		}
		if offset+size > len(raw) {
			return hdr, nil, fmt.Errorf("%w: track %d needs %d bytes at offset %d, have %d", ErrTruncated, i, size, offset, len(raw)-offset)
		}
		t, err := parseTrack(raw[offset:offset+size], hdr.Format)
		if err != nil {
			return hdr, nil, fmt.Errorf("track %d: %w", i, err)
		}
		tracks[i] = t
		offset += size
	}

	return hdr, tracks, nil
}

func parseTrack(block []byte, format Format) (*Track, error) {
	if len(block) < infoBlockSize {
		return nil, fmt.Errorf("%w: track info block", ErrTruncated)
	}
	if !bytes.HasPrefix(block, sigTrackInfo) {
		return nil, fmt.Errorf("%w: missing Track-Info", ErrSignature)
	}

	t := &Track{
		Number:        int(block[0x10]),
		Side:          int(block[0x11]),
		DataRate:      block[0x12],
		RecordingMode: block[0x13],
		SectorSize:    block[0x14],
		GapLength:     block[0x16],
		FillerByte:    block[0x17],
	}
	count := int(block[0x15])
	if count > maxSectorsPerTrack {
		return nil, fmt.Errorf("%w: %d sectors on one track", ErrGeometry, count)
	}

	t.Sectors = make([]*Sector, count)
	declared := 0
	nominal := 0
	for j := 0; j < count; j++ {
		info := block[sectorInfoOffset+j*sectorInfoSize:]
		s := &Sector{
			Track:   info[0],
			Side:    info[1],
			ID:      info[2],
			Size:    info[3],
			Status1: info[4],
			Status2: info[5],
			filler:  t.FillerByte,
		}
		if format == FormatCPCExtended {
			s.DeclaredLength = int(binary.LittleEndian.Uint16(info[6:]))
		} else {
			s.DeclaredLength = nominalSize(t.SectorSize)
		}
		t.Sectors[j] = s
		declared += s.DeclaredLength
		nominal += s.NominalSize()
	}

	data := block[infoBlockSize:]
	if declared > len(data) {
		return nil, fmt.Errorf("%w: sector data needs %d bytes, have %d", ErrTruncated, declared, len(data))
	}

	// Plain images store every sector at the track size code, so only
	// Extended images can carry weak copies.
	weakTrack := format == FormatCPCExtended && declared > nominal
	pos := 0
	for _, s := range t.Sectors {
		s.Data = make([]byte, s.DeclaredLength)
		copy(s.Data, data[pos:pos+s.DeclaredLength])
		pos += s.DeclaredLength

		n := s.NominalSize()
		if weakTrack && s.DeclaredLength > n && s.DeclaredLength%n == 0 {
			s.ContainsMultipleWeakSectors = true
		}
	}
	t.DeclaredLength = declared
	return t, nil
}

// nominalSize returns 0x80 << code, clamping oversize codes.
func nominalSize(code uint8) int {
	if code > maxSizeCode {
		code = maxSizeCode
	}
	return 0x80 << code
}

// cString trims NUL padding and trailing blanks from a fixed-width field.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(bytes.TrimRight(b, " \r\n"))
}
