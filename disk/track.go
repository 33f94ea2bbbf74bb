package disk

// Track is one decoded Track-Info block and its sectors, in the order they
// appear on the image.
type Track struct {
	Number        int
	Side          int
	DataRate      uint8
	RecordingMode uint8
	SectorSize    uint8
	GapLength     uint8
	FillerByte    uint8
	Sectors       []*Sector

	// DeclaredLength is the sum of the stored sector lengths.
	DeclaredLength int
	// Unformatted marks a zero-size entry in an Extended image.
	Unformatted bool
}

// Sector finds a sector by its R (ID) byte.
func (t *Track) Sector(id uint8) *Sector {
	for _, s := range t.Sectors {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Data concatenates the ActualData of every sector in image order.
// Weak sectors contribute their current copy.
func (t *Track) Data() []byte {
	var buf []byte
	for _, s := range t.Sectors {
		buf = append(buf, s.ActualData()...)
	}
	return buf
}

// Sector is one sector of a track. Copy-protected images may store several
// divergent copies of a sector back to back; such sectors are flagged with
// ContainsMultipleWeakSectors and successive reads rotate through the copies.
type Sector struct {
	Track   uint8
	Side    uint8
	ID      uint8
	Size    uint8 // N: nominal size is 0x80 << N
	Status1 uint8
	Status2 uint8

	DeclaredLength int
	Data           []byte

	ContainsMultipleWeakSectors bool

	filler        uint8
	weakReadIndex int
}

// NominalSize returns the size implied by the sector size code.
func (s *Sector) NominalSize() int {
	return nominalSize(s.Size)
}

// Copies returns the number of stored copies (1 for ordinary sectors).
func (s *Sector) Copies() int {
	if !s.ContainsMultipleWeakSectors {
		return 1
	}
	return len(s.Data) / s.NominalSize()
}

// WeakReadIndex returns the copy the next read returns.
func (s *Sector) WeakReadIndex() int {
	return s.weakReadIndex
}

// ActualData returns the bytes a read of this sector yields. Short sectors
// are padded with the track filler byte; weak sectors return the current
// copy.
func (s *Sector) ActualData() []byte {
	n := s.NominalSize()
	if s.ContainsMultipleWeakSectors {
		start := s.weakReadIndex * n
		out := make([]byte, n)
		copy(out, s.Data[start:start+n])
		return out
	}
	out := make([]byte, max(n, len(s.Data)))
	copied := copy(out, s.Data)
	for i := copied; i < len(out); i++ {
		out[i] = s.filler
	}
	return out[:n]
}

// SectorReadCompleted advances the weak copy cursor, wrapping at the copy
// count. It is a no-op for ordinary sectors.
func (s *Sector) SectorReadCompleted() {
	if !s.ContainsMultipleWeakSectors {
		return
	}
	s.weakReadIndex = (s.weakReadIndex + 1) % s.Copies()
}
