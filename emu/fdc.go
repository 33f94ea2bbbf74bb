package emu

import "github.com/user-none/emzx/disk"

// Main status register bits.
const (
	msrDriveBusyMask = 0x0F
	msrBusy          = 0x10 // command in progress
	msrExecution     = 0x20 // non-DMA execution phase
	msrDataOut       = 0x40 // data register direction: FDC to CPU
	msrRQM           = 0x80 // data register ready
)

// Status register 0 bits.
const (
	st0SeekEnd      = 0x20
	st0AbnormalTerm = 0x40
	st0InvalidCmd   = 0x80
	st0NotReady     = 0x08
)

// Status register 1 bits.
const (
	st1NoData       = 0x04
	st1NotWritable  = 0x02
	st1MissingAM    = 0x01
	st1EndOfCyl     = 0x80
	st3Ready        = 0x20
	st3Track0       = 0x10
	st3TwoSide      = 0x08
	st3WriteProtect = 0x40
)

// Command codes (low five bits of the command byte).
const (
	cmdReadTrack    = 0x02
	cmdSpecify      = 0x03
	cmdSenseDrive   = 0x04
	cmdWriteData    = 0x05
	cmdReadData     = 0x06
	cmdRecalibrate  = 0x07
	cmdSenseInt     = 0x08
	cmdWriteDeleted = 0x09
	cmdReadID       = 0x0A
	cmdReadDeleted  = 0x0C
	cmdFormatTrack  = 0x0D
	cmdSeek         = 0x0F
)

// fdcParamCount is the number of parameter bytes following each command.
var fdcParamCount = map[byte]int{
	cmdReadTrack:    8,
	cmdSpecify:      2,
	cmdSenseDrive:   1,
	cmdWriteData:    8,
	cmdReadData:     8,
	cmdRecalibrate:  1,
	cmdSenseInt:     0,
	cmdWriteDeleted: 8,
	cmdReadID:       1,
	cmdReadDeleted:  8,
	cmdFormatTrack:  5,
	cmdSeek:         2,
}

type fdcPhase int

const (
	fdcCommand fdcPhase = iota
	fdcParams
	fdcExecution
	fdcResult
)

// FDC is a uPD765A floppy disk controller with a single drive, as wired
// on the +3. Transfers use non-DMA mode through the data register; there
// is no terminal count line, so multi-sector reads end at EOT with the
// end-of-cylinder status the +3 DOS expects.
type FDC struct {
	disk      *disk.Disk
	motor     bool
	cylinder  int
	idIndex   int
	intPend   bool
	intST0    byte
	driveBusy byte

	phase   fdcPhase
	command byte
	params  []byte

	data    []byte
	dataPos int
	result  []byte
	resPos  int
}

// NewFDC creates a controller with an empty drive.
func NewFDC() *FDC {
	return &FDC{params: make([]byte, 0, 8)}
}

// Reset returns the controller to the command phase. The inserted disk
// and head position are kept.
func (f *FDC) Reset() {
	f.phase = fdcCommand
	f.params = f.params[:0]
	f.data = nil
	f.result = nil
	f.intPend = false
	f.driveBusy = 0
}

// InsertDisk places d in the drive; nil ejects.
func (f *FDC) InsertDisk(d *disk.Disk) {
	f.disk = d
	f.idIndex = 0
}

// Disk returns the inserted disk or nil.
func (f *FDC) Disk() *disk.Disk {
	return f.disk
}

// Cylinder returns the current head position.
func (f *FDC) Cylinder() int {
	return f.cylinder
}

// SetMotor switches the drive motor.
func (f *FDC) SetMotor(on bool) {
	f.motor = on
}

// Motor reports whether the drive motor is running.
func (f *FDC) Motor() bool {
	return f.motor
}

func (f *FDC) ready() bool {
	return f.disk != nil && f.motor
}

// ReadStatus returns the main status register.
func (f *FDC) ReadStatus() byte {
	status := f.driveBusy & msrDriveBusyMask
	switch f.phase {
	case fdcCommand:
		status |= msrRQM
	case fdcParams:
		status |= msrRQM | msrBusy
	case fdcExecution:
		status |= msrRQM | msrDataOut | msrExecution | msrBusy
	case fdcResult:
		status |= msrRQM | msrDataOut | msrBusy
	}
	return status
}

// ReadData reads the data register.
func (f *FDC) ReadData() byte {
	switch f.phase {
	case fdcExecution:
		v := f.data[f.dataPos]
		f.dataPos++
		if f.dataPos >= len(f.data) {
			f.data = nil
			f.phase = fdcResult
		}
		return v
	case fdcResult:
		v := f.result[f.resPos]
		f.resPos++
		if f.resPos >= len(f.result) {
			f.result = nil
			f.phase = fdcCommand
		}
		return v
	default:
		return 0xFF
	}
}

// WriteData writes the data register.
func (f *FDC) WriteData(val byte) {
	switch f.phase {
	case fdcCommand:
		f.command = val
		f.params = f.params[:0]
		n, ok := fdcParamCount[val&0x1F]
		if !ok {
			f.finish(st0InvalidCmd)
			return
		}
		if n == 0 {
			f.execute()
			return
		}
		f.phase = fdcParams
	case fdcParams:
		f.params = append(f.params, val)
		if len(f.params) == fdcParamCount[f.command&0x1F] {
			f.execute()
		}
	}
}

// finish enters the result phase with the given bytes.
func (f *FDC) finish(result ...byte) {
	f.result = result
	f.resPos = 0
	f.phase = fdcResult
	if len(result) == 0 {
		f.phase = fdcCommand
	}
}

func (f *FDC) execute() {
	switch f.command & 0x1F {
	case cmdSpecify:
		f.finish()
	case cmdSenseDrive:
		f.finish(f.st3(f.params[0]))
	case cmdRecalibrate:
		f.seek(f.params[0], 0)
	case cmdSeek:
		f.seek(f.params[0], int(f.params[1]))
	case cmdSenseInt:
		if !f.intPend {
			f.finish(st0InvalidCmd)
			return
		}
		f.intPend = false
		f.driveBusy = 0
		f.finish(f.intST0, byte(f.cylinder))
	case cmdReadID:
		f.readID()
	case cmdReadData, cmdReadDeleted:
		f.readData()
	case cmdReadTrack:
		f.readTrack()
	case cmdWriteData, cmdWriteDeleted:
		f.rejectWrite()
	case cmdFormatTrack:
		us := f.params[0] & 0x07
		f.finish(st0AbnormalTerm|us, st1NotWritable, 0, byte(f.cylinder), 0, 0, f.params[1])
	}
}

func (f *FDC) st3(hdus byte) byte {
	st3 := hdus & 0x07
	if f.ready() {
		st3 |= st3Ready
	}
	if f.cylinder == 0 {
		st3 |= st3Track0
	}
	if f.disk != nil && f.disk.Header.NumberOfSides > 1 {
		st3 |= st3TwoSide
	}
	return st3 | st3WriteProtect
}

func (f *FDC) seek(hdus byte, cylinder int) {
	us := hdus & 0x03
	f.intPend = true
	f.driveBusy = 1 << us
	if !f.ready() {
		f.intST0 = st0AbnormalTerm | st0NotReady | us
		f.finish()
		return
	}
	f.cylinder = cylinder
	f.idIndex = 0
	f.intST0 = st0SeekEnd | us
	f.finish()
}

// currentTrack returns the track under the head for the given side.
func (f *FDC) currentTrack(side int) *disk.Track {
	if f.disk == nil {
		return nil
	}
	return f.disk.TrackAt(f.cylinder, side)
}

func (f *FDC) readID() {
	hdus := f.params[0]
	st0 := hdus & 0x07
	if !f.ready() {
		f.finish(st0|st0AbnormalTerm|st0NotReady, 0, 0, 0, 0, 0, 0)
		return
	}
	t := f.currentTrack(int(hdus>>2) & 1)
	if t == nil || len(t.Sectors) == 0 {
		f.finish(st0|st0AbnormalTerm, st1MissingAM, 0, 0, 0, 0, 0)
		return
	}
	s := t.Sectors[f.idIndex%len(t.Sectors)]
	f.idIndex++
	f.finish(st0, 0, 0, s.Track, s.Side, s.ID, s.Size)
}

// readData gathers sectors R..EOT of the current track into the transfer
// buffer. Each sector read completes its weak-copy rotation.
func (f *FDC) readData() {
	hdus, c, h, r, n, eot := f.params[0], f.params[1], f.params[2], f.params[3], f.params[4], f.params[5]
	st0 := hdus & 0x07
	if !f.ready() {
		f.finish(st0|st0AbnormalTerm|st0NotReady, 0, 0, c, h, r, n)
		return
	}
	t := f.currentTrack(int(hdus>>2) & 1)
	if t == nil {
		f.finish(st0|st0AbnormalTerm, st1NoData|st1MissingAM, 0, c, h, r, n)
		return
	}

	var buf []byte
	var st1, st2 byte
	for {
		s := t.Sector(r)
		if s == nil {
			st1 |= st1NoData
			break
		}
		buf = append(buf, s.ActualData()...)
		s.SectorReadCompleted()
		st1 |= s.Status1
		st2 |= s.Status2
		if r >= eot {
			st1 |= st1EndOfCyl
			break
		}
		r++
	}

	f.finish(st0|st0AbnormalTerm, st1, st2, c, h, r, n)
	if len(buf) > 0 {
		f.data = buf
		f.dataPos = 0
		f.phase = fdcExecution
	}
}

// readTrack transfers the whole track as one contiguous buffer.
func (f *FDC) readTrack() {
	hdus, c, h, r, n := f.params[0], f.params[1], f.params[2], f.params[3], f.params[4]
	st0 := hdus & 0x07
	if !f.ready() {
		f.finish(st0|st0AbnormalTerm|st0NotReady, 0, 0, c, h, r, n)
		return
	}
	t := f.currentTrack(int(hdus>>2) & 1)
	if t == nil || len(t.Sectors) == 0 {
		f.finish(st0|st0AbnormalTerm, st1NoData|st1MissingAM, 0, c, h, r, n)
		return
	}
	buf := t.Data()
	for _, s := range t.Sectors {
		s.SectorReadCompleted()
	}
	f.finish(st0|st0AbnormalTerm, st1EndOfCyl, 0, c, h, r, n)
	f.data = buf
	f.dataPos = 0
	f.phase = fdcExecution
}

func (f *FDC) rejectWrite() {
	hdus, c, h, r, n := f.params[0], f.params[1], f.params[2], f.params[3], f.params[4]
	st0 := hdus&0x07 | st0AbnormalTerm
	if !f.ready() {
		f.finish(st0|st0NotReady, 0, 0, c, h, r, n)
		return
	}
	f.finish(st0, st1NotWritable, 0, c, h, r, n)
}
