package cli

import (
	"sync/atomic"
	"testing"

	"github.com/user-none/emzx/control"
	"github.com/user-none/emzx/emu"
)

type countingFlusher struct {
	n atomic.Int32
}

func (f *countingFlusher) Flush() {
	f.n.Add(1)
}

func TestFlushOnHalt(t *testing.T) {
	m, err := emu.NewMachine(emu.Spectrum48, emu.WithROM(0, []byte{0x18, 0xFE})) // JR $
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	ctrl := control.New(m)
	t.Cleanup(ctrl.Close)

	var f countingFlusher
	ctrl.OnMessage(flushOnHalt(&f))
	ctx := testContext(t)

	steps := []struct {
		name string
		run  func() error
		want int32
	}{
		{"start", func() error { return ctrl.Start(ctx) }, 0},
		{"pause", func() error { return ctrl.Pause(ctx) }, 1},
		{"resume", func() error { return ctrl.Start(ctx) }, 1},
		{"stop", func() error { return ctrl.Stop(ctx) }, 2},
		{"debug", func() error { return ctrl.StartDebug(ctx) }, 3},
		{"step", func() error { return ctrl.StepInto(ctx) }, 3},
	}
	for _, tt := range steps {
		if err := tt.run(); err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got := f.n.Load(); got != tt.want {
			t.Errorf("%s: expected %d flushes, got %d", tt.name, tt.want, got)
		}
	}
}
