package monitor

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cbegin/glidesynth"
	"github.com/cbegin/glidesynth/internal/audio"
	"github.com/cbegin/glidesynth/internal/engine"
)

type fakeSynth struct {
	stats  glidesynth.Stats
	volume float64
}

func (f *fakeSynth) Stats() glidesynth.Stats { return f.stats }
func (f *fakeSynth) MasterVolume() float64   { return f.volume }
func (f *fakeSynth) SetMasterVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	f.volume = v
}

func TestTickRefreshesStats(t *testing.T) {
	fs := &fakeSynth{volume: 1}
	m := NewModel(fs, "glidesynth")
	fs.stats = glidesynth.Stats{Stats: engine.Stats{FrameClock: 44100, ActiveNotes: 3}, SampleRate: 44100, Backend: "oto"}

	next, cmd := m.Update(tickMsg{})
	if cmd == nil {
		t.Fatal("tick did not reschedule")
	}
	view := next.(Model).View()
	for _, want := range []string{"oto @ 44100 Hz", "44100", "GLIDESYNTH"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestViewShowsGlideAndStatus(t *testing.T) {
	fs := &fakeSynth{volume: 1, stats: glidesynth.Stats{Stats: engine.Stats{
		GlideOffset: 2,
		GlideAdjust: -3,
		Statuses:    4,
		LastStatus:  audio.ErrUnderrun,
	}}}
	view := NewModel(fs, "x").View()
	for _, want := range []string{"+2", "-> -1", "4 (audio sink underrun)"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestVolumeKeys(t *testing.T) {
	fs := &fakeSynth{volume: 0.5}
	var m tea.Model = NewModel(fs, "x")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'-'}})
	if fs.volume < 0.449 || fs.volume > 0.451 {
		t.Fatalf("volume = %v, want 0.45", fs.volume)
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'+'}})
	if fs.volume < 0.499 || fs.volume > 0.501 {
		t.Fatalf("volume = %v, want 0.5", fs.volume)
	}
}

func TestQuitKey(t *testing.T) {
	fs := &fakeSynth{volume: 1}
	next, cmd := NewModel(fs, "x").Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if !next.(Model).Quitting() {
		t.Fatal("q did not mark the model as quitting")
	}
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("q did not quit the program")
	}
}
