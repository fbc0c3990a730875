package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"
)

type recordingSource struct {
	sizes    []int
	statuses []error
	next     float32
}

func (s *recordingSource) FillBlock(dst []float32, status error) {
	s.sizes = append(s.sizes, len(dst))
	s.statuses = append(s.statuses, status)
	for i := range dst {
		s.next++
		dst[i] = s.next
	}
}

func fakeClock(r *StreamReader, start time.Time) *time.Time {
	now := start
	r.now = func() time.Time { return now }
	return &now
}

func TestStreamReaderChunksIntoBlocks(t *testing.T) {
	src := &recordingSource{}
	r := NewStreamReader(src, 44100, 28, 1)

	buf := make([]byte, 100*4)
	n, err := r.Read(buf)
	if err != nil || n != len(buf) {
		t.Fatalf("Read = %d, %v", n, err)
	}
	want := []int{28, 28, 28, 16}
	if len(src.sizes) != len(want) {
		t.Fatalf("blocks = %v, want %v", src.sizes, want)
	}
	for i := range want {
		if src.sizes[i] != want[i] {
			t.Fatalf("blocks = %v, want %v", src.sizes, want)
		}
	}
	for i := 0; i < 100; i++ {
		got := math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		if got != float32(i+1) {
			t.Fatalf("sample %d = %v, want %v", i, got, i+1)
		}
	}
}

func TestStreamReaderDuplicatesChannels(t *testing.T) {
	src := &recordingSource{}
	r := NewStreamReader(src, 44100, 28, 2)

	buf := make([]byte, 3*8)
	if _, err := r.Read(buf); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		l := math.Float32frombits(binary.LittleEndian.Uint32(buf[i*8:]))
		rr := math.Float32frombits(binary.LittleEndian.Uint32(buf[i*8+4:]))
		if l != rr || l != float32(i+1) {
			t.Fatalf("frame %d = (%v, %v)", i, l, rr)
		}
	}
}

func TestStreamReaderMisalignedRead(t *testing.T) {
	src := &recordingSource{}
	r := NewStreamReader(src, 44100, 28, 2)

	buf := make([]byte, 8*5+3)
	for i := range buf {
		buf[i] = 0xff
	}
	n, _ := r.Read(buf)
	if n != len(buf) {
		t.Fatalf("n = %d, want %d", n, len(buf))
	}
	if !errors.Is(src.statuses[0], ErrMisaligned) {
		t.Fatalf("status = %v, want ErrMisaligned", src.statuses[0])
	}
	for _, b := range buf[40:] {
		if b != 0 {
			t.Fatalf("partial frame tail not zeroed: %v", buf[40:])
		}
	}
}

func TestStreamReaderReportsUnderrun(t *testing.T) {
	src := &recordingSource{}
	r := NewStreamReader(src, 1000, 10, 1)
	now := fakeClock(r, time.Unix(100, 0))

	buf := make([]byte, 20*4)
	r.Read(buf) // 20ms of audio
	*now = now.Add(30 * time.Millisecond)
	r.Read(buf)
	*now = now.Add(60 * time.Millisecond)
	r.Read(buf)

	var got []error
	for i, s := range src.statuses {
		if i%2 == 0 {
			got = append(got, s)
		} else if s != nil {
			t.Fatalf("status on non-first block %d: %v", i, s)
		}
	}
	if got[0] != nil || got[1] != nil {
		t.Fatalf("unexpected early status: %v", got)
	}
	if !errors.Is(got[2], ErrUnderrun) {
		t.Fatalf("status = %v, want ErrUnderrun", got[2])
	}
}

func TestStreamReaderSinkErrReportedOnChange(t *testing.T) {
	src := &recordingSource{}
	r := NewStreamReader(src, 44100, 28, 1)
	fakeClock(r, time.Unix(100, 0))
	sinkErr := errors.New("device lost")
	r.SetSinkErr(func() error { return sinkErr })

	buf := make([]byte, 28*4)
	r.Read(buf)
	r.Read(buf)
	if src.statuses[0] != sinkErr {
		t.Fatalf("first status = %v", src.statuses[0])
	}
	if src.statuses[1] != nil {
		t.Fatalf("repeated status = %v, want nil", src.statuses[1])
	}
}

func TestStreamReaderSilence(t *testing.T) {
	src := &recordingSource{}
	r := NewStreamReader(src, 44100, 28, 1)
	r.Silence()

	buf := make([]byte, 64*4)
	for i := range buf {
		buf[i] = 1
	}
	r.Read(buf)
	if len(src.sizes) != 0 {
		t.Fatalf("source consulted after Silence: %v", src.sizes)
	}
	for _, b := range buf {
		if b != 0 {
			t.Fatal("silenced output not zero")
		}
	}
}

func TestStreamFillsBothChannels(t *testing.T) {
	src := &recordingSource{}
	r := NewStreamReader(src, 44100, 28, 2)

	samples := make([][2]float64, 30)
	n, ok := r.Stream(samples)
	if n != 30 || !ok {
		t.Fatalf("Stream = %d, %v", n, ok)
	}
	if samples[29][0] != 30 || samples[29][1] != 30 {
		t.Fatalf("last frame = %v", samples[29])
	}
	if len(src.sizes) != 2 || src.sizes[1] != 2 {
		t.Fatalf("blocks = %v", src.sizes)
	}
}

func TestNewBackendUnknown(t *testing.T) {
	_, err := NewBackend("jack", &recordingSource{}, Options{SampleRate: 44100, BlockSize: 28})
	if !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("err = %v, want ErrUnknownBackend", err)
	}
	if _, err := NewBackend("headless", &recordingSource{}, Options{}); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestHeadlessPullsAndStops(t *testing.T) {
	src := &recordingSource{}
	b, err := NewBackend("headless", src, Options{SampleRate: 8000, BlockSize: 16})
	if err != nil {
		t.Fatal(err)
	}
	h := b.(*Headless)
	h.period = time.Millisecond
	if err := h.Start(); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for h.Frames() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if h.Frames() == 0 {
		t.Fatal("headless backend never pulled audio")
	}
	after := h.Frames()
	time.Sleep(5 * time.Millisecond)
	if h.Frames() != after {
		t.Fatal("headless backend kept pulling after Close")
	}
}
