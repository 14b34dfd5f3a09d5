package wire

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func sampleFrame(payload string) Frame {
	return Frame{
		Headers: []Header{
			StringHeader(":message-type", "event"),
			StringHeader(":event-type", "assistantResponseEvent"),
		},
		Payload: []byte(payload),
	}
}

func TestFrameRoundtrip(t *testing.T) {
	f := sampleFrame(`{"content":"hi"}`)
	encoded, err := Encode(f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	d := NewDecoder()
	frames, err := d.Feed(encoded)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if !bytes.Equal(frames[0].Payload, f.Payload) {
		t.Fatalf("payload mismatch: %q vs %q", frames[0].Payload, f.Payload)
	}
	if d.ErrorCount() != 0 {
		t.Fatalf("expected zero errors, got %d", d.ErrorCount())
	}
}

func TestFrameSplitTolerance(t *testing.T) {
	f1 := sampleFrame("one")
	f2 := sampleFrame("two-longer-payload")
	f3 := sampleFrame("3")

	var all []byte
	for _, f := range []Frame{f1, f2, f3} {
		enc, err := Encode(f)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		all = append(all, enc...)
	}

	// Feed in arbitrary, non-frame-aligned chunks.
	chunkSizes := []int{1, 3, 7, 50, 1000}
	for _, size := range chunkSizes {
		d := NewDecoder()
		var got []Frame
		for i := 0; i < len(all); i += size {
			end := i + size
			if end > len(all) {
				end = len(all)
			}
			frames, err := d.Feed(all[i:end])
			if err != nil {
				t.Fatalf("feed chunk size %d: %v", size, err)
			}
			got = append(got, frames...)
		}
		if len(got) != 3 {
			t.Fatalf("chunk size %d: expected 3 frames, got %d", size, len(got))
		}
		if string(got[0].Payload) != "one" || string(got[1].Payload) != "two-longer-payload" || string(got[2].Payload) != "3" {
			t.Fatalf("chunk size %d: payload mismatch: %+v", size, got)
		}
	}
}

func TestFrameResync(t *testing.T) {
	f := sampleFrame("resynced")
	encoded, err := Encode(f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	junk := bytes.Repeat([]byte{0x00, 0x01, 0x02, 0x03, 0x04}, 3)
	input := append(junk, encoded...)

	d := NewDecoder()
	// Every junk byte costs one resync error; give the decoder enough
	// budget to reach the real prelude instead of stopping at the default.
	d.MaxErrors = len(junk) + 1
	frames, err := d.Feed(input)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame after resync, got %d", len(frames))
	}
	if string(frames[0].Payload) != "resynced" {
		t.Fatalf("payload mismatch: %q", frames[0].Payload)
	}
	if d.ErrorCount() == 0 {
		t.Fatal("expected nonzero error_count from resync")
	}
}

func TestFrameCRCRejection(t *testing.T) {
	f := sampleFrame("crc-test")
	encoded, err := Encode(f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	t.Run("prelude_crc_flip", func(t *testing.T) {
		corrupt := append([]byte(nil), encoded...)
		corrupt[9] ^= 0xFF // inside the 8-12 prelude_crc field
		d := NewDecoder()
		frames, _ := d.Feed(corrupt)
		if len(frames) != 0 {
			t.Fatalf("expected no frames from corrupted prelude, got %d", len(frames))
		}
		if d.ErrorCount() == 0 {
			t.Fatal("expected recorded error")
		}
	})

	t.Run("trailing_crc_flip", func(t *testing.T) {
		corrupt := append([]byte(nil), encoded...)
		corrupt[len(corrupt)-1] ^= 0xFF
		d := NewDecoder()
		frames, _ := d.Feed(corrupt)
		if len(frames) != 0 {
			t.Fatalf("expected no frames from corrupted message crc, got %d", len(frames))
		}
		if d.ErrorCount() != 1 {
			t.Fatalf("expected exactly 1 error, got %d", d.ErrorCount())
		}
	})
}

func TestFrameMidFrameCorruptionScenario(t *testing.T) {
	// spec §8 scenario 3: encode(F1) ++ bitflip(encode(F2)) ++ encode(F3)
	f1 := sampleFrame("F1")
	f2 := sampleFrame("F2-this-one-gets-corrupted")
	f3 := sampleFrame("F3")

	e1, _ := Encode(f1)
	e2, _ := Encode(f2)
	e3, _ := Encode(f3)
	e2[len(e2)-1] ^= 0xFF // flip a bit in F2's trailing CRC

	input := append(append(append([]byte{}, e1...), e2...), e3...)

	d := NewDecoder()
	frames, err := d.Feed(input)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected [F1, F3], got %d frames", len(frames))
	}
	if string(frames[0].Payload) != "F1" || string(frames[1].Payload) != "F3" {
		t.Fatalf("unexpected payloads: %q %q", frames[0].Payload, frames[1].Payload)
	}
	if d.ErrorCount() != 1 {
		t.Fatalf("expected error_count == 1, got %d", d.ErrorCount())
	}
}

func TestFrameMaxErrorsStopsDecoder(t *testing.T) {
	d := NewDecoder()
	d.MaxErrors = 3
	// All-junk input with no valid prelude ever: each byte triggers a
	// resync error until MaxErrors is hit, then the decoder stops.
	junk := bytes.Repeat([]byte{0xAA}, 100)
	_, err := d.Feed(junk)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if !d.Stopped() {
		t.Fatal("expected decoder to be stopped after exceeding MaxErrors")
	}
	if d.ErrorCount() < 3 {
		t.Fatalf("expected at least 3 errors, got %d", d.ErrorCount())
	}
	more, err := d.Feed([]byte{0x00})
	if err != nil {
		t.Fatalf("feed after stop: %v", err)
	}
	if len(more) != 0 {
		t.Fatal("stopped decoder must not emit frames")
	}
}

func TestFrameInvalidHeadersLengthRange(t *testing.T) {
	// total_length valid range, but headers_length > total_length-16: must
	// be rejected as an invalid prelude (triggers resync), not a panic.
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], 20) // total_length
	binary.BigEndian.PutUint32(buf[4:8], 10) // headers_length > 20-16=4
	binary.BigEndian.PutUint32(buf[8:12], checksum(buf[0:8]))

	d := NewDecoder()
	frames, err := d.Feed(buf)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(frames) != 0 {
		t.Fatal("expected no frames from invalid headers_length")
	}
	if d.ErrorCount() == 0 {
		t.Fatal("expected recorded error for invalid headers_length")
	}
}
