package audio

import "testing"

func TestResample_Identity(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	got := Resample(in, 24000, 24000)

	if len(got) != len(in) {
		t.Fatalf("got %d samples, want %d", len(got), len(in))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample[%d] = %v, want %v", i, got[i], in[i])
		}
	}
}

func TestResample_DownsampleByTwo(t *testing.T) {
	got := Resample([]float32{0, 1, 2, 3}, 2, 1)
	want := []float32{0, 2}

	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestResample_UpsampleInterpolates(t *testing.T) {
	// 1 -> 2: every other output sample sits halfway between neighbors,
	// with the final position clamped to the last input sample.
	got := Resample([]float32{0, 1}, 1, 2)
	want := []float32{0, 0.5, 1, 1}

	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if absf(got[i]-want[i]) > 1e-6 {
			t.Errorf("sample[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestResample_OutputLength(t *testing.T) {
	tests := []struct {
		name    string
		inLen   int
		inRate  int
		outRate int
		wantLen int
	}{
		{"48k to 24k", 4096, 48000, 24000, 2048},
		{"44.1k to 24k", 4410, 44100, 24000, 2400},
		{"24k to 48k", 1000, 24000, 48000, 2000},
		{"empty input", 0, 48000, 24000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := make([]float32, tt.inLen)
			got := Resample(in, tt.inRate, tt.outRate)
			if len(got) != tt.wantLen {
				t.Errorf("output length = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}
