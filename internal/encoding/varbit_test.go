package encoding

import (
	"math"
	"math/rand"
	"testing"

	"github.com/chronos-db/chronos/internal/bits"
)

func TestVarbitTSBucketBoundaries(t *testing.T) {
	values := []int64{
		0,
		1, -1,
		8192, -8191,
		8193, -8192,
		65536, -65535,
		65537, -65536,
		524288, -524287,
		524289, -524288,
		math.MaxInt64, math.MinInt64,
	}

	bw := bits.NewWriter()
	for _, v := range values {
		WriteVarbitTS(bw, v)
	}

	br := bits.NewReader(bw.Padded())
	for i, want := range values {
		got, err := ReadVarbitTS(br)
		if err != nil {
			t.Fatalf("value %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("value %d: got %d, want %d", i, got, want)
		}
	}
}

func TestVarbitTSZeroIsOneBit(t *testing.T) {
	bw := bits.NewWriter()
	WriteVarbitTS(bw, 0)
	if bw.BitLen() != 1 {
		t.Errorf("zero dod took %d bits, want 1", bw.BitLen())
	}
}

func TestVarbitTSRandomRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 128; trial++ {
		n := 1 + rng.Intn(128)
		values := make([]int64, 0, n)
		v := rng.Int63n(200000) - 100000
		values = append(values, v)
		for i := 1; i < n; i++ {
			switch rng.Intn(3) {
			case 0:
				v++
			case 1:
				v = int64(rng.Uint64())
			}
			values = append(values, v)
		}

		bw := bits.NewWriter()
		for _, v := range values {
			WriteVarbitTS(bw, v)
		}

		br := bits.NewReader(bw.Padded())
		for i, want := range values {
			got, err := ReadVarbitTS(br)
			if err != nil {
				t.Fatalf("trial %d value %d: %v", trial, i, err)
			}
			if got != want {
				t.Fatalf("trial %d value %d: got %d, want %d", trial, i, got, want)
			}
		}
	}
}
