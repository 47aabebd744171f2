package credential

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
	}{
		{name: "typical hotspot", creds: Credentials{NetworkName: "AndroidShare_4821", Passphrase: "x9k2mq7p", Address: "192.168.49.1"}},
		{name: "empty passphrase", creds: Credentials{NetworkName: "open", Passphrase: "", Address: "10.42.0.1"}},
		{name: "spaces and unicode", creds: Credentials{NetworkName: "Café Wi-Fi", Passphrase: "pa ss wörd", Address: "172.16.0.254"}},
		{name: "quotes preserved", creds: Credentials{NetworkName: `"quoted"`, Passphrase: `"p"`, Address: "1.2.3.4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := Encode(tt.creds)
			require.NoError(t, err)

			got, err := Decode(payload)
			require.NoError(t, err)
			assert.Equal(t, tt.creds, got)
		})
	}
}

func TestEncodeWireFormat(t *testing.T) {
	payload, err := Encode(Credentials{NetworkName: "net", Passphrase: "pass", Address: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "net\tpass\t10.0.0.1", string(payload))
}

func TestEncodeRejects(t *testing.T) {
	_, err := Encode(Credentials{NetworkName: "a\tb", Passphrase: "p", Address: "10.0.0.1"})
	assert.ErrorIs(t, err, ErrDelimiter)

	_, err = Encode(Credentials{NetworkName: "a", Passphrase: "p\t", Address: "10.0.0.1"})
	assert.ErrorIs(t, err, ErrDelimiter)

	_, err = Encode(Credentials{NetworkName: "a", Passphrase: "p", Address: "10.0.0"})
	assert.ErrorIs(t, err, ErrAddress)
}

func TestDecodeMalformed(t *testing.T) {
	for _, payload := range []string{"", "only\ttwo", "a\tb\tnot-an-ip", "a\tb\t300.1.1.1"} {
		_, err := Decode([]byte(payload))
		assert.ErrorIs(t, err, ErrMalformed, "payload %q", payload)
	}
}

func TestDecodeIgnoresExtraFields(t *testing.T) {
	got, err := Decode([]byte("net\tpass\t10.0.0.1\textra"))
	require.NoError(t, err)
	assert.Equal(t, Credentials{NetworkName: "net", Passphrase: "pass", Address: "10.0.0.1"}, got)
}

func TestRandomRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	alphabet := []rune("abcdefghijklmnopqrstuvwxyzABCDEF0123456789 !\"#$%&'()*+,-./:;<=>?@_~é中")

	randomString := func() string {
		n := rng.Intn(40)
		out := make([]rune, n)
		for i := range out {
			out[i] = alphabet[rng.Intn(len(alphabet))]
		}
		return string(out)
	}

	for i := 0; i < 500; i++ {
		c := Credentials{
			NetworkName: randomString(),
			Passphrase:  randomString(),
			Address:     randomAddress(rng),
		}
		payload, err := Encode(c)
		require.NoError(t, err)
		got, err := Decode(payload)
		require.NoError(t, err)
		require.Equal(t, c, got)
	}
}

func randomAddress(rng *rand.Rand) string {
	return fmt.Sprintf("%d.%d.%d.%d", rng.Intn(256), rng.Intn(256), rng.Intn(256), rng.Intn(256))
}

func TestIsDottedQuad(t *testing.T) {
	valid := []string{"0.0.0.0", "192.168.1.1", "255.255.255.255"}
	invalid := []string{"", "1.2.3", "1.2.3.4.5", "256.1.1.1", "a.b.c.d", "1..2.3", "-1.2.3.4", "+1.2.3.4", "1.2.3.0004"}

	for _, s := range valid {
		assert.True(t, IsDottedQuad(s), s)
	}
	for _, s := range invalid {
		assert.False(t, IsDottedQuad(s), s)
	}
}

// chunkReader serves a slot the way a transport with a fixed payload size does.
type chunkReader struct {
	slot  *Slot
	chunk int
	reads int
}

func (r *chunkReader) ReadAt(ctx context.Context, offset int) ([]byte, error) {
	r.reads++
	b := r.slot.ReadAt(offset)
	if len(b) > r.chunk {
		b = b[:r.chunk]
	}
	return b, nil
}

func TestSlotReadAt(t *testing.T) {
	slot := NewSlot([]byte("abcdef"))

	assert.Equal(t, []byte("abcdef"), slot.ReadAt(0))
	assert.Equal(t, []byte("def"), slot.ReadAt(3))
	assert.Equal(t, []byte("f"), slot.ReadAt(5))
	assert.Equal(t, []byte{}, slot.ReadAt(6))
	assert.Equal(t, []byte{}, slot.ReadAt(100))
	assert.Equal(t, []byte("abcdef"), slot.ReadAt(-4))
	assert.Equal(t, 6, slot.Len())
}

func TestSlotCopiesValue(t *testing.T) {
	value := []byte("abc")
	slot := NewSlot(value)
	value[0] = 'z'

	out := slot.ReadAt(0)
	out[1] = 'z'

	assert.Equal(t, []byte("abc"), slot.ReadAt(0))
}

func TestReadChunkedReconstructs(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 200; i++ {
		payload := make([]byte, 1+rng.Intn(600))
		rng.Read(payload)
		chunk := 1 + rng.Intn(len(payload))

		r := &chunkReader{slot: NewSlot(payload), chunk: chunk}
		got, err := ReadChunked(context.Background(), r, chunk)
		require.NoError(t, err)
		require.Equal(t, payload, got, "payload %d bytes, chunk %d", len(payload), chunk)
	}
}

func TestReadChunkedExactMultipleEndsOnEmptyRead(t *testing.T) {
	r := &chunkReader{slot: NewSlot([]byte("abcdefgh")), chunk: 4}

	got, err := ReadChunked(context.Background(), r, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdefgh"), got)
	assert.Equal(t, 3, r.reads)
}

func TestReadChunkedLimits(t *testing.T) {
	_, err := ReadChunked(context.Background(), &chunkReader{slot: NewSlot([]byte("x")), chunk: 1}, 0)
	assert.Error(t, err)

	big := &chunkReader{slot: NewSlot(make([]byte, MaxPayload+10)), chunk: 100}
	_, err = ReadChunked(context.Background(), big, 100)
	assert.ErrorIs(t, err, ErrTooLarge)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ReadChunked(ctx, &chunkReader{slot: NewSlot([]byte("x")), chunk: 1}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
