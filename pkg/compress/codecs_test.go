package compress

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip_AllCodecs(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	noise := make([]byte, 64<<10)
	rnd.Read(noise)

	inputs := map[string][]byte{
		"empty":      {},
		"short":      []byte("hello"),
		"repetitive": bytes.Repeat([]byte("steeze "), 4096),
		"noise":      noise,
	}

	set := Default()
	names := append([]string{Identity}, set.Names()...)
	for _, name := range names {
		for label, in := range inputs {
			out, err := set.Compress(name, in)
			require.NoError(t, err, "%s/%s compress", name, label)
			back, err := set.Uncompress(name, out)
			require.NoError(t, err, "%s/%s uncompress", name, label)
			assert.Equal(t, in, back, "%s/%s round trip", name, label)
		}
	}
}

func TestSet_Unsupported(t *testing.T) {
	set := New(Gzip())
	assert.True(t, set.IsSupported(""))
	assert.True(t, set.IsSupported("gzip"))
	assert.False(t, set.IsSupported("br"))

	_, err := set.Compress("br", []byte("x"))
	require.Error(t, err)
}

func TestSet_CompressShrinksRepetitiveInput(t *testing.T) {
	in := bytes.Repeat([]byte("a"), 10000)
	set := Default()
	for _, name := range set.Names() {
		out, err := set.Compress(name, in)
		require.NoError(t, err)
		assert.Less(t, len(out), len(in), name)
	}
}

func TestParseAcceptEncoding(t *testing.T) {
	assert.Equal(t, []string{"br", "gzip", "deflate"}, ParseAcceptEncoding("gzip;q=0.8, br, deflate;q=0.5"))
	assert.Equal(t, []string{"gzip"}, ParseAcceptEncoding("gzip, zstd;q=0"))
	assert.Equal(t, []string{"identity"}, ParseAcceptEncoding(" identity "))
	assert.Empty(t, ParseAcceptEncoding(""))
}

func TestNegotiate(t *testing.T) {
	set := New(Gzip(), Brotli())

	assert.Equal(t, "br", Negotiate(set, []string{"zstd", "br", "gzip"}))
	assert.Equal(t, Identity, Negotiate(set, []string{"identity"}))
	assert.Equal(t, Identity, Negotiate(set, []string{"compress", "zstd"}))
	assert.Equal(t, Identity, Negotiate(set, nil))
	assert.Equal(t, "gzip", Negotiate(set, []string{"*"}, set.Names()...))
}
