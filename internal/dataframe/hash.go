package dataframe

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/xxh3"
)

// ContentHash fingerprints column names, dtypes and every value.
func ContentHash(df *DataFrame) string {
	h := xxh3.New()
	for _, s := range df.series {
		writeSeries(h, s, true)
	}
	return sum128(h)
}

// SchemaHash fingerprints column names and dtypes in order.
func SchemaHash(df *DataFrame) string {
	h := xxh3.New()
	for _, s := range df.series {
		_, _ = h.Write([]byte(s.Name))
		_, _ = h.Write([]byte{0x1e})
		_, _ = h.Write([]byte(s.DType))
		_, _ = h.Write([]byte{0x1f})
	}
	return sum128(h)
}

// ColumnHashes fingerprints each column's values independently of its name,
// so renamed columns keep their hash.
func ColumnHashes(df *DataFrame) map[string]string {
	out := make(map[string]string, len(df.series))
	for _, s := range df.series {
		h := xxh3.New()
		writeSeries(h, s, false)
		out[s.Name] = sum128(h)
	}
	return out
}

func writeSeries(h *xxh3.Hasher, s *Series, withName bool) {
	if withName {
		_, _ = h.Write([]byte(s.Name))
		_, _ = h.Write([]byte{0x1e})
	}
	_, _ = h.Write([]byte(s.DType))
	_, _ = h.Write([]byte{0x1e})
	var b strings.Builder
	for _, v := range s.Values {
		b.Reset()
		writeCanonical(&b, v)
		b.WriteByte(0x1f)
		_, _ = h.Write([]byte(b.String()))
	}
	_, _ = h.Write([]byte{0x1d})
}

func sum128(h *xxh3.Hasher) string {
	sum := h.Sum128().Bytes()
	return hex.EncodeToString(sum[:])
}
