package uuid

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	t.Parallel()

	a, b := New(), New()

	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "-")
	assert.LessOrEqual(t, len(a), 22)
}

func TestEncode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", encode([]byte{0}, alphabetBase62))
	assert.Equal(t, "1", encode([]byte{1}, alphabetBase62))
	assert.Equal(t, "01", encode([]byte{62}, alphabetBase62))
	assert.Equal(t, "74", encode([]byte{0xff}, alphabetBase62))

	for _, r := range encode([]byte{0xde, 0xad, 0xbe, 0xef}, alphabetBase62) {
		assert.True(t, strings.ContainsRune(alphabetBase62, r))
	}
}

func BenchmarkNewUUID_normal(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = uuid.New().String()
	}
}

func BenchmarkNewUUID_base62(b *testing.B) {
	for i := 0; i < b.N; i++ {
		New()
	}
}
