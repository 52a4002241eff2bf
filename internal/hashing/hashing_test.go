package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileHashLength(t *testing.T) {
	h := FileHash([]byte("package main"))
	assert.Len(t, h, FileHashLen)

	// Deterministic.
	assert.Equal(t, h, FileHash([]byte("package main")))
	assert.NotEqual(t, h, FileHash([]byte("package main\n")))
}

func TestChunkHashIgnoresWhitespace(t *testing.T) {
	base := ChunkHash("func main() { fmt.Println(1) }")

	variants := []string{
		"func main()  {  fmt.Println(1)  }",
		"  func main() {\n\tfmt.Println(1)\n}  ",
		"func\tmain() { fmt.Println(1) }",
	}
	for _, v := range variants {
		assert.Equal(t, base, ChunkHash(v), "variant %q", v)
	}

	assert.NotEqual(t, base, ChunkHash("func main() { fmt.Println(2) }"))
	assert.Len(t, base, ChunkHashLen)
}

func TestNormalizeWhitespace(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a  b", "a b"},
		{"  a\n\tb  ", "a b"},
		{"", ""},
		{"   ", ""},
		{"one", "one"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeWhitespace(tt.in))
	}
}

func TestEqualAcceptsLegacyPrefix(t *testing.T) {
	full := FileHash([]byte("content"))
	legacy := full[:LegacyFileHashLen]

	assert.True(t, Equal(full, legacy))
	assert.True(t, Equal(legacy, full))
	assert.True(t, Equal(full, full))
	assert.False(t, Equal(full, FileHash([]byte("other"))))
	assert.False(t, Equal(full, ""))
	assert.True(t, Equal("", ""))
}

func TestProjectHash(t *testing.T) {
	h := ProjectHash("/home/user/project")
	assert.Len(t, h, ProjectHashLen)
	assert.NotEqual(t, h, ProjectHash("/home/user/other"))
}
