package pkgload

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
	}{
		{"/a/Foo.ext", "Foo"},
		{"/b/Foo.ext", "Foo"},
		{"Foo.ext", "Foo"},
		{"Foo", "Foo"},
		{"dir/Foo.tar.gz", "Foo.tar"},
		{`C:\Games\Content\Engine.upk`, "Engine"},
		{"mixed\\dir/Core.u", "Core"},
		{"/a/b/", ""},
		{"/a/.hidden", ""},
		{"", ""},
		{"foo.", "foo"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Key(tt.path), "Key(%q)", tt.path)
	}
}
