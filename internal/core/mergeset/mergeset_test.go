package mergeset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeSet_Pending(t *testing.T) {
	m := MergeSet{Files: []File{
		{Path: "a.go", Staged: true, BlobID: "b1"},
		{Path: "b.go"},
		{Path: "c.go"},
	}}

	assert.Equal(t, []string{"b.go", "c.go"}, m.Pending())
	assert.False(t, m.Complete())
	assert.Len(t, m.Staged(), 1)

	f, ok := m.File("a.go")
	assert.True(t, ok)
	assert.Equal(t, "b1", f.BlobID)

	_, ok = m.File("missing.go")
	assert.False(t, ok)
}

func TestMergeSet_Complete(t *testing.T) {
	tests := []struct {
		name  string
		files []File
		want  bool
	}{
		{"empty set is never complete", nil, false},
		{"all staged", []File{{Path: "a", Staged: true}, {Path: "b", Staged: true}}, true},
		{"one pending", []File{{Path: "a", Staged: true}, {Path: "b"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := MergeSet{Files: tt.files}
			assert.Equal(t, tt.want, m.Complete())
		})
	}
}
