package nodefilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/j2kxml/j2kxml/pkg/isoxml"
)

func sampleTree() *isoxml.Element {
	root := &isoxml.Element{Name: "jp2File"}
	hdr := &isoxml.Element{Name: "jp2HeaderBox", Attrs: []isoxml.Attr{
		{Name: "offset", Value: "32"}, {Name: "length", Value: "45"},
	}}
	hdr.Children = append(hdr.Children, &isoxml.Element{
		Name: "imageHeaderBox",
		Attrs: []isoxml.Attr{
			{Name: "offset", Value: "40"}, {Name: "length", Value: "22"},
		},
	})
	cs := &isoxml.Element{Name: "codestream"}
	cs.Children = append(cs.Children,
		&isoxml.Element{Name: "soc"},
		&isoxml.Element{Name: "siz", Attrs: []isoxml.Attr{
			{Name: "offset", Value: "2"}, {Name: "length", Value: "43"},
		}},
	)
	root.Children = append(root.Children, hdr, cs)
	return root
}

func TestFilterByName(t *testing.T) {
	pool := NewPool()
	prog, err := pool.Compile(`name == "siz"`)
	require.NoError(t, err)

	out, err := Apply(prog, sampleTree())
	require.NoError(t, err)

	// Ancestors of the match are kept, unrelated branches pruned.
	require.Len(t, out.Children, 1)
	assert.Equal(t, "codestream", out.Children[0].Name)
	require.Len(t, out.Children[0].Children, 1)
	assert.Equal(t, "siz", out.Children[0].Children[0].Name)
}

func TestFilterByKind(t *testing.T) {
	pool := NewPool()
	prog, err := pool.Compile(`kind == "box"`)
	require.NoError(t, err)

	out, err := Apply(prog, sampleTree())
	require.NoError(t, err)
	require.Len(t, out.Children, 1)
	assert.Equal(t, "jp2HeaderBox", out.Children[0].Name)
	// A matched node keeps its full subtree.
	assert.Len(t, out.Children[0].Children, 1)
}

func TestFilterByOffset(t *testing.T) {
	pool := NewPool()
	prog, err := pool.Compile(`offset >= 40`)
	require.NoError(t, err)

	out, err := Apply(prog, sampleTree())
	require.NoError(t, err)
	require.Len(t, out.Children, 1)
	assert.Equal(t, "jp2HeaderBox", out.Children[0].Name)
}

func TestFilterNothingMatches(t *testing.T) {
	pool := NewPool()
	prog, err := pool.Compile(`name == "absent"`)
	require.NoError(t, err)

	out, err := Apply(prog, sampleTree())
	require.NoError(t, err)
	assert.Empty(t, out.Children)
	assert.Equal(t, "jp2File", out.Name)
}

func TestCompileRejectsNonBool(t *testing.T) {
	pool := NewPool()
	_, err := pool.Compile(`offset + 1`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bool")
}

func TestCompileRejectsBadSyntax(t *testing.T) {
	pool := NewPool()
	_, err := pool.Compile(`name ==`)
	require.Error(t, err)
}

func TestCompileCaches(t *testing.T) {
	pool := NewPool()
	a, err := pool.Compile(`depth > 1`)
	require.NoError(t, err)
	b, err := pool.Compile(`depth > 1`)
	require.NoError(t, err)
	assert.True(t, a == b, "expected the cached program")
}
