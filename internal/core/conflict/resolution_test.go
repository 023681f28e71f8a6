package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegion() Region {
	return Region{
		Index:    0,
		Base:     []string{"int x = 0;"},
		Current:  []string{"int x = 1;", "int y = 1;"},
		Incoming: []string{"int x = 2;"},
		HasBase:  true,
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		res  Resolution
		want []string
	}{
		{"accept current", AcceptCurrent, []string{"int x = 1;", "int y = 1;"}},
		{"accept incoming", AcceptIncoming, []string{"int x = 2;"}},
		{"accept both keeps ours then theirs", AcceptBoth, []string{"int x = 1;", "int y = 1;", "int x = 2;"}},
		{"custom", Custom{Text: "int x = 3;"}, []string{"int x = 3;"}},
		{"custom trailing newline ignored", Custom{Text: "int x = 3;\n"}, []string{"int x = 3;"}},
		{"custom multi line", Custom{Text: "a\nb"}, []string{"a", "b"}},
		{"custom empty deletes region", Custom{Text: ""}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg, err := Resolve(testRegion(), tt.res)
			require.NoError(t, err)
			assert.Equal(t, tt.want, seg.Lines)
			assert.Equal(t, 0, seg.Index)
			assert.Equal(t, tt.res.Kind(), seg.Resolution.Kind())
		})
	}
}

func TestResolve_Idempotent(t *testing.T) {
	for _, res := range []Resolution{AcceptCurrent, AcceptIncoming, AcceptBoth, Custom{Text: "z"}} {
		first, err := Resolve(testRegion(), res)
		require.NoError(t, err)
		second, err := Resolve(testRegion(), res)
		require.NoError(t, err)
		assert.Equal(t, first, second, "resolving %s twice must be identical", res.Kind())
	}
}

func TestResolve_DoesNotAliasRegion(t *testing.T) {
	region := testRegion()
	seg, err := Resolve(region, AcceptCurrent)
	require.NoError(t, err)

	seg.Lines[0] = "mutated"
	assert.Equal(t, "int x = 1;", region.Current[0])
}

func TestResolve_RejectsMarkers(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantLine int
		marker   string
	}{
		{"start marker", "<<<<<<< broken", 1, "<<<<<<<"},
		{"separator", "ok\n=======", 2, "======="},
		{"terminator", "a\nb\n>>>>>>> theirs", 3, ">>>>>>>"},
		{"base marker", "||||||| base", 1, "|||||||"},
		{"longer marker", "<<<<<<<<<<", 1, "<<<<<<<"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(testRegion(), Custom{Text: tt.text})
			require.ErrorIs(t, err, ErrContainsConflictMarker)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantLine, verr.Line)
			assert.Equal(t, tt.marker, verr.Marker)
		})
	}
}

func TestResolve_MarkerNotAtLineStart(t *testing.T) {
	seg, err := Resolve(testRegion(), Custom{Text: "// <<<<<<< is fine mid-line"})
	require.NoError(t, err)
	assert.Len(t, seg.Lines, 1)
}

func TestResolve_Nil(t *testing.T) {
	_, err := Resolve(testRegion(), nil)
	assert.ErrorIs(t, err, ErrNoResolution)
}

func TestParseResolution(t *testing.T) {
	r, err := ParseResolution(KindAcceptBoth, "")
	require.NoError(t, err)
	assert.Equal(t, AcceptBoth, r)

	r, err = ParseResolution(KindCustom, "text")
	require.NoError(t, err)
	assert.Equal(t, Custom{Text: "text"}, r)

	_, err = ParseResolution(KindAcceptCurrent, "stray")
	require.Error(t, err, "payload-free variants cannot carry text")

	_, err = ParseResolution("bogus", "")
	require.Error(t, err)
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"ours", KindAcceptCurrent},
		{"current", KindAcceptCurrent},
		{"Theirs", KindAcceptIncoming},
		{"incoming", KindAcceptIncoming},
		{"both", KindAcceptBoth},
		{"custom", KindCustom},
		{"accept_both", KindAcceptBoth},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseKind("base")
	assert.Error(t, err)
}

func TestResolve_RejectsConfiguredMarkerSize(t *testing.T) {
	doc, err := Parse("a\n<<<<< HEAD\nx\n=====\ny\n>>>>> feat\n", WithMarkerSize(5))
	require.NoError(t, err)
	region, err := doc.Region(0)
	require.NoError(t, err)
	assert.Equal(t, 5, region.MarkerSize)

	_, err = Resolve(region, Custom{Text: "<<<<< HEAD\nz\n=====\nw\n>>>>> feat"})
	require.ErrorIs(t, err, ErrContainsConflictMarker)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, verr.Line)
	assert.Equal(t, "<<<<<", verr.Marker)

	// default-size markers stay forbidden whatever the configured size
	_, err = Resolve(region, Custom{Text: "ok\n>>>>>>> theirs"})
	require.ErrorIs(t, err, ErrContainsConflictMarker)
}

func TestValidateCustom_MarkerSize(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		size    int
		wantErr bool
	}{
		{"default size accepts short arrows", "<<<<< not a marker", 0, false},
		{"size five rejects short arrows", "<<<<< HEAD", 5, true},
		{"size five rejects separator", "x\n=====", 5, true},
		{"size nine still rejects default tokens", "=======", 9, true},
		{"size nine accepts plain text", "fine", 9, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCustom(tt.text, tt.size)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrContainsConflictMarker)
				return
			}
			assert.NoError(t, err)
		})
	}
}
