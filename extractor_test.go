package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/fs"
)

func sourceDir(t *testing.T) *fs.Dir {
	t.Helper()
	return fs.NewDir(t, "lapack-src",
		fs.WithFile("dgesv.f", dgesvSource),
		fs.WithFile("dsyevq.f90", dsyevqSource),
		fs.WithFile("callback.f90", callbackSource),
		fs.WithFile("ifoo.f", ifooSource),
		fs.WithFile("zz_dup.f", duplicateSource),
		fs.WithFile("README.txt", "not a source file"),
		fs.WithDir("nested", fs.WithFile("skipped.f", duplicateSource)),
	)
}

func TestExtractFile(t *testing.T) {
	dir := sourceDir(t)
	tests := []struct {
		file string
		want *RoutineSignature
	}{
		{"dgesv.f", dgesvSignature()},
		{"dsyevq.f90", dsyevqSignature()},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			sigs, err := ExtractFile(dir.Join(tt.file))
			require.NoError(t, err)
			require.Len(t, sigs, 1)
			if diff := cmp.Diff(tt.want, sigs[0]); diff != "" {
				t.Errorf("signature mismatch (-want +got):\n%s", diff)
			}
			assert.NoError(t, sigs[0].Validate())
		})
	}
}

func TestExtractUnresolved(t *testing.T) {
	dir := sourceDir(t)

	sigs, err := ExtractFile(dir.Join("callback.f90"))
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	sel, ok := sigs[0].Param("select")
	require.True(t, ok)
	assert.Equal(t, []string{"kind", "shape", "direction", "role"}, sel.UnresolvedFields())
	assert.Equal(t, []string{"procedure argument"}, sel.Notes)
	info, _ := sigs[0].ErrorCodeParam()
	require.NotNil(t, info)
	assert.Equal(t, "info", info.Name)
	assert.Error(t, sigs[0].Validate())

	sigs, err = ExtractFile(dir.Join("ifoo.f"))
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	ifoo := sigs[0]
	require.True(t, ifoo.IsFunction())
	assert.Equal(t, KindInteger, *ifoo.Return)
	n, _ := ifoo.Param("n")
	assert.Equal(t, Role{Tag: RoleNone}, n.Role)
	assert.Equal(t, DirIn, n.Direction)
	k, _ := ifoo.Param("k")
	assert.Equal(t, RoleUnresolved, k.Role.Tag)
	assert.Equal(t, []string{"documents a -1 value that is not a workspace query"}, k.Notes)
	assert.ErrorContains(t, ifoo.Validate(), "parameter k: unresolved role")
}

func TestExtract(t *testing.T) {
	dir := sourceDir(t)
	extraction, err := Extract(context.Background(), dir.Path())
	require.NoError(t, err)
	assert.Equal(t, []string{"dcallb", "dgesv", "dsyevq", "ifoo"}, extraction.Names())
	assert.Len(t, extraction.Files, 5)
	// the first definition in path order wins
	assert.Equal(t, "dgesv.f", extraction.Signatures["dgesv"].Source)
	assert.Len(t, extraction.Signatures["dgesv"].Params, 8)

	again, err := Extract(context.Background(), dir.Path())
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(extraction, again))
}

func TestExtractErrors(t *testing.T) {
	empty := fs.NewDir(t, "empty", fs.WithFile("notes.txt", ""))
	_, err := Extract(context.Background(), empty.Path())
	assert.ErrorContains(t, err, "no Fortran sources")

	_, err = Extract(context.Background(), filepath.Join(empty.Path(), "missing"))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Extract(ctx, sourceDir(t).Path())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSignatureFileRoundTrip(t *testing.T) {
	dir := sourceDir(t)
	extraction, err := Extract(context.Background(), dir.Path())
	require.NoError(t, err)

	out := fs.NewDir(t, "out")
	path := out.Join("signatures.json")
	require.NoError(t, SaveSignatures(path, extraction))
	loaded, err := LoadSignatures(path)
	require.NoError(t, err)
	if diff := cmp.Diff(extraction, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTypeSpec(t *testing.T) {
	tests := []struct {
		text     string
		selector bool
		kind     BaseKind
		rest     string
	}{
		{"DOUBLE PRECISION A(LDA,*)", false, KindDouble, " A(LDA,*)"},
		{"DOUBLEPRECISION X", false, KindDouble, " X"},
		{"COMPLEX*16 Z", false, KindComplex16, " Z"},
		{"REAL*8 X", false, KindDouble, " X"},
		{"CHARACTER*1 UPLO", false, KindCharacter, " UPLO"},
		{"CHARACTER*(*) NAME", false, KindCharacter, " NAME"},
		{"CHARACTER(LEN=1)", true, KindCharacter, ""},
		{"REAL(8)", true, KindDouble, ""},
		{"INTEGER*8 N", false, KindUnresolved, " N"},
		{"REAL(WP)", true, KindUnresolved, ""},
		{"LOGICAL SELECT", false, KindLogical, " SELECT"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			kind, note, rest, ok := parseTypeSpec(tt.text, tt.selector)
			require.True(t, ok)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.rest, rest)
			if kind == KindUnresolved {
				assert.NotEmpty(t, note)
			}
		})
	}
}
