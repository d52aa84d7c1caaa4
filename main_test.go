package main

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gotest.tools/v3/fs"
)

const includeYAML = `other: [dgesv, dsyevq, ifoo, dcallb]
`

const overridesYAML = `ifoo:
  comment: K = -1 selects the default block size
  params:
    k: {role: {tag: none}}
`

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	t.Cleanup(func() { SetLogger(zap.NewNop()) })
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func configDir(t *testing.T, overrides string) *fs.Dir {
	t.Helper()
	return fs.NewDir(t, "config",
		fs.WithFile("include.yaml", includeYAML),
		fs.WithFile("overrides.yaml", overrides),
	)
}

func TestBuildCommand(t *testing.T) {
	src := sourceDir(t)
	config := configDir(t, overridesYAML)
	out := fs.NewDir(t, "out")

	_, err := runCommand(t, "build", src.Path(),
		"-i", config.Join("include.yaml"),
		"-p", config.Join("overrides.yaml"),
		"-o", out.Join("lapack6432.c"),
		"--resolved", out.Join("resolved.json"),
		"--no-check")
	require.NoError(t, err)

	data, err := os.ReadFile(out.Join("lapack6432.c"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "void dgesv_(INT *n,")
	assert.Contains(t, string(data), "INT ifoo_(INT *n, INT *k)")
	assert.Contains(t, string(data), "routines: 3 wrapped, 1 excluded")
	assert.NotContains(t, string(data), "dcallb_(")

	db, err := LoadDatabase(out.Join("resolved.json"))
	require.NoError(t, err)
	assert.Equal(t, []string{"dgesv", "dsyevq", "ifoo"}, db.Names())
	assert.Contains(t, string(data), "database: "+db.Fingerprint)
}

func TestStagedCommands(t *testing.T) {
	src := sourceDir(t)
	config := configDir(t, overridesYAML)
	out := fs.NewDir(t, "out")

	_, err := runCommand(t, "extract", src.Path(), "-o", out.Join("signatures.json"))
	require.NoError(t, err)
	_, err = runCommand(t, "resolve",
		"-s", out.Join("signatures.json"),
		"-i", config.Join("include.yaml"),
		"-p", config.Join("overrides.yaml"),
		"-o", out.Join("resolved.json"))
	require.NoError(t, err)
	_, err = runCommand(t, "generate", "--symbol-prefix", "scipy_",
		"-d", out.Join("resolved.json"),
		"-o", out.Join("lapack6432.c"),
		"--no-check")
	require.NoError(t, err)

	staged, err := os.ReadFile(out.Join("lapack6432.c"))
	require.NoError(t, err)
	assert.Contains(t, string(staged), "scipy_dgesv_64_(n_tmp, nrhs_tmp, a, lda_tmp, ipiv_tmp, b, ldb_tmp, info_tmp);")

	report, err := runCommand(t, "report", "-d", out.Join("resolved.json"))
	require.NoError(t, err)
	assert.Regexp(t, `dgesv\s+other\s+wrapped\s+dgesv_`, report)
	assert.Regexp(t, `dcallb\s+other\s+excluded\s+parameter select`, report)
	assert.Contains(t, report, "3 wrapped, 1 excluded")
}

func TestBuildMatchesStaged(t *testing.T) {
	src := sourceDir(t)
	config := configDir(t, overridesYAML)
	out := fs.NewDir(t, "out")
	args := []string{"-i", config.Join("include.yaml"), "-p", config.Join("overrides.yaml"), "--no-check"}

	_, err := runCommand(t, append([]string{"build", src.Path(), "-o", out.Join("build.c")}, args...)...)
	require.NoError(t, err)
	_, err = runCommand(t, "extract", src.Path(), "-o", out.Join("signatures.json"))
	require.NoError(t, err)
	_, err = runCommand(t, append([]string{"resolve", "-s", out.Join("signatures.json"), "-o", out.Join("resolved.json")}, args[:4]...)...)
	require.NoError(t, err)
	_, err = runCommand(t, "generate", "-d", out.Join("resolved.json"), "-o", out.Join("staged.c"), "--no-check")
	require.NoError(t, err)

	build, err := os.ReadFile(out.Join("build.c"))
	require.NoError(t, err)
	staged, err := os.ReadFile(out.Join("staged.c"))
	require.NoError(t, err)
	assert.Equal(t, string(build), string(staged))
}

func TestBuildFailsWithoutOutput(t *testing.T) {
	tests := []struct {
		name      string
		overrides string
		extra     []string
		want      string
	}{
		{"unknown routine", "dposv:\n  params:\n    n: {direction: in}\n", nil, "dposv: override for a routine that was not extracted"},
		{"bad override", "dgesv:\n  params:\n    n: {direction: sideways}\n", nil, `unknown direction "sideways"`},
		{"strict", "", []string{"--strict"}, "included routines were excluded"},
		{"bad symbols", "", []string{"--suffix", "64_", "--symbol-suffix", "64_"}, "collide"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := sourceDir(t)
			config := configDir(t, tt.overrides)
			out := fs.NewDir(t, "out")
			args := append([]string{"build", src.Path(),
				"-i", config.Join("include.yaml"),
				"-p", config.Join("overrides.yaml"),
				"-o", out.Join("lapack6432.c"),
				"--resolved", out.Join("resolved.json"),
				"--no-check"}, tt.extra...)
			_, err := runCommand(t, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.NoFileExists(t, out.Join("lapack6432.c"))
			assert.NoFileExists(t, out.Join("resolved.json"))
		})
	}
}

func TestBuildChecked(t *testing.T) {
	skipWithoutCParser(t)
	src := sourceDir(t)
	config := configDir(t, overridesYAML)
	out := fs.NewDir(t, "out")
	_, err := runCommand(t, "build", src.Path(),
		"-i", config.Join("include.yaml"),
		"-p", config.Join("overrides.yaml"),
		"-o", out.Join("lapack6432.c"))
	require.NoError(t, err)
	assert.FileExists(t, out.Join("lapack6432.c"))
}

func TestStrictListsEveryExclusion(t *testing.T) {
	src := sourceDir(t)
	config := configDir(t, "")
	out := fs.NewDir(t, "out")
	_, err := runCommand(t, "build", src.Path(),
		"-i", config.Join("include.yaml"),
		"-p", config.Join("overrides.yaml"),
		"-o", out.Join("lapack6432.c"),
		"--no-check", "--strict")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 included routines were excluded")
	assert.Contains(t, err.Error(), "  dcallb: ")
	assert.Contains(t, err.Error(), "  ifoo: ")
}

func TestEnvCommand(t *testing.T) {
	setEnv(t, envSymbolSuffix, "_ilp64")
	out, err := runCommand(t, "env")
	require.NoError(t, err)
	assert.Regexp(t, `BLAS_SYMBOL_SUFFIX\s+_ilp64`, out)
	assert.Contains(t, out, envPrefix)
	assert.Contains(t, out, envDebug)

	vars := AsMap()
	assert.Equal(t, "_ilp64", vars[envSymbolSuffix].Value)
}

func TestSymbolFlagsFromEnv(t *testing.T) {
	setEnv(t, envSymbolPrefix, "scipy_")
	setEnv(t, envNoUnderscore, "true")
	cmd := NewRootCommand()
	require.NoError(t, cmd.ParseFlags(nil))
	mapping, err := symbolMappingFromFlags(cmd)
	require.NoError(t, err)
	assert.Equal(t, "dgesv", mapping.LP64Name("dgesv"))
	assert.Equal(t, "scipy_dgesv64_", mapping.ILP64Name("dgesv"))
}
