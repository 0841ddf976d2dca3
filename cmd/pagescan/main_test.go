package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "pagescan/internal/config"
	"pagescan/internal/diag"
	"pagescan/internal/pipeline"
	"pagescan/pkg/contract"
)

func resetFlag(args []string) {
	flag.CommandLine = flag.NewFlagSet(args[0], flag.ContinueOnError)
	os.Args = args
}

// chdir 切换工作目录并在测试结束时恢复（等价于 Go 1.24 的 t.Chdir）。
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}

// capture 替换 stdout/stderr，返回缓冲。
func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	oldOut, oldErr := stdout, stderr
	stdout, stderr = &out, &errOut
	t.Cleanup(func() { stdout, stderr = oldOut, oldErr })
	return &out, &errOut
}

func stubRun(t *testing.T, fn func(ctx context.Context, comp pipeline.Components, set pipeline.Settings, logger *diag.Logger) (pipeline.Summary, error)) {
	t.Helper()
	orig := pipelineRun
	pipelineRun = fn
	t.Cleanup(func() { pipelineRun = orig })
}

func put(t *testing.T, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, os.WriteFile(name, data, 0o644))
}

func page(b byte) []byte { return bytes.Repeat([]byte{b}, contract.DefaultPageSize) }

func TestRunReferenceScenario(t *testing.T) {
	chdir(t, t.TempDir())
	put(t, "trace_map.csv", []byte("data alpha\nother beta\n"))
	for i, b := range []byte("ABC") {
		p := page('.')
		p[3] = b
		put(t, filepath.Join("data", fmt.Sprintf("alpha_%d", i+1)), p)
	}
	out, _ := capture(t)
	resetFlag([]string{"pagescan", "--status=false"})
	require.Equal(t, exitOK, run())
	assert.Equal(t,
		"./data/alpha_1\nA\n./data/alpha_2\nB\n./data/alpha_3\nC\n./data/alpha_4\n./other/beta_1\n",
		out.String())
}

func TestRunManifestMissing(t *testing.T) {
	chdir(t, t.TempDir())
	out, errOut := capture(t)
	resetFlag([]string{"pagescan", "--status=false"})
	assert.Equal(t, exitManifest, run())
	assert.Empty(t, out.String(), "no probe before the manifest opens")
	assert.Contains(t, errOut.String(), "manifest unavailable")
}

func TestRunRecordFailureExitCode(t *testing.T) {
	chdir(t, t.TempDir())
	long := strings.Repeat("f", contract.DefaultMaxFieldBytes+1)
	put(t, "m.txt", []byte(long+" s\nd s\n"))
	put(t, filepath.Join("d", "s_1"), page('x'))
	out, _ := capture(t)
	resetFlag([]string{"pagescan", "--status=false", "m.txt"})
	assert.Equal(t, exitRecordFails, run())
	assert.Equal(t, "./d/s_1\nx\n./d/s_2\n", out.String())
}

func TestRunTooManyArgs(t *testing.T) {
	chdir(t, t.TempDir())
	capture(t)
	resetFlag([]string{"pagescan", "a.csv", "b.csv"})
	assert.Equal(t, exitConfig, run())
}

func TestRunInitConfigDir(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	outDir := filepath.Join(dir, "emit")
	resetFlag([]string{"pagescan", "--init-config", outDir})
	require.Equal(t, exitOK, run())
	assert.FileExists(t, filepath.Join(outDir, "pagescan.json"))
	assert.FileExists(t, filepath.Join(outDir, ".env"))

	// 生成的模板可被重新加载并通过校验
	cfg, err := cfgpkg.LoadFile(filepath.Join(outDir, "pagescan.json"))
	require.NoError(t, err)
	assert.NoError(t, cfgpkg.Validate(cfgpkg.Merge(cfgpkg.Defaults(), cfg)))

	// 已存在则不覆盖
	resetFlag([]string{"pagescan", "--init-config", outDir})
	assert.Equal(t, exitConfig, run())
}

func TestRunInitConfigDefault(t *testing.T) {
	chdir(t, t.TempDir())
	resetFlag([]string{"pagescan", "--init-config"})
	require.Equal(t, exitOK, run())
	assert.FileExists(t, "pagescan.json")
}

func TestRunWithYAMLConfig(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	put(t, "settings.yaml", []byte("manifest: lists/m.csv\nmax_records: 5\ncomponents:\n  observer: none\n"))
	capture(t)
	called := false
	stubRun(t, func(ctx context.Context, comp pipeline.Components, set pipeline.Settings, logger *diag.Logger) (pipeline.Summary, error) {
		called = true
		assert.Equal(t, "m.csv", set.Manifest)
		assert.Equal(t, "lists/m.csv", set.ManifestLabel)
		assert.Equal(t, 5, set.MaxRecords)
		assert.NotEmpty(t, set.RunID)
		assert.Equal(t, contract.NopObserver{}, comp.Observer)
		return pipeline.Summary{}, nil
	})
	resetFlag([]string{"pagescan", "--config", "settings.yaml", "--status=false"})
	require.Equal(t, exitOK, run())
	assert.True(t, called)
}

func TestRunDefaultConfigFileAndOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	put(t, "pagescan.json", []byte(`{"manifest":"from-file.csv","max_records":9}`))
	t.Setenv("PAGESCAN_MAX_RECORDS", "20")
	capture(t)
	var got []pipeline.Settings
	stubRun(t, func(ctx context.Context, comp pipeline.Components, set pipeline.Settings, logger *diag.Logger) (pipeline.Summary, error) {
		got = append(got, set)
		return pipeline.Summary{}, nil
	})

	resetFlag([]string{"pagescan", "--status=false"})
	require.Equal(t, exitOK, run())
	resetFlag([]string{"pagescan", "--status=false", "--max-records", "0", "--manifest", "flag.csv"})
	require.Equal(t, exitOK, run())
	resetFlag([]string{"pagescan", "--status=false", "--manifest", "flag.csv", "positional.csv"})
	require.Equal(t, exitOK, run())

	require.Len(t, got, 3)
	assert.Equal(t, "from-file.csv", got[0].Manifest)
	assert.Equal(t, 20, got[0].MaxRecords, "env over file")
	assert.Equal(t, "flag.csv", got[1].Manifest)
	assert.Equal(t, 0, got[1].MaxRecords, "explicit 0 from CLI")
	assert.Equal(t, "positional.csv", got[2].Manifest)
}

func TestRunConfigErrors(t *testing.T) {
	cases := map[string]struct {
		env  map[string]string
		args []string
	}{
		"missing file":  {args: []string{"--config", "missing.json"}},
		"bad env int":   {env: map[string]string{"PAGESCAN_MAX_RECORDS": "lots"}},
		"bad inline":    {env: map[string]string{"PAGESCAN_CONFIG_JSON": `{"nope":true}`}},
		"unknown comp":  {env: map[string]string{"PAGESCAN_COMPONENTS_SCANNER": "random"}},
		"bad options":   {env: map[string]string{"PAGESCAN_OPTIONS_SCANNER_JSON": `{"unknown":1}`}},
		"history no db": {args: []string{"--history", "3"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			chdir(t, t.TempDir())
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			capture(t)
			stubRun(t, func(context.Context, pipeline.Components, pipeline.Settings, *diag.Logger) (pipeline.Summary, error) {
				t.Fatal("pipeline must not run")
				return pipeline.Summary{}, nil
			})
			resetFlag(append([]string{"pagescan", "--status=false"}, tc.args...))
			assert.Equal(t, exitConfig, run())
		})
	}
}

func TestRunPipelineErrors(t *testing.T) {
	cases := map[string]struct {
		sum  pipeline.Summary
		err  error
		want int
	}{
		"boom":      {err: errors.New("boom"), want: exitRuntime},
		"page io":   {err: fmt.Errorf("record 1 a/b: %w", contract.ErrPageIO), want: exitRecordFails},
		"fatal set": {sum: pipeline.Summary{Fatal: "ledger: x"}, err: fmt.Errorf("ledger: %w", contract.ErrInvalidInput), want: exitRuntime},
		"cancelled": {err: context.Canceled, want: exitRuntime},
		"manifest":  {err: fmt.Errorf("%w: open", contract.ErrManifestUnavailable), want: exitManifest},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			chdir(t, t.TempDir())
			capture(t)
			stubRun(t, func(context.Context, pipeline.Components, pipeline.Settings, *diag.Logger) (pipeline.Summary, error) {
				return tc.sum, tc.err
			})
			resetFlag([]string{"pagescan", "--status=false"})
			assert.Equal(t, tc.want, run())
		})
	}
}

func TestRunHistory(t *testing.T) {
	chdir(t, t.TempDir())
	put(t, "trace_map.csv", []byte("d s\n"))
	put(t, filepath.Join("d", "s_1"), page('h'))
	out, _ := capture(t)
	for i := 0; i < 2; i++ {
		resetFlag([]string{"pagescan", "--status=false", "--ledger", "runs.db"})
		require.Equal(t, exitOK, run())
	}
	out.Reset()
	resetFlag([]string{"pagescan", "--ledger", "runs.db", "--history", "5"})
	require.Equal(t, exitOK, run())
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "RUN"))
	assert.Contains(t, lines[1], "trace_map.csv")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	put(t, p, []byte("# comment\nexport PAGESCAN_T_A=\"quoted\"\nPAGESCAN_T_B = 'single'\nPAGESCAN_T_KEEP=new\nbroken\n"))
	t.Setenv("PAGESCAN_T_KEEP", "old")
	t.Setenv("PAGESCAN_T_A", "")
	os.Unsetenv("PAGESCAN_T_A")
	t.Setenv("PAGESCAN_T_B", "")
	os.Unsetenv("PAGESCAN_T_B")
	require.NoError(t, loadDotEnv(p))
	assert.Equal(t, "quoted", os.Getenv("PAGESCAN_T_A"))
	assert.Equal(t, "single", os.Getenv("PAGESCAN_T_B"))
	assert.Equal(t, "old", os.Getenv("PAGESCAN_T_KEEP"))
	assert.NoError(t, loadDotEnv(filepath.Join(dir, "absent")))
}

func TestWriteConfigStdout(t *testing.T) {
	out, _ := capture(t)
	require.NoError(t, writeConfig("-", cfgpkg.Defaults()))
	assert.Contains(t, out.String(), `"manifest": "./trace_map.csv"`)
}

func TestNormalizeInitArg(t *testing.T) {
	os.Args = []string{"pagescan", "--init-config", "--status=false"}
	normalizeInitArg()
	assert.Equal(t, []string{"pagescan", "--init-config", ".", "--status=false"}, os.Args)
	os.Args = []string{"pagescan", "--init-config", "out"}
	normalizeInitArg()
	assert.Equal(t, []string{"pagescan", "--init-config", "out"}, os.Args)
}
