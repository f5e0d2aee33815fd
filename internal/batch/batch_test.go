package batch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/castrec/internal/asciicast"
	"github.com/joeycumines/castrec/internal/ptysession"
	"github.com/joeycumines/castrec/internal/recorder"
	"github.com/joeycumines/castrec/internal/script"
	"github.com/joeycumines/castrec/internal/storage"
	"github.com/joeycumines/castrec/internal/target"
	"github.com/joeycumines/castrec/internal/toolchain"
)

type fakeBuilder struct {
	dir   string
	fail  map[string]error
	built []string
}

func (b *fakeBuilder) Build(_ context.Context, name string, _ toolchain.Source) (string, error) {
	if err := b.fail[name]; err != nil {
		return "", &toolchain.BuildError{Target: name, Err: err}
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", err
	}
	bin := filepath.Join(b.dir, name)
	if err := os.WriteFile(bin, []byte("bin"), 0o755); err != nil {
		return "", err
	}
	b.built = append(b.built, name)
	return bin, nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	fail   map[string]error
	panics map[string]bool
	cmds   []recorder.Command
}

func (r *fakeRecorder) Record(_ context.Context, cmd recorder.Command, s *script.Script) (*asciicast.Recording, error) {
	r.mu.Lock()
	r.cmds = append(r.cmds, cmd)
	r.mu.Unlock()
	name := filepath.Base(cmd.Path)
	if r.panics[name] {
		panic("recorder exploded")
	}
	if err := r.fail[name]; err != nil {
		return nil, err
	}
	return &asciicast.Recording{
		Header: asciicast.NewHeader(cmd.Width, cmd.Height, time.Unix(1700000000, 0), nil),
		Events: []asciicast.Event{
			{Time: 100 * time.Millisecond, Kind: asciicast.Output, Data: []byte(name + "\r\n")},
			{Time: s.TotalDelay() + 100*time.Millisecond, Kind: asciicast.Output},
		},
	}, nil
}

type fakeRenderer struct {
	fail bool
}

func (r *fakeRenderer) Render(_ context.Context, castPath, outPath string) (toolchain.Artifact, error) {
	if r.fail {
		return toolchain.Artifact{}, &toolchain.RenderError{Cast: castPath, Err: errors.New("agg not found")}
	}
	if err := os.WriteFile(outPath, []byte("GIF89a"), 0o644); err != nil {
		return toolchain.Artifact{}, err
	}
	return toolchain.Artifact{Path: outPath, Size: 6}, nil
}

func testRegistry(t *testing.T, names ...string) *target.Registry {
	t.Helper()
	r := target.NewRegistry()
	for _, name := range names {
		require.NoError(t, r.Add(target.Target{
			Name:   name,
			Source: toolchain.Source{Path: "cmd/" + name},
			Size:   target.DefaultSize,
			Script: script.MustNew(script.Wait(time.Second), script.Send(0, "q")),
		}))
	}
	return r
}

var quiet = WithLogger(slog.New(slog.DiscardHandler))

func TestRun(t *testing.T) {
	t.Run("all targets succeed", func(t *testing.T) {
		out := t.TempDir()
		b := &fakeBuilder{dir: filepath.Join(out, "bin")}
		rec := &fakeRecorder{}
		rn := New(rec, b, Options{OutputDir: out}, quiet, WithRenderer(&fakeRenderer{}))

		report, err := rn.Run(context.Background(), testRegistry(t, "one", "two"), nil)
		require.NoError(t, err)
		require.Len(t, report.Results, 2)
		assert.Empty(t, report.Failed())

		for i, name := range []string{"one", "two"} {
			res := report.Results[i]
			assert.Equal(t, name, res.Target)
			assert.Equal(t, filepath.Join(out, name+".cast"), res.Cast)
			assert.Equal(t, 2, res.Events)
			assert.Equal(t, 1100*time.Millisecond, res.Duration)
			require.NotNil(t, res.Artifact)
			assert.FileExists(t, res.Artifact.Path)

			parsed, err := asciicast.ReadFile(res.Cast)
			require.NoError(t, err)
			assert.Equal(t, 60, parsed.Header.Width)
		}

		assert.Equal(t, []string{"one", "two"}, b.built, "everything is built before recording")
		assert.NoDirExists(t, filepath.Join(out, "bin"), "binaries are removed")
		lock, err := storage.LockDir(out)
		require.NoError(t, err, "lock is released")
		assert.NoError(t, lock.Unlock())
	})

	t.Run("failures are isolated", func(t *testing.T) {
		out := t.TempDir()
		b := &fakeBuilder{dir: filepath.Join(out, "bin"), fail: map[string]error{"broken": errors.New("syntax error")}}
		rec := &fakeRecorder{
			fail:   map[string]error{"missing": &ptysession.SpawnError{Path: "missing", Err: os.ErrNotExist}},
			panics: map[string]bool{"crashy": true},
		}
		rn := New(rec, b, Options{OutputDir: out}, quiet)

		report, err := rn.Run(context.Background(), testRegistry(t, "ok1", "broken", "missing", "crashy", "ok2"),
			[]string{"ok1", "broken", "missing", "crashy", "ok2", "ghost"})
		require.Error(t, err)
		require.NotNil(t, report)

		byName := make(map[string]Result)
		for _, res := range report.Results {
			byName[res.Target] = res
		}
		require.Len(t, byName, 6)
		assert.NoError(t, byName["ok1"].Err)
		assert.NoError(t, byName["ok2"].Err)
		assert.FileExists(t, filepath.Join(out, "ok2.cast"), "later targets still run")
		assert.Nil(t, byName["ok1"].Artifact, "rendering disabled")

		var targetErr *TargetError
		require.ErrorAs(t, byName["broken"].Err, &targetErr)
		assert.Equal(t, StageBuild, targetErr.Stage)
		var buildErr *toolchain.BuildError
		assert.ErrorAs(t, err, &buildErr)

		require.ErrorAs(t, byName["missing"].Err, &targetErr)
		assert.Equal(t, StageRecord, targetErr.Stage)
		var spawnErr *ptysession.SpawnError
		assert.ErrorAs(t, byName["missing"].Err, &spawnErr)
		assert.NoFileExists(t, filepath.Join(out, "missing.cast"))

		assert.ErrorContains(t, byName["crashy"].Err, "panic: recorder exploded")
		assert.ErrorIs(t, byName["ghost"].Err, ErrUnknownTarget)

		assert.Len(t, report.Failed(), 4)
		assert.ErrorIs(t, err, ErrUnknownTarget)
	})

	t.Run("render failure is not fatal", func(t *testing.T) {
		out := t.TempDir()
		rn := New(&fakeRecorder{}, &fakeBuilder{dir: filepath.Join(out, "bin")}, Options{OutputDir: out},
			quiet, WithRenderer(&fakeRenderer{fail: true}))
		report, err := rn.Run(context.Background(), testRegistry(t, "one"), nil)
		require.NoError(t, err)
		var renderErr *toolchain.RenderError
		assert.ErrorAs(t, report.Results[0].RenderErr, &renderErr)
		assert.FileExists(t, filepath.Join(out, "one.cast"))
	})

	t.Run("keep binaries and size override", func(t *testing.T) {
		out := t.TempDir()
		buildDir := filepath.Join(t.TempDir(), "build")
		rec := &fakeRecorder{}
		rn := New(rec, &fakeBuilder{dir: buildDir}, Options{
			OutputDir:    out,
			BuildDir:     buildDir,
			KeepBinaries: true,
			Size:         target.Size{Width: 120, Height: 50},
		}, quiet)
		_, err := rn.Run(context.Background(), testRegistry(t, "one"), nil)
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(buildDir, "one"))
		require.Len(t, rec.cmds, 1)
		assert.Equal(t, 120, rec.cmds[0].Width)
		assert.Equal(t, 50, rec.cmds[0].Height)
		assert.Equal(t, filepath.Join(buildDir, "one"), rec.cmds[0].Path)
	})

	t.Run("unrelated files in the build directory survive", func(t *testing.T) {
		out := t.TempDir()
		buildDir := filepath.Join(out, "bin")
		require.NoError(t, os.MkdirAll(buildDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(buildDir, "keep.txt"), nil, 0o644))
		rn := New(&fakeRecorder{}, &fakeBuilder{dir: buildDir}, Options{OutputDir: out}, quiet)
		_, err := rn.Run(context.Background(), testRegistry(t, "one"), nil)
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(buildDir, "keep.txt"))
		assert.NoFileExists(t, filepath.Join(buildDir, "one"))
	})

	t.Run("concurrent run is refused", func(t *testing.T) {
		out := t.TempDir()
		lock, err := storage.LockDir(out)
		require.NoError(t, err)
		defer lock.Unlock()

		rn := New(&fakeRecorder{}, &fakeBuilder{dir: filepath.Join(out, "bin")}, Options{OutputDir: out}, quiet)
		report, err := rn.Run(context.Background(), testRegistry(t, "one"), nil)
		assert.Nil(t, report)
		assert.ErrorIs(t, err, storage.ErrWouldBlock)
	})

	t.Run("cancellation skips remaining targets", func(t *testing.T) {
		out := t.TempDir()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		rec := &fakeRecorder{}
		rn := New(rec, &fakeBuilder{dir: filepath.Join(out, "bin")}, Options{OutputDir: out}, quiet)
		report, err := rn.Run(ctx, testRegistry(t, "one", "two"), nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Len(t, report.Failed(), 2)
		assert.Empty(t, rec.cmds)
	})
}
