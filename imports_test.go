package pkgload

import (
	"errors"
	"io/fs"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/pkgload/decode"
	"github.com/meigma/pkgload/format"
	"github.com/meigma/pkgload/internal/testutil"
)

// importing returns a spec for a package that exports exports and imports
// each "Package.Object" in imports with class Object.
func importing(name string, exports []string, imports ...string) format.Spec {
	spec := testutil.SimpleSpec(name, exports...)
	for _, ref := range imports {
		pkg, obj, ok := strings.Cut(ref, ".")
		if !ok {
			panic("bad import ref " + ref)
		}
		spec.Imports = append(spec.Imports, format.Import{Package: pkg, Name: obj, Class: "Object"})
	}
	return spec
}

func before(t *testing.T, order []string, a, b string) {
	t.Helper()
	ia, ib := slices.Index(order, a), slices.Index(order, b)
	require.GreaterOrEqual(t, ia, 0, "%s missing from %v", a, order)
	require.GreaterOrEqual(t, ib, 0, "%s missing from %v", b, order)
	assert.Less(t, ia, ib, "%s should come before %s in %v", a, b, order)
}

func TestImports_ResolveFromImportPaths(t *testing.T) {
	t.Parallel()

	l, mfs, _ := newTestLoader(t)
	mfs.AddPackage(t, "/content/Core.upk", testutil.SimpleSpec("Core", "Object"))
	mfs.AddPackage(t, "/game/Game.upk", importing("Game", []string{"Level"}, "Core.Object"))

	game, err := l.LoadFullPackage("/game/Game.upk")
	require.NoError(t, err)

	core, ok := l.ImportedPackages().Get("Core")
	require.True(t, ok)
	assert.Equal(t, StageInitialized, core.Stage())

	links := game.Imports()
	require.Len(t, links, 1)
	assert.Equal(t, "Core", links[0].Package)
	assert.Equal(t, "Object", links[0].Name)
	want, _ := core.Export("Object")
	assert.Same(t, want, links[0].Object)
	assert.Equal(t, []byte("Core.Object"), links[0].Object.Data)

	deps, err := l.Dependencies("Game")
	require.NoError(t, err)
	assert.Equal(t, []string{"Core"}, deps)

	order, err := l.ImportOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"Core", "Game"}, order)
}

func TestImports_ImportCacheFirst(t *testing.T) {
	t.Parallel()

	l, mfs, _ := newTestLoader(t)
	core, err := l.LoadImportPackage("Core", testutil.BuildPackage(t, testutil.SimpleSpec("Core", "Object")))
	require.NoError(t, err)

	game, err := l.LoadPackage("Game", testutil.BuildPackage(t, importing("Game", nil, "Core.Object")))
	require.NoError(t, err)
	require.NoError(t, l.InitializePackage(game))

	assert.Zero(t, mfs.TotalReads())
	assert.Same(t, core, game.Imports()[0].Object.Package)
}

func TestImports_SharedDependencyLoadsOnce(t *testing.T) {
	t.Parallel()

	l, mfs, progress := newTestLoader(t)
	mfs.AddPackage(t, "/content/Base.upk", testutil.SimpleSpec("Base", "B"))
	mfs.AddPackage(t, "/content/Left.upk", importing("Left", []string{"X"}, "Base.B"))
	mfs.AddPackage(t, "/content/Right.upk", importing("Right", []string{"Y"}, "Base.B"))
	mfs.AddPackage(t, "/content/App.upk", importing("App", nil, "Left.X", "Right.Y"))

	app, err := l.LoadFullPackage("/content/App.upk")
	require.NoError(t, err)

	assert.Equal(t, 1, mfs.Reads("/content/Base.upk"))
	assert.Equal(t, 1, progress.count(StageInitializing, "Base"))
	assert.ElementsMatch(t, []string{"Base", "Left", "Right"}, l.ImportedPackages().Keys())
	for _, link := range app.Imports() {
		assert.NotNil(t, link.Object, "%s.%s", link.Package, link.Name)
	}

	order, err := l.ImportOrder()
	require.NoError(t, err)
	assert.Len(t, order, 4)
	before(t, order, "Base", "Left")
	before(t, order, "Base", "Right")
	before(t, order, "Left", "App")
	before(t, order, "Right", "App")

	deps, err := l.Dependencies("App")
	require.NoError(t, err)
	assert.Equal(t, []string{"Left", "Right"}, deps)
}

func TestImports_SamePackageResolvedOncePerImporter(t *testing.T) {
	t.Parallel()

	l, mfs, progress := newTestLoader(t)
	mfs.AddPackage(t, "/content/Core.upk", testutil.SimpleSpec("Core", "A", "B"))

	p, err := l.LoadImportPackage("Game", testutil.BuildPackage(t, importing("Game", nil, "Core.A", "Core.B")))
	require.NoError(t, err)

	assert.Equal(t, 1, progress.count(StageResolvingImport, "Core"))
	assert.Equal(t, 1, mfs.Reads("/content/Core.upk"))
	require.Len(t, p.Imports(), 2)
	assert.Equal(t, "A", p.Imports()[0].Object.Name)
	assert.Equal(t, "B", p.Imports()[1].Object.Name)
}

func TestImports_MissingPackage(t *testing.T) {
	t.Parallel()

	t.Run("lenient", func(t *testing.T) {
		t.Parallel()

		l, _, progress := newTestLoader(t)
		p, err := l.LoadImportPackage("Game", testutil.BuildPackage(t, importing("Game", nil, "Missing.Thing")))
		require.NoError(t, err)

		require.Len(t, p.Imports(), 1)
		assert.Nil(t, p.Imports()[0].Object)
		assert.Equal(t, StageInitialized, p.Stage())
		assert.Equal(t, 1, progress.count(StageResolvingImport, "Missing"))
		assert.Equal(t, []string{"Game"}, l.ImportedPackages().Keys())
	})

	t.Run("strict", func(t *testing.T) {
		t.Parallel()

		l, mfs, _ := newTestLoader(t, WithStrictImports(true))
		_, err := l.LoadImportPackage("Game", testutil.BuildPackage(t, importing("Game", nil, "Missing.Thing")))
		require.ErrorIs(t, err, ErrUnresolvedImport)
		assert.Zero(t, l.ImportedPackages().Len())
		assert.Equal(t, 1, mfs.Reads("/content/Missing.upk"))
	})
}

func TestImports_MissingObject(t *testing.T) {
	t.Parallel()

	for _, strict := range []bool{false, true} {
		l, mfs, _ := newTestLoader(t, WithStrictImports(strict))
		mfs.AddPackage(t, "/content/Core.upk", testutil.SimpleSpec("Core", "Object"))

		p, err := l.LoadPackage("Game", testutil.BuildPackage(t, importing("Game", nil, "Core.Nope")))
		require.NoError(t, err)
		err = l.InitializePackage(p)

		if strict {
			require.ErrorIs(t, err, ErrUnresolvedImport)
			assert.Equal(t, StageHeaderParsed, p.Stage())
			continue
		}
		require.NoError(t, err)
		assert.Nil(t, p.Imports()[0].Object)
	}
}

func TestImports_ClassMismatch(t *testing.T) {
	t.Parallel()

	spec := testutil.SimpleSpec("Game")
	spec.Imports = []format.Import{
		{Package: "Core", Name: "Object", Class: "Texture"},
		{Package: "Core", Name: "Object"},
	}

	lenient, mfs, _ := newTestLoader(t)
	mfs.AddPackage(t, "/content/Core.upk", testutil.SimpleSpec("Core", "Object"))
	p, err := lenient.LoadImportPackage("Game", testutil.BuildPackage(t, spec))
	require.NoError(t, err)
	assert.Nil(t, p.Imports()[0].Object)
	assert.NotNil(t, p.Imports()[1].Object, "an empty class matches any export")

	strict, mfs, _ := newTestLoader(t, WithStrictImports(true))
	mfs.AddPackage(t, "/content/Core.upk", testutil.SimpleSpec("Core", "Object"))
	_, err = strict.LoadImportPackage("Game", testutil.BuildPackage(t, spec))
	require.ErrorIs(t, err, ErrUnresolvedImport)
	assert.ErrorContains(t, err, "want Texture")
}

func TestImports_SelfImport(t *testing.T) {
	t.Parallel()

	l, mfs, progress := newTestLoader(t, WithStrictImports(true))
	p, err := l.LoadImportPackage("Core", testutil.BuildPackage(t, importing("Core", []string{"A", "B"}, "Core.B")))
	require.NoError(t, err)

	b, _ := p.Export("B")
	assert.Same(t, b, p.Imports()[0].Object)
	assert.Zero(t, mfs.TotalReads())
	assert.Zero(t, progress.count(StageResolvingImport, "Core"))

	deps, err := l.Dependencies("Core")
	require.NoError(t, err)
	assert.Empty(t, deps)
}

func TestImports_Cycle(t *testing.T) {
	t.Parallel()

	t.Run("full load", func(t *testing.T) {
		t.Parallel()

		l, mfs, _ := newTestLoader(t)
		mfs.AddPackage(t, "/content/A.upk", importing("A", []string{"X"}, "B.Y"))
		mfs.AddPackage(t, "/content/B.upk", importing("B", []string{"Y"}, "A.X"))

		_, err := l.LoadFullPackage("/content/A.upk")
		require.ErrorIs(t, err, ErrImportCycle)
		assert.Zero(t, l.ImportedPackages().Len())
		assert.Zero(t, l.CachedPackages().Len())
	})

	t.Run("import cache", func(t *testing.T) {
		t.Parallel()

		l, mfs, _ := newTestLoader(t)
		mfs.AddPackage(t, "/content/B.upk", importing("B", []string{"Y"}, "C.Z"))
		mfs.AddPackage(t, "/content/C.upk", importing("C", []string{"Z"}, "A.X"))

		_, err := l.LoadImportPackage("A", testutil.BuildPackage(t, importing("A", []string{"X"}, "B.Y")))
		require.ErrorIs(t, err, ErrImportCycle)
		assert.Zero(t, l.ImportedPackages().Len())
	})
}

func TestImports_ExtensionsAndPaths(t *testing.T) {
	t.Parallel()

	l, mfs, _ := newTestLoader(t,
		WithImportPaths("/first", "/second"),
		WithExtensions(".u", ".upk"),
	)
	mfs.AddPackage(t, "/second/Core.upk", testutil.SimpleSpec("Core", "Object"))

	p, err := l.LoadImportPackage("Game", testutil.BuildPackage(t, importing("Game", nil, "Core.Object")))
	require.NoError(t, err)
	require.NotNil(t, p.Imports()[0].Object)

	for _, path := range []string{"/first/Core.u", "/first/Core.upk", "/second/Core.u", "/second/Core.upk"} {
		assert.Equal(t, 1, mfs.Reads(path), path)
	}

	core, ok := l.ImportedPackages().Get("Core")
	require.True(t, ok)
	assert.Equal(t, "/second/Core.upk", core.Path())
}

func TestImports_ReadErrorStopsSearch(t *testing.T) {
	t.Parallel()

	denied := &fs.PathError{Op: "open", Path: "/content/Core.upk", Err: fs.ErrPermission}
	reader := FileReaderFunc(func(path string) ([]byte, error) {
		if path == "/content/Core.upk" {
			return nil, denied
		}
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	})
	l := New(WithFileReader(reader), WithImportPaths("/content", "/fallback"))

	_, err := l.LoadImportPackage("Game", testutil.BuildPackage(t, importing("Game", nil, "Core.Object")))
	require.ErrorIs(t, err, fs.ErrPermission)
	assert.False(t, errors.Is(err, ErrUnresolvedImport))
}

func TestImports_DependencyFailurePropagates(t *testing.T) {
	t.Parallel()

	core := testutil.BuildPackage(t, testutil.SimpleSpec("Core", "Object"))
	core[len(core)-1] ^= 0xff

	l, mfs, _ := newTestLoader(t)
	mfs.Add("/content/Core.upk", core)

	_, err := l.LoadImportPackage("Game", testutil.BuildPackage(t, importing("Game", nil, "Core.Object")))
	require.ErrorIs(t, err, ErrDigestMismatch)
	assert.Zero(t, l.ImportedPackages().Len())
}

func TestImports_CompressedExports(t *testing.T) {
	t.Parallel()

	payload := []byte("compressed payload compressed payload compressed payload")
	l, mfs, _ := newTestLoader(t)
	mfs.AddPackage(t, "/content/Core.upk", format.Spec{
		Name: "Core",
		Exports: []format.ExportSpec{
			{Name: "Object", Class: "Object", Data: payload, Compression: format.CompressionZstd},
		},
	})

	p, err := l.LoadImportPackage("Game", testutil.BuildPackage(t, importing("Game", nil, "Core.Object")))
	require.NoError(t, err)
	assert.Equal(t, payload, p.Imports()[0].Object.Data)
}

func TestImports_FoldCase(t *testing.T) {
	t.Parallel()

	l, mfs, _ := newTestLoader(t, WithFoldCase(true), WithStrictImports(true))
	core, err := l.LoadImportPackage("Core", testutil.BuildPackage(t, testutil.SimpleSpec("Core", "Object")))
	require.NoError(t, err)

	p, err := l.LoadImportPackage("Game", testutil.BuildPackage(t, importing("Game", nil, "CORE.Object")))
	require.NoError(t, err)
	assert.Same(t, core, p.Imports()[0].Object.Package)
	assert.Zero(t, mfs.TotalReads())

	deps, err := l.Dependencies("GAME")
	require.NoError(t, err)
	assert.Equal(t, []string{"core"}, deps)
}

func TestImports_LocatedWithDefaultDecoder(t *testing.T) {
	t.Parallel()

	key := decode.XOR("obfuscation")
	a := testutil.BuildPackage(t, importing("A", []string{"X"}, "B.Obj"))
	b := testutil.BuildPackage(t, testutil.SimpleSpec("B", "Obj"))
	key.DecodeRegion(0, a)
	key.DecodeRegion(0, b)

	l, mfs, progress := newTestLoader(t, WithDecoder(key), WithStrictImports(true))
	mfs.Add("/content/A.upk", a)
	mfs.Add("/content/B.upk", b)

	p, err := l.LoadFullPackage("/content/A.upk")
	require.NoError(t, err)

	imported, ok := l.ImportedPackages().Get("B")
	require.True(t, ok)
	assert.Equal(t, key, imported.Decoder())
	require.Len(t, p.Imports(), 1)
	require.NotNil(t, p.Imports()[0].Object)
	assert.Equal(t, []byte("B.Obj"), p.Imports()[0].Object.Data)
	assert.Equal(t, 1, progress.count(StageReading, "B"))
}

func TestImports_RejectsPathLikeNames(t *testing.T) {
	t.Parallel()

	names := []string{"../Secret", `..\Secret`, "sub/Secret", "..", "."}
	for _, name := range names {
		spec := testutil.SimpleSpec("Game")
		spec.Imports = []format.Import{{Package: name, Name: "Obj"}}
		data := testutil.BuildPackage(t, spec)

		t.Run(name, func(t *testing.T) {
			t.Parallel()

			lenient, mfs, _ := newTestLoader(t)
			mfs.AddPackage(t, "/Secret.upk", testutil.SimpleSpec("Secret", "Obj"))
			mfs.AddPackage(t, "/content/sub/Secret.upk", testutil.SimpleSpec("Secret", "Obj"))
			p, err := lenient.LoadImportPackage("Game", data)
			require.NoError(t, err)
			assert.Nil(t, p.Imports()[0].Object)
			assert.Zero(t, mfs.TotalReads())

			strict, mfs, _ := newTestLoader(t, WithStrictImports(true))
			mfs.AddPackage(t, "/Secret.upk", testutil.SimpleSpec("Secret", "Obj"))
			_, err = strict.LoadImportPackage("Game", data)
			require.ErrorIs(t, err, ErrUnresolvedImport)
			assert.ErrorContains(t, err, "invalid package name")
			assert.Zero(t, mfs.TotalReads())
		})
	}
}
