//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/pkgload"
	"github.com/meigma/pkgload/oci"
)

func TestPushPull_LoadFromArchive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepository(t, getRegistry(t), "load-from-archive")

	desc, err := oci.Push(ctx, repo, "v1", gameSet(t))
	require.NoError(t, err, "Push")

	archive, err := oci.Pull(ctx, repo, "v1")
	require.NoError(t, err, "Pull")
	assert.Equal(t, desc.Digest, archive.Descriptor().Digest)
	assert.Equal(t, []string{"Core.upk", "Engine.upk", "Game.upk"}, archive.Names())

	loader := pkgload.New(
		pkgload.WithFileReader(archive),
		pkgload.WithImportPaths("."),
		pkgload.WithStrictImports(true),
	)
	game, err := loader.LoadFullPackage("Game.upk")
	require.NoError(t, err)

	level, ok := game.Export("Level")
	require.True(t, ok)
	assert.Equal(t, makeCompressibleContent(64<<10), level.Data)

	for _, link := range game.Imports() {
		require.NotNil(t, link.Object, "%s.%s", link.Package, link.Name)
	}
	assert.ElementsMatch(t, []string{"Core", "Engine"}, loader.ImportedPackages().Keys())

	order, err := loader.ImportOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"Core", "Engine", "Game"}, order)
}

func TestPushPull_PreloadFromArchive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepository(t, getRegistry(t), "preload-from-archive")

	_, err := oci.Push(ctx, repo, "latest", gameSet(t))
	require.NoError(t, err, "Push")
	archive, err := oci.Pull(ctx, repo, "latest")
	require.NoError(t, err, "Pull")

	loader := pkgload.New(pkgload.WithFileReader(archive))
	require.NoError(t, loader.Preload(ctx, archive.Names()...))
	assert.Equal(t, 3, loader.CachedPackages().Len())

	core, ok := loader.GetFromCache("Core")
	require.True(t, ok)
	assert.Equal(t, pkgload.StageHeaderParsed, core.Stage())
}

func TestPull_NotFound(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, getRegistry(t), "nonexistent-set-12345")
	_, err := oci.Pull(context.Background(), repo, "latest")
	require.ErrorIs(t, err, oci.ErrNotFound)
}

func TestPush_Retag(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepository(t, getRegistry(t), "retag")

	first, err := oci.Push(ctx, repo, "stable", gameSet(t)[:1])
	require.NoError(t, err)
	second, err := oci.Push(ctx, repo, "stable", gameSet(t))
	require.NoError(t, err)
	assert.NotEqual(t, first.Digest, second.Digest)

	archive, err := oci.Pull(ctx, repo, "stable")
	require.NoError(t, err)
	assert.Len(t, archive.Names(), 3)
}
