// Package oci distributes package sets as OCI artifacts.
//
// Push stores each package file as a layer of an artifact manifest, and
// Pull fetches the layers back into an Archive. An Archive implements
// pkgload.FileReader, so a Loader can resolve imports straight from a
// pulled set:
//
//	repo, err := oci.NewRepository("registry.example.com/game/content", false)
//	if err != nil {
//		return err
//	}
//	archive, err := oci.Pull(ctx, repo, "v1")
//	if err != nil {
//		return err
//	}
//	loader := pkgload.New(
//		pkgload.WithFileReader(archive),
//		pkgload.WithImportPaths("."),
//	)
//	game, err := loader.LoadFullPackage("Game.upk")
package oci
