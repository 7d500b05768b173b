package oci

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/retry"
)

const (
	// MediaTypePackage is the layer media type of a package file.
	MediaTypePackage = "application/vnd.meigma.pkgload.package"

	// ArtifactType is the artifact type of a package set manifest.
	ArtifactType = "application/vnd.meigma.pkgload.set.v1"

	userAgent = "pkgload/1.0"
)

// File is a package file to push.
type File struct {
	// Name is stored as the layer title. Only its base name is kept.
	Name string
	Data []byte
}

// Push stores files as one package set artifact in target and, if tag is
// not empty, tags the manifest. It returns the manifest descriptor.
func Push(ctx context.Context, target oras.Target, tag string, files []File) (ocispec.Descriptor, error) {
	if len(files) == 0 {
		return ocispec.Descriptor{}, fmt.Errorf("%w: no files", ErrInvalidFile)
	}

	seen := make(map[string]struct{}, len(files))
	layers := make([]ocispec.Descriptor, 0, len(files))
	for _, f := range files {
		name := filepath.Base(f.Name)
		if f.Name == "" || name == "." || name == string(filepath.Separator) {
			return ocispec.Descriptor{}, fmt.Errorf("%w: bad name %q", ErrInvalidFile, f.Name)
		}
		if _, dup := seen[name]; dup {
			return ocispec.Descriptor{}, fmt.Errorf("%w: duplicate name %q", ErrInvalidFile, name)
		}
		seen[name] = struct{}{}

		desc, err := oras.PushBytes(ctx, target, MediaTypePackage, f.Data)
		if err != nil {
			return ocispec.Descriptor{}, fmt.Errorf("push %s: %w", name, mapError(err))
		}
		desc.Annotations = map[string]string{ocispec.AnnotationTitle: name}
		layers = append(layers, desc)
	}

	manifest, err := oras.PackManifest(ctx, target, oras.PackManifestVersion1_1, ArtifactType, oras.PackManifestOptions{
		Layers: layers,
	})
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("pack manifest: %w", mapError(err))
	}

	if tag != "" {
		if err := target.Tag(ctx, manifest, tag); err != nil {
			return ocispec.Descriptor{}, fmt.Errorf("tag %s: %w", tag, mapError(err))
		}
	}
	return manifest, nil
}

// Pull resolves ref in target and fetches every package layer of the
// manifest it names. Content is verified against its descriptor.
func Pull(ctx context.Context, target oras.ReadOnlyTarget, ref string) (*Archive, error) {
	desc, err := target.Resolve(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ref, mapError(err))
	}
	if desc.MediaType != ocispec.MediaTypeImageManifest {
		return nil, fmt.Errorf("%w: %s has media type %s", ErrInvalidArtifact, ref, desc.MediaType)
	}

	raw, err := content.FetchAll(ctx, target, desc)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest %s: %w", desc.Digest, mapError(err))
	}
	var manifest ocispec.Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("%w: decode manifest: %v", ErrInvalidArtifact, err)
	}
	if manifest.ArtifactType != ArtifactType {
		return nil, fmt.Errorf("%w: artifact type %q", ErrInvalidArtifact, manifest.ArtifactType)
	}

	a := &Archive{
		desc:  desc,
		files: make(map[string][]byte, len(manifest.Layers)),
	}
	for _, layer := range manifest.Layers {
		if layer.MediaType != MediaTypePackage {
			continue
		}
		name := layer.Annotations[ocispec.AnnotationTitle]
		if name == "" {
			return nil, fmt.Errorf("%w: layer %s has no title", ErrInvalidArtifact, layer.Digest)
		}
		data, err := content.FetchAll(ctx, target, layer)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", name, mapError(err))
		}
		if _, dup := a.files[name]; !dup {
			a.names = append(a.names, name)
		}
		a.files[name] = data
	}
	return a, nil
}

// Archive holds the package files of a pulled set in memory.
type Archive struct {
	desc  ocispec.Descriptor
	names []string
	files map[string][]byte
}

// Descriptor returns the descriptor of the manifest the archive was
// pulled from.
func (a *Archive) Descriptor() ocispec.Descriptor {
	return a.desc
}

// Names returns the file names in manifest order.
func (a *Archive) Names() []string {
	return append([]string(nil), a.names...)
}

// ReadFile returns the file whose name matches the base name of path.
func (a *Archive) ReadFile(path string) ([]byte, error) {
	data, ok := a.files[filepath.Base(path)]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return data, nil
}

// NewRepository opens the remote repository named by ref. Credentials are
// read from the Docker config when available.
func NewRepository(ref string, plainHTTP bool) (*remote.Repository, error) {
	repo, err := remote.NewRepository(ref)
	if err != nil {
		return nil, fmt.Errorf("parse reference %q: %w", ref, err)
	}
	repo.PlainHTTP = plainHTTP

	client := &auth.Client{
		Client: retry.DefaultClient,
		Cache:  auth.NewCache(),
		Header: http.Header{
			"User-Agent": []string{userAgent},
		},
	}
	if store, err := credentials.NewStoreFromDocker(credentials.StoreOptions{}); err == nil {
		client.Credential = credentials.Credential(store)
	}
	repo.Client = client
	return repo, nil
}
