package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"

	"github.com/kirillkom/museum-docent/internal/core/domain"
	"github.com/kirillkom/museum-docent/internal/core/ports"
)

// Catalog reads the relic index and guide program documents from object storage.
type Catalog struct {
	storage     ports.ObjectStorage
	indexKey    string
	guideKey    string
	imagePrefix string
}

func New(storage ports.ObjectStorage, indexKey, guideKey, imagePrefix string) *Catalog {
	return &Catalog{
		storage:     storage,
		indexKey:    indexKey,
		guideKey:    guideKey,
		imagePrefix: imagePrefix,
	}
}

// LoadArtifacts decodes the relic index keeping the file's key order.
func (c *Catalog) LoadArtifacts(ctx context.Context) (*domain.ArtifactSet, error) {
	rc, err := c.storage.Open(ctx, c.indexKey)
	if err != nil {
		return nil, domain.WrapError(domain.ErrLoad, "open relic index", err)
	}
	defer rc.Close()

	set, err := decodeArtifacts(rc)
	if err != nil {
		return nil, domain.WrapError(domain.ErrLoad, "decode relic index", err)
	}
	return set, nil
}

func decodeArtifacts(r io.Reader) (*domain.ArtifactSet, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object at top level, got %v", tok)
	}

	set := domain.NewArtifactSet()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		id, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key %v", keyTok)
		}
		var artifact domain.Artifact
		if err := dec.Decode(&artifact); err != nil {
			return nil, fmt.Errorf("artifact %s: %w", id, err)
		}
		artifact.ID = id
		artifact.IsPresented = false
		artifact.Normalize()
		set.Add(artifact)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return set, nil
}

// LoadGuideProgram returns the guide program document re-encoded as compact JSON.
func (c *Catalog) LoadGuideProgram(ctx context.Context) (string, error) {
	rc, err := c.storage.Open(ctx, c.guideKey)
	if err != nil {
		return "", domain.WrapError(domain.ErrLoad, "open guide program", err)
	}
	defer rc.Close()

	var program json.RawMessage
	if err := json.NewDecoder(rc).Decode(&program); err != nil {
		return "", domain.WrapError(domain.ErrLoad, "decode guide program", err)
	}
	return string(program), nil
}

// OpenImage opens the image stored for an artifact image path.
func (c *Catalog) OpenImage(ctx context.Context, imagePath string) (io.ReadCloser, error) {
	if imagePath == "" {
		return nil, domain.WrapError(domain.ErrArtifactNotFound, "open image", fmt.Errorf("empty image path"))
	}
	rc, err := c.storage.Open(ctx, c.ImageKey(imagePath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrArtifactNotFound, "open image", err)
		}
		return nil, fmt.Errorf("open image %s: %w", imagePath, err)
	}
	return rc, nil
}

// ImageKey maps an artifact image path to its storage key.
func (c *Catalog) ImageKey(imagePath string) string {
	return path.Join(c.imagePrefix, imagePath)
}
