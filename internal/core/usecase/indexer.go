package usecase

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/kirillkom/museum-docent/internal/core/domain"
	"github.com/kirillkom/museum-docent/internal/core/ports"
	"github.com/kirillkom/museum-docent/internal/core/retrieval"
)

// CollectionIndexer embeds the catalog into the title, description and content collections.
type CollectionIndexer struct {
	catalog  ports.ArtifactCatalog
	registry *retrieval.Registry
	logger   *slog.Logger
}

func NewCollectionIndexer(catalog ports.ArtifactCatalog, registry *retrieval.Registry) *CollectionIndexer {
	return &CollectionIndexer{
		catalog:  catalog,
		registry: registry,
		logger:   slog.Default(),
	}
}

func (ix *CollectionIndexer) WithLogger(logger *slog.Logger) *CollectionIndexer {
	if logger != nil {
		ix.logger = logger
	}
	return ix
}

// Index rebuilds the named collections, or all three when none are given.
func (ix *CollectionIndexer) Index(ctx context.Context, names ...string) error {
	database, err := ix.catalog.LoadArtifacts(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		names = []string{domain.CollectionTitle, domain.CollectionDescription, domain.CollectionContent}
	}

	for _, name := range names {
		docs, err := collectionDocuments(name, database)
		if err != nil {
			return err
		}
		if err := ix.registry.Collection(name).Build(ctx, docs); err != nil {
			return fmt.Errorf("build collection %s: %w", name, err)
		}
		ix.logger.Info("collection_indexed", "collection", name, "documents", len(docs))
	}
	return nil
}

func collectionDocuments(name string, database *domain.ArtifactSet) ([]domain.DocumentEmbedding, error) {
	var text func(domain.Artifact) string
	switch name {
	case domain.CollectionTitle:
		text = func(a domain.Artifact) string { return a.Name() }
	case domain.CollectionDescription:
		text = describeLabel
	case domain.CollectionContent:
		text = func(a domain.Artifact) string { return strings.TrimSpace(a.Content) }
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "index collection", fmt.Errorf("unknown collection %q", name))
	}

	docs := make([]domain.DocumentEmbedding, 0, database.Len())
	database.Each(func(a domain.Artifact) bool {
		if doc := text(a); doc != "" {
			docs = append(docs, domain.DocumentEmbedding{ID: a.ID, Text: doc})
		}
		return true
	})
	return docs, nil
}

// describeLabel renders the label as "key: value" lines in key order.
func describeLabel(a domain.Artifact) string {
	lines := make([]string, 0, len(a.Label))
	for _, key := range sortedKeys(a.Label) {
		value := a.Label[key]
		if value == nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %v", key, value))
	}
	return strings.Join(lines, "\n")
}

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}
