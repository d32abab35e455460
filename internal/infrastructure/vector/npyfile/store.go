package npyfile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/kirillkom/museum-docent/internal/core/domain"
	"github.com/kirillkom/museum-docent/internal/core/ports"
)

type metaEntry struct {
	ID  string `json:"id"`
	Doc string `json:"doc"`
}

// Store keeps each collection as a <name>_meta.json / <name>_embeddings.npy pair.
type Store struct {
	storage ports.ObjectStorage
	prefix  string
}

func New(storage ports.ObjectStorage, prefix string) *Store {
	return &Store{storage: storage, prefix: prefix}
}

func (s *Store) metaKey(name string) string {
	return path.Join(s.prefix, name+"_meta.json")
}

func (s *Store) embeddingsKey(name string) string {
	return path.Join(s.prefix, name+"_embeddings.npy")
}

func (s *Store) LoadCollection(ctx context.Context, name string) ([]domain.DocumentEmbedding, error) {
	op := "load collection " + name

	metaFile, err := s.storage.Open(ctx, s.metaKey(name))
	if err != nil {
		return nil, domain.WrapError(domain.ErrLoad, op, err)
	}
	var meta []metaEntry
	err = json.NewDecoder(metaFile).Decode(&meta)
	_ = metaFile.Close()
	if err != nil {
		return nil, domain.WrapError(domain.ErrLoad, op, fmt.Errorf("decode meta: %w", err))
	}

	npy, err := s.storage.Open(ctx, s.embeddingsKey(name))
	if err != nil {
		return nil, domain.WrapError(domain.ErrLoad, op, err)
	}
	matrix, err := ReadMatrix(npy)
	_ = npy.Close()
	if err != nil {
		return nil, domain.WrapError(domain.ErrLoad, op, err)
	}

	if matrix.Rows != len(meta) {
		return nil, domain.WrapError(
			domain.ErrLoad,
			op,
			fmt.Errorf("embeddings have %d rows, meta has %d entries", matrix.Rows, len(meta)),
		)
	}

	docs := make([]domain.DocumentEmbedding, len(meta))
	for i, m := range meta {
		docs[i] = domain.DocumentEmbedding{ID: m.ID, Text: m.Doc, Vector: matrix.Row(i)}
	}
	return docs, nil
}

func (s *Store) SaveCollection(ctx context.Context, name string, docs []domain.DocumentEmbedding) error {
	rows := make([][]float32, len(docs))
	meta := make([]metaEntry, len(docs))
	for i, doc := range docs {
		rows[i] = doc.Vector
		meta[i] = metaEntry{ID: doc.ID, Doc: doc.Text}
	}

	var npy bytes.Buffer
	if err := WriteMatrix(&npy, rows); err != nil {
		return fmt.Errorf("encode embeddings: %w", err)
	}
	if err := s.storage.Save(ctx, s.embeddingsKey(name), &npy); err != nil {
		return fmt.Errorf("save embeddings: %w", err)
	}

	var metaBuf bytes.Buffer
	enc := json.NewEncoder(&metaBuf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	if err := s.storage.Save(ctx, s.metaKey(name), &metaBuf); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	return nil
}
