package domain

import (
	"encoding/json"
	"fmt"
	"path"
)

// LabelName is the label field holding the display name of an artifact.
const LabelName = "명칭"

type Category struct {
	Nationality string `json:"nationality"`
	Period      string `json:"period"`
	Genre       string `json:"genre"`
}

// Artifact is one museum relic of the catalog.
type Artifact struct {
	ID          string         `json:"id"`
	Label       map[string]any `json:"label"`
	Content     string         `json:"content"`
	Image       string         `json:"img"`
	Category    Category       `json:"category"`
	ImagePath   string         `json:"img_path"`
	Title       string         `json:"title"`
	IsPresented bool           `json:"is_presented"`
}

// Name returns the display name from the label, or the id when absent.
func (a Artifact) Name() string {
	if v, ok := a.Label[LabelName]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return a.ID
}

// Normalize fills the derived image path and title fields.
func (a *Artifact) Normalize() {
	if a.ImagePath == "" && a.Image != "" {
		a.ImagePath = path.Join(a.ID, path.Base(a.Image))
	}
	if a.Title == "" {
		a.Title = fmt.Sprintf("%s (%s)", a.Name(), a.ID)
	}
}

// ArtifactSet is an insertion-ordered id to artifact mapping.
// A nil *ArtifactSet means no search was performed; an empty one means nothing matched.
type ArtifactSet struct {
	ids   []string
	items map[string]Artifact
}

func NewArtifactSet() *ArtifactSet {
	return &ArtifactSet{items: make(map[string]Artifact)}
}

// Add appends the artifact, or replaces it in place when the id is already present.
func (s *ArtifactSet) Add(a Artifact) {
	if _, ok := s.items[a.ID]; !ok {
		s.ids = append(s.ids, a.ID)
	}
	s.items[a.ID] = a
}

func (s *ArtifactSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

func (s *ArtifactSet) IDs() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

func (s *ArtifactSet) Get(id string) (Artifact, bool) {
	if s == nil {
		return Artifact{}, false
	}
	a, ok := s.items[id]
	return a, ok
}

// At returns the artifact at position i in insertion order.
func (s *ArtifactSet) At(i int) (Artifact, bool) {
	if s == nil || i < 0 || i >= len(s.ids) {
		return Artifact{}, false
	}
	return s.items[s.ids[i]], true
}

func (s *ArtifactSet) SetPresented(id string, presented bool) {
	if s == nil {
		return
	}
	a, ok := s.items[id]
	if !ok {
		return
	}
	a.IsPresented = presented
	s.items[id] = a
}

// Clone returns a copy whose presentation flags can change independently.
func (s *ArtifactSet) Clone() *ArtifactSet {
	out := NewArtifactSet()
	if s == nil {
		return out
	}
	for _, id := range s.ids {
		out.Add(s.items[id])
	}
	return out
}

// Each visits artifacts in insertion order until fn returns false.
func (s *ArtifactSet) Each(fn func(Artifact) bool) {
	if s == nil {
		return
	}
	for _, id := range s.ids {
		if !fn(s.items[id]) {
			return
		}
	}
}

// MarshalJSON encodes the set as an array in insertion order.
func (s ArtifactSet) MarshalJSON() ([]byte, error) {
	out := make([]Artifact, 0, s.Len())
	s.Each(func(a Artifact) bool {
		out = append(out, a)
		return true
	})
	return json.Marshal(out)
}

// Card is what a client shows for the artifact under the cursor.
type Card struct {
	ArtifactID string `json:"artifact_id"`
	Header     string `json:"header"`
	ImagePath  string `json:"img_path"`
	Title      string `json:"title"`
}
