package usecase

import (
	"fmt"

	"github.com/kirillkom/museum-docent/internal/core/domain"
)

const searchedHeaderPrefix = "검색된 작품 "

// ArtifactTour is a cursor over an ordered artifact set. A searched tour
// walks search results and keeps a link to the catalog tour it came from.
type ArtifactTour struct {
	set      *domain.ArtifactSet
	index    int
	original *ArtifactTour
}

func NewArtifactTour(set *domain.ArtifactSet) *ArtifactTour {
	if set == nil {
		set = domain.NewArtifactSet()
	}
	return &ArtifactTour{set: set, index: -1}
}

func newSearchedTour(results *domain.ArtifactSet, original *ArtifactTour) *ArtifactTour {
	return &ArtifactTour{set: results, index: -1, original: original.Original()}
}

func (t *ArtifactTour) Searched() bool {
	return t.original != nil
}

// Original returns the catalog tour; for the catalog tour that is t itself.
func (t *ArtifactTour) Original() *ArtifactTour {
	if t.original != nil {
		return t.original
	}
	return t
}

// Database is the full catalog the tour belongs to.
func (t *ArtifactTour) Database() *domain.ArtifactSet {
	return t.Original().set
}

func (t *ArtifactTour) Len() int {
	return t.set.Len()
}

func (t *ArtifactTour) Index() int {
	return t.index
}

// Next advances the cursor. It reports false, leaving the cursor in place,
// when the tour has no further artifact.
func (t *ArtifactTour) Next() bool {
	if t.index+1 >= t.set.Len() {
		return false
	}
	t.index++
	return true
}

// Previous steps back. It reports false when the cursor is already at the
// first artifact or has not started yet.
func (t *ArtifactTour) Previous() bool {
	if t.index <= 0 {
		return false
	}
	t.index--
	return true
}

// Rewind puts the cursor on the first artifact, if there is one.
func (t *ArtifactTour) Rewind() {
	if t.set.Len() > 0 {
		t.index = 0
	}
}

func (t *ArtifactTour) Current() (domain.Artifact, bool) {
	return t.set.At(t.index)
}

func (t *ArtifactTour) Header() string {
	header := fmt.Sprintf("%d점 중 %d번째 전시물입니다.", t.set.Len(), t.index+1)
	if t.Searched() {
		return searchedHeaderPrefix + header
	}
	return header
}

func (t *ArtifactTour) Card() (domain.Card, bool) {
	current, ok := t.Current()
	if !ok {
		return domain.Card{}, false
	}
	return domain.Card{
		ArtifactID: current.ID,
		Header:     t.Header(),
		ImagePath:  current.ImagePath,
		Title:      current.Title,
	}, true
}

// SetPresented flags the current artifact. Searched tours mirror the flag
// onto the catalog so the artifact is not narrated twice.
func (t *ArtifactTour) SetPresented(presented bool) {
	current, ok := t.Current()
	if !ok {
		return
	}
	t.set.SetPresented(current.ID, presented)
	if t.original != nil {
		t.original.set.SetPresented(current.ID, presented)
	}
}

type tourState struct {
	tour          *ArtifactTour
	index         int
	originalIndex int
}

func (t *ArtifactTour) state() tourState {
	return tourState{tour: t, index: t.index, originalIndex: t.Original().index}
}

func (s tourState) restore() *ArtifactTour {
	s.tour.index = s.index
	s.tour.Original().index = s.originalIndex
	return s.tour
}
