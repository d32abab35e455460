package jsonfile

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/museum-docent/internal/core/domain"
	"github.com/kirillkom/museum-docent/internal/infrastructure/storage/localfs"
)

const relicIndex = `{
  "R9": {
    "label": {"명칭": "백자 달항아리", "국적/시대": "한국/조선"},
    "content": "조선 후기의 백자",
    "img": "images/moon_jar.jpg",
    "category": {"nationality": "한국", "period": "조선", "genre": "공예"}
  },
  "R1": {
    "label": {"명칭": "금동미륵보살반가사유상"},
    "content": "삼국시대 불상",
    "img": "images/pensive.png",
    "category": {"nationality": "한국", "period": "신라", "genre": "조각(불상)"}
  }
}`

func newCatalog(t *testing.T, files map[string]string) *Catalog {
	t.Helper()
	storage, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New() error = %v", err)
	}
	for key, body := range files {
		if err := storage.Save(context.Background(), key, strings.NewReader(body)); err != nil {
			t.Fatalf("Save(%s) error = %v", key, err)
		}
	}
	return New(storage, "database/relic_index.json", "guide_program.json", "database")
}

func TestLoadArtifactsKeepsFileOrderAndDerivesFields(t *testing.T) {
	catalog := newCatalog(t, map[string]string{"database/relic_index.json": relicIndex})

	set, err := catalog.LoadArtifacts(context.Background())
	if err != nil {
		t.Fatalf("LoadArtifacts() error = %v", err)
	}
	ids := set.IDs()
	if len(ids) != 2 || ids[0] != "R9" || ids[1] != "R1" {
		t.Fatalf("expected file order [R9 R1], got %v", ids)
	}

	jar, _ := set.Get("R9")
	if jar.Title != "백자 달항아리 (R9)" {
		t.Fatalf("unexpected title %q", jar.Title)
	}
	if jar.ImagePath != "R9/moon_jar.jpg" {
		t.Fatalf("unexpected image path %q", jar.ImagePath)
	}
	if jar.Category.Period != "조선" || jar.IsPresented {
		t.Fatalf("unexpected artifact %+v", jar)
	}
	if catalog.ImageKey(jar.ImagePath) != "database/R9/moon_jar.jpg" {
		t.Fatalf("unexpected image key %q", catalog.ImageKey(jar.ImagePath))
	}
}

func TestLoadArtifactsReportsLoadError(t *testing.T) {
	catalog := newCatalog(t, map[string]string{"database/relic_index.json": `["not", "an", "object"]`})
	if _, err := catalog.LoadArtifacts(context.Background()); !domain.IsKind(err, domain.ErrLoad) {
		t.Fatalf("expected ErrLoad, got %v", err)
	}

	missing := newCatalog(t, nil)
	if _, err := missing.LoadArtifacts(context.Background()); !domain.IsKind(err, domain.ErrLoad) {
		t.Fatalf("expected ErrLoad for missing index, got %v", err)
	}
}

func TestLoadGuideProgram(t *testing.T) {
	catalog := newCatalog(t, map[string]string{"guide_program.json": `{"대표 유물 해설": "매일 11시"}`})
	program, err := catalog.LoadGuideProgram(context.Background())
	if err != nil {
		t.Fatalf("LoadGuideProgram() error = %v", err)
	}
	if !strings.Contains(program, "매일 11시") {
		t.Fatalf("unexpected guide program %q", program)
	}
}

func TestOpenImage(t *testing.T) {
	catalog := newCatalog(t, map[string]string{"database/R9/moon_jar.jpg": "jpeg-bytes"})

	rc, err := catalog.OpenImage(context.Background(), "R9/moon_jar.jpg")
	if err != nil {
		t.Fatalf("OpenImage() error = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "jpeg-bytes" {
		t.Fatalf("unexpected image bytes %q", data)
	}

	if _, err := catalog.OpenImage(context.Background(), "R1/missing.png"); !domain.IsKind(err, domain.ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
}
