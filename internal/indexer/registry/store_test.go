package registry

import (
	"testing"

	"github.com/coreagg/indexercore/internal/indexer/cardigann"
	"github.com/coreagg/indexercore/internal/indexer/types"
)

func TestInferContentTypesFromCategoryMappings(t *testing.T) {
	def := &cardigann.Definition{
		Search: cardigann.SearchBlock{
			Fields: map[string]cardigann.Field{
				"magneturi": {Selector: ".magnet", Attribute: "href"},
			},
		},
		Caps: cardigann.Capabilities{
			CategoryMappings: []cardigann.CategoryMapping{
				{ID: "1", Cat: "Movies/HD"},
				{ID: "2", Cat: "TV/Anime"},
			},
		},
	}

	got := inferContentTypes(def)
	want := map[types.ContentType]bool{types.ContentMovie: true, types.ContentAnime: true}
	if len(got) != len(want) {
		t.Fatalf("expected %d content types, got %v", len(want), got)
	}
	for _, ct := range got {
		if !want[ct] {
			t.Fatalf("unexpected content type %v", ct)
		}
	}
}

func TestInferContentTypesRejectsNonTorrentDefinitions(t *testing.T) {
	def := &cardigann.Definition{
		Search: cardigann.SearchBlock{
			Fields: map[string]cardigann.Field{
				"title": {Selector: "a"},
				"size":  {Selector: ".size"},
			},
		},
		Caps: cardigann.Capabilities{
			CategoryMappings: []cardigann.CategoryMapping{
				{ID: "1", Cat: "Movies/HD"},
			},
		},
	}

	if got := inferContentTypes(def); len(got) != 0 {
		t.Fatalf("expected empty content-type set for a non-torrent definition, got %v", got)
	}
}
