package cardigann

import "testing"

func TestGetProtocolDetectsTorrentViaDownloadInfoHash(t *testing.T) {
	def := &Definition{
		Download: &DownloadBlock{InfoHash: &InfoHashBlock{}},
	}
	if got := def.GetProtocol(); got != "torrent" {
		t.Fatalf("expected torrent, got %q", got)
	}
}

func TestGetProtocolDetectsTorrentViaSearchFields(t *testing.T) {
	def := &Definition{
		Search: SearchBlock{
			Fields: map[string]Field{
				"title":    {Selector: "a"},
				"magneturi": {Selector: ".magnet", Attribute: "href"},
			},
		},
	}
	if got := def.GetProtocol(); got != "torrent" {
		t.Fatalf("expected torrent, got %q", got)
	}
}

func TestGetProtocolFallsBackToUsenetWithoutAnySignal(t *testing.T) {
	def := &Definition{
		Search: SearchBlock{
			Fields: map[string]Field{
				"title": {Selector: "a"},
				"size":  {Selector: ".size"},
			},
		},
	}
	if got := def.GetProtocol(); got != "usenet" {
		t.Fatalf("expected usenet, got %q", got)
	}
}

func TestHasLoginRequiresMethod(t *testing.T) {
	if (&Definition{}).HasLogin() {
		t.Fatal("expected no login for nil login block")
	}
	def := &Definition{Login: &LoginBlock{Method: "post"}}
	if !def.HasLogin() {
		t.Fatal("expected login to be detected")
	}
}
