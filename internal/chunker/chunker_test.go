package chunker

import (
	"strings"
	"testing"
)

func TestNew_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"valid", 100, 20, false},
		{"zero overlap", 100, 0, false},
		{"overlap equals size", 100, 100, true},
		{"overlap exceeds size", 100, 150, true},
		{"negative overlap", 100, -1, true},
		{"zero size", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.overlap, false)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%d, %d) error = %v, wantErr %v", tt.size, tt.overlap, err, tt.wantErr)
			}
		})
	}
}

func TestChunk_EmptyInput(t *testing.T) {
	c, _ := New(10, 2, true)
	if chunks := c.Chunk("a.txt", ""); chunks != nil {
		t.Errorf("empty input should yield no chunks, got %d", len(chunks))
	}
}

func TestChunk_ReconstructsOriginal(t *testing.T) {
	text := strings.Repeat("abcdefghij", 25)
	for _, cfg := range []struct{ size, overlap int }{
		{50, 0}, {50, 10}, {17, 5}, {250, 100}, {300, 0},
	} {
		c, err := New(cfg.size, cfg.overlap, false)
		if err != nil {
			t.Fatal(err)
		}
		chunks := c.Chunk("doc.txt", text)
		var b strings.Builder
		for i, ch := range chunks {
			if ch.ChunkIndex != i {
				t.Fatalf("size=%d overlap=%d: chunk %d has index %d", cfg.size, cfg.overlap, i, ch.ChunkIndex)
			}
			runes := []rune(ch.Text)
			if i == 0 {
				b.WriteString(ch.Text)
			} else {
				b.WriteString(string(runes[cfg.overlap:]))
			}
		}
		if b.String() != text {
			t.Errorf("size=%d overlap=%d: de-overlapped concatenation != original", cfg.size, cfg.overlap)
		}
	}
}

func TestChunk_OverlapShared(t *testing.T) {
	c, _ := New(10, 4, false)
	chunks := c.Chunk("doc.txt", "0123456789abcdefghij")
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	first := []rune(chunks[0].Text)
	second := []rune(chunks[1].Text)
	if string(first[len(first)-4:]) != string(second[:4]) {
		t.Errorf("consecutive chunks should share 4 runes: %q / %q", chunks[0].Text, chunks[1].Text)
	}
}

func TestChunk_PersianText(t *testing.T) {
	// Rune windows must not split multi-byte characters.
	text := strings.Repeat("قانون مدنی ", 30)
	c, _ := New(40, 8, false)
	for _, ch := range c.Chunk("s.txt", text) {
		if n := len([]rune(ch.Text)); n > 40 {
			t.Errorf("chunk exceeds size bound: %d runes", n)
		}
		if !strings.ContainsRune(ch.Text, 'ق') && !strings.ContainsRune(ch.Text, 'م') {
			t.Errorf("chunk lost Persian content: %q", ch.Text)
		}
	}
}

func TestChunk_LegalUnits(t *testing.T) {
	text := "ماده 1 تعریف\nمتن ماده اول در مورد قرارداد.\nماده 2 دامنه\nمتن ماده دوم.\nتبصره 1\nمتن تبصره."
	c, _ := New(800, 120, true)
	got := c.Chunk("قانون-مدنی.txt", text)
	if len(got) != 3 {
		t.Fatalf("expected 3 unit chunks, got %d", len(got))
	}
	if got[0].UnitKind != "ماده" || got[0].UnitTitle != "1 تعریف" {
		t.Errorf("unit 0 = %q %q", got[0].UnitKind, got[0].UnitTitle)
	}
	if got[2].UnitKind != "تبصره" {
		t.Errorf("unit 2 kind = %q", got[2].UnitKind)
	}
	for i, ch := range got {
		if ch.ChunkIndex != i {
			t.Errorf("chunk %d has index %d", i, ch.ChunkIndex)
		}
	}
	if got[0].DocumentType != "law" {
		t.Errorf("document type = %q, want law", got[0].DocumentType)
	}
}

func TestChunk_LegalUnitsDisabled(t *testing.T) {
	text := "ماده 1 تعریف\nمتن."
	c, _ := New(800, 120, false)
	got := c.Chunk("doc.txt", text)
	if len(got) != 1 || got[0].UnitKind != "" {
		t.Errorf("legal units disabled should window-chunk, got %+v", got)
	}
}

func TestDetectLegalDomain(t *testing.T) {
	if d := detectLegalDomain("جرم و مجازات و حبس"); d != "criminal" {
		t.Errorf("domain = %q, want criminal", d)
	}
	if d := detectLegalDomain("hello world"); d != "unknown" {
		t.Errorf("domain = %q, want unknown", d)
	}
}
