package ingest

import (
	"errors"
	"testing"

	"golang.org/x/text/encoding/charmap"

	"github.com/fiscalstack/fiscaudit/pkg/core"
)

func TestSniffSeparator(t *testing.T) {
	tests := []struct {
		name string
		text string
		want rune
		ok   bool
	}{
		{
			name: "semicolon",
			text: "a;b;c\n1;2;3\n4;5;6\n",
			want: ';',
			ok:   true,
		},
		{
			name: "comma",
			text: "a,b\n1,2\n",
			want: ',',
			ok:   true,
		},
		{
			name: "tab",
			text: "a\tb\n1\t2\n",
			want: '\t',
			ok:   true,
		},
		{
			name: "pipe",
			text: "a|b\n1|2\n",
			want: '|',
			ok:   true,
		},
		{
			name: "semicolon wins over comma in values",
			text: "chave;valor\nk1;1,50\nk2;2,75\n",
			want: ';',
			ok:   true,
		},
		{
			name: "single column never qualifies",
			text: "apenas uma coluna\noutra linha\n",
			ok:   false,
		},
		{
			name: "inconsistent column counts",
			text: "a;b;c\n1;2\n1;2;3;4\n",
			ok:   false,
		},
		{
			name: "empty input",
			text: "",
			ok:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sep, ok := sniffSeparator(tt.text)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if ok && sep != tt.want {
				t.Errorf("expected separator %q, got %q", tt.want, sep)
			}
		})
	}
}

func TestDecodeText_UTF8(t *testing.T) {
	text, encoding, err := decodeText([]byte("chave;razão social\n"))
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if encoding != "utf-8" {
		t.Errorf("expected utf-8, got %q", encoding)
	}
	if text != "chave;razão social\n" {
		t.Errorf("unexpected text: %q", text)
	}
}

func TestDecodeText_Windows1252(t *testing.T) {
	encoded, err := charmap.Windows1252.NewEncoder().Bytes([]byte("razão;emissão\n"))
	if err != nil {
		t.Fatalf("failed to build fixture: %v", err)
	}

	text, encoding, err := decodeText(encoded)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if encoding != "windows-1252" {
		t.Errorf("expected windows-1252, got %q", encoding)
	}
	if text != "razão;emissão\n" {
		t.Errorf("unexpected text: %q", text)
	}
}

func TestDecodeText_StripsBOM(t *testing.T) {
	text, _, err := decodeText(append([]byte{0xEF, 0xBB, 0xBF}, []byte("a;b\n")...))
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if text != "a;b\n" {
		t.Errorf("BOM not stripped: %q", text)
	}
}

func TestParseCSV(t *testing.T) {
	data := []byte("CHAVE DE ACESSO;VALOR NOTA FISCAL\nkey-1;100,00\nkey-2;250,50\n\n")
	parsed, err := parseCSV("notas.csv", data)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(parsed.Headers) != 2 {
		t.Fatalf("expected 2 headers, got %v", parsed.Headers)
	}
	if len(parsed.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(parsed.Rows))
	}
	if parsed.Rows[0][0] != "key-1" || parsed.Rows[1][1] != "250,50" {
		t.Errorf("unexpected rows: %v", parsed.Rows)
	}
	if parsed.Separator != ";" {
		t.Errorf("expected semicolon separator, got %q", parsed.Separator)
	}
}

func TestParseCSV_ShortRowsPadded(t *testing.T) {
	// The short row sits past the sniffing sample so separator detection
	// still sees a consistent layout.
	data := []byte("a;b;c\n1;2;3\n4;5;6\n7;8;9\n10;11;12\n13;14\n")
	parsed, err := parseCSV("dados.csv", data)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(parsed.Rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(parsed.Rows))
	}
	last := parsed.Rows[4]
	if len(last) != 3 || last[2] != "" {
		t.Errorf("expected short row padded to 3 columns, got %v", last)
	}
}

func TestParseCSV_Unreadable(t *testing.T) {
	_, err := parseCSV("ruim.csv", []byte("sem separador algum\noutra linha\n"))
	if err == nil {
		t.Fatal("expected unreadable-file error")
	}
	var unreadable *core.UnreadableFileError
	if !errors.As(err, &unreadable) {
		t.Fatalf("expected UnreadableFileError, got %T: %v", err, err)
	}
	if unreadable.Filename != "ruim.csv" {
		t.Errorf("expected filename in error, got %q", unreadable.Filename)
	}
}
