package tabular

import (
	"errors"
	"strings"
	"testing"
)

// ----------------------------------------------------------------------------
// Parse Tests
// ----------------------------------------------------------------------------

func TestParse_Basic(t *testing.T) {
	input := "id,name,group\nA1,Store One,Mall A\nA2,Store Two,Mall B\n"

	result, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(result.Rows))
	}
	if got := result.Rows[0]["id"]; got != "A1" {
		t.Errorf("rows[0][id] = %q, want %q", got, "A1")
	}
	if got := result.Rows[1]["name"]; got != "Store Two" {
		t.Errorf("rows[1][name] = %q, want %q", got, "Store Two")
	}
	if len(result.Skipped) != 0 {
		t.Errorf("skipped = %d, want 0", len(result.Skipped))
	}
}

func TestParse_Quoting(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		want  []string
	}{
		{
			name: "comma inside quotes",
			line: `A1,"Store, One",Mall`,
			want: []string{"A1", "Store, One", "Mall"},
		},
		{
			name: "doubled quote collapses to literal",
			line: `A1,"Say ""hi""",Mall`,
			want: []string{"A1", `Say "hi"`, "Mall"},
		},
		{
			name: "bracketed array value",
			line: `A1,"[57.5,-20.1]",Mall`,
			want: []string{"A1", "[57.5,-20.1]", "Mall"},
		},
		{
			name: "whitespace trimmed after unquoting",
			line: `  A1 , " padded " ,Mall`,
			want: []string{"A1", "padded", "Mall"},
		},
		{
			name: "empty fields preserved",
			line: `A1,,Mall`,
			want: []string{"A1", "", "Mall"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := "a,b,c\n" + tt.line + "\n"
			result, err := Parse(input)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(result.Rows) != 1 {
				t.Fatalf("rows = %d, want 1 (skipped: %v)", len(result.Rows), result.Skipped)
			}
			row := result.Rows[0]
			for i, col := range []string{"a", "b", "c"} {
				if row[col] != tt.want[i] {
					t.Errorf("field %q = %q, want %q", col, row[col], tt.want[i])
				}
			}
		})
	}
}

// TestParse_QuotingRoundTrip serializes field values with CSV quoting and
// verifies the parser reconstructs the originals exactly.
func TestParse_QuotingRoundTrip(t *testing.T) {
	values := [][]string{
		{"plain", "with, comma", `with "quotes"`},
		{`comma, and "quote"`, "[57.5,-20.1]", "x"},
	}

	var b strings.Builder
	b.WriteString("a,b,c\n")
	for _, row := range values {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
		}
		b.WriteString(strings.Join(cells, ","))
		b.WriteString("\n")
	}

	result, err := Parse(b.String())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(result.Rows) != len(values) {
		t.Fatalf("rows = %d, want %d", len(result.Rows), len(values))
	}

	for r, row := range values {
		for i, col := range []string{"a", "b", "c"} {
			if got := result.Rows[r][col]; got != row[i] {
				t.Errorf("row %d field %q = %q, want %q", r, col, got, row[i])
			}
		}
	}
}

func TestParse_SkipsWrongFieldCount(t *testing.T) {
	input := strings.Join([]string{
		"id,name,group",
		"A1,Store One,Mall A",
		"A2,Store Two,Mall B,extra", // one extra field
		"A3,Store Three,Mall C",
	}, "\n")

	result, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(result.Rows))
	}
	if result.Rows[0]["id"] != "A1" || result.Rows[1]["id"] != "A3" {
		t.Errorf("surrounding rows not preserved: %v", result.Rows)
	}

	if len(result.Skipped) != 1 {
		t.Fatalf("skipped = %d, want 1", len(result.Skipped))
	}
	skip := result.Skipped[0]
	if skip.LineNumber != 3 {
		t.Errorf("skip.LineNumber = %d, want 3", skip.LineNumber)
	}
	if skip.FieldCount != 4 || skip.Expected != 3 {
		t.Errorf("skip counts = %d/%d, want 4/3", skip.FieldCount, skip.Expected)
	}
}

func TestParse_EmptyInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty string", input: ""},
		{name: "whitespace only", input: "  \n\t\n"},
		{name: "header only", input: "id,name,group\n"},
		{name: "header and blank lines", input: "id,name,group\n\n\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			if !errors.Is(err, ErrEmptyInput) {
				t.Errorf("Parse() error = %v, want ErrEmptyInput", err)
			}
		})
	}
}

func TestParse_CRLFLineEndings(t *testing.T) {
	input := "id,name\r\nA1,Store One\r\nA2,Store Two\r\n"

	result, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(result.Rows))
	}
	if got := result.Rows[1]["name"]; got != "Store Two" {
		t.Errorf("rows[1][name] = %q, want %q", got, "Store Two")
	}
}

func TestParse_RowOrderPreserved(t *testing.T) {
	input := "id\nC\nA\nB\n"

	result, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := []string{"C", "A", "B"}
	for i, w := range want {
		if result.Rows[i]["id"] != w {
			t.Errorf("rows[%d][id] = %q, want %q", i, result.Rows[i]["id"], w)
		}
	}
}
