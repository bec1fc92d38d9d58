package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"vargento/internal/domain"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadCSV(t *testing.T) {
	content := "\xEF\xBB\xBFid,Descripción,Decisión\n" +
		"1,mano clara dentro del área,Penal\n" +
		"2,  remate desviado  ,No gol\n" +
		"3,,Roja\n" +
		",,\n" +
		"4,entrada fuerte con plancha,\n" +
		"5,\"agarrón, empujón y caída\",Penal\n"
	path := writeFile(t, "jugadas.csv", []byte(content))

	f, err := LoadFile(path, Columns{})
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	want := []domain.IncidentRecord{
		{Description: "mano clara dentro del área", Decision: "Penal"},
		{Description: "remate desviado", Decision: "No gol"},
		{Description: "agarrón, empujón y caída", Decision: "Penal"},
	}
	if diff := cmp.Diff(want, f.Records); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
	if f.Encoding != EncodingUTF8 {
		t.Fatalf("expected utf-8, got %s", f.Encoding)
	}
	if f.TotalRows != 5 || f.Dropped != 2 {
		t.Fatalf("unexpected counts total=%d dropped=%d", f.TotalRows, f.Dropped)
	}
	if f.Header[1] != "Descripción" {
		t.Fatalf("BOM not stripped from header: %q", f.Header)
	}
}

func TestLoadLatin1Semicolon(t *testing.T) {
	content := "Jugada;Decisi\xf3n\n" +
		"mano en el \xe1rea;Penal\n" +
		"plancha al tobillo;Roja\n"
	path := writeFile(t, "export.csv", []byte(content))

	f, err := LoadFile(path, Columns{})
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if f.Encoding != EncodingLatin1 {
		t.Fatalf("expected latin-1 fallback, got %s", f.Encoding)
	}
	want := []domain.IncidentRecord{
		{Description: "mano en el área", Decision: "Penal"},
		{Description: "plancha al tobillo", Decision: "Roja"},
	}
	if diff := cmp.Diff(want, f.Records); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadCustomColumns(t *testing.T) {
	content := "texto_libre\tveredicto\nmano\tPenal\n"
	path := writeFile(t, "custom.tsv", []byte(content))

	recs, err := Load(path, Columns{Description: []string{"Texto_Libre"}, Decision: "VEREDICTO"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(recs) != 1 || recs[0].Decision != "Penal" {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

func TestLoadXLSX(t *testing.T) {
	wb := excelize.NewFile()
	defer wb.Close()
	sheet := wb.GetSheetName(0)
	rows := [][]string{
		{"Descripcion", "Decision"},
		{"mano clara dentro del área", "Penal"},
		{"remate desviado", "No gol"},
	}
	for r, row := range rows {
		for c, v := range row {
			name, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := wb.SetCellValue(sheet, name, v); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "jugadas.xlsx")
	if err := wb.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}

	f, err := LoadFile(path, Columns{})
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if f.Encoding != EncodingXLSX {
		t.Fatalf("unexpected encoding %s", f.Encoding)
	}
	if len(f.Records) != 2 || f.Records[1].Decision != "No gol" {
		t.Fatalf("unexpected records: %+v", f.Records)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	noDecision := filepath.Join(dir, "sin_decision.csv")
	if err := os.WriteFile(noDecision, []byte("descripcion,minuto\nmano,12\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	noDescription := filepath.Join(dir, "sin_texto.csv")
	if err := os.WriteFile(noDescription, []byte("minuto,decision\n12,Penal\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	unsupported := filepath.Join(dir, "jugadas.json")
	if err := os.WriteFile(unsupported, []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}
	empty := filepath.Join(dir, "vacio.csv")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		path      string
		wantInMsg []string
		wantFound []string
	}{
		{"missing file", filepath.Join(dir, "nope.csv"), []string{"file not found"}, nil},
		{"no decision column", noDecision, []string{"no decision column", "descripcion, minuto"}, []string{"descripcion", "minuto"}},
		{"no description column", noDescription, []string{"no description column"}, []string{"minuto", "decision"}},
		{"unsupported type", unsupported, []string{"unsupported file type"}, nil},
		{"empty file", empty, []string{"no header row"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path, Columns{})
			var loadErr *DataLoadError
			if !errors.As(err, &loadErr) {
				t.Fatalf("expected DataLoadError, got %v", err)
			}
			for _, s := range tt.wantInMsg {
				if !strings.Contains(err.Error(), s) {
					t.Fatalf("error %q does not contain %q", err.Error(), s)
				}
			}
			if diff := cmp.Diff(tt.wantFound, loadErr.Found); diff != "" {
				t.Fatalf("found columns mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFoldHeader(t *testing.T) {
	tests := map[string]string{
		" Decisión ":  "decision",
		"DESCRIPCIÓN": "descripcion",
		"Jugada":      "jugada",
	}
	for in, want := range tests {
		if got := foldHeader(in); got != want {
			t.Errorf("foldHeader(%q) = %q, want %q", in, got, want)
		}
	}
}
