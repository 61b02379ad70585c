package validation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/callrodry/capcee-proyecto/internal/sheet"
	"github.com/callrodry/capcee-proyecto/internal/types"
)

type stubLookup map[string][]types.ColumnMapping

func (s stubLookup) MappingsFor(_ context.Context, dept, fileType string) ([]types.ColumnMapping, error) {
	return s[dept+"|"+fileType], nil
}

func obrasMappings() []types.ColumnMapping {
	return []types.ColumnMapping{
		{SourceColumn: "FOLIO1", TargetField: "folio1", Required: true, Active: true},
		{SourceColumn: "PARTIDA", TargetField: "partida", Required: true, Active: true},
		{SourceColumn: "Obra", TargetField: "obra", Required: true, Active: true},
		{SourceColumn: "MUNICIPIO", TargetField: "municipio", Required: true, Active: true},
		{SourceColumn: "CCT", TargetField: "cct", Active: true},
		{SourceColumn: "LOCALIDAD", TargetField: "localidad", Required: true, Active: false},
	}
}

func csvReader(t *testing.T, src string) sheet.Reader {
	t.Helper()
	r, err := sheet.Open(sheet.FormatCSV, strings.NewReader(src), sheet.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return r
}

func TestDetectFileType(t *testing.T) {
	tests := map[string]string{
		"Seguimiento de Pagos Marzo.xlsx":   FileTypeSeguimientoPagos,
		"seguimiento_pagos_obras_2025.xlsx": FileTypeSeguimientoPagos,
		"OBRAS_2025.xlsx":                   "OBRAS_2025",
		"relacion obras 2024 final.xls":     "OBRAS_2024",
		"OBRAS_sin_anio.xlsx":               FileTypeGeneral,
		"obras_120255.xlsx":                 FileTypeGeneral,
		"estado banorte enero.xlsx":         FileTypePagosBanorte,
		"obras banorte.xlsx":                FileTypePagosBanorte,
		"reporte.xlsx":                      FileTypeGeneral,
		"SEGUIMIENTO.xlsx":                  FileTypeGeneral,
	}
	for name, want := range tests {
		if got := DetectFileType(name); got != want {
			t.Errorf("DetectFileType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestStructureValidator_OK(t *testing.T) {
	v := NewStructureValidator(stubLookup{"OBRAS|OBRAS_2025": obrasMappings()})
	r := csvReader(t, " folio1 ,Partida,OBRA,municipio\n1,2,3,4\n")

	got, err := v.Validate(context.Background(), "OBRAS_2025.xlsx", "OBRAS", r)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.FileType != "OBRAS_2025" {
		t.Errorf("FileType = %q", got.FileType)
	}
	if strings.Join(got.Columns, ",") != "FOLIO1,PARTIDA,OBRA,MUNICIPIO" {
		t.Errorf("Columns = %v", got.Columns)
	}

	// The reader is left on the first data row.
	row, err := r.Next()
	if err != nil || row[0] != "1" {
		t.Errorf("next row = %v, %v", row, err)
	}
}

func TestStructureValidator_MissingColumns(t *testing.T) {
	v := NewStructureValidator(stubLookup{"OBRAS|OBRAS_2025": obrasMappings()})
	r := csvReader(t, "FOLIO1,OBRA,CCT\n")

	_, err := v.Validate(context.Background(), "OBRAS_2025.xlsx", "OBRAS", r)
	var se *StructureError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StructureError", err)
	}
	if strings.Join(se.Missing, ",") != "PARTIDA,MUNICIPIO" {
		t.Errorf("Missing = %v, want [PARTIDA MUNICIPIO]", se.Missing)
	}
	if !IsStructural(err) {
		t.Error("IsStructural = false")
	}
}

func TestStructureValidator_EmptyFile(t *testing.T) {
	v := NewStructureValidator(stubLookup{})
	_, err := v.Validate(context.Background(), "OBRAS_2025.xlsx", "OBRAS", csvReader(t, ""))

	var ee *EmptyFileError
	if !errors.As(err, &ee) {
		t.Fatalf("error = %v, want *EmptyFileError", err)
	}
}

func TestStructureValidator_NoMappingsAcceptsAnyHeader(t *testing.T) {
	v := NewStructureValidator(stubLookup{})
	got, err := v.Validate(context.Background(), "reporte.xlsx", "CAPCEE", csvReader(t, "A,B\n"))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.FileType != FileTypeGeneral {
		t.Errorf("FileType = %q", got.FileType)
	}
}

func TestRequiredColumns(t *testing.T) {
	got := RequiredColumns(obrasMappings())
	if strings.Join(got, ",") != "FOLIO1,PARTIDA,OBRA,MUNICIPIO" {
		t.Errorf("RequiredColumns = %v", got)
	}
}
