package linepager

import (
	"reflect"
	"testing"
)

func TestExcelColumnName(t *testing.T) {
	cases := map[int]string{0: "A", 1: "B", 25: "Z", 26: "AA", 27: "AB", 51: "AZ", 52: "BA"}
	for idx, want := range cases {
		if got := excelColumnName(idx); got != want {
			t.Errorf("excelColumnName(%d) = %q, want %q", idx, got, want)
		}
	}
}

func TestNormalizeHeaders(t *testing.T) {
	in := []string{"name", "", "  ", "age"}
	want := []string{"name", "Unnamed_B", "Unnamed_C", "age"}
	got := NormalizeHeaders(in)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("NormalizeHeaders = %v, want %v", got, want)
	}
}
