package storage

import "testing"

func TestBuildTableFilePath(t *testing.T) {
	key, err := BuildTableFilePath("8f0b2a52-8c38-4c1e-9d55-7f4b8d0f1a11", "1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed", 0)
	if err != nil {
		t.Fatalf("BuildTableFilePath() error = %v", err)
	}
	want := "datasets/8f0b2a52-8c38-4c1e-9d55-7f4b8d0f1a11/tables/1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed/part-00000.parquet"
	if key != want {
		t.Fatalf("BuildTableFilePath() = %q, want %q", key, want)
	}
}

func TestDatasetPrefix(t *testing.T) {
	prefix, err := DatasetPrefix("ds-1")
	if err != nil {
		t.Fatalf("DatasetPrefix() error = %v", err)
	}
	if prefix != "datasets/ds-1/" {
		t.Fatalf("DatasetPrefix() = %q", prefix)
	}
}

func TestBuildPathRejectsInvalidComponent(t *testing.T) {
	if _, err := BuildTableFilePath("../oops", "t1", 0); err == nil {
		t.Fatal("expected invalid component error")
	}
	if _, err := BuildTableFilePath("ds", "t1", -1); err == nil {
		t.Fatal("expected invalid sequence error")
	}
}
