package model

import "testing"

func TestProcessingStatusValid(t *testing.T) {
	for _, s := range []ProcessingStatus{StatusPending, StatusProcessing, StatusCompleted, StatusFailed} {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}
	for _, s := range []ProcessingStatus{"", "queued", "done", "PENDING"} {
		if s.Valid() {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}

func TestReadingTimeMinutes(t *testing.T) {
	tests := []struct {
		words int
		want  int
	}{
		{0, 0},
		{-5, 0},
		{1, 1},
		{200, 1},
		{201, 2},
		{1000, 5},
	}
	for _, tt := range tests {
		if got := ReadingTimeMinutes(tt.words); got != tt.want {
			t.Errorf("ReadingTimeMinutes(%d) = %d, want %d", tt.words, got, tt.want)
		}
	}
}

func TestPageCount(t *testing.T) {
	tests := []struct {
		words int
		want  int
	}{
		{0, 0},
		{1, 1},
		{250, 1},
		{251, 2},
		{62500, 250},
	}
	for _, tt := range tests {
		if got := PageCount(tt.words); got != tt.want {
			t.Errorf("PageCount(%d) = %d, want %d", tt.words, got, tt.want)
		}
	}
}
