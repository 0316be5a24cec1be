package http1

import "testing"

func TestParseRangeHeader(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []Range
	}{
		{
			name:  "single bounded",
			value: "bytes=0-49",
			want:  []Range{{Start: 0, End: 50, Len: 50}},
		},
		{
			name:  "bounded then to-end",
			value: "bytes=0-49,200-",
			want:  []Range{{Start: 0, End: 50, Len: 50}, {Start: 200, End: -1}},
		},
		{
			name:  "suffix range",
			value: "bytes=-500",
			want:  []Range{{Start: -1, End: 500}},
		},
		{
			name:  "adjacent ranges",
			value: "bytes=0-9,10-19",
			want:  []Range{{Start: 0, End: 10, Len: 10}, {Start: 10, End: 20, Len: 10}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRangeHeader(tt.value)
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ranges = %+v, want %+v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("range %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseRangeHeaderInvalid(t *testing.T) {
	invalid := []string{
		"bytes=50-10",      // inverted
		"bytes=-",          // both bounds missing
		"bytes=a-b",        // not numeric
		"items=0-10",       // wrong unit
		"bytes=-5,0-10",    // suffix range not last
		"bytes=0-20,10-30", // overlap
	}
	for _, value := range invalid {
		if _, err := parseRangeHeader(value); err == nil {
			t.Errorf("%q: expected 416, got nil", value)
		} else if err.Status != StatusRangeNotSatisfiable {
			t.Errorf("%q: status = %d, want 416", value, err.Status)
		}
	}
}
