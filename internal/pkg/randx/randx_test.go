package randx

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestGenerateID_Shape(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := GenerateID()
		if !IsValidID(id) {
			t.Fatalf("GenerateID()=%q does not pass IsValidID", id)
		}
		if got := strings.Count(id, IDDelimiter); got != IDSegments-1 {
			t.Fatalf("delimiters=%d, want %d in %q", got, IDSegments-1, id)
		}
	}
}

func TestGenerateID_Distinct(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := GenerateID()
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate id %q after %d draws", id, i)
		}
		seen[id] = struct{}{}
	}
}

func TestIsValidID(t *testing.T) {
	cases := []struct {
		name string
		id   string
		want bool
	}{
		{"valid", "000000000001-123456789012-999999999999-000000000000", true},
		{"too few segments", "000000000001-123456789012-999999999999", false},
		{"short segment", "00000000001-123456789012-999999999999-000000000000", false},
		{"letters", "00000000000a-123456789012-999999999999-000000000000", false},
		{"empty", "", false},
		{"NO_SUCH_ROOM", "NO_SUCH_ROOM", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsValidID(tc.id); got != tc.want {
				t.Fatalf("IsValidID(%q)=%v, want %v", tc.id, got, tc.want)
			}
		})
	}
}

func TestConnectionHandle_IsUUID(t *testing.T) {
	h := ConnectionHandle()
	if _, err := uuid.Parse(h); err != nil {
		t.Fatalf("ConnectionHandle()=%q is not a UUID: %v", h, err)
	}
	if h == ConnectionHandle() {
		t.Fatalf("two consecutive handles are equal")
	}
}
