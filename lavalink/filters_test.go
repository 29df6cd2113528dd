package lavalink

import (
	"strings"
	"testing"

	"github.com/disgoorg/json"
)

func TestEqualizer_JSON(t *testing.T) {
	var eq Equalizer
	eq[0] = 0.25
	eq[14] = -0.1

	data, err := json.Marshal(eq)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.HasPrefix(string(data), `[{"band":0,"gain":0.25}`) {
		t.Errorf("Marshal() = %s, want band/gain object list", data)
	}

	var decoded Equalizer
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded != eq {
		t.Errorf("round trip = %v, want %v", decoded, eq)
	}
}

func TestEqualizer_UnmarshalIgnoresUnknownBands(t *testing.T) {
	var eq Equalizer
	if err := json.Unmarshal([]byte(`[{"band":3,"gain":0.5},{"band":99,"gain":1}]`), &eq); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if eq[3] != 0.5 {
		t.Errorf("band 3 = %v, want 0.5", eq[3])
	}
}
