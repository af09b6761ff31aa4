package character

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSeedRoster(t *testing.T) {
	store := NewMemoryStore(Seed())

	sara, ok := store.FindByID("sara")
	if !ok {
		t.Fatal("expected sara in seed roster")
	}
	if sara.Gender != "female" || sara.Age != 21 {
		t.Fatalf("unexpected sara: %+v", sara)
	}

	kawa, ok := store.FindByID("kawa")
	if !ok || kawa.Gender != "male" || kawa.Age != 26 {
		t.Fatalf("unexpected kawa: %+v", kawa)
	}

	for _, item := range store.List() {
		if !strings.Contains(item.SystemPrompt, EndCallMarker) {
			t.Fatalf("%s prompt must explain the end-call marker", item.ID)
		}
	}

	if err := Validate(Seed()); err != nil {
		t.Fatalf("seed roster invalid: %v", err)
	}
}

func TestFindUnknownIsAbsent(t *testing.T) {
	store := NewMemoryStore(Seed())
	if _, ok := store.FindByID("nobody"); ok {
		t.Fatal("expected unknown id to be absent")
	}
	if _, ok := store.FindByID(""); ok {
		t.Fatal("expected empty id to be absent")
	}
}

func TestPublicViewHidesPrompt(t *testing.T) {
	payload, err := json.Marshal(Seed()[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(payload), "system_prompt") || strings.Contains(string(payload), "Erbil") {
		t.Fatalf("system prompt leaked: %s", payload)
	}

	views := Views(NewMemoryStore(Seed()))
	if len(views) != 2 || views[0].ID != "sara" || views[0].SpeakerID == "" {
		t.Fatalf("unexpected views: %+v", views)
	}
}

func TestDecodeRoster(t *testing.T) {
	input := `
characters:
  - id: dilan
    name: Dilan
    gender: female
    speaker_id: spk-3
    age: 30
    system_prompt: You are Dilan.
`
	items, err := Decode(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Decode err: %v", err)
	}
	if len(items) != 1 || items[0].ID != "dilan" || items[0].Age != 30 || items[0].SpeakerID != "spk-3" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestDecodeRejectsInvalidRosters(t *testing.T) {
	cases := map[string]string{
		"unknown field": "characters:\n  - id: a\n    system_prompt: p\n    voice: x\n",
		"duplicate id":  "characters:\n  - id: a\n    system_prompt: p\n  - id: a\n    system_prompt: q\n",
		"missing id":    "characters:\n  - name: a\n    system_prompt: p\n",
		"no prompt":     "characters:\n  - id: a\n",
	}
	for name, input := range cases {
		if _, err := Decode(strings.NewReader(input)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	if _, err := Decode(strings.NewReader("")); !errors.Is(err, ErrEmptyRoster) {
		t.Fatalf("expected ErrEmptyRoster, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	items, err := LoadFile("")
	if err != nil || len(items) != len(Seed()) {
		t.Fatalf("expected seed roster for empty path, got %d items err=%v", len(items), err)
	}

	path := filepath.Join(t.TempDir(), "roster.yaml")
	if err := os.WriteFile(path, []byte("characters:\n  - id: a\n    system_prompt: p\n"), 0o600); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	items, err = LoadFile(path)
	if err != nil || len(items) != 1 {
		t.Fatalf("unexpected load result: %+v err=%v", items, err)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
