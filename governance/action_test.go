package governance

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestActionEnvelopeRoundTrip(t *testing.T) {
	actions := []Action{
		EmbedDocuments{DocumentIDs: []string{"doc-1", "doc-2"}},
		BatchEmbed{DocumentIDs: []string{"doc-3"}},
		AddAdmin{Admin: "alice"},
		RemoveAdmin{Admin: "bob"},
		ChangeThreshold{NewThreshold: 2},
		UpdateQuorum{NewPercentage: 51},
		UpdateConfig{Config: CollectionConfig{Name: "notes", Description: "shared notes"}},
		ChangeModel{Model: ModelMultisig},
		DeleteCollection{},
	}

	for _, a := range actions {
		data, err := MarshalAction(a)
		if err != nil {
			t.Fatalf("marshal %s: %v", a.Kind(), err)
		}
		got, err := UnmarshalAction(data)
		if err != nil {
			t.Fatalf("unmarshal %s: %v", a.Kind(), err)
		}
		if got.Kind() != a.Kind() {
			t.Errorf("kind = %s, want %s", got.Kind(), a.Kind())
		}
	}
}

func TestActionEnvelopeFields(t *testing.T) {
	data, err := MarshalAction(AddAdmin{Admin: "carol"})
	if err != nil {
		t.Fatal(err)
	}

	var env struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != "add_admin" {
		t.Errorf("type = %q, want add_admin", env.Type)
	}

	got, err := UnmarshalAction(data)
	if err != nil {
		t.Fatal(err)
	}
	add, ok := got.(AddAdmin)
	if !ok {
		t.Fatalf("got %T, want AddAdmin", got)
	}
	if add.Admin != "carol" {
		t.Errorf("admin = %q, want carol", add.Admin)
	}
}

func TestUnmarshalActionUnknownType(t *testing.T) {
	_, err := UnmarshalAction([]byte(`{"type":"format_disk"}`))
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestMarshalActionNil(t *testing.T) {
	if _, err := MarshalAction(nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestActionValidate(t *testing.T) {
	tests := []struct {
		name    string
		action  Action
		wantErr bool
	}{
		{"embed ok", EmbedDocuments{DocumentIDs: []string{"d1"}}, false},
		{"embed empty", EmbedDocuments{}, true},
		{"embed blank id", EmbedDocuments{DocumentIDs: []string{""}}, true},
		{"batch ok", BatchEmbed{DocumentIDs: []string{"d1"}}, false},
		{"batch empty", BatchEmbed{}, true},
		{"add admin ok", AddAdmin{Admin: "alice"}, false},
		{"add admin blank", AddAdmin{}, true},
		{"remove admin blank", RemoveAdmin{}, true},
		{"threshold ok", ChangeThreshold{NewThreshold: 1}, false},
		{"threshold zero", ChangeThreshold{}, true},
		{"quorum ok", UpdateQuorum{NewPercentage: 100}, false},
		{"quorum over", UpdateQuorum{NewPercentage: 101}, true},
		{"config ok", UpdateConfig{Config: CollectionConfig{Name: "n"}}, false},
		{"config blank name", UpdateConfig{}, true},
		{"model ok", ChangeModel{Model: ModelAssembly}, false},
		{"model unknown", ChangeModel{Model: "anarchy"}, true},
		{"delete ok", DeleteCollection{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.action.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestBillable(t *testing.T) {
	if docs, ok := Billable(BatchEmbed{DocumentIDs: []string{"a", "b", "c"}}); !ok || docs != 3 {
		t.Errorf("Billable(batch) = %d, %v, want 3, true", docs, ok)
	}
	if docs, ok := Billable(EmbedDocuments{DocumentIDs: []string{"a"}}); !ok || docs != 1 {
		t.Errorf("Billable(embed) = %d, %v, want 1, true", docs, ok)
	}
	if _, ok := Billable(AddAdmin{Admin: "a"}); ok {
		t.Error("Billable(add_admin) = true, want false")
	}
}
