package dynconfig

import "testing"

func TestPropertyIndex(t *testing.T) {
	idx := NewPropertyIndex("b.two", "a.one", "")

	if !idx.HasProperty("a.one") || !idx.HasProperty("b.two") {
		t.Error("expected registered names to be present")
	}
	if idx.HasProperty("A.ONE") {
		t.Error("index must be case-sensitive")
	}
	if idx.HasProperty("") {
		t.Error("empty name must not be registered")
	}
	if idx.Len() != 2 {
		t.Errorf("Len() = %d, want 2", idx.Len())
	}
	names := idx.Names()
	if len(names) != 2 || names[0] != "a.one" || names[1] != "b.two" {
		t.Errorf("Names() = %v, want sorted [a.one b.two]", names)
	}

	var nilIdx *PropertyIndex
	if nilIdx.HasProperty("a.one") || nilIdx.Len() != 0 || nilIdx.Names() != nil {
		t.Error("nil index should be empty")
	}
}

func TestPropertyDef_Validate(t *testing.T) {
	tests := []struct {
		def     PropertyDef
		value   string
		wantErr bool
	}{
		{PropertyDef{Name: "s", Type: TypeString}, "anything", false},
		{PropertyDef{Name: "u"}, "anything", false},
		{PropertyDef{Name: "b", Type: TypeBoolean}, "true", false},
		{PropertyDef{Name: "b", Type: TypeBoolean}, "yes please", true},
		{PropertyDef{Name: "i", Type: TypeInteger}, "30", false},
		{PropertyDef{Name: "i", Type: TypeInteger}, "9999999999", true},
		{PropertyDef{Name: "l", Type: TypeLong}, "9999999999", false},
		{PropertyDef{Name: "l", Type: TypeLong}, "ten", true},
		{PropertyDef{Name: "x", Type: "duration"}, "1s", true},
	}
	for _, tt := range tests {
		err := tt.def.Validate(tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s(%s).Validate(%q) error = %v, wantErr %v", tt.def.Name, tt.def.Type, tt.value, err, tt.wantErr)
		}
	}
}

func TestPropertyIndex_Definitions(t *testing.T) {
	idx := NewPropertyIndexFromDefs(
		PropertyDef{Name: "ttl", Type: TypeInteger, Description: "first"},
		PropertyDef{Name: "ttl", Type: TypeLong, Description: "second"},
	)
	d, ok := idx.Definition("ttl")
	if !ok || d.Type != TypeLong || d.Description != "second" {
		t.Errorf("Definition(ttl) = %+v, %v; want the later definition", d, ok)
	}
	if _, ok := idx.Definition("missing"); ok {
		t.Error("Definition(missing) should not be found")
	}
}
