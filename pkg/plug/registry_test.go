package plug

import (
	"testing"
)

func TestRegistry_UpsertDerivesDeterministicID(t *testing.T) {
	r := NewRegistry(t.TempDir())

	def, err := r.Upsert(Definition{
		Vendor:     "Shelly",
		Name:       "Dehumidifier plug",
		Connection: Connection{DeviceID: "abc123", Host: "10.0.0.5"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if def.ID != "plug:shelly:abc123" {
		t.Errorf("id = %q", def.ID)
	}
	if def.Vendor != "shelly" {
		t.Errorf("vendor not lowercased: %q", def.Vendor)
	}
	if !def.Manual {
		t.Error("registry definitions must be flagged manual")
	}
}

func TestRegistry_UpsertSameDeviceIsIdempotent(t *testing.T) {
	r := NewRegistry(t.TempDir())

	first, _ := r.Upsert(Definition{Vendor: "shelly", Connection: Connection{DeviceID: "abc"}})
	second, err := r.Upsert(Definition{Vendor: "shelly", Name: "renamed", Connection: Connection{DeviceID: "abc"}})
	if err != nil {
		t.Fatal(err)
	}

	if len(r.List()) != 1 {
		t.Fatalf("expected one definition, got %d", len(r.List()))
	}
	if second.Name != "renamed" {
		t.Errorf("name = %q", second.Name)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Error("createdAt should survive re-registration")
	}
}

func TestRegistry_UpsertRejectsMissingShortID(t *testing.T) {
	r := NewRegistry(t.TempDir())

	if _, err := r.Upsert(Definition{Vendor: "shelly", Name: "mystery plug"}); err == nil {
		t.Error("expected definition without a stable short id to be rejected")
	}
}

func TestRegistry_HostFallsBackAsShortID(t *testing.T) {
	r := NewRegistry(t.TempDir())

	def, err := r.Upsert(Definition{Vendor: "shelly", Connection: Connection{Host: "10.0.0.9"}})
	if err != nil {
		t.Fatal(err)
	}
	if def.ID != "plug:shelly:10.0.0.9" {
		t.Errorf("id = %q", def.ID)
	}
}

func TestRegistry_RemoveAndReload(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(dir)
	def, _ := r.Upsert(Definition{Vendor: "kasa", Connection: Connection{DeviceID: "k1"}})
	r.Upsert(Definition{Vendor: "shelly", Connection: Connection{DeviceID: "s1"}})

	if !r.Remove(def.ID) {
		t.Error("expected removal to succeed")
	}
	if r.Remove(def.ID) {
		t.Error("expected second removal to report false")
	}

	reloaded := NewRegistry(dir)
	list := reloaded.List()
	if len(list) != 1 || list[0].ID != "plug:shelly:s1" {
		t.Errorf("reloaded registry = %v", list)
	}
}

func TestVendorFromID(t *testing.T) {
	cases := []struct {
		id     string
		vendor string
		ok     bool
	}{
		{"plug:shelly:abc", "shelly", true},
		{"plug:kasa:dev:with:colons", "kasa", true},
		{"plug::abc", "", false},
		{"light:shelly:abc", "", false},
		{"plug:shelly", "", false},
	}
	for _, tc := range cases {
		vendor, ok := VendorFromID(tc.id)
		if vendor != tc.vendor || ok != tc.ok {
			t.Errorf("VendorFromID(%q) = %q,%v", tc.id, vendor, ok)
		}
	}
}
