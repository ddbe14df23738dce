package authz

import "testing"

func TestDefaultPolicyIsPermissive(t *testing.T) {
	t.Setenv("ENSO_CONFIG_DIR", t.TempDir())

	en, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := en.Authorize("anonymous", "shop.orders", ActionRead); err != nil {
		t.Fatalf("expected default policy to permit anonymous read, got %v", err)
	}
	if err := en.Authorize("anonymous", "shop.orders", ActionWrite); err != nil {
		t.Fatalf("expected default policy to permit anonymous write, got %v", err)
	}
}

func TestUnknownSubjectIsDenied(t *testing.T) {
	t.Setenv("ENSO_CONFIG_DIR", t.TempDir())

	en, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := en.Authorize("mallory", "shop.orders", ActionRead); err == nil {
		t.Fatal("expected an unrecognized subject to be denied")
	}
}
