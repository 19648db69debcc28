package subhandler

import "testing"

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(Handler{
		Tag:             "health",
		RequiredFeature: "health.basic",
		Handle: func(body []byte) ([]byte, uint32, string) {
			return []byte("ok"), 0, ""
		},
	})

	h, ok := r.Lookup("health")
	if !ok {
		t.Fatal("Lookup(health) not found")
	}
	if h.RequiredFeature != "health.basic" {
		t.Fatalf("RequiredFeature = %q", h.RequiredFeature)
	}
	body, status, _ := h.Handle(nil)
	if status != 0 || string(body) != "ok" {
		t.Fatalf("Handle = %q, %d", body, status)
	}
}

func TestLookupUnknownTag(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup("missing")
	if ok {
		t.Fatal("Lookup(missing) found, want not found")
	}
}

func TestRegisterReplacesExisting(t *testing.T) {
	r := NewRegistry()
	r.Register(Handler{Tag: "health", Handle: func(body []byte) ([]byte, uint32, string) { return nil, 1, "old" }})
	r.Register(Handler{Tag: "health", Handle: func(body []byte) ([]byte, uint32, string) { return nil, 0, "new" }})

	h, _ := r.Lookup("health")
	_, status, msg := h.Handle(nil)
	if status != 0 || msg != "new" {
		t.Fatalf("Handle = %d, %q, want 0, \"new\"", status, msg)
	}
}

func TestErrUnknownTagMessage(t *testing.T) {
	err := ErrUnknownTag{Tag: "frobnicate"}
	if err.Error() == "" {
		t.Fatal("Error() is empty")
	}
}
