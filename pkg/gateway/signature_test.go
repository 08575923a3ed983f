package gateway

import "testing"

func TestSign_Deterministic(t *testing.T) {
	a := Sign("account=acme&sendid=1&mobile=573001234567&content=Hola", "s3cret")
	b := Sign("account=acme&sendid=1&mobile=573001234567&content=Hola", "s3cret")
	if a != b {
		t.Errorf("expected identical signatures, got %s and %s", a, b)
	}
	if len(a) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(a))
	}
}

func TestSign_SensitiveToInputs(t *testing.T) {
	base := Sign("account=acme&sendid=1&mobile=573001234567&content=Hola", "s3cret")

	if got := Sign("account=acme&sendid=2&mobile=573001234567&content=Hola", "s3cret"); got == base {
		t.Error("expected different signature for different params")
	}
	if got := Sign("account=acme&sendid=1&mobile=573001234567&content=Hola", "other"); got == base {
		t.Error("expected different signature for different secret")
	}
}

func TestSignSend_CanonicalParamOrder(t *testing.T) {
	got := SignSend("acme", "42", "573001234567", "Hola Ana", "s3cret")
	want := Sign("account=acme&sendid=42&mobile=573001234567&content=Hola Ana", "s3cret")
	if got != want {
		t.Errorf("expected SignSend to match canonical param string, got %s want %s", got, want)
	}
}

func TestMapDeliveryStatus(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"1", "delivered"},
		{"2", "failed"},
		{"3", "pending"},
		{"4", "invalid"},
		{"99", "unknown"},
		{"", "unknown"},
	}

	for _, tt := range tests {
		if got := MapDeliveryStatus(tt.code); string(got) != tt.want {
			t.Errorf("code %q: expected %s, got %s", tt.code, tt.want, got)
		}
	}
}
