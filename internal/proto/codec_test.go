package proto

import (
	"reflect"
	"testing"
)

func TestControlHelloRoundTrip(t *testing.T) {
	in := &Control{
		Hello: &Hello{
			Token:         "t",
			IPCVersion:    "1.0",
			Features:      []string{"health.basic", "diagnostics.basic"},
			SchemaHash:    make([]byte, 32),
			ProjectRoot:   "/home/dev/project",
			ClientName:    "orchestrator",
			ClientVersion: "0.4.1",
			Meta:          map[string]string{"pid": "123"},
		},
	}
	payload, err := EncodeControl(in)
	if err != nil {
		t.Fatalf("EncodeControl: %v", err)
	}
	out, err := DecodeControl(payload)
	if err != nil {
		t.Fatalf("DecodeControl: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("roundtrip = %+v, want %+v", out, in)
	}
}

func TestControlWelcomeRoundTrip(t *testing.T) {
	in := &Control{
		Welcome: &Welcome{
			IPCVersion:       "1.0",
			AcceptedFeatures: []string{"health.basic"},
			SchemaHash:       make([]byte, 32),
			ServerName:       "unity-editor-bridge",
			ServerVersion:    "2026.1.0",
			EditorVersion:    "2022.3.10f1",
			SessionID:        "9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d",
			Meta:             map[string]string{},
		},
	}
	payload, err := EncodeControl(in)
	if err != nil {
		t.Fatalf("EncodeControl: %v", err)
	}
	out, err := DecodeControl(payload)
	if err != nil {
		t.Fatalf("DecodeControl: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("roundtrip = %+v, want %+v", out, in)
	}
}

func TestControlRejectRoundTrip(t *testing.T) {
	in := &Control{Reject: &Reject{Code: RejectUnavailable, Message: "editor compiling"}}
	payload, err := EncodeControl(in)
	if err != nil {
		t.Fatalf("EncodeControl: %v", err)
	}
	out, err := DecodeControl(payload)
	if err != nil {
		t.Fatalf("DecodeControl: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("roundtrip = %+v, want %+v", out, in)
	}
}

func TestDecodeControlMalformed(t *testing.T) {
	if _, err := DecodeControl(nil); err != ErrMalformed {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
	if _, err := DecodeControl([]byte{0xff}); err != ErrMalformed {
		t.Fatalf("unknown discriminant: err = %v, want ErrMalformed", err)
	}
}

func TestDecodeControlTrailingBytesIsMalformed(t *testing.T) {
	in := &Control{Reject: &Reject{Code: RejectInternal, Message: "x"}}
	payload, err := EncodeControl(in)
	if err != nil {
		t.Fatalf("EncodeControl: %v", err)
	}
	payload = append(payload, 0x00)
	if _, err := DecodeControl(payload); err != ErrMalformed {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestEnvelopeRequestRoundTrip(t *testing.T) {
	in := &Envelope{Request: &Request{
		CorrelationID: "r1",
		VariantTag:    "health",
		Body:          []byte{},
	}}
	payload, err := EncodeEnvelope(in)
	if err != nil {
		t.Fatalf("EncodeEnvelope: %v", err)
	}
	out, err := DecodeEnvelope(payload)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("roundtrip = %+v, want %+v", out, in)
	}
}

func TestEnvelopeResponseRoundTrip(t *testing.T) {
	in := &Envelope{Response: &Response{
		CorrelationID: "r1",
		VariantTag:    "health",
		Status:        StatusOK,
		Message:       "",
		Body:          []byte{0x01},
	}}
	payload, err := EncodeEnvelope(in)
	if err != nil {
		t.Fatalf("EncodeEnvelope: %v", err)
	}
	out, err := DecodeEnvelope(payload)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("roundtrip = %+v, want %+v", out, in)
	}
}

func TestEnvelopeEventRoundTrip(t *testing.T) {
	in := &Envelope{Event: &Event{
		Kind:           EventKindOperationProgress,
		TimestampNanos: 1234567890,
		Category:       "assets",
		Level:          LogInfo,
		OperationID:    "op-1",
		Message:        "importing 10/100",
		Fields:         map[string]string{"progress": "10"},
	}}
	payload, err := EncodeEnvelope(in)
	if err != nil {
		t.Fatalf("EncodeEnvelope: %v", err)
	}
	out, err := DecodeEnvelope(payload)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("roundtrip = %+v, want %+v", out, in)
	}
}

func TestDecodeEnvelopeMalformed(t *testing.T) {
	if _, err := DecodeEnvelope(nil); err != ErrMalformed {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
	if _, err := DecodeEnvelope([]byte{0xff}); err != ErrMalformed {
		t.Fatalf("unknown discriminant: err = %v, want ErrMalformed", err)
	}
}

func TestRejectCodeString(t *testing.T) {
	cases := map[RejectCode]string{
		RejectUnauthenticated:    "UNAUTHENTICATED",
		RejectFailedPrecondition: "FAILED_PRECONDITION",
		RejectPermissionDenied:   "PERMISSION_DENIED",
		RejectOutOfRange:         "OUT_OF_RANGE",
		RejectInternal:           "INTERNAL",
		RejectUnavailable:        "UNAVAILABLE",
	}
	for code, want := range cases {
		if got := code.String(); got != want {
			t.Errorf("RejectCode(%d).String() = %q, want %q", code, got, want)
		}
	}
}
