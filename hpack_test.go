package h2

import "testing"

func TestHPACKEncodeDecodeRoundTrip(t *testing.T) {
	enc := AcquireEncoder()
	defer ReleaseEncoder(enc)

	method := AcquireHeaderField()
	method.Set(":method", "GET")
	path := AcquireHeaderField()
	path.Set(":path", "/")
	ua := AcquireHeaderField()
	ua.Set("user-agent", "h2kit-test")

	hs := []*HeaderField{method, path, ua}
	block := enc.EncodeHeaderBlock(hs)
	if len(block) == 0 {
		t.Fatal("expected a non-empty encoded header block")
	}

	dec := AcquireDecoder()
	defer ReleaseDecoder(dec)

	got, err := dec.DecodeHeaderBlock(block)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(hs) {
		t.Fatalf("got %d fields, want %d", len(got), len(hs))
	}
	for i, hf := range hs {
		if got[i].Key() != hf.Key() || got[i].Value() != hf.Value() {
			t.Fatalf("field %d mismatch: got %s=%s, want %s=%s", i, got[i].Key(), got[i].Value(), hf.Key(), hf.Value())
		}
	}
}

func TestHPACKDynamicTableResize(t *testing.T) {
	enc := AcquireEncoder()
	defer ReleaseEncoder(enc)
	enc.SetMaxTableSize(0)

	hf := AcquireHeaderField()
	hf.Set("x-test", "value")

	block := enc.EncodeHeaderBlock([]*HeaderField{hf})

	dec := AcquireDecoder()
	defer ReleaseDecoder(dec)
	dec.SetMaxTableSize(0)

	got, err := dec.DecodeHeaderBlock(block)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Key() != "x-test" || got[0].Value() != "value" {
		t.Fatalf("unexpected decode result: %+v", got)
	}
}

func TestHPACKSensitiveFieldRoundTrip(t *testing.T) {
	enc := AcquireEncoder()
	defer ReleaseEncoder(enc)

	auth := AcquireHeaderField()
	auth.Set("authorization", "secret-token")
	auth.SetSensitive(true)

	block := enc.EncodeHeaderBlock([]*HeaderField{auth})

	dec := AcquireDecoder()
	defer ReleaseDecoder(dec)

	got, err := dec.DecodeHeaderBlock(block)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Value() != "secret-token" {
		t.Fatalf("unexpected decode result: %+v", got)
	}
}
