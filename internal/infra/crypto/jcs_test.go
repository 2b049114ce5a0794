package crypto

import (
	"testing"
)

func TestCanonicalizeJSONSortsKeysAndStripsWhitespace(t *testing.T) {
	input := []byte(`{
		"zeta": 1,
		"alpha": { "b": true, "a": null },
		"mid": [1, 2, 3]
	}`)
	want := `{"alpha":{"a":null,"b":true},"mid":[1,2,3],"zeta":1}`

	got, err := CanonicalizeJSON(input)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(got) != want {
		t.Fatalf("canonical = %s, want %s", got, want)
	}
}

func TestCanonicalizeJSONNumbers(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`10`, `10`},
		{`1.0`, `1`},
		{`0.5`, `0.5`},
		{`-0.5`, `-0.5`},
		{`1e2`, `100`},
		{`1e21`, `1e21`},
		{`1e-7`, `1e-7`},
		{`0`, `0`},
	}
	for _, tc := range cases {
		got, err := CanonicalizeJSON([]byte(tc.in))
		if err != nil {
			t.Fatalf("canonicalize %q: %v", tc.in, err)
		}
		if string(got) != tc.want {
			t.Errorf("canonicalize %q = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestCanonicalizeJSONStringEscaping(t *testing.T) {
	input := []byte(`{"s":"line\nbreak \"quoted\" \u0001"}`)
	want := `{"s":"line\nbreak \"quoted\" \u0001"}`

	got, err := CanonicalizeJSON(input)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(got) != want {
		t.Fatalf("canonical = %s, want %s", got, want)
	}
}

func TestCanonicalizeJSONRejectsTrailingData(t *testing.T) {
	if _, err := CanonicalizeJSON([]byte(`{"a":1} {"b":2}`)); err == nil {
		t.Fatal("expected error for trailing data")
	}
	if _, err := CanonicalizeJSON([]byte(`{"a":`)); err == nil {
		t.Fatal("expected error for truncated document")
	}
}

func TestCanonicalizeAnyStruct(t *testing.T) {
	payload := struct {
		B int    `json:"b"`
		A string `json:"a"`
	}{B: 7, A: "x"}

	got, err := CanonicalizeAny(payload)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(got) != `{"a":"x","b":7}` {
		t.Fatalf("canonical = %s", got)
	}
}

func TestCanonicalizeAnyIsIdempotent(t *testing.T) {
	input := []byte(`{"b":2,"a":[true,{"y":1,"x":2}]}`)
	once, err := CanonicalizeJSON(input)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	twice, err := CanonicalizeJSON(once)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if string(once) != string(twice) {
		t.Fatalf("canonicalization is not idempotent: %s vs %s", once, twice)
	}
}
