package identifier

import (
	"errors"
	"testing"
	"time"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"832-555-0101", "+18325550101"},
		{"8325550101", "+18325550101"},
		{"(832) 555-0101", "+18325550101"},
		{"1-832-555-0101", "+18325550101"},
		{"+1 832 555 0101", "+18325550101"},
	}
	for _, c := range cases {
		got, err := NormalizePhone(c.in, "1")
		if err != nil {
			t.Fatalf("NormalizePhone(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizePhone_Equivalence(t *testing.T) {
	// Any two inputs agreeing on the last 10 digits canonicalize identically.
	inputs := []string{"832-555-0101", "8325550101", "18325550101", "+1 (832) 555-0101"}
	first, err := NormalizePhone(inputs[0], "1")
	if err != nil {
		t.Fatal(err)
	}
	for _, in := range inputs[1:] {
		got, err := NormalizePhone(in, "1")
		if err != nil {
			t.Fatalf("NormalizePhone(%q): %v", in, err)
		}
		if got != first {
			t.Errorf("NormalizePhone(%q) = %q, want %q", in, got, first)
		}
	}
}

func TestNormalizePhone_Rejects(t *testing.T) {
	for _, in := range []string{"", "555-0101", "123456789012", "28325550101"} {
		_, err := NormalizePhone(in, "1")
		if err == nil {
			t.Errorf("NormalizePhone(%q): expected error", in)
			continue
		}
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("NormalizePhone(%q): expected *ValidationError, got %T", in, err)
		} else if verr.Field != "phone" {
			t.Errorf("NormalizePhone(%q): field = %q, want phone", in, verr.Field)
		}
	}
}

func TestNormalizeShortID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"123456", "123-456"},
		{"123-456", "123-456"},
		{"  123 456 ", "123-456"},
		{"ab12cd34", "AB12CD34"},
		{"ab-12-cd-34", "AB12CD34"},
	}
	for _, c := range cases {
		got, err := NormalizeShortID(c.in)
		if err != nil {
			t.Fatalf("NormalizeShortID(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("NormalizeShortID(%q) = %q, want %q", c.in, got, c.want)
		}
	}
	if _, err := NormalizeShortID("!@#"); err == nil {
		t.Error("expected error for punctuation-only short ID")
	}
}

func TestNormalizeMRN(t *testing.T) {
	got, err := NormalizeMRN("mrn-0042 ")
	if err != nil {
		t.Fatal(err)
	}
	if got != "MRN0042" {
		t.Errorf("got %q, want MRN0042", got)
	}
	// Case and punctuation insensitive equality.
	other, err := NormalizeMRN("Mrn0042")
	if err != nil {
		t.Fatal(err)
	}
	if other != got {
		t.Errorf("equivalent MRNs normalized differently: %q vs %q", other, got)
	}
	if _, err := NormalizeMRN("ab"); err == nil {
		t.Error("expected error for too-short MRN")
	}
}

func TestNormalizeDOB(t *testing.T) {
	want := time.Date(1985, 3, 12, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"1985-03-12", "03/12/1985", "3/12/1985", "March 12, 1985", "12 Mar 1985"} {
		got, err := NormalizeDOB(in)
		if err != nil {
			t.Fatalf("NormalizeDOB(%q): %v", in, err)
		}
		if !got.Equal(want) {
			t.Errorf("NormalizeDOB(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNormalizeDOB_Rejects(t *testing.T) {
	for _, in := range []string{"", "not a date", "1985/13/40", "3012-01-01", "1850-01-01"} {
		if _, err := NormalizeDOB(in); err == nil {
			t.Errorf("NormalizeDOB(%q): expected error", in)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("  Garcia   Lopez "); got != "garcia lopez" {
		t.Errorf("got %q", got)
	}
}
