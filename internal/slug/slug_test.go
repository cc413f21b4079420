package slug

import "testing"

func TestMake(t *testing.T) {
	tests := []struct {
		name string
		id   int64
		want string
	}{
		{"Ahmed Khan", 42, "ahmed-khan-42"},
		{"  Dental   Clinic ", 7, "dental-clinic-7"},
		{"Dr. Huda Al-Sayed", 3, "dr-huda-al-sayed-3"},
		{"عيادة الأسنان", 11, "عيادة-الأسنان-11"},
		{"!!!", 9, "9"},
		{"", 5, "5"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Make(tt.name, tt.id); got != tt.want {
				t.Errorf("Make(%q, %d) = %q, want %q", tt.name, tt.id, got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		segment  string
		wantName string
		wantID   int64
	}{
		{"ahmed-khan-42", "ahmed khan", 42},
		{"dental-clinic-7", "dental clinic", 7},
		{"عيادة-الأسنان-11", "عيادة الأسنان", 11},
		{"9", "", 9},
	}
	for _, tt := range tests {
		t.Run(tt.segment, func(t *testing.T) {
			name, id, err := Parse(tt.segment)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.segment, err)
			}
			if name != tt.wantName || id != tt.wantID {
				t.Errorf("Parse(%q) = (%q, %d), want (%q, %d)", tt.segment, name, id, tt.wantName, tt.wantID)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, segment := range []string{"", "---", "no-id-here", "ahmed-khan-"} {
		if _, _, err := Parse(segment); err == nil {
			t.Errorf("Parse(%q) expected error", segment)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, name := range []string{"Ahmed Khan", "Dermatology", "عيادة الجلدية"} {
		seg := Make(name, 123)
		_, id, err := Parse(seg)
		if err != nil {
			t.Fatalf("round trip of %q failed: %v", name, err)
		}
		if id != 123 {
			t.Errorf("round trip of %q lost id: got %d", name, id)
		}
	}
}
