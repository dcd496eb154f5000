package syntax

import "testing"

func TestPosString(t *testing.T) {
	tests := []struct {
		pos  Pos
		want string
	}{
		{NewPos("main.emp", 10, 5), "main.emp:10:5"},
		{NewPos("", 10, 5), "10:5"},
		{NewPos("main.emp", 0, 1), "?"},
		{Pos{}, "?"},
	}
	for _, tt := range tests {
		if got := tt.pos.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestPosBefore(t *testing.T) {
	a := NewPos("f.emp", 3, 9)
	b := NewPos("f.emp", 4, 1)
	c := NewPos("f.emp", 4, 2)
	if !a.Before(b) || !b.Before(c) || c.Before(b) || b.Before(b) {
		t.Error("Before does not order by line, then column")
	}
}
