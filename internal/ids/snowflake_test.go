package ids

import "testing"

func TestNew_Monotonic(t *testing.T) {
	prev := New()
	for i := 0; i < 1000; i++ {
		next := New()
		if next <= prev {
			t.Fatalf("id %d not greater than previous %d", next, prev)
		}
		prev = next
	}
}

func TestInit_SecondCallIgnored(t *testing.T) {
	_ = New()
	if err := Init(2000); err != nil {
		t.Errorf("Init after first use = %v, want nil", err)
	}
}
