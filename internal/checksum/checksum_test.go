package checksum

import "testing"

func TestSumStable(t *testing.T) {
	a := Sum([]byte("hello"))
	if a != Sum([]byte("hello")) {
		t.Fatal("digest not stable")
	}
	if len(a) != 64 {
		t.Errorf("len = %d, want 64", len(a))
	}
}

func TestChanged(t *testing.T) {
	data := []byte("content")
	if Changed(Sum(data), data) {
		t.Error("identical data reported as changed")
	}
	if !Changed(Sum(data), []byte("other")) {
		t.Error("different data reported as unchanged")
	}
	if !Changed("", data) {
		t.Error("empty digest must count as changed")
	}
}
