package utils

import (
	"testing"
	"time"
)

func TestTimeRoundTrip(t *testing.T) {
	now := time.Now().UTC()
	data := TimeToBytes(now)
	if len(data) != 8 {
		t.Fatal(len(data))
	}
	recovered := BytesToTime(data)
	if !recovered.Equal(now) {
		t.Fatal(recovered, now)
	}
}

func TestBytesToTimeBadLength(t *testing.T) {
	if !BytesToTime([]byte{1, 2, 3}).IsZero() {
		t.Fatal("expected zero time")
	}
}
