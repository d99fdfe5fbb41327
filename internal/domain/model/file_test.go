package model

import (
	"testing"
	"time"
)

func TestFileRecord_IsExpired(t *testing.T) {
	expiresAt := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	rec := &FileRecord{FileID: "f-1", ExpiresAt: expiresAt}

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"до истечения", expiresAt.Add(-time.Minute), false},
		{"ровно в момент истечения", expiresAt, false},
		{"после истечения", expiresAt.Add(time.Second), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := rec.IsExpired(tc.now); got != tc.want {
				t.Errorf("IsExpired(%v): хотели %v, получили %v", tc.now, tc.want, got)
			}
		})
	}
}
