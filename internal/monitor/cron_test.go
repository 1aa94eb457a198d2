package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseCronNext(t *testing.T) {
	base := time.Date(2026, 3, 10, 14, 7, 30, 0, time.UTC) // a Tuesday

	cases := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2026, 3, 10, 14, 8, 0, 0, time.UTC)},
		{DefaultArchiveCron, time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2026, 3, 10, 14, 15, 0, 0, time.UTC)},
		{"0 9-17/4 * * *", time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC)},
		{"30 6 * * 0,6", time.Date(2026, 3, 14, 6, 30, 0, 0, time.UTC)},
		{"0 0 1 4 *", time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			rq := require.New(t)
			s, err := parseCron(tc.expr)
			rq.NoError(err)
			got, err := s.next(base)
			rq.NoError(err)
			rq.Equal(tc.want, got)
		})
	}
}

func TestParseCronRejects(t *testing.T) {
	for _, expr := range []string{
		"",
		"* * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"*/0 * * * *",
		"5-1 * * * *",
		"x * * * *",
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := parseCron(expr)
			require.Error(t, err)
		})
	}
}

func TestScheduleNoMatch(t *testing.T) {
	rq := require.New(t)
	s, err := parseCron("0 0 31 2 *")
	rq.NoError(err)
	_, err = s.next(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	rq.Error(err)
}
