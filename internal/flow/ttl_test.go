package flow

import "time"

func (s *UnitTestSuite) TestTTLCache() {
	c := NewTTL[string, string]()
	c.Set("key1", "value1", 200*time.Millisecond)
	v, ok := c.Get("key1")
	s.True(ok)
	s.Equal("value1", v)

	time.Sleep(250 * time.Millisecond)
	v, ok = c.Get("key1")
	s.False(ok)
	s.Equal("", v)
}

func (s *UnitTestSuite) TestTTLSetIfAbsent() {
	now := time.Unix(1_700_000_000, 0)
	SetTimNowFn(func() time.Time { return now })

	c := NewTTL[string, struct{}]()
	s.True(c.SetIfAbsent("k", struct{}{}, time.Minute))
	s.False(c.SetIfAbsent("k", struct{}{}, time.Minute))

	now = now.Add(61 * time.Second)
	s.True(c.SetIfAbsent("k", struct{}{}, time.Minute))
}

func (s *UnitTestSuite) TestTTLSweep() {
	now := time.Unix(1_700_000_000, 0)
	SetTimNowFn(func() time.Time { return now })

	c := NewTTL[int, int]()
	for i := 0; i < sweepThreshold-1; i++ {
		c.Set(i, i, time.Second)
	}
	now = now.Add(2 * time.Second)
	c.Set(-1, -1, time.Minute)
	s.Equal(1, c.Len())
}
