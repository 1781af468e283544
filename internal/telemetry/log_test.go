package telemetry

import "testing"

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug": LevelDebug,
		"info":  LevelInfo,
		"":      LevelInfo,
		"warn":  LevelWarn,
		"error": LevelError,
		"bogus": LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerEnabledFiltersBelowLevel(t *testing.T) {
	l := New(LevelWarn, 1)
	if l.enabled(LevelDebug) {
		t.Fatal("debug should be filtered when level is warn")
	}
	if l.enabled(LevelInfo) {
		t.Fatal("info should be filtered when level is warn")
	}
	if !l.enabled(LevelWarn) {
		t.Fatal("warn should be enabled when level is warn")
	}
	if !l.enabled(LevelError) {
		t.Fatal("error should be enabled when level is warn")
	}
}

func TestSampledOnlyFiresEveryNth(t *testing.T) {
	l := New(LevelInfo, 3)
	s := &Sampler{}

	fired := 0
	for i := 0; i < 9; i++ {
		before := s.counter.Load()
		l.Sampled(s, LevelInfo, "tick %d", i)
		after := s.counter.Load()
		if after != before+1 {
			t.Fatalf("Sampled did not advance the counter: before=%d after=%d", before, after)
		}
		if after%3 == 0 {
			fired++
		}
	}
	if fired != 3 {
		t.Fatalf("expected 3 of 9 sampled calls to land on the cadence, counted %d", fired)
	}
}

func TestSamplerIndependentPerCallSite(t *testing.T) {
	var a, b Sampler
	l := New(LevelInfo, 2)
	l.Sampled(&a, LevelInfo, "a")
	if a.counter.Load() != 1 || b.counter.Load() != 0 {
		t.Fatalf("samplers should not share state: a=%d b=%d", a.counter.Load(), b.counter.Load())
	}
}
