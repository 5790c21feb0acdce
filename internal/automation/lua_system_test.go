//go:build !no_automation

package automation

import (
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func newSystemState(t *testing.T) *lua.LState {
	t.Helper()
	L := lua.NewState()
	t.Cleanup(L.Close)
	registerSystemModule(L, &Engine{logger: testLogger()})
	return L
}

func TestSystemDatetimeReturnsNumber(t *testing.T) {
	L := newSystemState(t)

	for _, comp := range []string{"hour", "minute", "second", "weekday", "day", "month", "year", "timestamp"} {
		L.SetGlobal("_comp", lua.LString(comp))
		if err := L.DoString(`_result = system.datetime(_comp)`); err != nil {
			t.Fatalf("system.datetime(%q) error: %v", comp, err)
		}
		if result := L.GetGlobal("_result"); result.Type() != lua.LTNumber {
			t.Errorf("system.datetime(%q) type = %v, want LTNumber", comp, result.Type())
		}
	}
}

func TestSystemDatetimeReturnsString(t *testing.T) {
	L := newSystemState(t)

	for _, comp := range []string{"time_str", "date_str"} {
		L.SetGlobal("_comp", lua.LString(comp))
		if err := L.DoString(`_result = system.datetime(_comp)`); err != nil {
			t.Fatalf("system.datetime(%q) error: %v", comp, err)
		}
		if result := L.GetGlobal("_result"); result.Type() != lua.LTString {
			t.Errorf("system.datetime(%q) type = %v, want LTString", comp, result.Type())
		}
	}
}

func TestSystemDatetimeUnknownComponent(t *testing.T) {
	L := newSystemState(t)
	if err := L.DoString(`system.datetime("fortnight")`); err == nil {
		t.Error("expected error for unknown component")
	}
}

func TestSystemDatetimeHourRange(t *testing.T) {
	L := newSystemState(t)

	if err := L.DoString(`_hour = system.datetime("hour")`); err != nil {
		t.Fatal(err)
	}
	hour := int(L.GetGlobal("_hour").(lua.LNumber))
	if hour < 0 || hour > 23 {
		t.Errorf("hour = %d, want 0-23", hour)
	}
}

func TestHourBetween(t *testing.T) {
	tests := []struct {
		hour, from, to int
		want           bool
	}{
		{8, 8, 22, true},
		{21, 8, 22, true},
		{22, 8, 22, false},
		{7, 8, 22, false},
		{23, 22, 6, true},
		{0, 22, 6, true},
		{5, 22, 6, true},
		{6, 22, 6, false},
		{12, 22, 6, false},
		{3, 5, 5, false},
	}
	for _, tt := range tests {
		if got := hourBetween(tt.hour, tt.from, tt.to); got != tt.want {
			t.Errorf("hourBetween(%d, %d, %d) = %v, want %v", tt.hour, tt.from, tt.to, got, tt.want)
		}
	}
}

func TestSystemTimeBetweenReturnsBool(t *testing.T) {
	L := newSystemState(t)

	if err := L.DoString(`_all = system.time_between(0, 24)`); err != nil {
		t.Fatal(err)
	}
	if L.GetGlobal("_all") != lua.LTrue {
		t.Errorf("time_between(0, 24) = %v, want true", L.GetGlobal("_all"))
	}
}

func TestSystemLogLevels(t *testing.T) {
	L := newSystemState(t)

	for _, level := range []string{"debug", "info", "warn", "error", "other"} {
		L.SetGlobal("_level", lua.LString(level))
		if err := L.DoString(`system.log(_level, "message")`); err != nil {
			t.Errorf("system.log(%q): %v", level, err)
		}
	}
}
