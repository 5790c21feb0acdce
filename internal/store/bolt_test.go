package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetController(t *testing.T) {
	s := newTestStore(t)

	c := &Controller{
		Address:   "192.168.3.70",
		Hostname:  "IRRIGATIONCADDY",
		IPAddress: "192.168.3.70",
		ZoneNames: []string{"Front", "Back", ""},
		Online:    true,
		FirstSeen: time.Now().Truncate(time.Millisecond),
		LastSeen:  time.Now().Truncate(time.Millisecond),
		Status:    map[string]any{"allowRun": true},
	}

	if err := s.SaveController(c); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetController(c.Address)
	if err != nil {
		t.Fatal(err)
	}

	if got.Hostname != c.Hostname {
		t.Errorf("hostname = %q, want %q", got.Hostname, c.Hostname)
	}
	if len(got.ZoneNames) != 3 || got.ZoneNames[1] != "Back" {
		t.Errorf("zone names = %q", got.ZoneNames)
	}
	if !got.Online {
		t.Error("online = false, want true")
	}
	if !got.FirstSeen.Equal(c.FirstSeen) {
		t.Errorf("first seen = %v, want %v", got.FirstSeen, c.FirstSeen)
	}
	if got.Status["allowRun"] != true {
		t.Errorf("status = %v", got.Status)
	}
}

func TestDeleteController(t *testing.T) {
	s := newTestStore(t)

	c := &Controller{Address: "10.0.0.7"}
	if err := s.SaveController(c); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteController(c.Address); err != nil {
		t.Fatal(err)
	}

	_, err := s.GetController(c.Address)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListControllers(t *testing.T) {
	s := newTestStore(t)

	addrs := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}
	for _, a := range addrs {
		if err := s.SaveController(&Controller{Address: a}); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.ListControllers()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("list count = %d, want 3", len(list))
	}
	found := make(map[string]bool)
	for _, c := range list {
		found[c.Address] = true
	}
	for _, a := range addrs {
		if !found[a] {
			t.Errorf("controller %s not in list", a)
		}
	}
}

func TestUpdateController(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveController(&Controller{Address: "10.0.0.1"}); err != nil {
		t.Fatal(err)
	}
	err := s.UpdateController("10.0.0.1", func(c *Controller) error {
		c.FriendlyName = "Garden"
		c.Address = "ignored"
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.GetController("10.0.0.1")
	if err != nil {
		t.Fatal(err)
	}
	if got.FriendlyName != "Garden" || got.Address != "10.0.0.1" {
		t.Errorf("got %+v", got)
	}

	if err := s.UpdateController("10.9.9.9", func(*Controller) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing: err = %v, want ErrNotFound", err)
	}

	boom := errors.New("boom")
	if err := s.UpdateController("10.0.0.1", func(*Controller) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestControllerName(t *testing.T) {
	tests := []struct {
		c    Controller
		want string
	}{
		{Controller{Address: "a", Hostname: "h", FriendlyName: "f"}, "f"},
		{Controller{Address: "a", Hostname: "h"}, "h"},
		{Controller{Address: "a"}, "a"},
	}
	for _, tt := range tests {
		if got := tt.c.Name(); got != tt.want {
			t.Errorf("Name() = %q, want %q", got, tt.want)
		}
	}
}

func TestScansNewestFirst(t *testing.T) {
	s := newTestStore(t)

	base := time.Now()
	var ids []string
	for i := range 5 {
		rec := NewScanRecord(base.Add(time.Duration(i) * time.Second))
		rec.Found = []string{fmt.Sprintf("10.0.0.%d", i)}
		if err := s.SaveScan(rec); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, rec.ID)
	}

	list, err := s.ListScans(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	for i, rec := range list {
		if want := ids[len(ids)-1-i]; rec.ID != want {
			t.Errorf("[%d] id = %s, want %s", i, rec.ID, want)
		}
	}

	all, err := s.ListScans(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Errorf("all = %d, want 5", len(all))
	}
}

func TestScanHistoryBounded(t *testing.T) {
	s := newTestStore(t)

	var last string
	for range maxScans + 3 {
		rec := NewScanRecord(time.Now())
		if err := s.SaveScan(rec); err != nil {
			t.Fatal(err)
		}
		last = rec.ID
	}
	list, err := s.ListScans(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != maxScans {
		t.Errorf("kept %d scans, want %d", len(list), maxScans)
	}
	if list[0].ID != last {
		t.Errorf("newest = %s, want %s", list[0].ID, last)
	}
}
