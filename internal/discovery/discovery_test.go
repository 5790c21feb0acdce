package discovery

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"irrigation-go-home/internal/caddy"
)

// stubDevice answers IsAlive from a fixed set; the embedded interface
// panics on anything else.
type stubDevice struct {
	caddy.Device
	addr  string
	alive bool
}

func (d *stubDevice) Address() string { return d.addr }

func (d *stubDevice) IsAlive(context.Context) bool { return d.alive }

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func ipNet(s string) net.Addr {
	ip, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	n.IP = ip
	return n
}

func addrs(list ...net.Addr) func() ([]net.Addr, error) {
	return func() ([]net.Addr, error) { return list, nil }
}

func TestLocalAddresses(t *testing.T) {
	got := LocalAddresses([]net.Addr{
		ipNet("127.0.0.1/8"),
		ipNet("192.168.3.10/24"),
		ipNet("fe80::1/64"),
		ipNet("8.8.8.8/24"),
		ipNet("10.1.2.3/8"),
		&net.IPAddr{IP: net.ParseIP("172.16.5.4")},
		ipNet("172.32.0.1/16"),
		ipNet("192.168.3.10/24"),
	})
	want := []string{"192.168.3.10", "10.1.2.3", "172.16.5.4"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPrefixes(t *testing.T) {
	got := Prefixes([]string{"192.168.3.10", "192.168.3.11", "10.0.0.5"})
	if len(got) != 2 || got[0] != "192.168.3" || got[1] != "10.0.0" {
		t.Errorf("prefixes = %v", got)
	}
}

func TestDiscoverNoPrivateAddresses(t *testing.T) {
	var calls atomic.Int32
	s := New(
		WithInterfaceAddrs(addrs(ipNet("127.0.0.1/8"), ipNet("203.0.113.7/24"))),
		WithFactory(func(addr string) caddy.Device {
			calls.Add(1)
			return &stubDevice{addr: addr}
		}),
	)
	if got := s.Discover(context.Background()); len(got) != 0 {
		t.Errorf("found %d devices, want 0", len(got))
	}
	if calls.Load() != 0 {
		t.Errorf("factory called %d times, want 0", calls.Load())
	}
}

func TestDiscoverInterfaceError(t *testing.T) {
	s := New(WithInterfaceAddrs(func() ([]net.Addr, error) { return nil, errors.New("boom") }))
	if got := s.Discover(context.Background()); len(got) != 0 {
		t.Errorf("found %d devices, want 0", len(got))
	}
}

func TestSweepAllTimeout(t *testing.T) {
	// Real clients whose transport always times out.
	var probes atomic.Int32
	rt := roundTripFunc(func(*http.Request) (*http.Response, error) {
		probes.Add(1)
		return nil, timeoutError{}
	})
	s := New(
		WithInterfaceAddrs(addrs(ipNet("192.168.3.10/24"))),
		WithClientOptions(caddy.WithTransport(rt)),
	)

	res := s.Scan(context.Background())
	if len(res.Devices) != 0 {
		t.Errorf("found %d devices, want 0", len(res.Devices))
	}
	if res.Probes != 256 {
		t.Errorf("probes = %d, want 256", res.Probes)
	}
	if probes.Load() != 256 {
		t.Errorf("requests = %d, want 256", probes.Load())
	}
}

func TestSweepFindsLiveInOrder(t *testing.T) {
	live := map[string]bool{"10.0.0.200": true, "10.0.0.3": true, "192.168.1.1": true}
	s := New(
		WithInterfaceAddrs(addrs(ipNet("10.0.0.5/8"), ipNet("192.168.1.20/24"), ipNet("10.0.0.9/8"))),
		WithFactory(func(addr string) caddy.Device {
			return &stubDevice{addr: addr, alive: live[addr]}
		}),
	)

	res := s.Scan(context.Background())
	want := []string{"10.0.0.3", "10.0.0.200", "192.168.1.1"}
	if len(res.Devices) != len(want) {
		t.Fatalf("found %d devices, want %d", len(res.Devices), len(want))
	}
	for i, d := range res.Devices {
		if d.Address() != want[i] {
			t.Errorf("[%d] = %s, want %s", i, d.Address(), want[i])
		}
	}
	if res.Probes != 512 {
		t.Errorf("probes = %d, want 512 (two distinct /24s)", res.Probes)
	}
}

func TestSweepConcurrencyLimit(t *testing.T) {
	var mu sync.Mutex
	var inFlight, peak int
	s := New(
		WithConcurrency(8),
		WithFactory(func(addr string) caddy.Device {
			return &countingDevice{enter: func() {
				mu.Lock()
				inFlight++
				peak = max(peak, inFlight)
				mu.Unlock()
			}, leave: func() {
				mu.Lock()
				inFlight--
				mu.Unlock()
			}}
		}),
	)

	_, probes := s.Sweep(context.Background(), "192.168.50")
	if probes != 256 {
		t.Errorf("probes = %d, want 256", probes)
	}
	if peak > 8 {
		t.Errorf("peak concurrency = %d, want <= 8", peak)
	}
}

func TestSweepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	s := New(WithFactory(func(addr string) caddy.Device {
		calls.Add(1)
		return &stubDevice{addr: addr, alive: true}
	}))
	found, _ := s.Sweep(ctx, "192.168.0")
	if len(found) != 0 || calls.Load() != 0 {
		t.Errorf("cancelled sweep found %d, probed %d", len(found), calls.Load())
	}
}

type countingDevice struct {
	caddy.Device
	enter, leave func()
}

func (d *countingDevice) IsAlive(context.Context) bool {
	d.enter()
	time.Sleep(time.Millisecond)
	d.leave()
	return false
}
