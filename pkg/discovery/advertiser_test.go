package discovery

import (
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
)

// mockMDNSServer is a mock implementation of MDNSServer for testing.
type mockMDNSServer struct {
	shutdownCalled bool
}

func (m *mockMDNSServer) Shutdown() {
	m.shutdownCalled = true
}

// mockMDNSServerFactory is a mock implementation of MDNSServerFactory for testing.
type mockMDNSServerFactory struct {
	mu       sync.Mutex
	servers  []*mockMDNSServer
	lastArgs struct {
		instance string
		service  string
		domain   string
		port     int
		txt      []string
	}
	shouldFail bool
}

func (f *mockMDNSServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.shouldFail {
		return nil, ErrClosed
	}

	f.lastArgs.instance = instance
	f.lastArgs.service = service
	f.lastArgs.domain = domain
	f.lastArgs.port = port
	f.lastArgs.txt = txt

	server := &mockMDNSServer{}
	f.servers = append(f.servers, server)
	return server, nil
}

func TestNewAdvertiser(t *testing.T) {
	t.Run("default port", func(t *testing.T) {
		adv, err := NewAdvertiser(AdvertiserConfig{})
		if err != nil {
			t.Fatalf("NewAdvertiser() error = %v", err)
		}
		if adv.config.Port != DefaultPort {
			t.Errorf("Port = %d, want %d", adv.config.Port, DefaultPort)
		}
	})

	t.Run("invalid port", func(t *testing.T) {
		if _, err := NewAdvertiser(AdvertiserConfig{Port: 70000}); !errors.Is(err, ErrInvalidPort) {
			t.Errorf("NewAdvertiser() error = %v, want ErrInvalidPort", err)
		}
	})
}

func TestAdvertiser_Lifecycle(t *testing.T) {
	factory := &mockMDNSServerFactory{}
	adv, err := NewAdvertiser(AdvertiserConfig{Port: 4000, ServerFactory: factory})
	if err != nil {
		t.Fatalf("NewAdvertiser() error = %v", err)
	}

	if err := adv.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Stop() before Start error = %v, want ErrNotStarted", err)
	}

	if err := adv.Start(ModelTXT{ChipID: "0a0b", Slots: []int{0}}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !adv.IsAdvertising() {
		t.Error("IsAdvertising() = false, want true")
	}
	if !strings.HasPrefix(adv.InstanceName(), "TROPIC01-") {
		t.Errorf("InstanceName() = %q", adv.InstanceName())
	}
	if factory.lastArgs.service != ServiceModel || factory.lastArgs.domain != DefaultDomain || factory.lastArgs.port != 4000 {
		t.Errorf("Register args = %+v", factory.lastArgs)
	}
	if err := adv.Start(ModelTXT{}); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}

	if err := adv.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !factory.servers[0].shutdownCalled {
		t.Error("Stop() did not shut the server down")
	}
	if adv.IsAdvertising() || adv.InstanceName() != "" {
		t.Error("advertiser still active after Stop()")
	}

	if err := adv.Start(ModelTXT{}); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	if err := adv.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !factory.servers[1].shutdownCalled {
		t.Error("Close() did not shut the server down")
	}
	if err := adv.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close() error = %v, want ErrClosed", err)
	}
	if err := adv.Start(ModelTXT{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close error = %v, want ErrClosed", err)
	}
}

func TestAdvertiser_FixedInstance(t *testing.T) {
	factory := &mockMDNSServerFactory{}
	adv, _ := NewAdvertiser(AdvertiserConfig{Instance: "bench-1", ServerFactory: factory})
	if err := adv.Start(ModelTXT{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if factory.lastArgs.instance != "bench-1" {
		t.Errorf("instance = %q, want bench-1", factory.lastArgs.instance)
	}
}

func TestAdvertiser_RegisterFails(t *testing.T) {
	factory := &mockMDNSServerFactory{shouldFail: true}
	adv, _ := NewAdvertiser(AdvertiserConfig{ServerFactory: factory})
	if err := adv.Start(ModelTXT{}); err == nil {
		t.Fatal("Start() succeeded with a failing factory")
	}
	if adv.IsAdvertising() {
		t.Error("IsAdvertising() = true after failed Start()")
	}
}
