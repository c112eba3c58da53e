package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func newMockResolver(t *testing.T, entries ...ModelTXT) (*Resolver, *MockMDNSResolver) {
	t.Helper()
	mock := NewMockMDNSResolver()
	for i, txt := range entries {
		ip := net.IPv4(192, 168, 1, byte(10+i))
		mock.RegisterService(ServiceModel, MockModelService("model-"+string(rune('a'+i)), DefaultPort+i, ip, txt))
	}
	r, err := NewResolver(ResolverConfig{
		MDNSResolver:  mock,
		BrowseTimeout: 100 * time.Millisecond,
		LookupTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}
	return r, mock
}

func TestResolver_Browse(t *testing.T) {
	r, _ := newMockResolver(t, ModelTXT{ChipID: "01"}, ModelTXT{ChipID: "02"})

	services, err := r.Browse(context.Background())
	if err != nil {
		t.Fatalf("Browse() error = %v", err)
	}
	var ids []string
	for svc := range services {
		ids = append(ids, svc.Text[TXTKeyChipID])
	}
	if len(ids) != 2 || ids[0] != "01" || ids[1] != "02" {
		t.Errorf("browsed chip ids = %v", ids)
	}
}

func TestResolver_Find(t *testing.T) {
	r, mock := newMockResolver(t, ModelTXT{Slots: []int{0, 1}})

	svc, err := r.Find(context.Background())
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	addr, err := svc.Address()
	if err != nil {
		t.Fatalf("Address() error = %v", err)
	}
	if addr != "192.168.1.10:28992" {
		t.Errorf("Address() = %q", addr)
	}
	if svc.Text[TXTKeySlots] != "0,1" {
		t.Errorf("slots = %q", svc.Text[TXTKeySlots])
	}
	model, err := svc.Model()
	if err != nil {
		t.Fatalf("Model() error = %v", err)
	}
	if model.Protocol != ProtocolVersion || len(model.Slots) != 2 {
		t.Errorf("Model() = %+v", model)
	}

	mock.ClearServices()
	if _, err := r.Find(context.Background()); !errors.Is(err, ErrServiceNotFound) {
		t.Errorf("Find() on empty network error = %v, want ErrServiceNotFound", err)
	}
}

func TestResolver_Lookup(t *testing.T) {
	r, _ := newMockResolver(t, ModelTXT{}, ModelTXT{})

	svc, err := r.Lookup(context.Background(), "model-b")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if svc.Port != DefaultPort+1 {
		t.Errorf("Port = %d, want %d", svc.Port, DefaultPort+1)
	}

	if _, err := r.Lookup(context.Background(), "missing"); !errors.Is(err, ErrServiceNotFound) {
		t.Errorf("Lookup(missing) error = %v, want ErrServiceNotFound", err)
	}
}

func TestResolvedService_NoAddress(t *testing.T) {
	svc := &ResolvedService{Port: 1}
	if _, err := svc.Address(); !errors.Is(err, ErrNoAddresses) {
		t.Errorf("Address() error = %v, want ErrNoAddresses", err)
	}
	if svc.PreferredIP() != nil {
		t.Error("PreferredIP() != nil")
	}
}
