package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pion/logging"
	"github.com/spf13/viper"

	"github.com/tropicsquare/tropic-go/pkg/crypto"
	"github.com/tropicsquare/tropic-go/pkg/discovery"
	"github.com/tropicsquare/tropic-go/pkg/handshake"
	"github.com/tropicsquare/tropic-go/pkg/transport"
	"github.com/tropicsquare/tropic-go/pkg/tropic"
)

// Transport kinds.
const (
	TransportUSB  = "usb"
	TransportTCP  = "tcp"
	TransportMDNS = "mdns"
)

// Config keys.
const (
	keyTransport   = "transport"
	keyDevice      = "device"
	keyAddress     = "address"
	keySlot        = "slot"
	keyHostPrivate = "host-private"
	keyTimeout     = "timeout"
	keyVerbose     = "verbose"
)

var errNoHostKey = errors.New("no host private key; set --host-private or TROPIC_HOST_PRIVATE")

// Config is the resolved CLI configuration.
type Config struct {
	Transport   string
	Device      string
	Address     string
	Slot        tropic.Slot
	HostPrivate string
	Timeout     time.Duration
	Verbose     bool
}

// newViper binds the TROPIC_ environment and the optional config file.
func newViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(keyTransport, TransportUSB)
	v.SetDefault(keyDevice, transport.DefaultDongleDevice)
	v.SetDefault(keyAddress, transport.DefaultModelAddress)
	v.SetDefault(keySlot, 0)
	v.SetDefault(keyTimeout, 10*time.Second)

	v.SetEnvPrefix("TROPIC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(".tropicctl")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	return v, nil
}

// loadConfig reads and validates the configuration.
func loadConfig(v *viper.Viper) (*Config, error) {
	c := &Config{
		Transport:   strings.ToLower(v.GetString(keyTransport)),
		Device:      v.GetString(keyDevice),
		Address:     v.GetString(keyAddress),
		HostPrivate: v.GetString(keyHostPrivate),
		Timeout:     v.GetDuration(keyTimeout),
		Verbose:     v.GetBool(keyVerbose),
	}
	switch c.Transport {
	case TransportUSB, TransportTCP, TransportMDNS:
	default:
		return nil, fmt.Errorf("config: unknown transport %q", c.Transport)
	}
	slot := v.GetInt(keySlot)
	if slot < 0 || slot > int(handshake.MaxSlot) {
		return nil, fmt.Errorf("config: %w: %d", tropic.ErrInvalidSlot, slot)
	}
	c.Slot = tropic.Slot(slot)
	return c, nil
}

// HostKeys decodes the host pairing key and derives its public half.
func (c *Config) HostKeys() (tropic.HostKeys, error) {
	var keys tropic.HostKeys
	if c.HostPrivate == "" {
		return keys, errNoHostKey
	}
	b, err := hex.DecodeString(c.HostPrivate)
	if err != nil {
		return keys, fmt.Errorf("host private key: %w", err)
	}
	if len(b) != crypto.X25519KeySize {
		return keys, fmt.Errorf("host private key: %w", crypto.ErrInvalidX25519Key)
	}
	pub, err := crypto.X25519PublicKey(b)
	if err != nil {
		return keys, err
	}
	copy(keys.Private[:], b)
	keys.Public = pub
	return keys, nil
}

func (c *Config) loggerFactory() logging.LoggerFactory {
	lf := logging.NewDefaultLoggerFactory()
	if c.Verbose {
		lf.DefaultLogLevel = logging.LogLevelDebug
	}
	return lf
}

// openAdapter connects the configured transport.
func (c *Config) openAdapter(ctx context.Context) (transport.Adapter, error) {
	lf := c.loggerFactory()
	switch c.Transport {
	case TransportTCP:
		return transport.DialTCP(transport.TCPConfig{Address: c.Address, LoggerFactory: lf})
	case TransportMDNS:
		r, err := discovery.NewResolver(discovery.ResolverConfig{})
		if err != nil {
			return nil, err
		}
		svc, err := r.Find(ctx)
		if err != nil {
			return nil, err
		}
		model, err := svc.Model()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", svc.InstanceName, err)
		}
		if model.Protocol != discovery.ProtocolVersion {
			return nil, fmt.Errorf("%s: unsupported model protocol %d", svc.InstanceName, model.Protocol)
		}
		addr, err := svc.Address()
		if err != nil {
			return nil, err
		}
		return transport.DialTCP(transport.TCPConfig{Address: addr, LoggerFactory: lf})
	default:
		return transport.OpenUSBDongle(transport.USBDongleConfig{Device: c.Device, LoggerFactory: lf})
	}
}

// open returns a handle on the configured chip.
func (c *Config) open(ctx context.Context) (*tropic.Handle, error) {
	adapter, err := c.openAdapter(ctx)
	if err != nil {
		return nil, err
	}
	h, err := tropic.Open(tropic.Config{Adapter: adapter, LoggerFactory: c.loggerFactory()})
	if err != nil {
		if closer, ok := adapter.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
		return nil, err
	}
	return h, nil
}

// openSession opens a handle and establishes a verified secure session.
func (c *Config) openSession(ctx context.Context) (*tropic.Handle, error) {
	keys, err := c.HostKeys()
	if err != nil {
		return nil, err
	}
	h, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.VerifyChipAndStartSecureSession(ctx, keys, c.Slot); err != nil {
		_ = h.Close()
		return nil, err
	}
	return h, nil
}
