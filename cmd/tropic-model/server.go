package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tropicsquare/tropic-go/pkg/chipsim"
	"github.com/tropicsquare/tropic-go/pkg/crypto"
	"github.com/tropicsquare/tropic-go/pkg/discovery"
	"github.com/tropicsquare/tropic-go/pkg/handshake"
	"github.com/tropicsquare/tropic-go/pkg/metrics"
	"github.com/tropicsquare/tropic-go/pkg/tropic"
)

type options struct {
	listen        string
	pairs         []string
	staticPrivate string
	mdns          bool
	instance      string
	metricsAddr   string
	verbose       bool
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "tropic-model",
		Short:         "Serve a TROPIC01 chip model over TCP",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.listen, "listen", fmt.Sprintf(":%d", discovery.DefaultPort), "model protocol listen address")
	f.StringArrayVar(&opts.pairs, "pair", nil, "pairing key as SLOT=HEX, repeatable")
	f.StringVar(&opts.staticPrivate, "static-private", "", "chip static private key, hex (default random)")
	f.BoolVar(&opts.mdns, "mdns", false, "advertise the server via DNS-SD")
	f.StringVar(&opts.instance, "instance", "", "DNS-SD instance name (default random)")
	f.StringVar(&opts.metricsAddr, "metrics", "", "serve Prometheus metrics on this address")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging")
	return cmd
}

// parsePairs parses SLOT=HEX pairing key arguments.
func parsePairs(pairs []string) (map[handshake.Slot][32]byte, error) {
	keys := make(map[handshake.Slot][32]byte, len(pairs))
	for _, p := range pairs {
		slotStr, keyHex, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("pair %q: want SLOT=HEX", p)
		}
		slot, err := strconv.Atoi(slotStr)
		if err != nil || slot < 0 || slot > int(handshake.MaxSlot) {
			return nil, fmt.Errorf("pair %q: %w", p, handshake.ErrInvalidSlot)
		}
		b, err := hex.DecodeString(keyHex)
		if err != nil {
			return nil, fmt.Errorf("pair %q: %w", p, err)
		}
		if len(b) != crypto.X25519KeySize {
			return nil, fmt.Errorf("pair %q: %w", p, crypto.ErrInvalidX25519Key)
		}
		var pub [32]byte
		copy(pub[:], b)
		keys[handshake.Slot(slot)] = pub
	}
	return keys, nil
}

func parseStatic(s string) (*crypto.X25519KeyPair, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("static key: %w", err)
	}
	pub, err := crypto.X25519PublicKey(b)
	if err != nil {
		return nil, fmt.Errorf("static key: %w", err)
	}
	kp := &crypto.X25519KeyPair{Public: pub}
	copy(kp.Private[:], b)
	return kp, nil
}

// modelTXT describes chip for DNS-SD.
func modelTXT(chip *chipsim.Chip) discovery.ModelTXT {
	riscv, spect := chip.FirmwareVersions()
	id := chip.ChipID()
	if len(id) > 8 {
		id = id[:8]
	}
	txt := discovery.ModelTXT{
		ChipID:  hex.EncodeToString(id),
		RiscvFW: tropic.FWVersion(riscv).String(),
		SpectFW: tropic.FWVersion(spect).String(),
	}
	for _, s := range chip.PairedSlots() {
		txt.Slots = append(txt.Slots, int(s))
	}
	return txt
}

func run(ctx context.Context, opts options) error {
	lf := logging.NewDefaultLoggerFactory()
	if opts.verbose {
		lf.DefaultLogLevel = logging.LogLevelDebug
	}
	log := lf.NewLogger("tropic-model")

	pairs, err := parsePairs(opts.pairs)
	if err != nil {
		return err
	}
	static, err := parseStatic(opts.staticPrivate)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	chip, err := chipsim.New(chipsim.Config{
		Static:        static,
		PairingKeys:   pairs,
		Observer:      metrics.NewChip(reg),
		LoggerFactory: lf,
	})
	if err != nil {
		return err
	}
	stpub := chip.StaticPublicKey()
	log.Infof("chip %x, STPUB %x", chip.ChipID()[:8], stpub)

	l, err := net.Listen("tcp", opts.listen)
	if err != nil {
		return err
	}

	if opts.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: opts.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("metrics server: %v", err)
			}
		}()
		defer srv.Close()
		log.Infof("metrics on %s/metrics", opts.metricsAddr)
	}

	if opts.mdns {
		_, portStr, _ := net.SplitHostPort(l.Addr().String())
		port, _ := strconv.Atoi(portStr)
		adv, err := discovery.NewAdvertiser(discovery.AdvertiserConfig{
			Instance:      opts.instance,
			Port:          port,
			LoggerFactory: lf,
		})
		if err != nil {
			l.Close()
			return err
		}
		if err := adv.Start(modelTXT(chip)); err != nil {
			l.Close()
			return err
		}
		defer adv.Close()
	}

	go func() {
		<-ctx.Done()
		l.Close()
	}()
	return chip.Serve(l)
}
