package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tropicsquare/tropic-go/pkg/crypto"
	"github.com/tropicsquare/tropic-go/pkg/tropic"
)

var (
	configFile string

	// cfg is loaded once per invocation in PersistentPreRunE.
	cfg *Config
)

var rootCmd = &cobra.Command{
	Use:   "tropicctl",
	Short: "Talk to a TROPIC01 secure element",
	Long: `tropicctl drives a TROPIC01 over a USB SPI dongle (usb), a chip model
server (tcp), or the first model server found on the local network (mdns).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		vp, err := newViper(configFile)
		if err != nil {
			return err
		}
		if err := vp.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		cfg, err = loadConfig(vp)
		return err
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&configFile, "config", "", "config file (default is $HOME/.tropicctl.yaml)")
	f.String(keyTransport, TransportUSB, "transport: usb, tcp or mdns")
	f.String(keyDevice, "", "serial device of the USB dongle")
	f.String(keyAddress, "", "model server address")
	f.Int(keySlot, 0, "pairing slot for the secure session")
	f.String(keyHostPrivate, "", "host pairing private key, hex")
	f.Duration(keyTimeout, 0, "overall command timeout")
	f.BoolP(keyVerbose, "v", false, "verbose logging")

	rootCmd.AddCommand(infoCmd, pingCmd, randomCmd, pairingKeyCmd, keygenCmd)
	pairingKeyCmd.AddCommand(pairingKeyReadCmd)
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), cfg.Timeout)
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print chip ID, firmware versions and static public key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		h, err := cfg.open(ctx)
		if err != nil {
			return err
		}
		defer h.Close()

		id, err := h.ChipID(ctx)
		if err != nil {
			return err
		}
		fw, err := h.FirmwareVersions(ctx)
		if err != nil {
			return err
		}
		stpub, err := h.ChipStaticPublicKey(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Chip ID:  %s\n", tropic.ChipIDString(id))
		fmt.Fprintf(out, "RISC-V:   %s\n", fw.RISCV)
		fmt.Fprintf(out, "SPECT:    %s\n", fw.SPECT)
		fmt.Fprintf(out, "STPUB:    %x\n", stpub)
		return nil
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping MESSAGE",
	Short: "Echo a message through a secure session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		h, err := cfg.openSession(ctx)
		if err != nil {
			return err
		}
		defer h.Close()

		echo, err := h.Ping(ctx, []byte(args[0]))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(echo))
		return nil
	},
}

var randomCmd = &cobra.Command{
	Use:   "random N",
	Short: "Read N random bytes from the chip",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("random: %w", err)
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		h, err := cfg.openSession(ctx)
		if err != nil {
			return err
		}
		defer h.Close()

		b, err := h.RandomValueGet(ctx, n)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(b))
		return nil
	},
}

var pairingKeyCmd = &cobra.Command{
	Use:   "pairing-key",
	Short: "Pairing key operations",
}

var pairingKeyReadCmd = &cobra.Command{
	Use:   "read SLOT",
	Short: "Read the pairing public key stored in SLOT",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slot, err := strconv.Atoi(args[0])
		if err != nil || slot < 0 || slot > 255 {
			return fmt.Errorf("pairing-key read: %w: %s", tropic.ErrInvalidSlot, args[0])
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		h, err := cfg.openSession(ctx)
		if err != nil {
			return err
		}
		defer h.Close()

		pub, err := h.PairingKeyRead(ctx, tropic.Slot(slot))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%x\n", pub)
		return nil
	},
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a host pairing key pair",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		kp, err := crypto.X25519GenerateKeyPair()
		if err != nil {
			return err
		}
		defer kp.Zeroize()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "private: %x\n", kp.Private)
		fmt.Fprintf(out, "public:  %x\n", kp.Public)
		return nil
	},
}
