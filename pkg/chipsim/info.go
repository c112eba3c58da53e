package chipsim

import (
	"crypto/ed25519"
	"crypto/x509/pkix"
	encoding_asn1 "encoding/asn1"
	"fmt"
	"io"
	"math/big"
	"time"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"

	"github.com/tropicsquare/tropic-go/pkg/crypto"
	"github.com/tropicsquare/tropic-go/pkg/l2"
)

// Get_Info objects and block size.
const (
	infoX509Certificate = 0x00
	infoChipID          = 0x01
	infoRiscvFWVersion  = 0x02
	infoSpectFWVersion  = 0x04

	infoBlockSize = 128
)

var oidEd25519 = encoding_asn1.ObjectIdentifier{1, 3, 101, 112}

// newCertificate issues the chip certificate for stpub. The model has no
// manufacturer CA, so the certificate is self-issued and signed by a
// throwaway Ed25519 key. crypto/x509 refuses X25519 subject keys, so the
// DER is assembled by hand.
func newCertificate(r io.Reader, stpub [32]byte) ([]byte, error) {
	_, signer, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("chipsim: certificate key: %w", err)
	}
	serial := make([]byte, 16)
	if _, err := io.ReadFull(r, serial); err != nil {
		return nil, fmt.Errorf("chipsim: certificate serial: %w", err)
	}
	serial[0] = serial[0]&0x7f | 0x40

	name, err := encoding_asn1.Marshal(pkix.Name{
		Organization: []string{"Tropic Square"},
		CommonName:   "TROPIC01 model",
	}.ToRDNSequence())
	if err != nil {
		return nil, fmt.Errorf("chipsim: certificate name: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	algorithm := func(b *cryptobyte.Builder) {
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(oidEd25519)
		})
	}

	var tbs cryptobyte.Builder
	tbs.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(asn1.Tag(0).Constructed().ContextSpecific(), func(b *cryptobyte.Builder) {
			b.AddASN1Int64(2) // v3
		})
		b.AddASN1BigInt(new(big.Int).SetBytes(serial))
		algorithm(b)
		b.AddBytes(name)
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1UTCTime(now.Add(-time.Hour))
			b.AddASN1UTCTime(now.AddDate(10, 0, 0))
		})
		b.AddBytes(name)
		b.AddBytes(crypto.MarshalX25519PublicKeyInfo(stpub))
	})
	tbsDER, err := tbs.Bytes()
	if err != nil {
		return nil, fmt.Errorf("chipsim: certificate: %w", err)
	}

	var cert cryptobyte.Builder
	cert.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddBytes(tbsDER)
		algorithm(b)
		b.AddASN1BitString(ed25519.Sign(signer, tbsDER))
	})
	der, err := cert.Bytes()
	if err != nil {
		return nil, fmt.Errorf("chipsim: certificate: %w", err)
	}
	return der, nil
}

func (c *Chip) getInfo(payload []byte) {
	if len(payload) != 2 {
		c.respond(l2.RequestGetInfo, l2.StatusGeneralError, nil)
		return
	}
	object, block := payload[0], int(payload[1])

	var data []byte
	switch object {
	case infoX509Certificate:
		start := min(block*infoBlockSize, len(c.cert))
		end := min(start+infoBlockSize, len(c.cert))
		data = c.cert[start:end]
	case infoChipID:
		data = c.chipID
	case infoRiscvFWVersion:
		data = c.riscvFW[:]
	case infoSpectFWVersion:
		data = c.spectFW[:]
	default:
		c.respond(l2.RequestGetInfo, l2.StatusGeneralError, nil)
		return
	}
	if len(data) > l2.MaxPayloadSize {
		data = data[:l2.MaxPayloadSize]
	}
	c.respond(l2.RequestGetInfo, l2.StatusResultOK, data)
}
