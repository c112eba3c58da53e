package tropic

import (
	"context"
	"crypto/x509"
	"encoding/hex"
	"fmt"

	"github.com/tropicsquare/tropic-go/pkg/crypto"
	"github.com/tropicsquare/tropic-go/pkg/l2"
)

// InfoObject selects what Get_Info returns.
type InfoObject uint8

// Get_Info objects.
const (
	InfoX509Certificate InfoObject = 0x00
	InfoChipID          InfoObject = 0x01
	InfoRiscvFWVersion  InfoObject = 0x02
	InfoSpectFWVersion  InfoObject = 0x04
)

// Get_Info sizes.
const (
	// InfoBlockSize is the size of one certificate block.
	InfoBlockSize = 128

	// CertificateMaxSize bounds the certificate read from the chip.
	CertificateMaxSize = 8 * InfoBlockSize

	// ChipIDSize is the size of the chip identification object.
	ChipIDSize = 128

	// FWVersionSize is the size of a firmware version.
	FWVersionSize = 4
)

// GetInfo reads one block of a Get_Info object. It needs no secure session.
func (h *Handle) GetInfo(ctx context.Context, object InfoObject, block uint8) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exchange(ctx, l2.RequestGetInfo, []byte{byte(object), block})
}

// ChipCertificateDER reads the DER encoded chip certificate.
func (h *Handle) ChipCertificateDER(ctx context.Context) ([]byte, error) {
	first, err := h.GetInfo(ctx, InfoX509Certificate, 0)
	if err != nil {
		return nil, err
	}
	total, err := derLength(first)
	if err != nil {
		return nil, err
	}

	der := append(make([]byte, 0, total), first...)
	for block := uint8(1); len(der) < total; block++ {
		next, err := h.GetInfo(ctx, InfoX509Certificate, block)
		if err != nil {
			return nil, err
		}
		if len(next) == 0 {
			return nil, fmt.Errorf("%w: certificate truncated at %d bytes", ErrInvalidCertificate, len(der))
		}
		der = append(der, next...)
	}
	return der[:total], nil
}

// derLength returns the size of the DER SEQUENCE starting at b.
func derLength(b []byte) (int, error) {
	if len(b) < 2 || b[0] != 0x30 {
		return 0, fmt.Errorf("%w: not a DER sequence", ErrInvalidCertificate)
	}
	var n, hdr int
	switch l := int(b[1]); {
	case l < 0x80:
		n, hdr = l, 2
	case l == 0x81 && len(b) >= 3:
		n, hdr = int(b[2]), 3
	case l == 0x82 && len(b) >= 4:
		n, hdr = int(b[2])<<8|int(b[3]), 4
	default:
		return 0, fmt.Errorf("%w: unsupported length encoding", ErrInvalidCertificate)
	}
	if hdr+n > CertificateMaxSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrInvalidCertificate, hdr+n)
	}
	return hdr + n, nil
}

// ChipCertificate reads and parses the chip certificate.
func (h *Handle) ChipCertificate(ctx context.Context) (*x509.Certificate, error) {
	der, err := h.ChipCertificateDER(ctx)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	return cert, nil
}

// ChipStaticPublicKey reads the chip certificate and returns the X25519
// key it certifies.
func (h *Handle) ChipStaticPublicKey(ctx context.Context) ([32]byte, error) {
	cert, err := h.ChipCertificate(ctx)
	if err != nil {
		return [32]byte{}, err
	}
	return StaticPublicKey(cert)
}

// StaticPublicKey extracts the X25519 chip static key from cert.
// crypto/x509 does not decode X25519 keys, so it is read from the raw
// SubjectPublicKeyInfo.
func StaticPublicKey(cert *x509.Certificate) ([32]byte, error) {
	stpub, err := crypto.ParseX25519PublicKeyInfo(cert.RawSubjectPublicKeyInfo)
	if err != nil {
		return stpub, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	return stpub, nil
}

// ChipID reads the chip identification object.
func (h *Handle) ChipID(ctx context.Context) ([]byte, error) {
	id, err := h.GetInfo(ctx, InfoChipID, 0)
	if err != nil {
		return nil, err
	}
	if len(id) != ChipIDSize {
		return nil, fmt.Errorf("%w: chip id of %d bytes", ErrUnexpectedResult, len(id))
	}
	return id, nil
}

// FWVersion is a firmware version as reported by the chip, most
// significant byte last.
type FWVersion [FWVersionSize]byte

func (v FWVersion) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v[3], v[2], v[1], v[0])
}

// FirmwareVersions holds the versions of both chip firmwares.
type FirmwareVersions struct {
	RISCV FWVersion
	SPECT FWVersion
}

// FirmwareVersions reads the RISC-V and SPECT firmware versions.
func (h *Handle) FirmwareVersions(ctx context.Context) (FirmwareVersions, error) {
	var v FirmwareVersions
	for _, obj := range []struct {
		id  InfoObject
		dst *FWVersion
	}{
		{InfoRiscvFWVersion, &v.RISCV},
		{InfoSpectFWVersion, &v.SPECT},
	} {
		b, err := h.GetInfo(ctx, obj.id, 0)
		if err != nil {
			return v, err
		}
		if len(b) != FWVersionSize {
			return v, fmt.Errorf("%w: version of %d bytes", ErrUnexpectedResult, len(b))
		}
		copy(obj.dst[:], b)
	}
	return v, nil
}

// ChipIDString is the chip ID as lowercase hex.
func ChipIDString(id []byte) string {
	return hex.EncodeToString(id)
}
