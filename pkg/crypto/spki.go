package crypto

import (
	encoding_asn1 "encoding/asn1"
	"errors"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// OIDX25519 identifies X25519 keys in SubjectPublicKeyInfo (RFC 8410).
var OIDX25519 = encoding_asn1.ObjectIdentifier{1, 3, 101, 110}

// ErrInvalidX25519PublicKeyInfo is returned when a SubjectPublicKeyInfo
// does not hold a 32-byte X25519 key.
var ErrInvalidX25519PublicKeyInfo = errors.New("x25519: invalid subject public key info")

// MarshalX25519PublicKeyInfo encodes pub as a DER SubjectPublicKeyInfo.
// crypto/x509 cannot marshal X25519 keys, so certificates carrying one are
// assembled from this encoding.
func MarshalX25519PublicKeyInfo(pub [X25519KeySize]byte) []byte {
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(OIDX25519)
		})
		b.AddASN1BitString(pub[:])
	})
	return b.BytesOrPanic()
}

// ParseX25519PublicKeyInfo decodes a DER SubjectPublicKeyInfo holding an
// X25519 key. crypto/x509 leaves such keys undecoded, so callers pass
// Certificate.RawSubjectPublicKeyInfo here.
func ParseX25519PublicKeyInfo(der []byte) ([X25519KeySize]byte, error) {
	var pub [X25519KeySize]byte
	var (
		input     = cryptobyte.String(der)
		spki, alg cryptobyte.String
		oid       encoding_asn1.ObjectIdentifier
		key       encoding_asn1.BitString
	)
	if !input.ReadASN1(&spki, asn1.SEQUENCE) || !input.Empty() ||
		!spki.ReadASN1(&alg, asn1.SEQUENCE) ||
		!alg.ReadASN1ObjectIdentifier(&oid) || !alg.Empty() ||
		!spki.ReadASN1BitString(&key) || !spki.Empty() {
		return pub, ErrInvalidX25519PublicKeyInfo
	}
	if !oid.Equal(OIDX25519) || key.BitLength != 8*X25519KeySize {
		return pub, ErrInvalidX25519PublicKeyInfo
	}
	copy(pub[:], key.Bytes)
	return pub, nil
}
