package ledger

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// DiscriminatorSize is the length of the type tag that prefixes every record.
const DiscriminatorSize = 8

// Record is a typed ledger account payload.
type Record interface {
	// AccountName names the record type; it seeds the discriminator.
	AccountName() string
	MarshalWithEncoder(enc *bin.Encoder) error
	UnmarshalWithDecoder(dec *bin.Decoder) error
}

// Discriminator returns the first 8 bytes of sha256("account:<name>").
func Discriminator(name string) [DiscriminatorSize]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var out [DiscriminatorSize]byte
	copy(out[:], sum[:DiscriminatorSize])
	return out
}

// Encode serializes rec as discriminator followed by its borsh fields.
func Encode(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	disc := Discriminator(rec.AccountName())
	buf.Write(disc[:])
	if err := rec.MarshalWithEncoder(bin.NewBorshEncoder(&buf)); err != nil {
		return nil, fmt.Errorf("encode %s: %w", rec.AccountName(), err)
	}
	return buf.Bytes(), nil
}

// Decode fills rec from data, checking the discriminator first.
func Decode(data []byte, rec Record) error {
	if !HasDiscriminator(data, rec.AccountName()) {
		return Reject(CodeInvalidAccount, "account is not a %s", rec.AccountName())
	}
	if err := rec.UnmarshalWithDecoder(bin.NewBorshDecoder(data[DiscriminatorSize:])); err != nil {
		return fmt.Errorf("decode %s: %w", rec.AccountName(), err)
	}
	return nil
}

// HasDiscriminator reports whether data is tagged as a record called name.
func HasDiscriminator(data []byte, name string) bool {
	if len(data) < DiscriminatorSize {
		return false
	}
	disc := Discriminator(name)
	return bytes.Equal(data[:DiscriminatorSize], disc[:])
}

// WriteKey writes a raw 32-byte public key.
func WriteKey(enc *bin.Encoder, key solana.PublicKey) error {
	return enc.WriteBytes(key[:], false)
}

// ReadKey reads a raw 32-byte public key.
func ReadKey(dec *bin.Decoder) (solana.PublicKey, error) {
	raw, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(raw), nil
}

// WriteOptionalKey writes a borsh Option<PublicKey>.
func WriteOptionalKey(enc *bin.Encoder, key *solana.PublicKey) error {
	if key == nil {
		return enc.WriteBool(false)
	}
	if err := enc.WriteBool(true); err != nil {
		return err
	}
	return WriteKey(enc, *key)
}

// ReadOptionalKey reads a borsh Option<PublicKey>.
func ReadOptionalKey(dec *bin.Decoder) (*solana.PublicKey, error) {
	present, err := dec.ReadBool()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	key, err := ReadKey(dec)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// RentExempt is the storage deposit held by an account of size bytes.
func RentExempt(size int) uint64 {
	return uint64(128+size) * 6960
}
