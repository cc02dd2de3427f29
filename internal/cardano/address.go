package cardano

import (
	"crypto/ed25519"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// networkID is the address network tag: 1 on mainnet, 0 on the test networks.
func networkID(network string) byte {
	if network == "mainnet" {
		return 1
	}
	return 0
}

// EnterpriseAddress is the payment-key-only address of pub, as raw bytes and
// in bech32 form.
func EnterpriseAddress(pub ed25519.PublicKey, network string) ([]byte, string) {
	keyHash, _ := hex.DecodeString(KeyHash(pub))
	raw := append([]byte{0x60 | networkID(network)}, keyHash...)
	hrp := "addr_test"
	if networkID(network) == 1 {
		hrp = "addr"
	}
	return raw, bech32Encode(hrp, raw)
}

// SignaturePolicy is the native script requiring pub's signature, CBOR
// encoded, and the policy id it hashes to.
func SignaturePolicy(pub ed25519.PublicKey) ([]byte, string) {
	keyHash, _ := hex.DecodeString(KeyHash(pub))
	script, _ := encMode.Marshal([]any{0, keyHash})
	// native scripts hash with a zero language tag
	return script, hash224(append([]byte{0x00}, script...))
}

func bech32Encode(hrp string, data []byte) string {
	values := toBase32(data)
	checksum := bech32Checksum(hrp, values)

	var b strings.Builder
	b.WriteString(hrp)
	b.WriteByte('1')
	for _, v := range append(values, checksum...) {
		b.WriteByte(bech32Charset[v])
	}
	return b.String()
}

func toBase32(data []byte) []byte {
	var (
		out  []byte
		acc  uint32
		bits uint
	)
	for _, b := range data {
		acc = (acc<<8 | uint32(b)) & 0xfff
		bits += 8
		for bits >= 5 {
			bits -= 5
			out = append(out, byte(acc>>bits)&31)
		}
	}
	if bits > 0 {
		out = append(out, byte(acc<<(5-bits))&31)
	}
	return out
}

func bech32Checksum(hrp string, values []byte) []byte {
	expanded := make([]byte, 0, len(hrp)*2+1+len(values)+6)
	for i := 0; i < len(hrp); i++ {
		expanded = append(expanded, hrp[i]>>5)
	}
	expanded = append(expanded, 0)
	for i := 0; i < len(hrp); i++ {
		expanded = append(expanded, hrp[i]&31)
	}
	expanded = append(expanded, values...)
	expanded = append(expanded, 0, 0, 0, 0, 0, 0)

	mod := bech32Polymod(expanded) ^ 1
	out := make([]byte, 6)
	for i := range out {
		out[i] = byte(mod>>(5*(5-uint(i)))) & 31
	}
	return out
}

func bech32Polymod(values []byte) uint32 {
	gen := [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 == 1 {
				chk ^= gen[i]
			}
		}
	}
	return chk
}

// assetName is the on-chain name for a token. Names over the 32-byte ledger
// limit are replaced by their blake2b-256 digest.
func assetName(tokenName string) []byte {
	if len(tokenName) <= 32 {
		return []byte(tokenName)
	}
	sum := blake2b.Sum256([]byte(tokenName))
	return sum[:]
}
