package cardano

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/fxamacker/cbor/v2"
)

// MetadataLabel is the CIP-25 transaction metadata label for NFTs.
const MetadataLabel = "721"

const defaultImage = "ipfs://QmPlaceholder"

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Core Deterministic Encoding: sorted keys and shortest integers, so the
	// same metadata always hashes to the same transaction body.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cardano: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("cardano: CBOR decoder initialization failed: " + err.Error())
	}
}

// GenerateNFTMetadata builds the CIP-25 metadata anchoring a ticket's
// commitment under its policy and token name.
func GenerateNFTMetadata(policyID, ticketID, commitmentHash string, metadata map[string]any) map[string]any {
	name, _ := metadata["title"].(string)
	if name == "" {
		name = "Ticket #" + ticketID
	}
	image, _ := metadata["image"].(string)
	if image == "" {
		image = defaultImage
	}
	prefix := commitmentHash
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}

	asset := map[string]any{
		"name":        name,
		"description": fmt.Sprintf("Event ticket with commitment %s...", prefix),
		"image":       image,
		"commitment":  commitmentHash,
		"ticketId":    ticketID,
	}
	if seat, ok := metadata["seat"]; ok && seat != nil && seat != "" {
		asset["seat"] = seat
	}

	return map[string]any{
		MetadataLabel: map[string]any{
			policyID: map[string]any{
				TokenName(ticketID): asset,
			},
		},
	}
}

// GenerateCancelMetadata builds the metadata a burn transaction carries.
func GenerateCancelMetadata(policyID, cancelCommitment string) map[string]any {
	return map[string]any{
		MetadataLabel: map[string]any{
			policyID: map[string]any{
				"canceled": cancelCommitment,
			},
		},
	}
}

// EncodeMetadata serializes transaction metadata to deterministic CBOR.
// Top-level labels are encoded as unsigned integers.
func EncodeMetadata(metadata map[string]any) ([]byte, error) {
	labelled := make(map[uint64]any, len(metadata))
	for label, value := range metadata {
		n, err := strconv.ParseUint(label, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("metadata label %q is not an unsigned integer", label)
		}
		labelled[n] = value
	}
	return encMode.Marshal(labelled)
}

// DecodeMetadata reverses EncodeMetadata.
func DecodeMetadata(data []byte) (map[string]any, error) {
	var labelled map[uint64]any
	if err := decMode.Unmarshal(data, &labelled); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	out := make(map[string]any, len(labelled))
	for label, value := range labelled {
		out[strconv.FormatUint(label, 10)] = value
	}
	return out, nil
}
