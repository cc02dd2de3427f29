package cardano

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"
)

// minUTxOOverhead is the per-output byte overhead the ledger adds before
// multiplying by coins_per_utxo_size.
const minUTxOOverhead = 160

var errInsufficientFunds = errors.New("insufficient funds at organizer address")

type assetAmount struct {
	Unit     string `json:"unit"`
	Quantity string `json:"quantity"`
}

// utxo is an unspent output as Blockfrost lists it.
type utxo struct {
	TxHash      string        `json:"tx_hash"`
	OutputIndex uint32        `json:"output_index"`
	Amount      []assetAmount `json:"amount"`
}

type protocolParams struct {
	MinFeeA          uint64 `json:"min_fee_a"`
	MinFeeB          uint64 `json:"min_fee_b"`
	CoinsPerUTxOSize string `json:"coins_per_utxo_size"`
}

func (p protocolParams) coinsPerByte() uint64 {
	n, err := strconv.ParseUint(p.CoinsPerUTxOSize, 10, 64)
	if err != nil || n == 0 {
		return 4310
	}
	return n
}

// value is lovelace plus native assets keyed by policy id hex and asset name
// hex.
type value struct {
	Coin   uint64
	Assets map[string]map[string]int64
}

func (v *value) addAsset(policy, name string, qty int64) {
	if v.Assets == nil {
		v.Assets = map[string]map[string]int64{}
	}
	if v.Assets[policy] == nil {
		v.Assets[policy] = map[string]int64{}
	}
	v.Assets[policy][name] += qty
	if v.Assets[policy][name] == 0 {
		delete(v.Assets[policy], name)
	}
	if len(v.Assets[policy]) == 0 {
		delete(v.Assets, policy)
	}
}

func (v *value) add(u utxo) error {
	for _, a := range u.Amount {
		qty, err := strconv.ParseUint(a.Quantity, 10, 64)
		if err != nil {
			return fmt.Errorf("utxo %s#%d: bad quantity %q", u.TxHash, u.OutputIndex, a.Quantity)
		}
		if a.Unit == "lovelace" {
			v.Coin += qty
			continue
		}
		if len(a.Unit) < 56 {
			return fmt.Errorf("utxo %s#%d: bad unit %q", u.TxHash, u.OutputIndex, a.Unit)
		}
		v.addAsset(a.Unit[:56], a.Unit[56:], int64(qty))
	}
	return nil
}

func (u utxo) holds(unit string) bool {
	for _, a := range u.Amount {
		if a.Unit == unit {
			return true
		}
	}
	return false
}

func (u utxo) lovelace() uint64 {
	for _, a := range u.Amount {
		if a.Unit == "lovelace" {
			n, _ := strconv.ParseUint(a.Quantity, 10, 64)
			return n
		}
	}
	return 0
}

type multiAsset map[cbor.ByteString]map[cbor.ByteString]int64

func encodeAssets(assets map[string]map[string]int64) (multiAsset, error) {
	out := make(multiAsset, len(assets))
	for policy, names := range assets {
		p, err := hex.DecodeString(policy)
		if err != nil {
			return nil, fmt.Errorf("bad policy id %q", policy)
		}
		inner := make(map[cbor.ByteString]int64, len(names))
		for name, qty := range names {
			n, err := hex.DecodeString(name)
			if err != nil {
				return nil, fmt.Errorf("bad asset name %q", name)
			}
			inner[cbor.ByteString(n)] = qty
		}
		out[cbor.ByteString(p)] = inner
	}
	return out, nil
}

type txInput struct {
	_     struct{} `cbor:",toarray"`
	TxID  []byte
	Index uint32
}

type txOutput struct {
	_       struct{} `cbor:",toarray"`
	Address []byte
	Value   any
}

type txBody struct {
	Inputs      []txInput  `cbor:"0,keyasint"`
	Outputs     []txOutput `cbor:"1,keyasint"`
	Fee         uint64     `cbor:"2,keyasint"`
	AuxDataHash []byte     `cbor:"7,keyasint"`
	Mint        multiAsset `cbor:"9,keyasint"`
}

type vkeyWitness struct {
	_         struct{} `cbor:",toarray"`
	VKey      []byte
	Signature []byte
}

type witnessSet struct {
	VKeys         []vkeyWitness     `cbor:"0,keyasint"`
	NativeScripts []cbor.RawMessage `cbor:"1,keyasint"`
}

type transaction struct {
	_       struct{} `cbor:",toarray"`
	Body    cbor.RawMessage
	Witness witnessSet
	Valid   bool
	AuxData cbor.RawMessage
}

// mintPlan is one token mint or burn under the signature policy.
type mintPlan struct {
	AssetName []byte
	Quantity  int64
	AuxData   []byte
}

// builtTx is a signed, balanced transaction ready for submission.
type builtTx struct {
	Hash string
	Fee  uint64
	Raw  []byte
}

// buildTx balances plan against available UTxOs at the organizer address.
// UTxOs holding the burned token are always spent; lovelace-only inputs are
// added largest first until fee and change are covered. Everything left goes
// back to the organizer address as one change output.
func (c *BlockfrostClient) buildTx(utxos []utxo, params protocolParams, plan mintPlan) (*builtTx, error) {
	unit := c.policyID + hex.EncodeToString(plan.AssetName)

	var selected, rest []utxo
	for _, u := range utxos {
		if plan.Quantity < 0 && u.holds(unit) {
			selected = append(selected, u)
		} else {
			rest = append(rest, u)
		}
	}
	if plan.Quantity < 0 && len(selected) == 0 {
		return nil, fmt.Errorf("token %s is not held at the organizer address", unit)
	}
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].lovelace() > rest[j].lovelace() })

	for {
		tx, err := c.balance(selected, params, plan)
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, errInsufficientFunds) || len(rest) == 0 {
			return nil, err
		}
		selected = append(selected, rest[0])
		rest = rest[1:]
	}
}

func (c *BlockfrostClient) balance(inputs []utxo, params protocolParams, plan mintPlan) (*builtTx, error) {
	if len(inputs) == 0 {
		return nil, errInsufficientFunds
	}

	var total value
	txInputs := make([]txInput, 0, len(inputs))
	for _, u := range inputs {
		id, err := hex.DecodeString(u.TxHash)
		if err != nil {
			return nil, fmt.Errorf("bad utxo hash %q", u.TxHash)
		}
		txInputs = append(txInputs, txInput{TxID: id, Index: u.OutputIndex})
		if err := total.add(u); err != nil {
			return nil, err
		}
	}
	policy := c.policyID
	name := hex.EncodeToString(plan.AssetName)
	total.addAsset(policy, name, plan.Quantity)
	if total.Assets[policy][name] < 0 {
		return nil, fmt.Errorf("burn of %s%s exceeds holdings", policy, name)
	}

	change, err := encodeAssets(total.Assets)
	if err != nil {
		return nil, err
	}
	mint, err := encodeAssets(map[string]map[string]int64{policy: {name: plan.Quantity}})
	if err != nil {
		return nil, err
	}
	auxHash := blake2b.Sum256(plan.AuxData)

	var fee uint64
	for i := 0; i < 10; i++ {
		if total.Coin < fee {
			return nil, errInsufficientFunds
		}
		out := txOutput{Address: c.address, Value: total.Coin - fee}
		if len(change) > 0 {
			out.Value = []any{total.Coin - fee, change}
		}
		body := txBody{
			Inputs:      txInputs,
			Outputs:     []txOutput{out},
			Fee:         fee,
			AuxDataHash: auxHash[:],
			Mint:        mint,
		}
		tx, err := c.sign(body, plan.AuxData)
		if err != nil {
			return nil, err
		}

		needed := params.MinFeeA*uint64(len(tx.Raw)) + params.MinFeeB
		if needed > fee {
			fee = needed
			continue
		}

		outBytes, err := encMode.Marshal(out)
		if err != nil {
			return nil, err
		}
		if total.Coin-fee < (minUTxOOverhead+uint64(len(outBytes)))*params.coinsPerByte() {
			return nil, errInsufficientFunds
		}
		tx.Fee = fee
		return tx, nil
	}
	return nil, errors.New("transaction fee did not converge")
}

func (c *BlockfrostClient) sign(body txBody, auxData []byte) (*builtTx, error) {
	bodyBytes, err := encMode.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction body: %w", err)
	}
	txID := blake2b.Sum256(bodyBytes)

	raw, err := encMode.Marshal(transaction{
		Body: bodyBytes,
		Witness: witnessSet{
			VKeys:         []vkeyWitness{{VKey: c.key.PublicKey(), Signature: c.key.signBytes(txID[:])}},
			NativeScripts: []cbor.RawMessage{c.policyScript},
		},
		Valid:   true,
		AuxData: auxData,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	return &builtTx{Hash: hex.EncodeToString(txID[:]), Raw: raw}, nil
}
