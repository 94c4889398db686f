package resolver

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/louisbranch/fairroll/internal/services/resolver/domain/address"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/bet"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/sigverify"
	"github.com/louisbranch/fairroll/internal/services/resolver/storage"
	"github.com/mr-tron/base58"
	"google.golang.org/protobuf/types/known/structpb"
	"lukechampine.com/uint128"
)

// Bet is the wire view of an open bet.
type Bet struct {
	Address address.Address
	Vault   address.Address
	Player  address.Address
	Seed    uint128.Uint128
	Slot    uint64
	Amount  uint64
	Target  uint8
	Bump    uint8
}

// Commitment returns the signed commitment this bet carries.
func (b Bet) Commitment() bet.Commitment {
	return bet.Commitment{Player: b.Player, Seed: b.Seed, Slot: b.Slot, Amount: b.Amount, Target: b.Target, Bump: b.Bump}
}

// Vault is the wire view of the house vault.
type Vault struct {
	House   address.Address
	Address address.Address
	Bump    uint8
	Balance uint64
}

// Resolution is the wire view of a committed resolution.
type Resolution struct {
	Bet    address.Address
	State  string
	Roll   uint8
	Won    bool
	Payout uint64
	Path   []string
}

// Transfer is the wire view of one ledger movement. From is the zero address
// for faucet credits.
type Transfer struct {
	ID        string
	From      address.Address
	To        address.Address
	Amount    uint64
	Reason    string
	CreatedAt time.Time
}

// fieldError reports a bad or missing request field.
type fieldError struct {
	Field  string
	Reason string
}

func (e *fieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func betFromRecord(record storage.Bet) Bet {
	c := record.Commitment
	return Bet{
		Address: record.Address,
		Vault:   record.Vault,
		Player:  c.Player,
		Seed:    c.Seed,
		Slot:    c.Slot,
		Amount:  c.Amount,
		Target:  c.Target,
		Bump:    c.Bump,
	}
}

func betToStruct(b Bet) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"address": structpb.NewStringValue(b.Address.String()),
		"vault":   structpb.NewStringValue(b.Vault.String()),
		"player":  structpb.NewStringValue(b.Player.String()),
		"seed":    structpb.NewStringValue(b.Seed.String()),
		"slot":    uintValue(b.Slot),
		"amount":  uintValue(b.Amount),
		"target":  structpb.NewNumberValue(float64(b.Target)),
		"bump":    structpb.NewNumberValue(float64(b.Bump)),
	}}
}

func betFromStruct(s *structpb.Struct) (Bet, error) {
	var (
		b   Bet
		err error
	)
	if b.Address, err = addressField(s, "address"); err != nil {
		return Bet{}, err
	}
	if b.Vault, err = addressField(s, "vault"); err != nil {
		return Bet{}, err
	}
	if b.Player, err = addressField(s, "player"); err != nil {
		return Bet{}, err
	}
	if b.Seed, err = seedField(s, "seed"); err != nil {
		return Bet{}, err
	}
	if b.Slot, err = uintField(s, "slot"); err != nil {
		return Bet{}, err
	}
	if b.Amount, err = uintField(s, "amount"); err != nil {
		return Bet{}, err
	}
	if b.Target, err = byteField(s, "target"); err != nil {
		return Bet{}, err
	}
	if b.Bump, err = byteField(s, "bump"); err != nil {
		return Bet{}, err
	}
	return b, nil
}

func vaultToStruct(v Vault) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"house":   structpb.NewStringValue(v.House.String()),
		"address": structpb.NewStringValue(v.Address.String()),
		"bump":    structpb.NewNumberValue(float64(v.Bump)),
		"balance": uintValue(v.Balance),
	}}
}

func vaultFromStruct(s *structpb.Struct) (Vault, error) {
	var (
		v   Vault
		err error
	)
	if v.House, err = addressField(s, "house"); err != nil {
		return Vault{}, err
	}
	if v.Address, err = addressField(s, "address"); err != nil {
		return Vault{}, err
	}
	if v.Bump, err = byteField(s, "bump"); err != nil {
		return Vault{}, err
	}
	if v.Balance, err = uintField(s, "balance"); err != nil {
		return Vault{}, err
	}
	return v, nil
}

func resolutionToStruct(r Resolution) *structpb.Struct {
	path := make([]*structpb.Value, 0, len(r.Path))
	for _, state := range r.Path {
		path = append(path, structpb.NewStringValue(state))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"bet":    structpb.NewStringValue(r.Bet.String()),
		"state":  structpb.NewStringValue(r.State),
		"roll":   structpb.NewNumberValue(float64(r.Roll)),
		"won":    structpb.NewBoolValue(r.Won),
		"payout": uintValue(r.Payout),
		"path":   structpb.NewListValue(&structpb.ListValue{Values: path}),
	}}
}

func resolutionFromStruct(s *structpb.Struct) (Resolution, error) {
	var (
		r   Resolution
		err error
	)
	if r.Bet, err = addressField(s, "bet"); err != nil {
		return Resolution{}, err
	}
	r.State = s.GetFields()["state"].GetStringValue()
	if r.Roll, err = byteField(s, "roll"); err != nil {
		return Resolution{}, err
	}
	r.Won = s.GetFields()["won"].GetBoolValue()
	if r.Payout, err = uintField(s, "payout"); err != nil {
		return Resolution{}, err
	}
	for _, v := range s.GetFields()["path"].GetListValue().GetValues() {
		r.Path = append(r.Path, v.GetStringValue())
	}
	return r, nil
}

func transfersToStruct(account address.Address, transfers []Transfer) *structpb.Struct {
	values := make([]*structpb.Value, 0, len(transfers))
	for _, t := range transfers {
		values = append(values, structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"id":         structpb.NewStringValue(t.ID),
			"from":       structpb.NewStringValue(t.From.String()),
			"to":         structpb.NewStringValue(t.To.String()),
			"amount":     uintValue(t.Amount),
			"reason":     structpb.NewStringValue(t.Reason),
			"created_at": structpb.NewStringValue(t.CreatedAt.UTC().Format(time.RFC3339Nano)),
		}}))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"account":   structpb.NewStringValue(account.String()),
		"transfers": structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}
}

func transfersFromStruct(s *structpb.Struct) ([]Transfer, error) {
	list := s.GetFields()["transfers"].GetListValue().GetValues()
	out := make([]Transfer, 0, len(list))
	for i, v := range list {
		entry := v.GetStructValue()
		if entry == nil {
			return nil, &fieldError{Field: fmt.Sprintf("transfers[%d]", i), Reason: "must be an object"}
		}
		var (
			t   Transfer
			err error
		)
		t.ID, _ = stringField(entry, "id")
		t.Reason, _ = stringField(entry, "reason")
		if t.From, err = addressField(entry, "from"); err != nil {
			return nil, err
		}
		if t.To, err = addressField(entry, "to"); err != nil {
			return nil, err
		}
		if t.Amount, err = uintField(entry, "amount"); err != nil {
			return nil, err
		}
		raw, _ := stringField(entry, "created_at")
		if t.CreatedAt, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return nil, &fieldError{Field: "created_at", Reason: "must be an RFC 3339 timestamp"}
		}
		out = append(out, t)
	}
	return out, nil
}

func recordsToValue(records []sigverify.Instruction) *structpb.Value {
	values := make([]*structpb.Value, 0, len(records))
	for _, record := range records {
		accounts := make([]*structpb.Value, 0, len(record.Accounts))
		for _, meta := range record.Accounts {
			accounts = append(accounts, structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
				"address":  structpb.NewStringValue(meta.Address.String()),
				"signer":   structpb.NewBoolValue(meta.IsSigner),
				"writable": structpb.NewBoolValue(meta.IsWritable),
			}}))
		}
		values = append(values, structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"program_id": structpb.NewStringValue(record.ProgramID.String()),
			"accounts":   structpb.NewListValue(&structpb.ListValue{Values: accounts}),
			"data":       structpb.NewStringValue(base58.Encode(record.Data)),
		}}))
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

func recordsFromStruct(s *structpb.Struct, name string) ([]sigverify.Instruction, error) {
	list := s.GetFields()[name].GetListValue()
	records := make([]sigverify.Instruction, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		entry := v.GetStructValue()
		if entry == nil {
			return nil, &fieldError{Field: fmt.Sprintf("%s[%d]", name, i), Reason: "must be an object"}
		}
		programID, err := addressField(entry, "program_id")
		if err != nil {
			return nil, err
		}
		data, err := bytesField(entry, "data")
		if err != nil {
			return nil, err
		}
		record := sigverify.Instruction{ProgramID: programID, Data: data}
		for _, av := range entry.GetFields()["accounts"].GetListValue().GetValues() {
			meta := av.GetStructValue()
			addr, err := addressField(meta, "address")
			if err != nil {
				return nil, err
			}
			record.Accounts = append(record.Accounts, sigverify.AccountMeta{
				Address:    addr,
				IsSigner:   meta.GetFields()["signer"].GetBoolValue(),
				IsWritable: meta.GetFields()["writable"].GetBoolValue(),
			})
		}
		records = append(records, record)
	}
	return records, nil
}

func uintValue(v uint64) *structpb.Value {
	return structpb.NewStringValue(strconv.FormatUint(v, 10))
}

func stringField(s *structpb.Struct, name string) (string, bool) {
	v, ok := s.GetFields()[name]
	if !ok {
		return "", false
	}
	str, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", false
	}
	return str.StringValue, true
}

func addressField(s *structpb.Struct, name string) (address.Address, error) {
	raw, ok := stringField(s, name)
	if !ok || raw == "" {
		return address.Address{}, &fieldError{Field: name, Reason: "address is required"}
	}
	addr, err := address.Parse(raw)
	if err != nil {
		return address.Address{}, fmt.Errorf("%s: %w", name, err)
	}
	return addr, nil
}

func bytesField(s *structpb.Struct, name string) ([]byte, error) {
	raw, ok := stringField(s, name)
	if !ok {
		return nil, &fieldError{Field: name, Reason: "base58 string is required"}
	}
	if raw == "" {
		return []byte{}, nil
	}
	out, err := base58.Decode(raw)
	if err != nil {
		return nil, &fieldError{Field: name, Reason: "invalid base58"}
	}
	return out, nil
}

// uintField accepts a decimal string or a whole number value.
func uintField(s *structpb.Struct, name string) (uint64, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return 0, &fieldError{Field: name, Reason: "is required"}
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		out, err := strconv.ParseUint(kind.StringValue, 10, 64)
		if err != nil {
			return 0, &fieldError{Field: name, Reason: "must be an unsigned 64-bit decimal"}
		}
		return out, nil
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n < 0 || n != math.Trunc(n) || n > 1<<53 {
			return 0, &fieldError{Field: name, Reason: "must be a whole number up to 2^53; send larger values as strings"}
		}
		return uint64(n), nil
	default:
		return 0, &fieldError{Field: name, Reason: "must be a decimal string"}
	}
}

func byteField(s *structpb.Struct, name string) (uint8, error) {
	v, err := uintField(s, name)
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint8 {
		return 0, &fieldError{Field: name, Reason: "must fit in one byte"}
	}
	return uint8(v), nil
}

func seedField(s *structpb.Struct, name string) (uint128.Uint128, error) {
	raw, ok := stringField(s, name)
	if !ok {
		return uint128.Zero, &fieldError{Field: name, Reason: "decimal string is required"}
	}
	seed, err := bet.ParseSeed(raw)
	if err != nil {
		return uint128.Zero, &fieldError{Field: name, Reason: "must be an unsigned 128-bit decimal"}
	}
	return seed, nil
}
